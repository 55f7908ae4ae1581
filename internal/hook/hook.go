// Package hook runs a user command for every audit record.
package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netaudit/shapeaudit/internal/audit"
)

// DefaultTimeout bounds a single hook invocation.
const DefaultTimeout = 30 * time.Second

// Runner executes a shell command for each audit record.
type Runner struct {
	cmd     string
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewRunner creates a hook runner. cmd is the shell command to execute.
func NewRunner(cmd string, log logrus.FieldLogger) *Runner {
	return &Runner{cmd: cmd, timeout: DefaultTimeout, log: log}
}

// Expand replaces the {address}, {hostname} and {status} placeholders in
// the command with values from rec.
func (r *Runner) Expand(rec *audit.Record) string {
	return strings.NewReplacer(
		"{address}", rec.Address,
		"{hostname}", rec.Hostname,
		"{status}", rec.Status.String(),
	).Replace(r.cmd)
}

// Run executes the hook command with the record as JSON on stdin. Errors are
// logged but do not halt the audit.
func (r *Runner) Run(ctx context.Context, rec *audit.Record) {
	log := r.log.WithField("address", rec.Address)

	data, err := json.Marshal(rec)
	if err != nil {
		log.Errorf("hook: marshal record: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	shell, args := shellCommand()
	cmd := exec.CommandContext(ctx, shell, append(args, r.Expand(rec))...)
	cmd.Stdin = bytes.NewReader(data)
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		log.WithField("stderr", strings.TrimSpace(stderr.String())).Errorf("hook: %v", err)
		return
	}
	if out := strings.TrimSpace(string(output)); out != "" {
		log.Infof("hook: %s", out)
	}
}

func shellCommand() (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C"}
	}
	return "sh", []string{"-c"}
}
