package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netaudit/shapeaudit/internal/audit"
	"github.com/netaudit/shapeaudit/internal/config"
	"github.com/netaudit/shapeaudit/internal/device"
	"github.com/netaudit/shapeaudit/internal/hook"
	"github.com/netaudit/shapeaudit/internal/inventory"
	"github.com/netaudit/shapeaudit/internal/logging"
	"github.com/netaudit/shapeaudit/internal/netutil"
	"github.com/netaudit/shapeaudit/internal/output"
	"github.com/netaudit/shapeaudit/internal/resume"
	"github.com/netaudit/shapeaudit/internal/scanner"
	"github.com/netaudit/shapeaudit/pkg/version"
)

// checkpointEvery is how many records are collected between resume saves.
const checkpointEvery = 25

// env holds the pieces of a run that tests replace.
type env struct {
	newDialer   func(*config.Options, config.Credentials) device.Dialer
	now         func() time.Time
	interactive bool      // allow the stdin pause toggle
	stderr      io.Writer // status messages
}

func defaultEnv() env {
	return env{
		newDialer: func(opts *config.Options, creds config.Credentials) device.Dialer {
			return device.NewSSHDialer(opts, creds)
		},
		now:         time.Now,
		interactive: true,
		stderr:      os.Stderr,
	}
}

// Run executes one fleet audit. It returns an error only for faults that
// prevent the audit from starting; per-device failures are reported as Fail
// records and an interrupted audit still writes a complete report.
func Run(ctx context.Context, opts *config.Options) error {
	return run(ctx, opts, defaultEnv())
}

func run(ctx context.Context, opts *config.Options, e env) error {
	// 1. Startup: everything here is fatal.
	creds, err := config.LoadCredentials(opts.CredentialsFile)
	if err != nil {
		return err
	}

	tz := opts.Timezone
	if tz == "" {
		tz = config.DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("loading timezone: %w", err)
	}

	log, logCloser, err := logging.New(opts.LogFile, opts.LogLevel)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	addresses, err := resolveTargets(opts)
	if err != nil {
		return err
	}

	// 2. Resume support.
	var (
		resumeState *resume.State
		replay      []*audit.Record
		remaining   = addresses
	)
	if opts.ResumeFile != "" {
		existing, err := resume.Load(opts.ResumeFile)
		if err != nil {
			return fmt.Errorf("loading resume file: %w", err)
		}
		if existing != nil {
			resumeState = existing
			replay, remaining = existing.Split(addresses)
			if !opts.Quiet {
				fmt.Fprintf(e.stderr, "[+] Resuming: %d devices already audited, %d remaining\n", len(replay), len(remaining))
			}
		} else {
			resumeState = resume.New(opts.ResumeFile, len(addresses))
		}
	}

	// 3. Output writer.
	out, err := output.New(opts.OutputFormat, opts.OutputFile, opts.SortBy, opts.NoColor, opts.Quiet)
	if err != nil {
		return fmt.Errorf("creating output writer: %w", err)
	}
	defer out.Close()

	if err := out.WriteHeader(); err != nil {
		return err
	}

	if !opts.Quiet {
		printBanner(e.stderr, opts, len(addresses), tz)
	}
	log.WithFields(logrus.Fields{
		"devices":  len(addresses),
		"replayed": len(replay),
		"threads":  opts.Threads,
		"version":  version.Version,
	}).Info("audit started")

	// 4. Pipeline.
	var hookRunner *hook.Runner
	if opts.OnResultCmd != "" {
		hookRunner = hook.NewRunner(opts.OnResultCmd, log)
	}

	var pauser *scanner.Pauser
	if opts.Progress && e.interactive {
		var cleanup func()
		pauser, cleanup = startStdinToggle(e.stderr, opts.Quiet)
		defer cleanup()
	}

	progress := output.NewProgress(len(addresses), opts.Quiet || !opts.Progress)
	progress.Start()
	startTime := e.now()

	var stats output.Stats
	c := &collector{
		out:         out,
		progress:    progress,
		stats:       &stats,
		resumeState: resumeState,
		log:         log,
	}

	for _, rec := range replay {
		if err := c.write(rec); err != nil {
			progress.Stop()
			return err
		}
	}

	if len(remaining) > 0 {
		auditor := scanner.NewAuditor(e.newDialer(opts, creds), log, scanner.AuditorConfig{
			Location:        loc,
			StrictTolerance: opts.StrictTolerance,
			DeviceTimeout:   opts.DeviceTimeout,
			Now:             e.now,
		})
		workerCfg := scanner.WorkerConfig{
			Threads:   opts.Threads,
			Throttler: scanner.NewThrottler(opts.Rate, opts.AdaptiveThrottle, log),
			Pauser:    pauser,
		}

		poolCtx, cancelPool := context.WithCancel(ctx)
		defer cancelPool()

		// The pool always drains: after cancel it still yields one record per
		// remaining address.
		results := scanner.RunWorkerPool(poolCtx, auditor, remaining, workerCfg)
		for rec := range results {
			if err := c.write(rec); err != nil {
				// Stop dispatching and let in-flight devices finish so no
				// worker is left blocked on the results channel.
				cancelPool()
				for range results {
				}
				progress.Stop()
				return err
			}
			if hookRunner != nil {
				hookRunner.Run(context.WithoutCancel(ctx), rec)
			}
		}
	}

	progress.Stop()

	// 5. Wrap up.
	elapsed := e.now().Sub(startTime)
	if pauser != nil {
		elapsed -= pauser.PausedDuration()
	}
	stats.Finish(elapsed)

	interrupted := ctx.Err() != nil
	if resumeState != nil {
		if interrupted {
			if err := resumeState.Save(); err != nil {
				log.Errorf("saving resume state: %v", err)
			} else if !opts.Quiet {
				fmt.Fprintf(e.stderr, "\n[*] Progress saved to %s (%d devices checkpointed), resume with --resume-file\n",
					opts.ResumeFile, resumeState.Len())
			}
		} else if err := resumeState.Remove(); err != nil {
			log.Warnf("removing resume file: %v", err)
		}
	}

	log.WithFields(logrus.Fields{
		"total":    stats.Total,
		"pass":     stats.Pass,
		"fail":     stats.Fail,
		"skipped":  stats.Skipped,
		"faults":   stats.Faults,
		"duration": stats.Duration.Round(time.Millisecond).String(),
	}).Info("audit finished")

	if interrupted && !opts.Quiet {
		fmt.Fprintf(e.stderr, "[!] Audit interrupted: %d devices were not audited\n", c.canceled)
	}

	return out.WriteFooter(stats)
}

// collector is the single consumer of records. It feeds the writer, the
// progress display, the statistics and the checkpoint.
type collector struct {
	out         output.Writer
	progress    *output.Progress
	stats       *output.Stats
	resumeState *resume.State
	log         logrus.FieldLogger

	sinceSave int
	canceled  int // undispatched or aborted mid-session
}

func (c *collector) write(rec *audit.Record) error {
	c.progress.Record(rec)
	c.stats.Add(rec)
	if rec.Fault == audit.FaultCanceled {
		c.canceled++
	}

	c.progress.ClearLine()
	err := c.out.WriteResult(rec)
	c.progress.Redraw()
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	if c.resumeState != nil {
		c.resumeState.Add(rec)
		c.sinceSave++
		if c.sinceSave >= checkpointEvery {
			c.sinceSave = 0
			if err := c.resumeState.Save(); err != nil {
				c.log.Errorf("saving resume state: %v", err)
			}
		}
	}
	return nil
}

// resolveTargets builds the address list from --devices, --address and
// --cidr, de-duplicated in that order.
func resolveTargets(opts *config.Options) ([]string, error) {
	var list inventory.List

	if opts.DevicesFile != "" {
		addrs, err := inventory.Load(opts.DevicesFile)
		if err != nil {
			return nil, err
		}
		for _, a := range addrs {
			list.Add(a)
		}
	}

	for _, a := range opts.Addresses {
		list.Add(a)
	}

	if opts.CIDRTargets != "" {
		hosts, err := netutil.ExpandHosts(opts.CIDRTargets)
		if err != nil {
			return nil, fmt.Errorf("expanding CIDR: %w", err)
		}
		for _, h := range hosts {
			list.Add(h)
		}
	}

	if list.Len() == 0 {
		return nil, fmt.Errorf("no devices to audit (use --devices, --address or --cidr)")
	}
	return list.Addresses(), nil
}

func printBanner(w io.Writer, opts *config.Options, deviceCount int, tz string) {
	const (
		cyan   = "\033[36m"
		white  = "\033[97m"
		dim    = "\033[2m"
		red    = "\033[31m"
		green  = "\033[32m"
		yellow = "\033[33m"
		reset  = "\033[0m"
	)

	c, wh, d, r, g, y, rs := cyan, white, dim, red, green, yellow, reset
	if opts.NoColor {
		c, wh, d, r, g, y, rs = "", "", "", "", "", "", ""
	}

	fmt.Fprintf(w, `
%s        __                                  ___ __ %s
%s   ___ / /  ___ ____  ___ ___ ___ _____ ___/ (_) /_%s
%s  (_-</ _ \/ _ '/ _ \/ -_) _ '/ // / _ '/ _  / / __/%s
%s /___/_//_/\_,_/ .__/\__/\_,_/\_,_/\_,_/\_,_/_/\__/ %s %sv%s%s
%s              /_/                                  %s
%s    Shape average vs. bandwidth audit               %s
`,
		c, rs,
		c, rs,
		c, rs,
		c, rs, d, version.Version, rs,
		c, rs,
		wh, rs,
	)

	policy := fmt.Sprintf("%slenient%s", g, rs)
	if opts.StrictTolerance {
		policy = fmt.Sprintf("%sstrict%s", r, rs)
	}

	out := opts.OutputFile
	if out == "" {
		out = "stdout"
	}
	format := opts.OutputFormat
	if format == "" {
		format = "csv"
	}

	fmt.Fprintf(w, "%s  ──────────────────────────────────────%s\n", d, rs)
	fmt.Fprintf(w, "  %sDevices:%s      %s%d%s\n", d, rs, wh, deviceCount, rs)
	fmt.Fprintf(w, "  %sThreads:%s      %s%d%s\n", d, rs, y, opts.Threads, rs)
	fmt.Fprintf(w, "  %sTolerance:%s    %s\n", d, rs, policy)
	fmt.Fprintf(w, "  %sTimezone:%s     %s%s%s\n", d, rs, wh, tz, rs)
	fmt.Fprintf(w, "  %sReport:%s       %s%s (%s)%s\n", d, rs, wh, out, format, rs)
	if opts.Rate > 0 {
		fmt.Fprintf(w, "  %sRate:%s         %s%.1f conn/s%s\n", d, rs, y, opts.Rate, rs)
	}
	fmt.Fprintf(w, "%s  ──────────────────────────────────────%s\n\n", d, rs)
}
