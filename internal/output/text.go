package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/netaudit/shapeaudit/internal/audit"
)

// ANSI color codes.
const (
	colorReset  = "\033[0m"
	colorDim    = "\033[2m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
)

// TextWriter writes one aligned, colored line per record.
type TextWriter struct {
	w       io.Writer
	closer  io.Closer
	summary io.Writer // footer destination
	noColor bool
	quiet   bool
}

// NewTextWriter creates a text output writer. If outputFile is empty, stdout
// is used. noColor disables ANSI escape codes.
func NewTextWriter(outputFile string, noColor, quiet bool) (*TextWriter, error) {
	w, closer, err := open(outputFile)
	if err != nil {
		return nil, err
	}
	return &TextWriter{w: w, closer: closer, summary: os.Stderr, noColor: noColor, quiet: quiet}, nil
}

func (t *TextWriter) WriteHeader() error {
	if t.quiet {
		return nil
	}
	_, err := fmt.Fprintf(t.w, "%s%-7s  %-15s  %-20s  %12s  %12s  %s%s\n",
		t.color(colorDim), "Status", "Address", "Hostname", "Bandwidth", "Shape", "Comment", t.color(colorReset))
	return err
}

func (t *TextWriter) WriteResult(rec *audit.Record) error {
	_, err := fmt.Fprintf(t.w, "%s%-7s%s  %-15s  %-20s  %12s  %12s  %s\n",
		t.color(statusColor(rec.Status)), rec.Status, t.color(colorReset),
		rec.Address,
		rec.Hostname,
		rec.Bandwidth,
		rec.ShapeAverage,
		rec.Comment,
	)
	return err
}

func (t *TextWriter) WriteFooter(stats Stats) error {
	if t.quiet {
		return nil
	}
	_, err := fmt.Fprintf(t.summary,
		"\nCompleted: %d devices | Pass: %d | Fail: %d | Skipped: %d | Faults: %d | Duration: %s | %.1f dev/s\n",
		stats.Total,
		stats.Pass,
		stats.Fail,
		stats.Skipped,
		stats.Faults,
		stats.Duration.Round(time.Millisecond),
		stats.DevicesPerSec,
	)
	return err
}

func (t *TextWriter) Close() error {
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

func (t *TextWriter) color(code string) string {
	if t.noColor {
		return ""
	}
	return code
}

func statusColor(s audit.Status) string {
	switch s {
	case audit.StatusPass:
		return colorGreen
	case audit.StatusSkipped:
		return colorYellow
	default:
		return colorRed
	}
}
