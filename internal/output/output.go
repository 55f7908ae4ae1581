// Package output renders audit records as CSV, JSON or text reports.
package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/netaudit/shapeaudit/internal/audit"
)

// Stats holds aggregate audit statistics.
type Stats struct {
	Total         int
	Pass          int
	Fail          int
	Skipped       int
	Faults        int // Fail records caused by a fault rather than policy
	Duration      time.Duration
	DevicesPerSec float64
}

// Add counts rec.
func (s *Stats) Add(rec *audit.Record) {
	s.Total++
	switch rec.Status {
	case audit.StatusPass:
		s.Pass++
	case audit.StatusSkipped:
		s.Skipped++
	default:
		s.Fail++
	}
	if rec.Fault != audit.FaultNone {
		s.Faults++
	}
}

// Finish sets the duration and rate fields.
func (s *Stats) Finish(d time.Duration) {
	s.Duration = d
	if secs := d.Seconds(); secs > 0 {
		s.DevicesPerSec = float64(s.Total) / secs
	}
}

// Writer is implemented by each output format. Only one goroutine may call
// it.
type Writer interface {
	WriteHeader() error
	WriteResult(rec *audit.Record) error
	WriteFooter(stats Stats) error
	Close() error
}

// Formats lists the accepted --format values.
var Formats = []string{"csv", "json", "text"}

// SortKeys lists the accepted --sort values.
var SortKeys = []string{"address", "status", "hostname"}

// New creates the writer for format, writing to outputFile or stdout when it
// is empty. A non-empty sortBy wraps it in a SortedWriter.
func New(format, outputFile, sortBy string, noColor, quiet bool) (Writer, error) {
	var (
		w   Writer
		err error
	)
	switch format {
	case "", "csv":
		w, err = NewCSVWriter(outputFile)
	case "json":
		w, err = NewJSONWriter(outputFile)
	case "text":
		w, err = NewTextWriter(outputFile, noColor, quiet)
	default:
		return nil, fmt.Errorf("unknown output format %q (want csv, json or text)", format)
	}
	if err != nil {
		return nil, err
	}
	if sortBy != "" {
		return NewSortedWriter(w, sortBy)
	}
	return w, nil
}

// open returns the destination for outputFile. The closer is nil for stdout.
func open(outputFile string) (io.Writer, io.Closer, error) {
	if outputFile == "" {
		return os.Stdout, nil, nil
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f, nil
}
