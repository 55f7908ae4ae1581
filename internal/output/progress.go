package output

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"

	"github.com/netaudit/shapeaudit/internal/audit"
)

// Progress tracks and displays audit progress on stderr.
type Progress struct {
	mu      sync.Mutex // serializes terminal writes
	w       io.Writer
	total   int
	done    atomic.Int64
	pass    atomic.Int64
	fail    atomic.Int64
	skipped atomic.Int64
	start   time.Time
	stop    chan struct{}
	stopped chan struct{}
	quiet   bool
	inPlace bool // redraw one line; false when stderr is not a terminal
}

// NewProgress creates a progress tracker for total devices. Call Start to
// begin display updates.
func NewProgress(total int, quiet bool) *Progress {
	return newProgress(os.Stderr, total, quiet, term.IsTerminal(int(os.Stderr.Fd())))
}

func newProgress(w io.Writer, total int, quiet, inPlace bool) *Progress {
	return &Progress{
		w:       w,
		total:   total,
		start:   time.Now(),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		quiet:   quiet,
		inPlace: inPlace,
	}
}

// Start begins periodically printing progress.
func (p *Progress) Start() {
	if p.quiet {
		close(p.stopped)
		return
	}
	interval := 500 * time.Millisecond
	if !p.inPlace {
		// Plain log-style lines; keep them sparse.
		interval = 10 * time.Second
	}
	go func() {
		defer close(p.stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.print()
			case <-p.stop:
				p.print()
				if p.inPlace {
					p.mu.Lock()
					fmt.Fprint(p.w, "\n")
					p.mu.Unlock()
				}
				return
			}
		}
	}()
}

// Record counts a finished device.
func (p *Progress) Record(rec *audit.Record) {
	switch rec.Status {
	case audit.StatusPass:
		p.pass.Add(1)
	case audit.StatusSkipped:
		p.skipped.Add(1)
	default:
		p.fail.Add(1)
	}
	p.done.Add(1)
}

// Stop ends the progress display and waits for the final line.
func (p *Progress) Stop() {
	close(p.stop)
	<-p.stopped
}

func (p *Progress) line() string {
	done := p.done.Load()
	elapsed := time.Since(p.start).Seconds()
	rate := float64(0)
	if elapsed > 0 {
		rate = float64(done) / elapsed
	}

	pct := float64(0)
	if p.total > 0 {
		pct = float64(done) / float64(p.total) * 100
	}

	eta := ""
	if rate > 0 && done < int64(p.total) {
		remaining := float64(int64(p.total)-done) / rate
		eta = fmt.Sprintf(" | ETA: %s", time.Duration(remaining*float64(time.Second)).Round(time.Second))
	}

	return fmt.Sprintf("[%3.0f%%] %d/%d | %.1f dev/s | Pass: %d | Fail: %d | Skipped: %d%s",
		pct, done, p.total, rate,
		p.pass.Load(), p.fail.Load(), p.skipped.Load(), eta)
}

// ClearLine erases the progress line so other output can be written to the
// terminal. Call Redraw afterwards.
func (p *Progress) ClearLine() {
	if p.quiet || !p.inPlace {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.w, "\r\033[K")
}

// Redraw prints the progress line again after ClearLine.
func (p *Progress) Redraw() {
	if p.quiet || !p.inPlace {
		return
	}
	p.print()
}

func (p *Progress) print() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inPlace {
		fmt.Fprintf(p.w, "\r\033[K%s", p.line())
		return
	}
	fmt.Fprintln(p.w, p.line())
}
