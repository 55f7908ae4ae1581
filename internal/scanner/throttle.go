package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second

	// failuresBeforeBackoff is how many consecutive connect failures are
	// tolerated before the throttler starts backing off.
	failuresBeforeBackoff = 3
)

// Throttler paces new device connections. A token bucket caps the
// connection rate, and when adaptive back-off is on, consecutive connect
// failures (a sign of an overloaded jump host or AAA server) double a delay
// inserted before every connection. Successes halve it again.
//
// A nil *Throttler never delays.
type Throttler struct {
	limiter *rate.Limiter // nil = unlimited
	log     logrus.FieldLogger

	mu          sync.Mutex
	delay       time.Duration
	consecutive int
	adaptive    bool
}

// NewThrottler creates a throttler allowing perSecond new connections per
// second (0 = unlimited).
func NewThrottler(perSecond float64, adaptive bool, log logrus.FieldLogger) *Throttler {
	t := &Throttler{adaptive: adaptive, log: log}
	if perSecond > 0 {
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return t
}

// Wait blocks until a new connection may be opened.
func (t *Throttler) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	d := t.Delay()
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Delay returns the current back-off delay.
func (t *Throttler) Delay() time.Duration {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delay
}

// RecordSuccess notes a device that was reached.
func (t *Throttler) RecordSuccess() {
	if t == nil || !t.adaptive {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consecutive = 0
	if t.delay == 0 {
		return
	}
	t.delay /= 2
	if t.delay < minBackoff {
		t.delay = 0
	}
	t.logf(logrus.InfoLevel, "recovering, connection delay now %s", t.delay)
}

// RecordFailure notes a connect failure.
func (t *Throttler) RecordFailure() {
	if t == nil || !t.adaptive {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consecutive++
	if t.consecutive < failuresBeforeBackoff {
		return
	}
	d := t.delay * 2
	if d < minBackoff {
		d = minBackoff
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	if d != t.delay {
		t.delay = d
		t.logf(logrus.WarnLevel, "%d consecutive connect failures, backing off to %s per connection", t.consecutive, t.delay)
	}
}

func (t *Throttler) logf(level logrus.Level, format string, args ...any) {
	if t.log != nil {
		t.log.WithField("component", "throttle").Logf(level, format, args...)
	}
}
