package scanner

import (
	"context"
	"errors"
	"fmt"

	"github.com/netaudit/shapeaudit/internal/audit"
	"github.com/netaudit/shapeaudit/internal/device"
)

// Fault is a per-device failure caught at the worker boundary.
type Fault struct {
	Kind     audit.FaultKind
	Hostname string // known hostname, if any
	Err      error
}

func (f *Fault) Error() string { return fmt.Sprintf("%s fault: %v", f.Kind, f.Err) }

func (f *Fault) Unwrap() error { return f.Err }

// classify maps an error from the device procedure to a fault kind.
func classify(err error) audit.FaultKind {
	var ce *device.ConnectError
	switch {
	case errors.Is(err, context.Canceled):
		return audit.FaultCanceled
	case errors.As(err, &ce):
		return audit.FaultConnectivity
	case audit.IsEngineFault(err):
		return audit.FaultEngine
	default:
		return audit.FaultProtocol
	}
}

// deviceResult is what the per-device procedure produced: an outcome or a
// fault, never both.
type deviceResult struct {
	address string
	outcome audit.Outcome
	fault   *Fault
}
