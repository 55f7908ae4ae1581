package output

import (
	"fmt"
	"net/netip"
	"sort"

	"github.com/netaudit/shapeaudit/internal/audit"
)

// SortedWriter buffers records and replays them sorted by a field when
// WriteFooter is called. It wraps any other Writer.
type SortedWriter struct {
	inner   Writer
	less    func(a, b *audit.Record) bool
	records []*audit.Record
}

// NewSortedWriter wraps inner and buffers records for sorted replay.
func NewSortedWriter(inner Writer, sortBy string) (*SortedWriter, error) {
	var less func(a, b *audit.Record) bool
	switch sortBy {
	case "address":
		less = addressLess
	case "status":
		// Fail first, then Pass, then Skipped.
		less = func(a, b *audit.Record) bool {
			if a.Status != b.Status {
				return a.Status < b.Status
			}
			return addressLess(a, b)
		}
	case "hostname":
		less = func(a, b *audit.Record) bool {
			if a.Hostname != b.Hostname {
				return a.Hostname < b.Hostname
			}
			return addressLess(a, b)
		}
	default:
		return nil, fmt.Errorf("unknown sort key %q (want address, status or hostname)", sortBy)
	}
	return &SortedWriter{inner: inner, less: less}, nil
}

func (w *SortedWriter) WriteHeader() error {
	return w.inner.WriteHeader()
}

func (w *SortedWriter) WriteResult(rec *audit.Record) error {
	w.records = append(w.records, rec.Clone())
	return nil
}

func (w *SortedWriter) WriteFooter(stats Stats) error {
	sort.SliceStable(w.records, func(i, j int) bool {
		return w.less(w.records[i], w.records[j])
	})
	for _, r := range w.records {
		if err := w.inner.WriteResult(r); err != nil {
			return err
		}
	}
	return w.inner.WriteFooter(stats)
}

func (w *SortedWriter) Close() error {
	return w.inner.Close()
}

// addressLess orders IP addresses numerically and anything else (hostnames)
// lexically after them.
func addressLess(a, b *audit.Record) bool {
	ia, errA := netip.ParseAddr(a.Address)
	ib, errB := netip.ParseAddr(b.Address)
	switch {
	case errA == nil && errB == nil:
		return ia.Less(ib)
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a.Address < b.Address
	}
}
