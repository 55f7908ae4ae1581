// Package inventory loads the list of device addresses to audit.
package inventory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// addressColumns are the header names recognised as the address column, in
// order of preference.
var addressColumns = []string{"ip", "address", "host", "hostname"}

// Load reads device addresses from path. The file is CSV: when the first row
// names an address column (ip, address, host or hostname) that column is
// used, otherwise the first field of every row is an address. Blank lines and
// lines starting with '#' are skipped. Addresses are de-duplicated in
// first-seen order.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading device list %s: %w", path, err)
	}
	defer f.Close()

	addrs, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing device list %s: %w", path, err)
	}
	return addrs, nil
}

// Parse reads addresses from r. See Load for the format.
func Parse(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var list List
	col := 0
	first := true
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			if i, ok := headerColumn(row); ok {
				col = i
				continue
			}
		}
		if col < len(row) {
			list.Add(row[col])
		}
	}
	return list.Addresses(), nil
}

func headerColumn(row []string) (int, bool) {
	for _, name := range addressColumns {
		for i, field := range row {
			if strings.EqualFold(strings.TrimSpace(field), name) {
				return i, true
			}
		}
	}
	return 0, false
}

// List accumulates addresses from several sources without duplicates.
type List struct {
	seen  map[string]struct{}
	addrs []string
}

// Add appends addr unless it is empty or already present. It reports whether
// addr was added.
func (l *List) Add(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}
	if l.seen == nil {
		l.seen = make(map[string]struct{})
	}
	if _, ok := l.seen[addr]; ok {
		return false
	}
	l.seen[addr] = struct{}{}
	l.addrs = append(l.addrs, addr)
	return true
}

// Addresses returns the accumulated addresses in insertion order.
func (l *List) Addresses() []string {
	return l.addrs
}

// Len returns the number of distinct addresses.
func (l *List) Len() int { return len(l.addrs) }
