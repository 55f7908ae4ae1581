package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the classification of a single device.
type Status int

const (
	StatusFail Status = iota
	StatusPass
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "Pass"
	case StatusSkipped:
		return "Skipped"
	default:
		return "Fail"
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "Pass":
		return StatusPass, nil
	case "Fail":
		return StatusFail, nil
	case "Skipped":
		return StatusSkipped, nil
	}
	return StatusFail, fmt.Errorf("audit: unknown status %q", s)
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// FaultKind records why a device could not be classified by policy. A record
// with FaultNone was classified by the decision procedure.
type FaultKind string

const (
	FaultNone         FaultKind = ""
	FaultConnectivity FaultKind = "connectivity"
	FaultProtocol     FaultKind = "protocol"
	FaultEngine       FaultKind = "engine"
	FaultCanceled     FaultKind = "canceled"
	FaultInternal     FaultKind = "internal"
)

// Record is the audit outcome for one device address.
type Record struct {
	Address      string    `json:"address"`
	Hostname     string    `json:"hostname"`
	Bandwidth    Value     `json:"bandwidth"`
	ShapeAverage Value     `json:"shape_average"`
	Status       Status    `json:"status"`
	Comment      string    `json:"comment"`
	Timestamp    time.Time `json:"timestamp"`
	Reason       Reason    `json:"reason,omitempty"`
	Fault        FaultKind `json:"fault,omitempty"`
}

// TimestampLayout is the layout used when a record's timestamp is rendered as
// text.
const TimestampLayout = "2006-01-02 15:04:05.000000-07:00"

// Row returns the record in report column order: address, hostname,
// bandwidth, shapeAverage, status, comment, timestamp.
func (r *Record) Row() []string {
	ts := ""
	if !r.Timestamp.IsZero() {
		ts = r.Timestamp.Format(TimestampLayout)
	}
	return []string{
		r.Address,
		r.Hostname,
		r.Bandwidth.String(),
		r.ShapeAverage.String(),
		r.Status.String(),
		r.Comment,
		ts,
	}
}

// Columns is the report header matching Record.Row.
var Columns = []string{"address", "hostname", "bandwidth", "shapeAverage", "status", "comment", "timestamp"}

// Clone returns a copy of r that shares no mutable state with it.
func (r *Record) Clone() *Record {
	cpy := *r
	return &cpy
}

// String is used in log and test failure output.
func (r *Record) String() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("%s %s", r.Address, r.Status)
	}
	return string(b)
}
