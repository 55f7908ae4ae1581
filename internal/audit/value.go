package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// MarkerText is the literal written in place of a value that is present but
// ambiguous. The detail lives in the record's comment.
const MarkerText = "see comment"

// valueKind distinguishes the three states a measured field can be in.
type valueKind int

const (
	kindAbsent valueKind = iota
	kindMarker
	kindNumber
)

// Value is a tri-state measurement: absent, an opaque marker, or a number.
// The zero Value is absent.
type Value struct {
	kind valueKind
	n    int64
}

// Absent returns a Value with no data.
func Absent() Value { return Value{} }

// Marker returns the "see comment" Value.
func Marker() Value { return Value{kind: kindMarker} }

// Number returns a numeric Value.
func Number(n int64) Value { return Value{kind: kindNumber, n: n} }

// Int returns the numeric value and whether v holds one.
func (v Value) Int() (int64, bool) {
	if v.kind != kindNumber {
		return 0, false
	}
	return v.n, true
}

// String returns the report encoding: "" for absent, "see comment" for the
// marker, and a decimal integer otherwise.
func (v Value) String() string {
	switch v.kind {
	case kindMarker:
		return MarkerText
	case kindNumber:
		return strconv.FormatInt(v.n, 10)
	default:
		return ""
	}
}

// MarshalJSON encodes absent as null, the marker as a string and numbers as
// JSON integers.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindMarker:
		return json.Marshal(MarkerText)
	case kindNumber:
		return []byte(strconv.FormatInt(v.n, 10)), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts the forms produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = Absent()
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != MarkerText {
			return fmt.Errorf("audit: unexpected value %q", s)
		}
		*v = Marker()
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("audit: invalid numeric value %s: %w", data, err)
	}
	*v = Number(n)
	return nil
}
