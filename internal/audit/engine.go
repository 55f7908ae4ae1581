// Package audit classifies a device's traffic-shaping configuration.
//
// Evaluate is the decision procedure. It takes the raw output of the three
// filtered show commands and returns an Outcome. It performs no I/O and keeps
// no state, so the same input always yields the same Outcome.
package audit

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Reason names the decision branch that produced an Outcome.
type Reason string

const (
	ReasonBypassed             Reason = "bypassed"
	ReasonMissingBoth          Reason = "missing_both"
	ReasonMissingShape         Reason = "missing_shape"
	ReasonMissingBandwidth     Reason = "missing_bandwidth"
	ReasonConflictingBandwidth Reason = "conflicting_bandwidth"
	ReasonDuplicateShape       Reason = "duplicate_shape"
	ReasonExactMatch           Reason = "exact_match"
	ReasonDeltaOne             Reason = "delta_one"
	ReasonMismatch             Reason = "mismatch"
)

// Compliant reports whether the branch is a clean classification. Every other
// branch is logged at error level.
func (r Reason) Compliant() bool {
	return r == ReasonBypassed || r == ReasonExactMatch || r == ReasonDeltaOne
}

// BandwidthScale converts a bandwidth statement into shape average units.
const BandwidthScale = 1000

const bestEffortTag = "be"

// Outcome is the result of Evaluate. The caller adds the device address and
// timestamp to turn it into a Record.
type Outcome struct {
	Hostname     string
	Bandwidth    Value
	ShapeAverage Value
	Status       Status
	Comment      string
	Reason       Reason
}

// EngineFault reports input Evaluate could not interpret, as opposed to a
// configuration that violates shaping policy.
type EngineFault struct {
	Hostname string
	Field    string // "bandwidth" or "shape average"
	Token    string
	Err      error
}

func (e *EngineFault) Error() string {
	return fmt.Sprintf("cannot parse %s value %q: %v", e.Field, e.Token, e.Err)
}

func (e *EngineFault) Unwrap() error { return e.Err }

// IsEngineFault reports whether err is or wraps an *EngineFault.
func IsEngineFault(err error) bool {
	var ef *EngineFault
	return errors.As(err, &ef)
}

// ParseHostname returns the last whitespace-separated token of the output
// of "show run | include hostname".
func ParseHostname(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// IsBestEffort reports whether a hostname marks a device excluded from
// shaping policy. The match is a case-sensitive substring match.
func IsBestEffort(hostname string) bool {
	return strings.Contains(hostname, bestEffortTag)
}

// Evaluate runs the decision procedure. The rules are checked in order and
// the first one that applies decides the outcome.
func Evaluate(hostnameText, bandwidthText, shapeText string) (Outcome, error) {
	host := ParseHostname(hostnameText)
	o := Outcome{Hostname: host}

	if IsBestEffort(host) {
		o.Bandwidth, o.ShapeAverage = Marker(), Marker()
		o.Status = StatusSkipped
		o.Reason = ReasonBypassed
		o.Comment = fmt.Sprintf("%s bypassed because of best effort services.", host)
		return o, nil
	}

	bandwidthText = strings.TrimSpace(bandwidthText)
	shapeText = strings.TrimSpace(shapeText)

	switch {
	case bandwidthText == "" && shapeText == "":
		o.Status = StatusFail
		o.Reason = ReasonMissingBoth
		o.Comment = fmt.Sprintf("%s missing bandwidth and shape average statements!", host)
		return o, nil
	case shapeText == "":
		o.Bandwidth = Marker()
		o.Status = StatusFail
		o.Reason = ReasonMissingShape
		o.Comment = fmt.Sprintf("%s missing shape average statement! Bandwidth output: %s", host, bandwidthText)
		return o, nil
	case bandwidthText == "":
		o.ShapeAverage = Marker()
		o.Status = StatusFail
		o.Reason = ReasonMissingBandwidth
		o.Comment = fmt.Sprintf("%s missing bandwidth statement! Shape average output: %s", host, shapeText)
		return o, nil
	}

	// Identical bandwidth statements collapse to one value.
	bandwidths := bandwidthTokens(bandwidthText)
	if len(bandwidths) >= 2 {
		o.Bandwidth, o.ShapeAverage = Marker(), Marker()
		o.Status = StatusFail
		o.Reason = ReasonConflictingBandwidth
		o.Comment = fmt.Sprintf("%s has more than 1 bandwidth: %s. Shape average output: %s",
			host, formatTokens(bandwidths), shapeText)
		return o, nil
	}

	// Shape statements are not de-duplicated: a repeated identical statement
	// still counts twice.
	shapes := shapeTokens(shapeText)
	if len(shapes) >= 2 {
		o.Bandwidth = firstBandwidth(bandwidths)
		o.ShapeAverage = Marker()
		o.Status = StatusFail
		o.Reason = ReasonDuplicateShape
		o.Comment = fmt.Sprintf("%s has more than 1 shape average statement: %s", host, formatTokens(shapes))
		return o, nil
	}

	if len(bandwidths) == 0 {
		return o, &EngineFault{Hostname: host, Field: "bandwidth", Token: bandwidthText, Err: strconv.ErrSyntax}
	}
	if len(shapes) == 0 {
		return o, &EngineFault{Hostname: host, Field: "shape average", Token: shapeText, Err: strconv.ErrSyntax}
	}
	bandwidth, err := parseToken(host, "bandwidth", bandwidths[0])
	if err != nil {
		return o, err
	}
	shape, err := parseToken(host, "shape average", shapes[0])
	if err != nil {
		return o, err
	}

	if bandwidth > math.MaxInt64/BandwidthScale || bandwidth < math.MinInt64/BandwidthScale {
		return o, &EngineFault{Hostname: host, Field: "bandwidth", Token: bandwidths[0], Err: strconv.ErrRange}
	}
	scaled := bandwidth * BandwidthScale
	if (shape > 0 && scaled < math.MinInt64+shape) || (shape < 0 && scaled > math.MaxInt64+shape) {
		return o, &EngineFault{Hostname: host, Field: "shape average", Token: shapes[0], Err: strconv.ErrRange}
	}
	delta := scaled - shape
	o.Bandwidth = Number(scaled)
	o.ShapeAverage = Number(shape)

	switch delta {
	case 0:
		o.Status = StatusPass
		o.Reason = ReasonExactMatch
		o.Comment = fmt.Sprintf("%s (Exact Match) Bandwidth = %d Shape = %d", host, scaled, shape)
	case 1:
		o.Status = StatusPass
		o.Reason = ReasonDeltaOne
		o.Comment = fmt.Sprintf("%s (Delta = 1) Bandwidth = %d Shape = %d", host, scaled, shape)
	default:
		// Out of tolerance is still recorded as Pass unless ApplyTolerance is
		// asked to be strict.
		o.Status = StatusPass
		o.Reason = ReasonMismatch
		o.Comment = fmt.Sprintf("%s (Delta = %d) Bandwidth %d and shape %d mismatch!", host, delta, scaled, shape)
	}
	return o, nil
}

// ApplyTolerance returns o with the out-of-tolerance policy applied. With
// strict set, a mismatch is a Fail. Otherwise o is returned unchanged.
func ApplyTolerance(o Outcome, strict bool) Outcome {
	if strict && o.Reason == ReasonMismatch {
		o.Status = StatusFail
	}
	return o
}

// bandwidthTokens returns the distinct values in the bandwidth output, in
// sorted order, with the "bandwidth" keyword removed.
func bandwidthTokens(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range strings.Fields(text) {
		if tok == "bandwidth" {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// shapeTokens strips every "shape" and "average" keyword and keeps the rest
// in their original order.
func shapeTokens(text string) []string {
	var out []string
	for _, tok := range strings.Fields(text) {
		if tok == "shape" || tok == "average" {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// firstBandwidth reports the single remaining bandwidth value when shape
// statements are duplicated. A value that is not an integer is reported as the
// marker since the classification is already decided.
func firstBandwidth(toks []string) Value {
	if len(toks) == 0 {
		return Marker()
	}
	n, err := strconv.ParseInt(toks[0], 10, 64)
	if err != nil {
		return Marker()
	}
	return Number(n)
}

func parseToken(host, field, tok string) (int64, error) {
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, &EngineFault{Hostname: host, Field: field, Token: tok, Err: err}
	}
	return n, nil
}

func formatTokens(toks []string) string {
	return "[" + strings.Join(toks, ", ") + "]"
}
