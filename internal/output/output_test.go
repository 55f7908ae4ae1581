package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netaudit/shapeaudit/internal/audit"
)

var est = time.FixedZone("EST", -5*3600)

func sampleRecords() []*audit.Record {
	ts := time.Date(2024, 3, 1, 9, 30, 0, 123456000, est)
	return []*audit.Record{
		{
			Address: "10.0.0.10", Hostname: "edge10",
			Bandwidth: audit.Number(10000000), ShapeAverage: audit.Number(10000000),
			Status: audit.StatusPass, Comment: "10.0.0.10 - edge10 (Exact Match) Bandwidth = 10000000 Shape = 10000000",
			Timestamp: ts, Reason: audit.ReasonExactMatch,
		},
		{
			Address: "10.0.0.2", Hostname: "edge02",
			Bandwidth: audit.Absent(), ShapeAverage: audit.Absent(),
			Status: audit.StatusFail, Comment: "10.0.0.2 - edge02 missing bandwidth and shape average statements!",
			Timestamp: ts, Reason: audit.ReasonMissingBoth,
		},
		{
			Address: "10.0.0.3", Hostname: "core-be-1",
			Bandwidth: audit.Marker(), ShapeAverage: audit.Marker(),
			Status: audit.StatusSkipped, Comment: "10.0.0.3 - core-be-1 bypassed because of best effort services.",
			Timestamp: ts, Reason: audit.ReasonBypassed,
		},
	}
}

func writeAll(t *testing.T, w Writer, recs []*audit.Record) {
	t.Helper()
	var stats Stats
	require.NoError(t, w.WriteHeader())
	for _, r := range recs {
		stats.Add(r)
		require.NoError(t, w.WriteResult(r))
	}
	require.NoError(t, w.WriteFooter(stats))
	require.NoError(t, w.Close())
}

func TestCSVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	w, err := NewCSVWriter(path)
	require.NoError(t, err)
	writeAll(t, w, sampleRecords())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "address,hostname,bandwidth,shapeAverage,status,comment,timestamp", lines[0])
	assert.Equal(t, "10.0.0.10,edge10,10000000,10000000,Pass,10.0.0.10 - edge10 (Exact Match) Bandwidth = 10000000 Shape = 10000000,2024-03-01 09:30:00.123456-05:00", lines[1])
	assert.Equal(t, "10.0.0.2,edge02,,,Fail,10.0.0.2 - edge02 missing bandwidth and shape average statements!,2024-03-01 09:30:00.123456-05:00", lines[2])
	assert.Equal(t, "10.0.0.3,core-be-1,see comment,see comment,Skipped,10.0.0.3 - core-be-1 bypassed because of best effort services.,2024-03-01 09:30:00.123456-05:00", lines[3])
}

func TestCSVWriterQuotesCommas(t *testing.T) {
	var buf bytes.Buffer
	w := newCSV(&buf, nil)
	rec := &audit.Record{
		Address: "10.0.0.4", Hostname: "edge04",
		Bandwidth: audit.Marker(), ShapeAverage: audit.Marker(), Status: audit.StatusFail,
		Comment: "10.0.0.4 - edge04 has more than 1 bandwidth: [10000, 20000]. Shape average output: shape average 1",
	}
	require.NoError(t, w.WriteResult(rec))
	assert.Contains(t, buf.String(), `"10.0.0.4 - edge04 has more than 1 bandwidth: [10000, 20000]. Shape average output: shape average 1"`)
	assert.True(t, strings.HasSuffix(buf.String(), ",\n"), "zero timestamp renders empty")
}

func TestCSVWriterUnwritablePath(t *testing.T) {
	_, err := NewCSVWriter(filepath.Join(t.TempDir(), "nope", "report.csv"))
	assert.ErrorContains(t, err, "creating output file")
}

func TestJSONWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	w, err := NewJSONWriter(path)
	require.NoError(t, err)
	writeAll(t, w, sampleRecords())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 3)
	assert.Equal(t, float64(10000000), got[0]["bandwidth"])
	assert.Nil(t, got[1]["bandwidth"])
	assert.Equal(t, "see comment", got[2]["shape_average"])
	assert.Equal(t, "Skipped", got[2]["status"])
}

func TestJSONWriterEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	w, err := NewJSONWriter(path)
	require.NoError(t, err)
	writeAll(t, w, nil)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestTextWriter(t *testing.T) {
	var out, summary bytes.Buffer
	w := &TextWriter{w: &out, summary: &summary, noColor: true}
	writeAll(t, w, sampleRecords())

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "Status "))
	assert.True(t, strings.HasPrefix(lines[1], "Pass     10.0.0.10"))
	assert.Contains(t, lines[3], "see comment")
	assert.NotContains(t, out.String(), "\033[")
	assert.Contains(t, summary.String(), "Completed: 3 devices | Pass: 1 | Fail: 1 | Skipped: 1")
}

func TestTextWriterColors(t *testing.T) {
	var out, summary bytes.Buffer
	w := &TextWriter{w: &out, summary: &summary}
	require.NoError(t, w.WriteResult(sampleRecords()[1]))
	assert.True(t, strings.HasPrefix(out.String(), colorRed+"Fail"))
}

// recorder is a Writer that remembers the order of WriteResult calls.
type recorder struct {
	addrs  []string
	footer bool
}

func (r *recorder) WriteHeader() error { return nil }
func (r *recorder) WriteResult(rec *audit.Record) error {
	r.addrs = append(r.addrs, rec.Address)
	return nil
}
func (r *recorder) WriteFooter(Stats) error { r.footer = true; return nil }
func (r *recorder) Close() error            { return nil }

func TestSortedWriter(t *testing.T) {
	tests := []struct {
		sortBy string
		want   []string
	}{
		{"address", []string{"10.0.0.2", "10.0.0.3", "10.0.0.10"}},
		{"status", []string{"10.0.0.2", "10.0.0.10", "10.0.0.3"}},
		{"hostname", []string{"10.0.0.3", "10.0.0.2", "10.0.0.10"}},
	}
	for _, tt := range tests {
		t.Run(tt.sortBy, func(t *testing.T) {
			inner := &recorder{}
			w, err := NewSortedWriter(inner, tt.sortBy)
			require.NoError(t, err)
			for _, r := range sampleRecords() {
				require.NoError(t, w.WriteResult(r))
			}
			assert.Empty(t, inner.addrs, "nothing is written before the footer")
			require.NoError(t, w.WriteFooter(Stats{}))
			assert.Equal(t, tt.want, inner.addrs)
			assert.True(t, inner.footer)
		})
	}
}

func TestSortedWriterAddressesBeforeNames(t *testing.T) {
	inner := &recorder{}
	w, err := NewSortedWriter(inner, "address")
	require.NoError(t, err)
	for _, a := range []string{"router-b", "192.168.1.1", "router-a", "10.0.0.1"} {
		require.NoError(t, w.WriteResult(&audit.Record{Address: a}))
	}
	require.NoError(t, w.WriteFooter(Stats{}))
	assert.Equal(t, []string{"10.0.0.1", "192.168.1.1", "router-a", "router-b"}, inner.addrs)
}

func TestSortedWriterUnknownKey(t *testing.T) {
	_, err := NewSortedWriter(&recorder{}, "size")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	dir := t.TempDir()

	w, err := New("csv", filepath.Join(dir, "a.csv"), "", false, false)
	require.NoError(t, err)
	assert.IsType(t, &CSVWriter{}, w)
	require.NoError(t, w.Close())

	w, err = New("json", filepath.Join(dir, "a.json"), "status", false, false)
	require.NoError(t, err)
	assert.IsType(t, &SortedWriter{}, w)
	require.NoError(t, w.Close())

	_, err = New("xml", "", "", false, false)
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	var s Stats
	for _, r := range sampleRecords() {
		s.Add(r)
	}
	s.Add(&audit.Record{Status: audit.StatusFail, Fault: audit.FaultConnectivity})
	s.Finish(2 * time.Second)

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 1, s.Pass)
	assert.Equal(t, 2, s.Fail)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Faults)
	assert.InDelta(t, 2.0, s.DevicesPerSec, 0.001)
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := newProgress(&buf, 3, false, false)
	p.Start()
	for _, r := range sampleRecords() {
		p.Record(r)
	}
	p.Stop()

	assert.Contains(t, buf.String(), "3/3")
	assert.Contains(t, buf.String(), "Pass: 1 | Fail: 1 | Skipped: 1")
}

func TestProgressQuiet(t *testing.T) {
	var buf bytes.Buffer
	p := newProgress(&buf, 1, true, true)
	p.Start()
	p.Record(sampleRecords()[0])
	p.Stop()
	assert.Empty(t, buf.String())
}
