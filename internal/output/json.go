package output

import (
	"encoding/json"
	"io"

	"github.com/netaudit/shapeaudit/internal/audit"
)

// JSONWriter writes records as a JSON array once the audit is complete.
type JSONWriter struct {
	w       io.Writer
	closer  io.Closer
	records []*audit.Record
}

// NewJSONWriter creates a JSON output writer.
func NewJSONWriter(outputFile string) (*JSONWriter, error) {
	w, closer, err := open(outputFile)
	if err != nil {
		return nil, err
	}
	return &JSONWriter{w: w, closer: closer}, nil
}

func (j *JSONWriter) WriteHeader() error { return nil }

func (j *JSONWriter) WriteResult(rec *audit.Record) error {
	j.records = append(j.records, rec.Clone())
	return nil
}

func (j *JSONWriter) WriteFooter(_ Stats) error {
	records := j.records
	if records == nil {
		records = []*audit.Record{}
	}
	enc := json.NewEncoder(j.w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func (j *JSONWriter) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}
