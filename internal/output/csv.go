package output

import (
	"encoding/csv"
	"io"

	"github.com/netaudit/shapeaudit/internal/audit"
)

// CSVWriter writes the report CSV: one header row, then one row per record.
type CSVWriter struct {
	w      *csv.Writer
	closer io.Closer
}

// NewCSVWriter creates a CSV output writer.
func NewCSVWriter(outputFile string) (*CSVWriter, error) {
	w, closer, err := open(outputFile)
	if err != nil {
		return nil, err
	}
	return newCSV(w, closer), nil
}

func newCSV(w io.Writer, closer io.Closer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w), closer: closer}
}

func (c *CSVWriter) WriteHeader() error {
	return c.w.Write(audit.Columns)
}

// WriteResult flushes after every row so an interrupted run still leaves
// every completed device in the file.
func (c *CSVWriter) WriteResult(rec *audit.Record) error {
	if err := c.w.Write(rec.Row()); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *CSVWriter) WriteFooter(_ Stats) error {
	c.w.Flush()
	return c.w.Error()
}

func (c *CSVWriter) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}
