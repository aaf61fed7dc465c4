package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
)

// utf8BOM helps Excel recognize UTF-8.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter streams rows to an io.Writer.
type CSVWriter struct {
	writer *csv.Writer
	rows   int
}

// NewCSVWriter returns a writer over w, optionally prefixed with a BOM.
func NewCSVWriter(w io.Writer, bomPrefix bool) (*CSVWriter, error) {
	if bomPrefix {
		if _, err := w.Write(utf8BOM); err != nil {
			return nil, fmt.Errorf("failed to write BOM: %w", err)
		}
	}
	return &CSVWriter{writer: csv.NewWriter(w)}, nil
}

// WriteRow writes a single record.
func (c *CSVWriter) WriteRow(record []string) error {
	if err := c.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record %d: %w", c.rows, err)
	}
	c.rows++
	return nil
}

// Close flushes buffered rows.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.writer.Error()
}
