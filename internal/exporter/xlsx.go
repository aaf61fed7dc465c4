package exporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// XLSXWriter streams rows into one worksheet and writes the workbook to the
// destination on Close.
type XLSXWriter struct {
	dst         io.Writer
	file        *excelize.File
	stream      *excelize.StreamWriter
	headerStyle int
	row         int
}

// NewXLSXWriter creates a workbook with a single sheet named sheet. widths
// sets column widths starting at column A.
func NewXLSXWriter(dst io.Writer, sheet string, widths []float64) (*XLSXWriter, error) {
	f := excelize.NewFile()
	if sheet != "" && sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to name sheet: %w", err)
		}
	} else {
		sheet = defaultSheet
	}

	stream, err := f.NewStreamWriter(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create stream writer: %w", err)
	}
	for i, width := range widths {
		if err := stream.SetColWidth(i+1, i+1, width); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	return &XLSXWriter{dst: dst, file: f, stream: stream, headerStyle: style}, nil
}

// WriteHeader writes a bold header row and freezes it. It must be the first
// row written.
func (x *XLSXWriter) WriteHeader(headers []string) error {
	if x.row != 0 {
		return fmt.Errorf("header must be the first row")
	}
	if err := x.stream.SetPanes(&excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}
	return x.writeRow(headers, excelize.RowOpts{StyleID: x.headerStyle})
}

// WriteRow appends a data row.
func (x *XLSXWriter) WriteRow(record []string) error {
	return x.writeRow(record)
}

func (x *XLSXWriter) writeRow(record []string, opts ...excelize.RowOpts) error {
	cell, err := excelize.CoordinatesToCellName(1, x.row+1)
	if err != nil {
		return err
	}
	values := make([]interface{}, len(record))
	for i, v := range record {
		values[i] = v
	}
	if err := x.stream.SetRow(cell, values, opts...); err != nil {
		return fmt.Errorf("failed to write row %d: %w", x.row, err)
	}
	x.row++
	return nil
}

// Close flushes the sheet and writes the workbook.
func (x *XLSXWriter) Close() error {
	defer x.file.Close()
	if err := x.stream.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	if _, err := x.file.WriteTo(x.dst); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
