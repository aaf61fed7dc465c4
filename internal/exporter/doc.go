// Package exporter writes license and trial listings as spreadsheets for
// support and accounting.
//
// Two formats are supported, chosen from the output file extension:
//
// CSV: UTF-8 with a byte order mark so Excel detects the encoding.
//
// XLSX: a single worksheet written through excelize's stream writer with a
// bold, frozen header row.
//
// Example usage:
//
//	exp := exporter.New(logger)
//	n, err := exp.ExportLicenses(ctx, "licenses.xlsx", manager.List(ctx))
package exporter
