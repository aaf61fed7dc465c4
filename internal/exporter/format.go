package exporter

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"licsrv/pkg/contracts/domain"
)

// Format is an output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (want .csv or .xlsx)", filepath.Ext(path))
	}
}

// formatTime renders timestamps in a spreadsheet friendly layout.
func formatTime(ts domain.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.DateTime)
}

func formatInt(i int) string {
	return strconv.Itoa(i)
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
