package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
)

// writeTable renders rows under header. numeric lists the 1-based columns
// whose cells are right-aligned.
func writeTable(w io.Writer, header table.Row, rows []table.Row, numeric ...int) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(header)
	tw.AppendRows(rows)

	configs := make([]table.ColumnConfig, 0, len(numeric))
	for _, n := range numeric {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	tw.Render()
}

// writeFields renders a two-column Field/Value table.
func writeFields(w io.Writer, fields []table.Row) {
	writeTable(w, table.Row{"Field", "Value"}, fields)
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSuccess(cmd *cobra.Command, format string, args ...any) {
	printStatus(cmd.OutOrStdout(), "SUCCESS", ansiGreen, fmt.Sprintf(format, args...))
}

func printError(w io.Writer, err error) {
	printStatus(w, "ERROR", ansiRed, err.Error())
}

func printStatus(w io.Writer, label, color, message string) {
	line := label + ": " + message
	if colorEnabled(w) {
		line = color + line + ansiReset
	}
	fmt.Fprintln(w, line)
}

// colorEnabled reports whether w is a terminal and NO_COLOR is unset.
func colorEnabled(w io.Writer) bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	f, ok := w.(interface{ Fd() uintptr })
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
