package main

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"licsrv/internal/exporter"
)

func newTrialCommand(ctx *commandContext) *cobra.Command {
	trialCmd := &cobra.Command{
		Use:   "trial",
		Short: "Inspect and reset trial usage",
	}

	trialCmd.AddCommand(newTrialListCommand(ctx))
	trialCmd.AddCommand(newTrialShowCommand(ctx))
	trialCmd.AddCommand(newTrialResetCommand(ctx))
	trialCmd.AddCommand(newTrialExportCommand(ctx))

	return trialCmd
}

func newTrialListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List trial usage per hardware id",
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := ctx.components(cmd)
			if err != nil {
				return err
			}
			resp, err := comps.TrialService.List(commandCtx(cmd))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, resp)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Quota: %d files per device\n", resp.MaxFiles)
			if resp.Count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No trial usage recorded")
				return nil
			}
			rows := make([]table.Row, 0, len(resp.Trials))
			for _, entry := range resp.Trials {
				remaining := max(resp.MaxFiles-entry.Usage.FilesUsed, 0)
				rows = append(rows, table.Row{
					entry.HardwareID,
					entry.Usage.FilesUsed,
					remaining,
					formatDate(entry.Usage.FirstSeen),
					formatDate(entry.Usage.LastSeen),
				})
			}
			writeTable(cmd.OutOrStdout(), table.Row{"Hardware ID", "Used", "Remaining", "First seen", "Last seen"}, rows, 2, 3)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the listing as JSON")
	return cmd
}

func newTrialShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show HWID",
		Short: "Show trial usage of one device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := ctx.components(cmd)
			if err != nil {
				return err
			}
			resp, err := comps.TrialService.Get(commandCtx(cmd), args[0])
			if err != nil {
				return err
			}
			maxFiles := comps.TrialManager.MaxFiles()
			writeFields(cmd.OutOrStdout(), []table.Row{
				{"Hardware ID", resp.HardwareID},
				{"Files used", resp.Usage.FilesUsed},
				{"Remaining", max(maxFiles-resp.Usage.FilesUsed, 0)},
				{"First seen", formatDate(resp.Usage.FirstSeen)},
				{"Last seen", formatDate(resp.Usage.LastSeen)},
			})
			return nil
		},
	}
}

func newTrialResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset HWID",
		Short: "Give a device its full trial quota back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := ctx.components(cmd)
			if err != nil {
				return err
			}
			resp, err := comps.TrialService.Reset(commandCtx(cmd), args[0])
			if err != nil {
				return err
			}
			printSuccess(cmd, "%s for %s", resp.Message, resp.HardwareID)
			return nil
		},
	}
}

func newTrialExportCommand(ctx *commandContext) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export trial usage to a .xlsx or .csv file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			if _, err := exporter.FormatFromPath(out); err != nil {
				return err
			}
			comps, err := ctx.components(cmd)
			if err != nil {
				return err
			}
			c := commandCtx(cmd)
			n, err := comps.Exporter.ExportTrials(c, out, comps.TrialManager.List(c))
			if err != nil {
				return err
			}
			printSuccess(cmd, "Exported %d trial records to %s", n, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Destination file (.xlsx or .csv)")
	return cmd
}
