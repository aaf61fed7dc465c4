package main

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"licsrv/internal/backup"
)

func newBackupCommand(ctx *commandContext) *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, verify and restore backups of the data directory",
	}

	backupCmd.AddCommand(newBackupCreateCommand(ctx))
	backupCmd.AddCommand(newBackupListCommand(ctx))
	backupCmd.AddCommand(newBackupVerifyCommand(ctx))
	backupCmd.AddCommand(newBackupRestoreCommand(ctx))
	backupCmd.AddCommand(newBackupPruneCommand(ctx))

	return backupCmd
}

func newBackupCreateCommand(ctx *commandContext) *cobra.Command {
	var backupType string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Snapshot the data files now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !backup.ValidType(backupType) {
				return fmt.Errorf("unknown backup type %q", backupType)
			}
			comps, err := ctx.components(cmd)
			if err != nil {
				return err
			}
			manifest, err := comps.Backups.Create(commandCtx(cmd), backupType)
			if err != nil {
				return err
			}
			printSuccess(cmd, "Backup created: %s (%d files, %s)", manifest.Name, manifest.FileCount, formatBytes(manifest.CompressedSizeBytes))
			return nil
		},
	}
	cmd.Flags().StringVar(&backupType, "type", backup.TypeManual, "Backup type: manual, hourly, daily, weekly or monthly")
	return cmd
}

func newBackupListCommand(ctx *commandContext) *cobra.Command {
	var backupType string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := ctx.components(cmd)
			if err != nil {
				return err
			}
			c := commandCtx(cmd)
			sets, err := comps.Backups.List(c, backupType)
			if err != nil {
				return err
			}
			if len(sets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No backups")
				return nil
			}

			rows := make([]table.Row, 0, len(sets))
			for _, m := range sets {
				rows = append(rows, table.Row{
					m.Name,
					m.BackupType,
					formatDate(m.CreatedAt),
					m.FileCount,
					formatBytes(m.CompressedSizeBytes),
					fmt.Sprintf("%.1f%%", m.CompressionRatioPercent),
				})
			}
			writeTable(cmd.OutOrStdout(), table.Row{"Name", "Type", "Created", "Files", "Size", "Saved"}, rows, 4, 5, 6)

			if backupType == "" {
				stats, err := comps.Backups.Stats(c)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d backups, %s total\n", stats.TotalBackups, formatBytes(stats.TotalSizeBytes))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&backupType, "type", "", "Only list backups of this type")
	return cmd
}

func newBackupVerifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verify NAME",
		Short: "Check every file of a backup against its manifest checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := ctx.components(cmd)
			if err != nil {
				return err
			}
			manifest, err := comps.Backups.Verify(commandCtx(cmd), args[0])
			if err != nil {
				return err
			}
			printSuccess(cmd, "Backup %s verified (%d files)", manifest.Name, manifest.FileCount)
			return nil
		},
	}
}

func newBackupRestoreCommand(ctx *commandContext) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "restore NAME",
		Short: "Replace the data files with a backup",
		Long:  "Restore verifies the backup, snapshots the current data as a pre_restore backup, then replaces each data file. Stop the server first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errors.New("restore replaces the live data files; pass --yes to continue")
			}
			comps, err := ctx.components(cmd)
			if err != nil {
				return err
			}
			safety, err := comps.Backups.Restore(commandCtx(cmd), args[0])
			if err != nil {
				if safety.Name != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "Previous data saved as %s\n", safety.Name)
				}
				return err
			}
			printSuccess(cmd, "Restored %s (previous data saved as %s)", args[0], safety.Name)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "Confirm replacing the live data")
	return cmd
}

func newBackupPruneCommand(ctx *commandContext) *cobra.Command {
	var backupType string
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove all but the newest backups of one type",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !backup.ValidType(backupType) {
				return fmt.Errorf("unknown backup type %q", backupType)
			}
			comps, err := ctx.components(cmd)
			if err != nil {
				return err
			}
			removed, err := comps.Backups.Prune(commandCtx(cmd), backupType, keep)
			if err != nil {
				return err
			}
			for _, name := range removed {
				fmt.Fprintln(cmd.OutOrStdout(), "removed", name)
			}
			printSuccess(cmd, "Pruned %d %s backups", len(removed), backupType)
			return nil
		},
	}
	cmd.Flags().StringVar(&backupType, "type", backup.TypeManual, "Backup type to prune")
	cmd.Flags().IntVar(&keep, "keep", 10, "Number of newest backups to keep")
	return cmd
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
