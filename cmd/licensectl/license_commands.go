package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"licsrv/internal/exporter"
	"licsrv/internal/license"
	"licsrv/pkg/contracts/domain"
)

func newLicenseCommand(ctx *commandContext) *cobra.Command {
	licenseCmd := &cobra.Command{
		Use:   "license",
		Short: "Issue, inspect and revoke licenses",
	}

	licenseCmd.AddCommand(newLicenseListCommand(ctx))
	licenseCmd.AddCommand(newLicenseShowCommand(ctx))
	licenseCmd.AddCommand(newLicenseCreateCommand(ctx))
	licenseCmd.AddCommand(newLicenseRevokeCommand(ctx))
	licenseCmd.AddCommand(newLicenseRebindCommand(ctx))
	licenseCmd.AddCommand(newLicenseExportCommand(ctx))

	return licenseCmd
}

func newLicenseListCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every license in store order",
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := ctx.components(cmd)
			if err != nil {
				return err
			}
			resp, err := comps.LicenseService.List(commandCtx(cmd))
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return writeJSON(cmd, resp)
			case "table":
			default:
				return fmt.Errorf("unknown format %q (want table or json)", format)
			}

			if resp.Count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No licenses")
				return nil
			}
			now := time.Now()
			rows := make([]table.Row, 0, len(resp.Licenses))
			for _, entry := range resp.Licenses {
				rec := entry.License
				rows = append(rows, table.Row{
					entry.LicenseKey,
					rec.Email,
					orDash(rec.CustomerName),
					licenseState(rec, now),
					formatDate(rec.ExpiryDate),
					orDash(rec.DeviceName),
					rec.ValidationCount,
				})
			}
			writeTable(cmd.OutOrStdout(), table.Row{"Key", "Email", "Customer", "State", "Expires", "Device", "Validations"}, rows, 7)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}

func newLicenseShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show KEY",
		Short: "Show one license and its journal events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := ctx.components(cmd)
			if err != nil {
				return err
			}
			resp, err := comps.LicenseService.Get(commandCtx(cmd), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, resp)
			}

			rec := resp.License
			fields := []table.Row{
				{"Key", resp.LicenseKey},
				{"Email", rec.Email},
				{"Customer", orDash(rec.CustomerName)},
				{"State", licenseState(rec, time.Now())},
				{"Trial", yesNo(rec.IsTrial())},
				{"Created", formatDate(rec.CreatedDate)},
				{"Expires", formatDate(rec.ExpiryDate)},
				{"Hardware ID", orDash(rec.HardwareID)},
				{"Device", orDash(rec.DeviceName)},
				{"Last validation", formatDate(rec.LastValidation)},
				{"Validations", rec.ValidationCount},
			}
			if !rec.IsActive() {
				fields = append(fields,
					table.Row{"Revoked", formatDate(rec.RevokedAt)},
					table.Row{"Reason", orDash(rec.RevocationReason)})
			}
			if rec.PurchaseInfo != nil && rec.PurchaseInfo.Source != "" {
				fields = append(fields, table.Row{"Source", rec.PurchaseInfo.Source})
			}
			writeFields(cmd.OutOrStdout(), fields)

			if len(resp.Events) > 0 {
				events := make([]table.Row, 0, len(resp.Events))
				for _, ev := range resp.Events {
					events = append(events, table.Row{formatDate(ev.Timestamp), ev.Event, orDash(ev.Reason)})
				}
				writeTable(cmd.OutOrStdout(), table.Row{"When", "Event", "Reason"}, events)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the record as JSON")
	return cmd
}

func newLicenseCreateCommand(ctx *commandContext) *cobra.Command {
	var email, name string
	var days int
	var notify bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new license",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(email) == "" {
				return errors.New("--email is required")
			}
			comps, err := ctx.components(cmd)
			if err != nil {
				return err
			}
			resp, err := comps.LicenseService.Issue(commandCtx(cmd), domain.CreateLicenseRequest{
				Email:        email,
				CustomerName: name,
				ValidityDays: days,
				Notify:       notify,
				PurchaseInfo: &domain.PurchaseInfo{Source: "cli"},
			})
			if err != nil {
				return err
			}

			expires := ""
			if resp.Expires != nil {
				expires = formatDate(*resp.Expires)
			}
			printSuccess(cmd, "License created: %s (expires %s)", resp.LicenseKey, expires)
			if notify && !resp.EmailSent {
				fmt.Fprintln(cmd.OutOrStdout(), "License email was not delivered")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Customer email (required)")
	cmd.Flags().StringVar(&name, "name", "", "Customer name")
	cmd.Flags().IntVar(&days, "days", 0, "Validity in days (defaults to license.default_validity_days)")
	cmd.Flags().BoolVar(&notify, "notify", false, "Email the key to the customer")
	return cmd
}

func newLicenseRevokeCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "revoke KEY",
		Short: "Revoke a license permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := ctx.components(cmd)
			if err != nil {
				return err
			}
			resp, err := comps.LicenseService.Revoke(commandCtx(cmd), args[0], domain.RevokeLicenseRequest{Reason: reason})
			if err != nil {
				return err
			}
			printSuccess(cmd, "%s: %s", resp.Message, license.MaskKey(resp.LicenseKey))
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "admin", "Revocation reason, e.g. refund or dispute")
	return cmd
}

func newLicenseRebindCommand(ctx *commandContext) *cobra.Command {
	var hardwareID, deviceName string

	cmd := &cobra.Command{
		Use:   "rebind KEY",
		Short: "Move a license to another device, or clear its binding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if hardwareID != "" && !domain.ValidHardwareID(hardwareID) {
				return fmt.Errorf("invalid hardware id %q", hardwareID)
			}
			comps, err := ctx.components(cmd)
			if err != nil {
				return err
			}
			resp, err := comps.LicenseService.Rebind(commandCtx(cmd), args[0], domain.RebindLicenseRequest{
				HardwareID: hardwareID,
				DeviceName: deviceName,
			})
			if err != nil {
				return err
			}
			printSuccess(cmd, "%s: %s", resp.Message, license.MaskKey(resp.LicenseKey))
			return nil
		},
	}
	cmd.Flags().StringVar(&hardwareID, "hardware-id", "", "New hardware id; empty clears the binding")
	cmd.Flags().StringVar(&deviceName, "device-name", "", "Device name for the new binding")
	return cmd
}

func newLicenseExportCommand(ctx *commandContext) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export licenses to a .xlsx or .csv file",
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
			n, err := comps.Exporter.ExportLicenses(c, out, comps.LicenseManager.List(c))
			if err != nil {
				return err
			}
			printSuccess(cmd, "Exported %d licenses to %s", n, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Destination file (.xlsx or .csv)")
	return cmd
}

func licenseState(rec domain.LicenseRecord, now time.Time) string {
	switch {
	case !rec.IsActive():
		return "revoked"
	case rec.ExpiredAt(now):
		return "expired"
	case !rec.IsBound():
		return "unbound"
	default:
		return "active"
	}
}

func formatDate(ts domain.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.UTC().Format("2006-01-02 15:04")
}
