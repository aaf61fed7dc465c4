package exporter

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"licsrv/pkg/contracts/domain"
)

// LicenseHeaders are the columns of a license export.
var LicenseHeaders = []string{
	"license_key", "email", "customer_name", "status", "tier", "trial",
	"created_date", "expiry_date", "hardware_id", "device_name",
	"last_validation", "validation_count", "revoked_at", "revocation_reason",
	"source", "sale_id",
}

// TrialHeaders are the columns of a trial usage export.
var TrialHeaders = []string{"hardware_id", "files_used", "first_seen", "last_seen"}

var (
	licenseWidths = []float64{22, 30, 24, 10, 8, 8, 20, 20, 20, 24, 20, 10, 20, 18, 12, 16}
	trialWidths   = []float64{24, 12, 20, 20}
)

type rowWriter interface {
	WriteRow(record []string) error
	Close() error
}

// Exporter writes listings to files or streams.
type Exporter struct {
	logger *slog.Logger
}

// New returns an Exporter.
func New(logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{logger: logger.With(slog.String("component", "exporter"))}
}

// ExportLicenses writes every license to path in the format its extension
// names and returns the number of rows written.
func (e *Exporter) ExportLicenses(ctx context.Context, path string, licenses iter.Seq2[string, domain.LicenseRecord]) (int, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return 0, err
	}
	return e.toFile(ctx, path, func(w io.Writer) (int, error) {
		return e.WriteLicenses(ctx, w, format, licenses)
	})
}

// ExportTrials writes every trial usage record to path.
func (e *Exporter) ExportTrials(ctx context.Context, path string, trials iter.Seq2[string, domain.TrialUsage]) (int, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return 0, err
	}
	return e.toFile(ctx, path, func(w io.Writer) (int, error) {
		return e.WriteTrials(ctx, w, format, trials)
	})
}

// WriteLicenses writes the license listing to w.
func (e *Exporter) WriteLicenses(ctx context.Context, w io.Writer, format Format, licenses iter.Seq2[string, domain.LicenseRecord]) (int, error) {
	rw, err := newRowWriter(w, format, "Licenses", LicenseHeaders, licenseWidths)
	if err != nil {
		return 0, err
	}
	n := 0
	for key, rec := range licenses {
		if err := ctx.Err(); err != nil {
			rw.Close()
			return n, err
		}
		if err := rw.WriteRow(licenseRow(key, rec)); err != nil {
			rw.Close()
			return n, err
		}
		n++
	}
	return n, rw.Close()
}

// WriteTrials writes the trial listing to w.
func (e *Exporter) WriteTrials(ctx context.Context, w io.Writer, format Format, trials iter.Seq2[string, domain.TrialUsage]) (int, error) {
	rw, err := newRowWriter(w, format, "Trials", TrialHeaders, trialWidths)
	if err != nil {
		return 0, err
	}
	n := 0
	for hw, usage := range trials {
		if err := ctx.Err(); err != nil {
			rw.Close()
			return n, err
		}
		row := []string{hw, formatInt(usage.FilesUsed), formatTime(usage.FirstSeen), formatTime(usage.LastSeen)}
		if err := rw.WriteRow(row); err != nil {
			rw.Close()
			return n, err
		}
		n++
	}
	return n, rw.Close()
}

func newRowWriter(w io.Writer, format Format, sheet string, headers []string, widths []float64) (rowWriter, error) {
	switch format {
	case FormatCSV:
		cw, err := NewCSVWriter(w, true)
		if err != nil {
			return nil, err
		}
		if err := cw.WriteRow(headers); err != nil {
			return nil, err
		}
		return cw, nil
	case FormatXLSX:
		xw, err := NewXLSXWriter(w, sheet, widths)
		if err != nil {
			return nil, err
		}
		if err := xw.WriteHeader(headers); err != nil {
			xw.Close()
			return nil, err
		}
		return xw, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func licenseRow(key string, rec domain.LicenseRecord) []string {
	var source, saleID string
	if rec.PurchaseInfo != nil {
		source = rec.PurchaseInfo.Source
		saleID = rec.PurchaseInfo.SaleID
	}
	return []string{
		key,
		rec.Email,
		rec.CustomerName,
		string(rec.Status),
		string(rec.Tier),
		formatBool(rec.IsTrial()),
		formatTime(rec.CreatedDate),
		formatTime(rec.ExpiryDate),
		rec.HardwareID,
		rec.DeviceName,
		formatTime(rec.LastValidation),
		formatInt(rec.ValidationCount),
		formatTime(rec.RevokedAt),
		rec.RevocationReason,
		source,
		saleID,
	}
}

// toFile writes through a temporary file so a failed export never leaves a
// truncated spreadsheet at path.
func (e *Exporter) toFile(ctx context.Context, path string, write func(io.Writer) (int, error)) (int, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := write(tmp)
	if err != nil {
		tmp.Close()
		return n, err
	}
	if err := tmp.Close(); err != nil {
		return n, err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return n, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return n, err
	}

	e.logger.InfoContext(ctx, "export written",
		slog.String("path", path),
		slog.Int("rows", n),
	)
	return n, nil
}
