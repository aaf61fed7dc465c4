package exporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"licsrv/pkg/contracts/domain"
)

func quietExporter() *Exporter {
	return New(slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func sampleLicenses() iter.Seq2[string, domain.LicenseRecord] {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	records := []domain.LicenseEntry{
		{LicenseKey: "K7QD-9XHM-2RPA-W4TZ", License: domain.LicenseRecord{
			Email: "ada@example.com", CustomerName: "Ada, Countess", Status: domain.LicenseStatusActive,
			Tier: domain.LicenseTierFull, CreatedDate: domain.NewTimestamp(created),
			ExpiryDate: domain.NewTimestamp(created.AddDate(1, 0, 0)), HardwareID: "abcdef0123456789",
			DeviceName: "LAPTOP", ValidationCount: 3,
			PurchaseInfo: &domain.PurchaseInfo{Source: "gumroad", SaleID: "sale-1"},
		}},
		{LicenseKey: "TRIA-LKEY-2345-6789", License: domain.LicenseRecord{
			Email: "t@example.com", Status: domain.LicenseStatusRevoked, Tier: domain.LicenseTierTrial,
			CreatedDate: domain.NewTimestamp(created), ExpiryDate: domain.NewTimestamp(created.AddDate(0, 0, 7)),
			RevokedAt: domain.NewTimestamp(created.Add(time.Hour)), RevocationReason: "refund",
		}},
	}
	return func(yield func(string, domain.LicenseRecord) bool) {
		for _, e := range records {
			if !yield(e.LicenseKey, e.License) {
				return
			}
		}
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{path: "out.csv", want: FormatCSV},
		{path: "/tmp/OUT.XLSX", want: FormatXLSX},
		{path: "out.json", wantErr: true},
		{path: "out", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCSVWriter(t *testing.T) {
	tests := []struct {
		name      string
		bom       bool
		rows      [][]string
		wantLines []string
	}{
		{
			name:      "plain",
			rows:      [][]string{{"Name", "Age"}, {"John", "25"}},
			wantLines: []string{"Name,Age", "John,25"},
		},
		{
			name:      "quotes embedded commas",
			rows:      [][]string{{"Ada, Countess", "x"}},
			wantLines: []string{`"Ada, Countess",x`},
		},
		{
			name:      "with BOM",
			bom:       true,
			rows:      [][]string{{"a"}},
			wantLines: []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewCSVWriter(&buf, tt.bom)
			require.NoError(t, err)
			for _, row := range tt.rows {
				require.NoError(t, w.WriteRow(row))
			}
			require.NoError(t, w.Close())

			content := buf.Bytes()
			assert.Equal(t, tt.bom, bytes.HasPrefix(content, utf8BOM))
			content = bytes.TrimPrefix(content, utf8BOM)
			assert.Equal(t, tt.wantLines, strings.Split(strings.TrimSpace(string(content)), "\n"))
		})
	}
}

func TestWriteLicenses_CSV(t *testing.T) {
	var buf bytes.Buffer
	n, err := quietExporter().WriteLicenses(context.Background(), &buf, FormatCSV, sampleLicenses())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(buf.Bytes(), utf8BOM))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, LicenseHeaders, rows[0])

	first := rows[1]
	assert.Equal(t, "K7QD-9XHM-2RPA-W4TZ", first[0])
	assert.Equal(t, "Ada, Countess", first[2])
	assert.Equal(t, "active", first[3])
	assert.Equal(t, "false", first[5])
	assert.Equal(t, "2024-01-02 03:04:05", first[6])
	assert.Equal(t, "3", first[11])
	assert.Equal(t, "gumroad", first[14])
	assert.Equal(t, "sale-1", first[15])

	second := rows[2]
	assert.Equal(t, "true", second[5])
	assert.Equal(t, "", second[8], "unbound license")
	assert.Equal(t, "refund", second[13])
}

func TestExportLicenses_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "licenses.xlsx")
	n, err := quietExporter().ExportLicenses(context.Background(), path, sampleLicenses())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Licenses"}, f.GetSheetList())
	rows, err := f.GetRows("Licenses")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, LicenseHeaders, rows[0])
	assert.Equal(t, "ada@example.com", rows[1][1])
	assert.Equal(t, "TRIA-LKEY-2345-6789", rows[2][0])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestExportTrials_CSV(t *testing.T) {
	seen := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	trials := func(yield func(string, domain.TrialUsage) bool) {
		yield("abcdef0123456789", domain.TrialUsage{FilesUsed: 12, FirstSeen: domain.NewTimestamp(seen), LastSeen: domain.NewTimestamp(seen)})
	}

	path := filepath.Join(t.TempDir(), "trials.csv")
	n, err := quietExporter().ExportTrials(context.Background(), path, trials)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "abcdef0123456789,12,2024-03-04 05:06:07,2024-03-04 05:06:07")
}

func TestExportLicenses_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := quietExporter().ExportLicenses(context.Background(), filepath.Join(dir, "out.pdf"), sampleLicenses())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	path := filepath.Join(dir, "out.csv")
	_, err = quietExporter().ExportLicenses(ctx, path, sampleLicenses())
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, path, "failed export leaves nothing behind")
}
