// Package backup snapshots the data directory into gzip-compressed,
// checksummed backup sets and restores them.
//
// A backup set is a directory backup_<type>_<UTC timestamp> holding one
// <file>.gz per data file plus a manifest.json. Restore first takes a
// pre_restore snapshot of the current state, so a bad restore can itself be
// undone.
package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"licsrv/internal/store"
	"licsrv/pkg/contracts/domain"
)

// Backup types.
const (
	TypeManual     = "manual"
	TypeHourly     = "hourly"
	TypeDaily      = "daily"
	TypeWeekly     = "weekly"
	TypeMonthly    = "monthly"
	TypePreRestore = "pre_restore"
)

const (
	namePrefix   = "backup_"
	manifestName = "manifest.json"
	stampLayout  = "20060102_150405"
)

// ErrNotFound is returned for an unknown backup name.
var ErrNotFound = errors.New("backup not found")

// DefaultRetention keeps this many sets per scheduled type. Types missing
// from the policy are never pruned automatically.
func DefaultRetention() map[string]int {
	return map[string]int{
		TypeHourly:  24,
		TypeDaily:   30,
		TypeWeekly:  12,
		TypeMonthly: 12,
	}
}

// ValidType reports whether t is a known backup type.
func ValidType(t string) bool {
	switch t {
	case TypeManual, TypeHourly, TypeDaily, TypeWeekly, TypeMonthly, TypePreRestore:
		return true
	}
	return false
}

// Manifest describes one backup set.
type Manifest struct {
	Name                    string            `json:"backup_name,omitempty"`
	CreatedAt               domain.Timestamp  `json:"created_at"`
	BackupType              string            `json:"backup_type"`
	Files                   []string          `json:"files"`
	FileCount               int               `json:"file_count"`
	OriginalSizeBytes       int64             `json:"original_size_bytes"`
	CompressedSizeBytes     int64             `json:"compressed_size_bytes"`
	CompressionRatioPercent float64           `json:"compression_ratio_percent"`
	Checksums               map[string]string `json:"checksums,omitempty"`
	AppVersion              string            `json:"app_version,omitempty"`
}

// Stats summarizes the backup directory.
type Stats struct {
	TotalBackups   int            `json:"total_backups"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	ByType         map[string]int `json:"by_type"`
	OldestBackup   string         `json:"oldest_backup,omitempty"`
	NewestBackup   string         `json:"newest_backup,omitempty"`
}

// Options configures a Manager.
type Options struct {
	DataDir   string
	BackupDir string
	// Files are names relative to DataDir. Missing files are skipped.
	Files      []string
	Retention  map[string]int
	AppVersion string
	// BeforeSnapshot runs before files are read, e.g. to checkpoint a database.
	BeforeSnapshot func(ctx context.Context) error
	// Lockers are held while Restore snapshots and replaces the data files,
	// in slice order.
	Lockers []store.Locker
	Logger  *slog.Logger
}

// Manager creates and restores backup sets.
type Manager struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New returns a Manager. BackupDir defaults to DataDir/backups.
func New(opts Options) (*Manager, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("backup: data directory is required")
	}
	if len(opts.Files) == 0 {
		return nil, fmt.Errorf("backup: no files configured")
	}
	if opts.BackupDir == "" {
		opts.BackupDir = filepath.Join(opts.DataDir, "backups")
	}
	if opts.Retention == nil {
		opts.Retention = DefaultRetention()
	}
	for _, f := range opts.Files {
		if filepath.Base(f) != f {
			return nil, fmt.Errorf("backup: file %q must be a plain name inside the data directory", f)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		opts:   opts,
		logger: logger.With(slog.String("component", "backup_manager")),
		now:    time.Now,
	}, nil
}

// Dir returns the backup directory.
func (m *Manager) Dir() string {
	return m.opts.BackupDir
}

// Create snapshots every configured file and applies the retention policy for
// backupType.
func (m *Manager) Create(ctx context.Context, backupType string) (Manifest, error) {
	if !ValidType(backupType) {
		return Manifest{}, fmt.Errorf("backup: unknown type %q", backupType)
	}
	if m.opts.BeforeSnapshot != nil {
		if err := m.opts.BeforeSnapshot(ctx); err != nil {
			return Manifest{}, fmt.Errorf("backup: prepare snapshot: %w", err)
		}
	}
	if err := os.MkdirAll(m.opts.BackupDir, 0o755); err != nil {
		return Manifest{}, fmt.Errorf("backup: create directory: %w", err)
	}

	now := m.now().UTC()
	name, err := m.reserveName(backupType, now)
	if err != nil {
		return Manifest{}, err
	}
	dir := filepath.Join(m.opts.BackupDir, name)

	manifest := Manifest{
		Name:       name,
		CreatedAt:  domain.NewTimestamp(now),
		BackupType: backupType,
		Checksums:  make(map[string]string),
		AppVersion: m.opts.AppVersion,
	}

	for _, file := range m.opts.Files {
		if err := ctx.Err(); err != nil {
			_ = os.RemoveAll(dir)
			return Manifest{}, err
		}
		original, compressed, sum, err := compressFile(filepath.Join(m.opts.DataDir, file), filepath.Join(dir, file+".gz"))
		if errors.Is(err, os.ErrNotExist) {
			m.logger.DebugContext(ctx, "data file not present, skipping", slog.String("file", file))
			continue
		}
		if err != nil {
			_ = os.RemoveAll(dir)
			return Manifest{}, fmt.Errorf("backup: %s: %w", file, err)
		}
		manifest.Files = append(manifest.Files, file)
		manifest.Checksums[file] = sum
		manifest.OriginalSizeBytes += original
		manifest.CompressedSizeBytes += compressed
	}

	if len(manifest.Files) == 0 {
		_ = os.RemoveAll(dir)
		return Manifest{}, fmt.Errorf("backup: no data files to back up")
	}
	manifest.FileCount = len(manifest.Files)
	if manifest.OriginalSizeBytes > 0 {
		ratio := (1 - float64(manifest.CompressedSizeBytes)/float64(manifest.OriginalSizeBytes)) * 100
		manifest.CompressionRatioPercent = math.Round(ratio*10) / 10
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		_ = os.RemoveAll(dir)
		return Manifest{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, manifestName), data, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return Manifest{}, fmt.Errorf("backup: write manifest: %w", err)
	}

	m.logger.InfoContext(ctx, "backup created",
		slog.String("backup", name),
		slog.Int("files", manifest.FileCount),
		slog.Int64("original_bytes", manifest.OriginalSizeBytes),
		slog.Int64("compressed_bytes", manifest.CompressedSizeBytes),
		slog.Float64("saved_percent", manifest.CompressionRatioPercent),
	)

	if keep, ok := m.opts.Retention[backupType]; ok {
		if _, err := m.Prune(ctx, backupType, keep); err != nil {
			m.logger.WarnContext(ctx, "backup retention failed", slog.String("error", err.Error()))
		}
	}
	return manifest, nil
}

// reserveName creates the set directory, adding a counter when a set with the
// same second already exists.
func (m *Manager) reserveName(backupType string, now time.Time) (string, error) {
	base := namePrefix + backupType + "_" + now.Format(stampLayout)
	name := base
	for i := 2; i < 100; i++ {
		err := os.Mkdir(filepath.Join(m.opts.BackupDir, name), 0o755)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("backup: create set: %w", err)
		}
		name = fmt.Sprintf("%s_%02d", base, i)
	}
	return "", fmt.Errorf("backup: too many backups at %s", now.Format(stampLayout))
}

// List returns sets newest first, optionally filtered by type. Sets without a
// readable manifest are skipped.
func (m *Manager) List(ctx context.Context, backupType string) ([]Manifest, error) {
	entries, err := os.ReadDir(m.opts.BackupDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	prefix := namePrefix
	if backupType != "" {
		prefix += backupType + "_"
	}

	var out []Manifest
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		manifest, err := m.readManifest(e.Name())
		if err != nil {
			m.logger.WarnContext(ctx, "unreadable backup manifest",
				slog.String("backup", e.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if backupType != "" && manifest.BackupType != backupType {
			continue
		}
		out = append(out, manifest)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt.Time) {
			return out[i].CreatedAt.After(out[j].CreatedAt.Time)
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// Verify decompresses every file of a set and checks its SHA-256.
func (m *Manager) Verify(ctx context.Context, name string) (Manifest, error) {
	manifest, err := m.readManifest(name)
	if err != nil {
		return Manifest{}, err
	}
	for _, file := range manifest.Files {
		if err := ctx.Err(); err != nil {
			return Manifest{}, err
		}
		data, err := decompressFile(filepath.Join(m.opts.BackupDir, name, file+".gz"))
		if err != nil {
			return Manifest{}, fmt.Errorf("backup %s: %s: %w", name, file, err)
		}
		want, ok := manifest.Checksums[file]
		if !ok {
			continue
		}
		if got := checksum(data); got != want {
			return Manifest{}, fmt.Errorf("backup %s: %s: checksum mismatch", name, file)
		}
	}
	return manifest, nil
}

// Restore verifies a set, snapshots the current data as pre_restore, then
// replaces each data file atomically. It returns the pre_restore manifest.
func (m *Manager) Restore(ctx context.Context, name string) (Manifest, error) {
	manifest, err := m.Verify(ctx, name)
	if err != nil {
		return Manifest{}, err
	}

	unlock, err := m.lockAll(ctx)
	if err != nil {
		return Manifest{}, fmt.Errorf("backup: restore %s: %w", name, err)
	}
	defer unlock()

	safety, err := m.Create(ctx, TypePreRestore)
	if err != nil {
		return Manifest{}, fmt.Errorf("backup: safety snapshot failed, restore aborted: %w", err)
	}

	for _, file := range manifest.Files {
		data, err := decompressFile(filepath.Join(m.opts.BackupDir, name, file+".gz"))
		if err != nil {
			return safety, fmt.Errorf("backup: restore %s: %w", file, err)
		}
		if err := writeAtomic(filepath.Join(m.opts.DataDir, file), data); err != nil {
			return safety, fmt.Errorf("backup: restore %s: %w", file, err)
		}
	}

	m.logger.InfoContext(ctx, "backup restored",
		slog.String("backup", name),
		slog.Int("files", manifest.FileCount),
		slog.String("safety_backup", safety.Name),
	)
	return safety, nil
}

// lockAll takes every configured lock. The returned func releases them in
// reverse order.
func (m *Manager) lockAll(ctx context.Context) (func(), error) {
	releases := make([]func(), 0, len(m.opts.Lockers))
	unlock := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, l := range m.opts.Lockers {
		release, err := l.Lock(ctx)
		if err != nil {
			unlock()
			return nil, err
		}
		releases = append(releases, release)
	}
	return unlock, nil
}

// Prune removes all but the newest keep sets of backupType.
func (m *Manager) Prune(ctx context.Context, backupType string, keep int) ([]string, error) {
	if keep < 0 {
		return nil, fmt.Errorf("backup: keep must not be negative")
	}
	sets, err := m.List(ctx, backupType)
	if err != nil {
		return nil, err
	}
	if len(sets) <= keep {
		return nil, nil
	}

	var removed []string
	for _, set := range sets[keep:] {
		if err := os.RemoveAll(filepath.Join(m.opts.BackupDir, set.Name)); err != nil {
			m.logger.ErrorContext(ctx, "failed to remove old backup",
				slog.String("backup", set.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed = append(removed, set.Name)
	}
	if len(removed) > 0 {
		m.logger.InfoContext(ctx, "old backups removed",
			slog.String("backup_type", backupType),
			slog.Int("count", len(removed)),
		)
	}
	return removed, nil
}

// Stats summarizes every set.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	sets, err := m.List(ctx, "")
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{TotalBackups: len(sets), ByType: make(map[string]int)}
	for _, set := range sets {
		stats.ByType[set.BackupType]++
		stats.TotalSizeBytes += set.CompressedSizeBytes
	}
	if len(sets) > 0 {
		stats.NewestBackup = sets[0].Name
		stats.OldestBackup = sets[len(sets)-1].Name
	}
	return stats, nil
}

func (m *Manager) readManifest(name string) (Manifest, error) {
	if !strings.HasPrefix(name, namePrefix) || filepath.Base(name) != name {
		return Manifest{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	data, err := os.ReadFile(filepath.Join(m.opts.BackupDir, name, manifestName))
	if errors.Is(err, os.ErrNotExist) {
		return Manifest{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return Manifest{}, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("backup %s: corrupt manifest: %w", name, err)
	}
	manifest.Name = name
	for _, file := range manifest.Files {
		if filepath.Base(file) != file {
			return Manifest{}, fmt.Errorf("backup %s: invalid file name %q", name, file)
		}
	}
	return manifest, nil
}

func compressFile(src, dst string) (original, compressed int64, sum string, err error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return 0, 0, "", err
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return 0, 0, "", err
	}
	zw.Name = filepath.Base(src)
	if _, err := zw.Write(data); err != nil {
		return 0, 0, "", err
	}
	if err := zw.Close(); err != nil {
		return 0, 0, "", err
	}
	if err := os.WriteFile(dst, buf.Bytes(), 0o600); err != nil {
		return 0, 0, "", err
	}
	return int64(len(data)), int64(buf.Len()), checksum(data), nil
}

func decompressFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.restore")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
