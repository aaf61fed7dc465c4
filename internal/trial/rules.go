package trial

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v2"

	"licsrv/pkg/contracts/domain"
)

// DefaultMaxFiles is the quota used when no rules document is available.
const DefaultMaxFiles = 30

// RulesSource supplies the current file quota. Implementations must never fail;
// they fall back to a default instead.
type RulesSource interface {
	MaxFiles() int
}

// StaticRules is a fixed quota.
type StaticRules int

// MaxFiles implements RulesSource.
func (r StaticRules) MaxFiles() int {
	if r < 0 {
		return 0
	}
	return int(r)
}

// FileRules reads the quota from a JSON or YAML document and re-reads it
// whenever the file's modification time or size changes.
type FileRules struct {
	path     string
	fallback int
	logger   *slog.Logger

	mu      sync.Mutex
	modTime time.Time
	size    int64
	loaded  bool
	current int
	source  string
}

// NewFileRules returns a hot-reloading rules source. fallback is used while the
// file is missing or unreadable.
func NewFileRules(path string, fallback int, logger *slog.Logger) *FileRules {
	if logger == nil {
		logger = slog.Default()
	}
	if fallback < 0 {
		fallback = DefaultMaxFiles
	}
	return &FileRules{
		path:     path,
		fallback: fallback,
		current:  fallback,
		source:   "default",
		logger:   logger.With(slog.String("component", "trial_rules"), slog.String("path", path)),
	}
}

// MaxFiles implements RulesSource.
func (r *FileRules) MaxFiles() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, err := os.Stat(r.path)
	if err != nil {
		if r.loaded {
			r.logger.Warn("trial rules unavailable, using default", slog.String("error", err.Error()))
		}
		r.loaded = false
		r.current = r.fallback
		r.source = "default"
		return r.current
	}
	if r.loaded && info.ModTime().Equal(r.modTime) && info.Size() == r.size {
		return r.current
	}

	r.modTime = info.ModTime()
	r.size = info.Size()
	r.loaded = true
	r.current = r.fallback
	r.source = "invalid"

	data, err := os.ReadFile(r.path)
	if err != nil {
		r.logger.Warn("failed to read trial rules, using default", slog.String("error", err.Error()))
		return r.current
	}

	var rules domain.TrialRules
	rules.MaxFiles = -1
	if err := yaml.Unmarshal(data, &rules); err != nil {
		r.logger.Warn("failed to parse trial rules, using default", slog.String("error", err.Error()))
		return r.current
	}
	if rules.MaxFiles < 0 {
		r.logger.Warn("trial rules have no valid max_files, using default")
		return r.current
	}

	r.current = rules.MaxFiles
	r.source = "file"
	r.logger.Info("trial rules loaded", slog.Int("max_files", r.current))
	return r.current
}

// Source reports where the quota currently comes from: "file", "default"
// (no document) or "invalid" (document present but unusable).
func (r *FileRules) Source() string {
	r.MaxFiles()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.source
}
