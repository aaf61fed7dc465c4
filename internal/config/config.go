package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. LICSRV_SERVER_PORT.
const EnvPrefix = "LICSRV"

// Storage drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	License   LicenseConfig   `yaml:"license" envconfig:"LICENSE"`
	Trial     TrialConfig     `yaml:"trial" envconfig:"TRIAL"`
	Email     EmailConfig     `yaml:"email" envconfig:"EMAIL"`
	Backup    BackupConfig    `yaml:"backup" envconfig:"BACKUP"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	// AdminKeyHash is the bcrypt hash of the X-Admin-Key credential. Admin
	// routes are disabled while it is empty.
	AdminKeyHash   string          `yaml:"admin_key_hash" envconfig:"ADMIN_KEY_HASH"`
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
	// ActionLimits enables the per-identity limits on trial issuance, key
	// recovery and validation.
	ActionLimits bool `yaml:"action_limits" envconfig:"ACTION_LIMITS"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Output      string `yaml:"output" envconfig:"OUTPUT"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// PathsConfig contains file system paths. Relative file paths resolve
// against DataDir.
type PathsConfig struct {
	DataDir       string `yaml:"data_dir" envconfig:"DATA_DIR"`
	LicensesFile  string `yaml:"licenses_file" envconfig:"LICENSES_FILE"`
	TrialsFile    string `yaml:"trials_file" envconfig:"TRIALS_FILE"`
	RulesFile     string `yaml:"rules_file" envconfig:"RULES_FILE"`
	PurchasesFile string `yaml:"purchases_file" envconfig:"PURCHASES_FILE"`
	DatabaseFile  string `yaml:"database_file" envconfig:"DATABASE_FILE"`
	BackupDir     string `yaml:"backup_dir" envconfig:"BACKUP_DIR"`
}

// StorageConfig selects the document store backend.
type StorageConfig struct {
	Driver string `yaml:"driver" envconfig:"DRIVER"`
}

// LicenseConfig contains issuance defaults
type LicenseConfig struct {
	DefaultValidityDays int `yaml:"default_validity_days" envconfig:"DEFAULT_VALIDITY_DAYS"`
}

// TrialConfig contains trial quota and trial license settings
type TrialConfig struct {
	// DefaultMaxFiles applies while the rules file is absent or invalid.
	DefaultMaxFiles int    `yaml:"default_max_files" envconfig:"DEFAULT_MAX_FILES"`
	LicenseDays     int    `yaml:"license_days" envconfig:"LICENSE_DAYS"`
	ProductName     string `yaml:"product_name" envconfig:"PRODUCT_NAME"`
}

// EmailConfig contains notification settings
type EmailConfig struct {
	Provider    string        `yaml:"provider" envconfig:"PROVIDER"`
	APIKey      string        `yaml:"api_key" envconfig:"API_KEY"`
	FromEmail   string        `yaml:"from_email" envconfig:"FROM_EMAIL"`
	FromName    string        `yaml:"from_name" envconfig:"FROM_NAME"`
	AppName     string        `yaml:"app_name" envconfig:"APP_NAME"`
	PurchaseURL string        `yaml:"purchase_url" envconfig:"PURCHASE_URL"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// BackupConfig contains the backup schedule. A zero Interval disables
// scheduled backups.
type BackupConfig struct {
	Interval  time.Duration  `yaml:"interval" envconfig:"INTERVAL"`
	Type      string         `yaml:"type" envconfig:"TYPE"`
	Retention map[string]int `yaml:"retention" envconfig:"RETENTION"`
}

// TelemetryConfig contains OpenTelemetry settings
type TelemetryConfig struct {
	ServiceName   string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment   string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	EnableMetrics bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
	EnableTracing bool    `yaml:"enable_tracing" envconfig:"ENABLE_TRACING"`
	TraceExporter string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"`
	SampleRatio   float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			RequestTimeout:  10 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			MaxBodyBytes:    64 << 10,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"*"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled:      true,
				RPS:          20,
				Burst:        40,
				ActionLimits: true,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/licsrv.log",
		},
		Paths: PathsConfig{
			DataDir:       "data",
			LicensesFile:  "licenses.json",
			TrialsFile:    "trials.json",
			RulesFile:     "trial_rules.json",
			PurchasesFile: "purchases.jsonl",
			DatabaseFile:  "licsrv.db",
			BackupDir:     "backups",
		},
		Storage: StorageConfig{
			Driver: DriverFile,
		},
		License: LicenseConfig{
			DefaultValidityDays: 365,
		},
		Trial: TrialConfig{
			DefaultMaxFiles: 30,
			LicenseDays:     7,
			ProductName:     "Free Trial",
		},
		Email: EmailConfig{
			Provider: "sendgrid",
			FromName: "License Server",
			AppName:  "ImgApp",
			Timeout:  10 * time.Second,
		},
		Backup: BackupConfig{
			Interval: time.Hour,
			Type:     "hourly",
		},
		Telemetry: TelemetryConfig{
			ServiceName:   "licsrv",
			Environment:   "production",
			EnableMetrics: true,
			TraceExporter: "none",
			SampleRatio:   1.0,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (or the first file found by FindConfigFile when path is empty), then the
// LICSRV_* environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = FindConfigFile()
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile overlays the YAML document at path. Keys missing from the file
// keep their current values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// FindConfigFile returns LICSRV_CONFIG when set, otherwise the first existing
// file among the common locations, or an empty string.
func FindConfigFile() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG"); p != "" {
		return p
	}
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

func (c *Config) normalize() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Logging.Output = strings.ToLower(c.Logging.Output)
	c.Email.Provider = strings.ToLower(c.Email.Provider)
	// Always JSON
	c.Logging.Format = "json"
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/licsrv.log"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server request timeout must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server max body bytes must be positive")
	}

	if c.Security.RateLimit.Enabled && (c.Security.RateLimit.RPS <= 0 || c.Security.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit rps and burst must be positive when enabled")
	}
	if c.Security.EnableCORS && len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}

	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		return fmt.Errorf("invalid logging output %q (want console, file or both)", c.Logging.Output)
	}

	if c.Paths.DataDir == "" {
		return fmt.Errorf("data directory must be set")
	}
	switch c.Storage.Driver {
	case DriverFile, DriverSQLite:
	default:
		return fmt.Errorf("invalid storage driver %q (want %s or %s)", c.Storage.Driver, DriverFile, DriverSQLite)
	}

	if c.License.DefaultValidityDays <= 0 {
		return fmt.Errorf("license default validity days must be positive")
	}
	if c.Trial.DefaultMaxFiles < 0 {
		return fmt.Errorf("trial default max files must not be negative")
	}
	if c.Trial.LicenseDays <= 0 {
		return fmt.Errorf("trial license days must be positive")
	}
	if c.Email.Timeout <= 0 {
		return fmt.Errorf("email timeout must be positive")
	}

	if c.Backup.Interval < 0 {
		return fmt.Errorf("backup interval must not be negative")
	}
	if c.Backup.Interval > 0 && c.Backup.Type == "" {
		return fmt.Errorf("backup type must be set when scheduled backups are enabled")
	}
	for t, keep := range c.Backup.Retention {
		if keep < 0 {
			return fmt.Errorf("backup retention for %q must not be negative", t)
		}
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample ratio must be within [0, 1]")
	}
	return nil
}

// ResolvePath returns p unchanged when absolute, otherwise joined to the
// data directory.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Paths.DataDir, p)
}

// LicensesPath returns the resolved license document path.
func (c *Config) LicensesPath() string { return c.ResolvePath(c.Paths.LicensesFile) }

// TrialsPath returns the resolved trial document path.
func (c *Config) TrialsPath() string { return c.ResolvePath(c.Paths.TrialsFile) }

// RulesPath returns the resolved trial rules path.
func (c *Config) RulesPath() string { return c.ResolvePath(c.Paths.RulesFile) }

// PurchasesPath returns the resolved audit journal path.
func (c *Config) PurchasesPath() string { return c.ResolvePath(c.Paths.PurchasesFile) }

// DatabasePath returns the resolved SQLite database path.
func (c *Config) DatabasePath() string { return c.ResolvePath(c.Paths.DatabaseFile) }

// BackupPath returns the resolved backup directory.
func (c *Config) BackupPath() string { return c.ResolvePath(c.Paths.BackupDir) }

// DataFiles lists the files a backup captures for the configured driver.
// Only files inside the data directory are included.
func (c *Config) DataFiles() []string {
	candidates := []string{c.Paths.RulesFile, c.Paths.PurchasesFile}
	if c.Storage.Driver == DriverSQLite {
		candidates = append([]string{c.Paths.DatabaseFile}, candidates...)
	} else {
		candidates = append([]string{c.Paths.LicensesFile, c.Paths.TrialsFile}, candidates...)
	}

	var files []string
	for _, p := range candidates {
		if p == "" || filepath.IsAbs(p) || filepath.Base(p) != p {
			continue
		}
		files = append(files, p)
	}
	return files
}
