package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"licsrv/internal/audit"
	"licsrv/internal/backup"
	"licsrv/internal/config"
	"licsrv/internal/exporter"
	"licsrv/internal/infrastructure"
	"licsrv/internal/license"
	"licsrv/internal/notify"
	"licsrv/internal/services"
	"licsrv/internal/store"
	"licsrv/internal/trial"
	"licsrv/pkg/contracts/domain"
)

// Components is the storage and domain layer shared by the server and the
// admin CLI.
type Components struct {
	Config *config.Config

	DB       *store.SQLiteDB // nil with the file driver
	Licenses store.Store[domain.LicenseRecord]
	Trials   store.Store[domain.TrialUsage]
	Rules    *trial.FileRules

	LicenseManager *license.Manager
	TrialManager   *trial.Manager
	Journal        *audit.Journal
	Mailer         *notify.Dispatcher
	Backups        *backup.Manager
	Exporter       *exporter.Exporter
	Metrics        *infrastructure.EntitlementMetrics

	LicenseService services.LicenseService
	TrialService   services.TrialService
}

// NewComponents opens the configured stores and wires the managers and
// services on top of them. metrics may be nil.
func NewComponents(ctx context.Context, cfg *config.Config, metrics *infrastructure.EntitlementMetrics, logger *slog.Logger) (*Components, error) {
	if metrics == nil {
		metrics = infrastructure.NewNoopMetrics()
	}
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	c := &Components{
		Config:   cfg,
		Metrics:  metrics,
		Exporter: exporter.New(logger),
	}

	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		db, err := store.OpenSQLite(ctx, cfg.DatabasePath())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		c.DB = db
		c.Licenses = store.NewSQLiteStore[domain.LicenseRecord](db, "licenses", logger)
		c.Trials = store.NewSQLiteStore[domain.TrialUsage](db, "trials", logger)
	default:
		c.Licenses = store.NewFileStore[domain.LicenseRecord](cfg.LicensesPath(), logger)
		c.Trials = store.NewFileStore[domain.TrialUsage](cfg.TrialsPath(), logger)
	}

	c.Rules = trial.NewFileRules(cfg.RulesPath(), cfg.Trial.DefaultMaxFiles, logger)
	c.LicenseManager = license.NewManager(c.Licenses, logger)
	c.TrialManager = trial.NewManager(c.Trials, c.Rules, logger)
	c.Journal = audit.NewJournal(cfg.PurchasesPath(), logger)

	notifier := notify.New(notify.Config{
		Provider:    cfg.Email.Provider,
		APIKey:      cfg.Email.APIKey,
		FromEmail:   cfg.Email.FromEmail,
		FromName:    cfg.Email.FromName,
		AppName:     cfg.Email.AppName,
		PurchaseURL: cfg.Email.PurchaseURL,
	}, logger)
	c.Mailer = notify.NewDispatcher(notifier, cfg.Email.Timeout, logger)
	c.Mailer.OnResult = func(ctx context.Context, kind notify.Kind, delivered bool) {
		metrics.RecordNotification(ctx, string(kind), delivered)
	}

	var lockers []store.Locker
	for _, s := range []any{c.Licenses, c.Trials} {
		if l, ok := s.(store.Locker); ok {
			lockers = append(lockers, l)
		}
	}

	var beforeSnapshot func(context.Context) error
	if c.DB != nil {
		beforeSnapshot = c.DB.Checkpoint
	}
	backups, err := backup.New(backup.Options{
		DataDir:        cfg.Paths.DataDir,
		BackupDir:      cfg.BackupPath(),
		Files:          cfg.DataFiles(),
		Retention:      retention(cfg.Backup.Retention),
		AppVersion:     Version,
		BeforeSnapshot: beforeSnapshot,
		Lockers:        lockers,
		Logger:         logger,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize backups: %w", err)
	}
	c.Backups = backups

	c.LicenseService = services.NewLicenseService(c.LicenseManager, c.Journal, c.Mailer, metrics, services.LicenseServiceConfig{
		DefaultValidityDays: cfg.License.DefaultValidityDays,
		TrialPeriod:         time.Duration(cfg.Trial.LicenseDays) * 24 * time.Hour,
		ProductName:         cfg.Trial.ProductName,
	}, logger)
	c.TrialService = services.NewTrialService(c.TrialManager, metrics, logger)

	return c, nil
}

// Probes returns the readiness checks for /api/health.
func (c *Components) Probes() map[string]services.Probe {
	probes := map[string]services.Probe{
		"licenses": func(ctx context.Context) error {
			_, err := c.Licenses.Load(ctx)
			return err
		},
		"trials": func(ctx context.Context) error {
			_, err := c.Trials.Load(ctx)
			return err
		},
		"trial_rules": func(ctx context.Context) error {
			if c.Rules.Source() == "invalid" {
				return errors.New("trial rules document is invalid, default quota in use")
			}
			return nil
		},
	}
	if c.DB != nil {
		probes["database"] = c.DB.Ping
	}
	return probes
}

// Close releases the database handle, if any.
func (c *Components) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// retention overlays configured counts on the defaults.
func retention(configured map[string]int) map[string]int {
	out := backup.DefaultRetention()
	for t, keep := range configured {
		out[t] = keep
	}
	return out
}
