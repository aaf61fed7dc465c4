package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"licsrv/internal/app"
	"licsrv/internal/config"
	"licsrv/internal/infrastructure"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var verbose bool

	ctx := newCommandContext(&configFlag, &verbose)

	rootCmd := &cobra.Command{
		Use:           "licensectl",
		Short:         "Administer licenses, trials and backups",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.close()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log component activity to stderr")

	rootCmd.AddCommand(newLicenseCommand(ctx))
	rootCmd.AddCommand(newTrialCommand(ctx))
	rootCmd.AddCommand(newBackupCommand(ctx))
	rootCmd.AddCommand(newAdminCommand())

	return rootCmd
}

// commandContext lazily opens the data directory named by the configuration,
// so commands that never touch it do not need a valid config.
type commandContext struct {
	configFlag *string
	verbose    *bool

	cfg   *config.Config
	comps *app.Components
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{configFlag: configFlag, verbose: verbose}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	var path string
	if c.configFlag != nil {
		path = strings.TrimSpace(*c.configFlag)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) components(cmd *cobra.Command) (*app.Components, error) {
	if c.comps != nil {
		return c.comps, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	level := slog.LevelError
	if c.verbose != nil && *c.verbose {
		level = slog.LevelDebug
	}
	logger := infrastructure.NewJSONLogger(cmd.ErrOrStderr(), level)

	comps, err := app.NewComponents(commandCtx(cmd), cfg, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("open data directory %s: %w", cfg.Paths.DataDir, err)
	}
	c.comps = comps
	return comps, nil
}

func (c *commandContext) close() error {
	if c.comps == nil {
		return nil
	}
	err := c.comps.Close()
	c.comps = nil
	return err
}

func commandCtx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
