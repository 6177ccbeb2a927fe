package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"testlab/internal/config"
	"testlab/internal/db"
	"testlab/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "testlab",
		Short:         "Bot test lab reports and match bookkeeping",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "testlab.yaml", "config file (YAML)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override: debug|info|warn|error")

	root.AddCommand(newReportCmd(opts))
	root.AddCommand(newImportCmd(opts))
	root.AddCommand(newNextGroupCmd(opts))
	root.AddCommand(newPendingCmd(opts))
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newWatchCmd(opts))
	return root
}

// app is what every subcommand needs
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store db.Store
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	_ = a.log.Sync()
}

// loadApp loads config, builds the logger and, when withStore is set,
// opens the store.
func loadApp(ctx context.Context, opts *rootOptions, withStore bool) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	log, err := logging.New(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	if withStore {
		a.store, err = db.Open(ctx, cfg.Store(), log)
		if err != nil {
			_ = log.Sync()
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
	}
	return a, nil
}
