package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"testlab/internal/config"
	"testlab/internal/db"
	"testlab/internal/logging"
	"testlab/internal/server"
)

func main() {
	configPath := flag.String("config", "testlab.yaml", "Config file (YAML)")
	port := flag.String("port", "", "Listen port (overrides config and PORT)")
	logLevel := flag.String("log-level", "", "Log level override")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	log, err := logging.New(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("Server failed", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	store, err := db.Open(context.Background(), cfg.Store(), log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	srv := server.FromConfig(cfg, store, log)

	ctx := server.SetupSignalHandler(log, nil)
	return srv.ListenAndServe(ctx, cfg.Addr())
}
