// Fieldwork - plan entitlements for multi-tenant field service software
package main

import (
	"context"
	"os"

	"github.com/mbd888/fieldwork/internal/config"
	"github.com/mbd888/fieldwork/internal/logging"
	"github.com/mbd888/fieldwork/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	bootLogger := logging.New("info", "text")

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	format := "text"
	if cfg.JSONLogs() {
		format = "json"
	}
	logger := logging.New(cfg.LogLevel, format)

	logger.Info("starting fieldwork",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
		"env", cfg.Env,
	)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(context.Background()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
