// walletrisk API server - serves stored wallet risk scores and re-scores the
// configured transaction set on an interval
package main

import (
	"context"
	"os"

	"github.com/mbd888/walletrisk/internal/config"
	"github.com/mbd888/walletrisk/internal/logging"
	"github.com/mbd888/walletrisk/internal/server"
	"github.com/mbd888/walletrisk/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting walletrisk",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Reconfigure with the configured level and format
	logger = logging.New(cfg.LogLevel, cfg.LogFormat)
	if Version != "dev" {
		traces.Version = Version
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"input", cfg.InputPath,
		"rescore_interval", cfg.RescoreInterval,
		"seed", cfg.RiskSeed,
	)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
