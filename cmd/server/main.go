// fraudpop - order fraud risk evaluation for commerce shops
package main

import (
	"context"
	"os"

	"github.com/Kenny3D1/fraudpop/internal/config"
	"github.com/Kenny3D1/fraudpop/internal/logging"
	"github.com/Kenny3D1/fraudpop/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting fraudpop",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"api_version", cfg.APIVersion,
		"workers", cfg.WorkerCount,
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
