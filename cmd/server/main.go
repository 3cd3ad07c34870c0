package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/brojonat/solxfer/service/app"
	"github.com/brojonat/solxfer/service/config"
	"github.com/brojonat/solxfer/service/logging"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"network", cfg.SolanaNetwork,
		"log_level", cfg.LogLevel,
	)

	// Cancelled on SIGINT/SIGTERM for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Subscribe: true}, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	logger.Info("server initialized, all dependencies ready",
		"solana_rpc", cfg.SolanaRPCURL,
		"wallet_connected", a.Form.Connected(),
		"nats_enabled", cfg.NATSURL != "",
		"temporal_enabled", cfg.TemporalEnabled,
	)

	if err := a.Serve(ctx); err != nil {
		logger.Error("server error", "error", err)
		a.Close()
		os.Exit(1)
	}
}
