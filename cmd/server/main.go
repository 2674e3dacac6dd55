// Package main provides the entry point for the Monte Carlo simulation server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/atlas-desktop/journal-backend/internal/api"
	"github.com/atlas-desktop/journal-backend/internal/config"
	"github.com/atlas-desktop/journal-backend/internal/logging"
	"github.com/atlas-desktop/journal-backend/internal/montecarlo"
	"github.com/atlas-desktop/journal-backend/internal/observability"
	"github.com/atlas-desktop/journal-backend/pkg/types"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to a YAML config file")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	// Setup logger
	logger, err := logging.New(cfg.Log.Level, "stdout")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Monte Carlo simulation server",
		zap.String("addr", cfg.Server.Addr()),
		zap.Int("workers", cfg.Simulator.Workers),
		zap.Int("maxTrades", cfg.Simulator.MaxTrades),
		zap.Int("maxSimulations", cfg.Simulator.MaxSimulations),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics("", reg)

	simulator := montecarlo.NewSimulator(logger, cfg.Simulator.EngineConfig(), metrics)

	server := api.NewServer(logger, &types.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		WebSocketPath:  cfg.Server.WebSocketPath,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		EnableMetrics:  cfg.Metrics.Enabled,
		ResultCapacity: cfg.Results.Capacity,
	}, simulator,
		api.WithMetrics(metrics, reg),
		api.WithLimits(cfg.Simulator.Limits()),
	)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutting down server...", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}

	// Graceful server shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}
