// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cruxdb/settingsd/pkg/config"
	"github.com/cruxdb/settingsd/pkg/logging"
	"github.com/cruxdb/settingsd/pkg/version"
)

const DefaultConfigPath = "/etc/settingsd/config.yaml"

func main() {
	configPath := flag.String("config", DefaultConfigPath, "path to configuration file")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	// Handle version flag
	if *showVersion {
		fmt.Printf("settingsd %s\n", version.Version)
		os.Exit(0)
	}

	// Bootstrap logger for startup (before config is loaded)
	bootstrapLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	bootstrapLogger.Info("settingsd starting",
		"version", version.Version,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		bootstrapLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		bootstrapLogger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	// Create configured logger
	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		bootstrapLogger.Error("failed to create logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		"api_address", cfg.API.Address,
		"store_type", cfg.Store.Type,
		"cluster", cfg.Cluster.Enabled,
		"log_level", cfg.Logging.Level,
		"log_format", cfg.Logging.Format,
	)

	// Create and initialize application
	app := NewApplication(cfg, logger)
	if err := app.Initialize(); err != nil {
		logger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	// Set up context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start application in background
	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start(ctx)
	}()

	logger.Info("settingsd running", "pid", os.Getpid())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errChan:
		if err != nil {
			logger.Error("application error", "error", err)
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("settingsd stopped")
}
