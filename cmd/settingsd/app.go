// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cruxdb/settingsd/pkg/api"
	"github.com/cruxdb/settingsd/pkg/cluster"
	"github.com/cruxdb/settingsd/pkg/config"
	"github.com/cruxdb/settingsd/pkg/logging"
	"github.com/cruxdb/settingsd/pkg/metrics"
	"github.com/cruxdb/settingsd/pkg/settings"
	"github.com/cruxdb/settingsd/pkg/store"
)

// Application manages the lifecycle of all settingsd components.
type Application struct {
	config *config.Config
	logger *slog.Logger

	store         store.Store
	notifier      *settings.Notifier
	manager       *settings.Manager
	tracker       *cluster.Tracker
	apiServer     *api.Server
	metricsServer *metrics.Server

	localVersion settings.Version
}

// NewApplication creates a new Application instance with pre-loaded configuration.
func NewApplication(cfg *config.Config, logger *slog.Logger) *Application {
	if logger == nil {
		logger = slog.Default()
	}
	return &Application{
		config: cfg,
		logger: logger,
	}
}

// Initialize sets up all components using the loaded configuration.
func (a *Application) Initialize() error {
	localVersion := settings.LatestVersion
	if s := a.config.Cluster.SupportedVersion; s != "" {
		v, err := settings.ParseVersion(s)
		if err != nil {
			return fmt.Errorf("invalid supported_version: %w", err)
		}
		localVersion = v
	}
	a.localVersion = localVersion

	st, err := store.New(store.Config{
		Type: store.StoreType(a.config.Store.Type),
		Path: a.config.Store.Path,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.store = st

	a.notifier = settings.NewNotifier(logging.WithComponent(a.logger, "notifier"))
	changeLogger := logging.WithComponent(a.logger, "settings")
	a.notifier.Subscribe(func(e settings.Event) {
		changeLogger.Info("setting changed",
			"field", e.Field,
			"value", e.Value,
			"revision", e.Rev,
		)
	})

	compat := cluster.Static(localVersion)
	if a.config.Cluster.Enabled {
		tracker, err := cluster.NewTracker(cluster.Config{
			NodeName:     a.config.Cluster.NodeName,
			BindAddr:     a.config.Cluster.BindAddress,
			BindPort:     a.config.Cluster.BindPort,
			Seeds:        a.config.Cluster.Seeds,
			LocalVersion: localVersion,
			OnChange:     a.onVersionChange,
			Logger:       logging.WithComponent(a.logger, "cluster"),
		})
		if err != nil {
			return fmt.Errorf("failed to create version tracker: %w", err)
		}
		a.tracker = tracker
		compat = tracker.Effective
	}

	manager, err := settings.NewManager(settings.Config{
		Store:         a.store,
		CompatVersion: compat,
		Notifier:      a.notifier,
		Logger:        logging.WithComponent(a.logger, "settings"),
	})
	if err != nil {
		return fmt.Errorf("failed to create settings manager: %w", err)
	}
	a.manager = manager

	handlers := api.NewHandlers(a.manager, a.store)
	if a.tracker != nil {
		handlers.SetClusterStatus(a.tracker)
	}
	apiServer, err := api.NewServer(api.ServerConfig{
		Address: a.config.API.Address,
		Logger:  logging.WithComponent(a.logger, "api"),
	}, handlers)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}
	a.apiServer = apiServer

	if a.config.Metrics.Enabled {
		a.metricsServer = metrics.NewServer(metrics.ServerConfig{
			Address: a.config.Metrics.Address,
			Logger:  logging.WithComponent(a.logger, "metrics"),
		})
	}

	return nil
}

// Start brings up the store document, the cluster tracker and the
// servers, then blocks on the API server until ctx is cancelled.
func (a *Application) Start(ctx context.Context) error {
	a.logger.Info("starting application", "cluster", a.config.Cluster.Enabled)

	if err := a.manager.EnsureInitialized(ctx); err != nil {
		return fmt.Errorf("failed to initialize settings document: %w", err)
	}

	if a.tracker != nil {
		if err := a.tracker.Start(ctx); err != nil {
			return fmt.Errorf("failed to start version tracker: %w", err)
		}
		a.logger.Info("version tracker started",
			"effective", a.tracker.Effective().String(),
		)
		if err := a.manager.UpgradeTo(ctx, a.tracker.Effective()); err != nil {
			return fmt.Errorf("schema upgrade failed: %w", err)
		}
	} else {
		if err := a.manager.UpgradeTo(ctx, a.localVersion); err != nil {
			return fmt.Errorf("schema upgrade failed: %w", err)
		}
	}

	if a.metricsServer != nil {
		a.logger.Info("starting metrics server", "address", a.metricsServer.Address())
		go func() {
			if err := a.metricsServer.Start(ctx); err != nil {
				a.logger.Error("metrics server error", "error", err)
			}
		}()
	}

	return a.apiServer.Start(ctx)
}

// onVersionChange upgrades the schema when the cluster-wide
// compatibility version advances.
func (a *Application) onVersionChange(v settings.Version) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.logger.Info("compatibility version advanced, upgrading schema",
		"version", v.String(),
	)
	if err := a.manager.UpgradeTo(ctx, v); err != nil {
		a.logger.Error("schema upgrade failed", "version", v.String(), "error", err)
	}
}

// Shutdown gracefully stops all application components.
func (a *Application) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down application")

	var shutdownErr error

	if a.apiServer != nil {
		a.logger.Debug("stopping API server")
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("error stopping API server", "error", err)
			shutdownErr = err
		}
		cancel()
	}

	if a.tracker != nil {
		a.logger.Debug("stopping version tracker")
		if err := a.tracker.Stop(); err != nil {
			a.logger.Error("error stopping version tracker", "error", err)
			shutdownErr = err
		}
	}

	if a.notifier != nil {
		a.notifier.Close()
	}

	if a.store != nil {
		a.logger.Debug("closing store")
		if err := a.store.Close(); err != nil {
			a.logger.Error("error closing store", "error", err)
			shutdownErr = err
		}
	}

	a.logger.Info("application shutdown complete")
	return shutdownErr
}
