// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the settingsd daemon configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	// API defaults
	DefaultAPIAddress = "127.0.0.1:9102"

	// Metrics defaults
	DefaultMetricsAddress = "127.0.0.1:9103"

	// Store defaults
	DefaultStoreType = "bbolt"
	DefaultStorePath = "/var/lib/settingsd/settings.db"

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// Cluster defaults
	DefaultClusterBindAddress = "0.0.0.0"
	DefaultClusterBindPort    = 7947
)

// Config is the top-level daemon configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Metrics MetricsConfig `yaml:"metrics"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
	Cluster ClusterConfig `yaml:"cluster"`
}

// APIConfig configures the settings HTTP API.
type APIConfig struct {
	Address string `yaml:"address"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// StoreConfig configures the raw document store backend.
type StoreConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ClusterConfig configures the compatibility version tracker. With the
// tracker disabled the daemon pins the version given by
// supported_version (default: latest).
type ClusterConfig struct {
	Enabled          bool     `yaml:"enabled"`
	NodeName         string   `yaml:"node_name"`
	BindAddress      string   `yaml:"bind_address"`
	BindPort         int      `yaml:"bind_port"`
	Seeds            []string `yaml:"seeds"`
	SupportedVersion string   `yaml:"supported_version"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// Load reads and parses a configuration file from the given path.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.API.Address == "" {
		cfg.API.Address = DefaultAPIAddress
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = DefaultMetricsAddress
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = DefaultStoreType
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Cluster.BindAddress == "" {
		cfg.Cluster.BindAddress = DefaultClusterBindAddress
	}
	if cfg.Cluster.BindPort == 0 {
		cfg.Cluster.BindPort = DefaultClusterBindPort
	}
	if cfg.Cluster.NodeName == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Cluster.NodeName = host
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Store.Type != "bbolt" && c.Store.Type != "memory" {
		return &ValidationError{
			Field:   "store.type",
			Value:   c.Store.Type,
			Message: "must be 'bbolt' or 'memory'",
		}
	}
	if c.Store.Type == "bbolt" && c.Store.Path == "" {
		return &ValidationError{
			Field:   "store.path",
			Value:   c.Store.Path,
			Message: "required for the bbolt store",
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: "must be one of debug, info, warn, error",
		}
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return &ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: "must be 'text' or 'json'",
		}
	}

	if c.Cluster.Enabled {
		if c.Cluster.NodeName == "" {
			return &ValidationError{
				Field:   "cluster.node_name",
				Value:   c.Cluster.NodeName,
				Message: "required when the cluster tracker is enabled",
			}
		}
		if c.Cluster.BindPort < 1 || c.Cluster.BindPort > 65535 {
			return &ValidationError{
				Field:   "cluster.bind_port",
				Value:   c.Cluster.BindPort,
				Message: "must be between 1 and 65535",
			}
		}
	}
	return nil
}
