// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

// Package api provides the HTTP API for reading and updating settings.
package api

import (
	"time"

	"github.com/cruxdb/settingsd/pkg/settings"
)

// SettingsResponse is the response for GET /api/v1/settings.
type SettingsResponse struct {
	Settings    settings.Document `json:"settings"`
	Version     string            `json:"version"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// FieldResponse is the response for GET /api/v1/settings/{field}.
type FieldResponse struct {
	Field string      `json:"field"`
	Value interface{} `json:"value"`
}

// HistoryEntry represents one committed change.
type HistoryEntry struct {
	Revision uint64    `json:"revision"`
	Time     time.Time `json:"time"`
	Keys     []string  `json:"keys"`
}

// HistoryResponse is the response for GET /api/v1/history.
type HistoryResponse struct {
	Changes     []HistoryEntry `json:"changes"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// StatusResponse is the response for GET /api/v1/status.
type StatusResponse struct {
	ServerVersion  string    `json:"server_version"`
	CompatVersion  string    `json:"compat_version"`
	LatestVersion  string    `json:"latest_version"`
	Revision       uint64    `json:"revision"`
	ClusterMembers int       `json:"cluster_members,omitempty"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Healthy bool `json:"healthy"`
}

// ValidationFailureResponse is returned when an update is rejected.
// Errors maps field names to validation messages.
type ValidationFailureResponse struct {
	Errors map[string]string `json:"errors"`
	Code   int               `json:"code"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
