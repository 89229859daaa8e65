// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"

	"github.com/cruxdb/settingsd/pkg/settings"
	"github.com/cruxdb/settingsd/pkg/store"
)

// SettingsManager is the interface for reading and updating settings.
// This matches the settings.Manager's capabilities.
type SettingsManager interface {
	Get(ctx context.Context, field string, def interface{}) (interface{}, error)
	GetAll(ctx context.Context) (settings.Document, error)
	Update(ctx context.Context, fields map[string]interface{}) error
	CurrentVersion() settings.Version
}

// StoreReader exposes the read side of the raw document store, for
// status and history endpoints.
type StoreReader interface {
	Snapshot(ctx context.Context) (*store.RawSnapshot, error)
	History(ctx context.Context, limit int) ([]store.ChangeRecord, error)
}

// ClusterStatus reports cluster membership for the status endpoint.
type ClusterStatus interface {
	Members() int
}
