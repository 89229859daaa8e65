// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
)

// StoreType identifies the type of store backend.
type StoreType string

const (
	// StoreBBolt uses embedded bbolt for durable local persistence.
	StoreBBolt StoreType = "bbolt"

	// StoreMemory keeps the document in process memory only.
	StoreMemory StoreType = "memory"
)

// Config holds configuration for creating a store.
type Config struct {
	// Type specifies the store backend type.
	Type StoreType

	// Path is the file path for the bbolt database.
	Path string
}

// New creates a new store based on the provided configuration.
func New(cfg Config) (Store, error) {
	switch cfg.Type {
	case StoreBBolt, "": // Empty defaults to bbolt
		return NewBboltStore(cfg.Path)
	case StoreMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s (supported: bbolt, memory)", cfg.Type)
	}
}
