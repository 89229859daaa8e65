// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

// Package store holds the raw settings document: a flat, namespaced
// key/value mapping persisted as a single blob with a revision counter.
// All mutation goes through optimistic commits against a snapshot.
package store

import (
	"context"
	"time"
)

// ChangeRecord describes one committed revision of the document.
type ChangeRecord struct {
	Rev  uint64    `msgpack:"rev"`
	Time time.Time `msgpack:"time"`
	Keys []string  `msgpack:"keys"`
}

// Store defines the interface for raw settings document storage.
type Store interface {
	// Snapshot returns an immutable, consistent view of the document.
	// An uninitialized store yields an empty snapshot at revision 0.
	Snapshot(ctx context.Context) (*RawSnapshot, error)

	// Commit atomically applies the mutation on top of base and returns
	// the committed snapshot. Returns ErrConflict if another commit
	// landed after base was taken; the caller must retry with a fresh
	// snapshot.
	Commit(ctx context.Context, base *RawSnapshot, mut Mutation) (*RawSnapshot, error)

	// History returns the most recent change records, newest first,
	// up to limit (0 means all retained records).
	History(ctx context.Context, limit int) ([]ChangeRecord, error)

	// Close closes the store and releases resources.
	Close() error
}

// Common errors
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrConflict = Error("commit conflict")
	ErrClosed   = Error("store closed")
	ErrCorrupt  = Error("document corrupt")
)
