// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store in process memory. Used for ephemeral
// deployments and tests; commit semantics match BboltStore.
type MemoryStore struct {
	mu      sync.RWMutex
	rev     uint64
	kv      map[string]string
	history []ChangeRecord
	closed  bool

	preCommit func()
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{kv: map[string]string{}}
}

// SetPreCommitHook installs a hook invoked at the start of every Commit
// call, before the conflict check. Tests use it to race a competing
// commit against an in-flight one.
func (s *MemoryStore) SetPreCommitHook(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preCommit = fn
}

// Snapshot returns the current document and revision.
func (s *MemoryStore) Snapshot(ctx context.Context) (*RawSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return NewRawSnapshot(s.rev, s.kv), nil
}

// Commit applies the mutation if the store revision still equals the
// base snapshot's revision.
func (s *MemoryStore) Commit(ctx context.Context, base *RawSnapshot, mut Mutation) (*RawSnapshot, error) {
	s.mu.Lock()
	hook := s.preCommit
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.rev != base.Rev() {
		return nil, ErrConflict
	}

	for k, v := range mut {
		s.kv[k] = v
	}
	s.rev++
	s.history = append(s.history, ChangeRecord{
		Rev:  s.rev,
		Time: time.Now().UTC(),
		Keys: mut.Keys(),
	})
	if len(s.history) > historyRetention {
		s.history = s.history[len(s.history)-historyRetention:]
	}
	return NewRawSnapshot(s.rev, s.kv), nil
}

// History returns retained change records, newest first.
func (s *MemoryStore) History(ctx context.Context, limit int) ([]ChangeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	n := len(s.history)
	if limit > 0 && limit < n {
		n = limit
	}
	records := make([]ChangeRecord, 0, n)
	for i := len(s.history) - 1; i >= 0 && len(records) < n; i-- {
		records = append(records, s.history[i])
	}
	return records, nil
}

// Close closes the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
