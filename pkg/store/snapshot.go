// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"encoding/json"
	"fmt"
	"sort"
)

// RawSnapshot is an immutable view of the raw document at a revision.
// Accessors never expose the underlying map; mutations are expressed
// separately as a Mutation and applied through Store.Commit.
type RawSnapshot struct {
	rev uint64
	kv  map[string]string
}

// NewRawSnapshot builds a snapshot from a revision and key/value map.
// The map is copied.
func NewRawSnapshot(rev uint64, kv map[string]string) *RawSnapshot {
	cp := make(map[string]string, len(kv))
	for k, v := range kv {
		cp[k] = v
	}
	return &RawSnapshot{rev: rev, kv: cp}
}

// Rev returns the revision this snapshot was taken at.
func (s *RawSnapshot) Rev() uint64 { return s.rev }

// Get returns the raw value for key and whether it is present.
func (s *RawSnapshot) Get(key string) (string, bool) {
	v, ok := s.kv[key]
	return v, ok
}

// Has reports whether key is present.
func (s *RawSnapshot) Has(key string) bool {
	_, ok := s.kv[key]
	return ok
}

// Len returns the number of keys in the snapshot.
func (s *RawSnapshot) Len() int { return len(s.kv) }

// Keys returns all keys in sorted order.
func (s *RawSnapshot) Keys() []string {
	keys := make([]string, 0, len(s.kv))
	for k := range s.kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Apply returns a new snapshot with the mutation overlaid. The revision
// is unchanged; only Store.Commit advances revisions.
func (s *RawSnapshot) Apply(mut Mutation) *RawSnapshot {
	next := NewRawSnapshot(s.rev, s.kv)
	for k, v := range mut {
		next.kv[k] = v
	}
	return next
}

// Mutation is a set of raw keys to write. Applied atomically as a whole
// or not at all.
type Mutation map[string]string

// Keys returns the mutated keys in sorted order.
func (m Mutation) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge folds other into m, later writers win.
func (m Mutation) Merge(other Mutation) {
	for k, v := range other {
		m[k] = v
	}
}

// ChangedKeys returns the mutated keys whose value differs from the
// snapshot, in sorted order.
func (m Mutation) ChangedKeys(snap *RawSnapshot) []string {
	var keys []string
	for k, v := range m {
		if cur, ok := snap.Get(k); !ok || cur != v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// EncodeDocument serializes the snapshot's key/value content as compact
// JSON with sorted keys. Two snapshots with equal content always encode
// to identical bytes.
func EncodeDocument(s *RawSnapshot) ([]byte, error) {
	data, err := json.Marshal(s.kv)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}

// DecodeDocument parses a serialized document into a key/value map.
func DecodeDocument(data []byte) (map[string]string, error) {
	if len(data) == 0 {
		return map[string]string{}, nil
	}
	var kv map[string]string
	if err := json.Unmarshal(data, &kv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if kv == nil {
		kv = map[string]string{}
	}
	return kv, nil
}
