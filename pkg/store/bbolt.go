// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

var (
	documentBucket = []byte("document")
	historyBucket  = []byte("history")

	documentKey = []byte("settings")
	revisionKey = []byte("revision")
)

// historyRetention bounds the number of ChangeRecords kept per store.
const historyRetention = 1000

// BboltStore implements Store using BoltDB. The whole document lives as
// one blob under a fixed key, next to a revision counter; every commit
// appends a msgpack ChangeRecord to the history bucket.
type BboltStore struct {
	db *bolt.DB

	mu     sync.Mutex
	closed bool
}

// NewBboltStore creates a new BboltStore at the given file path.
func NewBboltStore(path string) (*BboltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(documentBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(historyBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStore{db: db}, nil
}

// Snapshot returns the current document and revision.
func (s *BboltStore) Snapshot(ctx context.Context) (*RawSnapshot, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var snap *RawSnapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(documentBucket)
		kv, err := DecodeDocument(b.Get(documentKey))
		if err != nil {
			return err
		}
		snap = NewRawSnapshot(readRev(b), kv)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Commit applies the mutation if the store revision still equals the
// base snapshot's revision.
func (s *BboltStore) Commit(ctx context.Context, base *RawSnapshot, mut Mutation) (*RawSnapshot, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var committed *RawSnapshot
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(documentBucket)
		if readRev(b) != base.Rev() {
			return ErrConflict
		}

		next := base.Apply(mut)
		data, err := EncodeDocument(next)
		if err != nil {
			return err
		}

		newRev := base.Rev() + 1
		if err := b.Put(documentKey, data); err != nil {
			return err
		}
		if err := b.Put(revisionKey, encodeRev(newRev)); err != nil {
			return err
		}
		if err := appendHistory(tx, ChangeRecord{
			Rev:  newRev,
			Time: time.Now().UTC(),
			Keys: mut.Keys(),
		}); err != nil {
			return err
		}

		kv := make(map[string]string, next.Len())
		for _, k := range next.Keys() {
			v, _ := next.Get(k)
			kv[k] = v
		}
		committed = NewRawSnapshot(newRev, kv)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return committed, nil
}

// History returns retained change records, newest first.
func (s *BboltStore) History(ctx context.Context, limit int) ([]ChangeRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var records []ChangeRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(historyBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec ChangeRecord
			if err := msgpack.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("%w: history record: %v", ErrCorrupt, err)
			}
			records = append(records, rec)
			if limit > 0 && len(records) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the store.
func (s *BboltStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.db.Close()
}

func (s *BboltStore) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func appendHistory(tx *bolt.Tx, rec ChangeRecord) error {
	b := tx.Bucket(historyBucket)

	data, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("failed to encode history record: %w", err)
	}
	if err := b.Put(encodeRev(rec.Rev), data); err != nil {
		return err
	}

	// Prune oldest records beyond the retention bound.
	c := b.Cursor()
	n := 0
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	for k, _ := c.First(); k != nil && n > historyRetention; k, _ = c.First() {
		if err := b.Delete(k); err != nil {
			return err
		}
		n--
	}
	return nil
}

func readRev(b *bolt.Bucket) uint64 {
	v := b.Get(revisionKey)
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func encodeRev(rev uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, rev)
	return buf
}
