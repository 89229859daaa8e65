// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

// Package settings implements the versioned settings document: lenses
// between external fields and raw store keys, the version-gated schema
// registry, and the manager that orchestrates reads, transactional
// updates and schema upgrades over a raw document store.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"time"

	"github.com/cruxdb/settingsd/pkg/metrics"
	"github.com/cruxdb/settingsd/pkg/store"
)

// DefaultMaxCommitRetries bounds transparent retries after optimistic
// commit conflicts before the conflict is surfaced to the caller.
const DefaultMaxCommitRetries = 8

// Document is the structured external view of the settings at one
// compatibility version.
type Document map[string]interface{}

// Config holds dependencies for a Manager.
type Config struct {
	// Store is the raw document store. Required.
	Store store.Store

	// CompatVersion returns the cluster-wide compatibility version.
	// The manager never decides this itself. Defaults to a constant
	// MinSupportedVersion accessor.
	CompatVersion func() Version

	// Notifier receives change events after committed writes. Optional.
	Notifier *Notifier

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger

	// MaxCommitRetries overrides DefaultMaxCommitRetries when > 0.
	MaxCommitRetries int
}

// Manager owns the settings document: it resolves lenses for the
// current compatibility version, reads from store snapshots, applies
// updates transactionally and migrates the schema between versions.
type Manager struct {
	store      store.Store
	compat     func() Version
	notifier   *Notifier
	logger     *slog.Logger
	maxRetries int
}

// NewManager creates a Manager. It validates the schema table and
// fails with *SchemaError on any invariant violation, so a broken
// schema aborts process initialization instead of corrupting stores.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("settings: store is required")
	}
	if err := CheckSchema(); err != nil {
		return nil, err
	}

	compat := cfg.CompatVersion
	if compat == nil {
		compat = func() Version { return MinSupportedVersion }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retries := cfg.MaxCommitRetries
	if retries <= 0 {
		retries = DefaultMaxCommitRetries
	}

	return &Manager{
		store:      cfg.Store,
		compat:     compat,
		notifier:   cfg.Notifier,
		logger:     logger,
		maxRetries: retries,
	}, nil
}

// CurrentVersion returns the compatibility version the manager is
// serving at.
func (m *Manager) CurrentVersion() Version {
	return m.compat()
}

// Get decodes a single field from a fresh snapshot. If the field's raw
// key is absent (bootstrap race, not-yet-seeded store) the supplied
// default is returned instead of an error; a malformed key still fails.
func (m *Manager) Get(ctx context.Context, field string, def interface{}) (interface{}, error) {
	metrics.ReadsTotal.WithLabelValues("get").Inc()

	fd, ok := lookupField(m.compat(), field)
	if !ok {
		return nil, &ValidationError{Field: field, Message: "unknown setting"}
	}

	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	v, err := fd.Lens.Decode(snap)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) && de.Missing {
			return def, nil
		}
		return nil, err
	}
	return v, nil
}

// GetAll decodes every field known at the current compatibility version
// into one document. A missing or malformed key fails the whole read:
// after seeding and upgrades the store must cover the active schema,
// so this signals an inconsistency rather than papering over it.
func (m *Manager) GetAll(ctx context.Context) (Document, error) {
	metrics.ReadsTotal.WithLabelValues("get_all").Inc()

	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	doc := Document{}
	for _, fd := range KnownSettings(m.compat()) {
		v, err := fd.Lens.Decode(snap)
		if err != nil {
			return nil, err
		}
		doc[fd.Name] = v
	}
	return doc, nil
}

// Update applies a partial external document. Every supplied field is
// validated before any raw key is written; one invalid field rejects
// the whole batch with ValidationErrors. On success the combined
// mutation is committed transactionally and one change event per
// changed field is published. Commit conflicts are retried with a
// fresh snapshot up to the configured bound.
func (m *Manager) Update(ctx context.Context, fields map[string]interface{}) error {
	start := time.Now()
	err := m.update(ctx, fields)
	metrics.UpdateDuration.Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		metrics.UpdatesTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, store.ErrConflict):
		metrics.UpdatesTotal.WithLabelValues("conflict").Inc()
	case isValidationError(err):
		metrics.UpdatesTotal.WithLabelValues("invalid").Inc()
	default:
		metrics.UpdatesTotal.WithLabelValues("error").Inc()
	}
	return err
}

func (m *Manager) update(ctx context.Context, fields map[string]interface{}) error {
	ver := m.compat()

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	// Resolve all lenses up front; unknown fields reject the batch.
	var verrs ValidationErrors
	defs := make([]FieldDef, 0, len(names))
	for _, name := range names {
		fd, ok := lookupField(ver, name)
		if !ok {
			verrs = append(verrs, &ValidationError{Field: name, Value: fields[name], Message: "unknown setting"})
			continue
		}
		defs = append(defs, fd)
	}
	if len(verrs) > 0 {
		return verrs
	}

	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		snap, err := m.store.Snapshot(ctx)
		if err != nil {
			return err
		}

		mut := store.Mutation{}
		fieldMuts := make([]store.Mutation, len(defs))
		verrs = nil
		for i, fd := range defs {
			fmut, err := fd.Lens.Encode(fields[fd.Name], snap)
			if err != nil {
				var ve *ValidationError
				if errors.As(err, &ve) {
					verrs = append(verrs, ve)
					continue
				}
				return err
			}
			fieldMuts[i] = fmut
			mut.Merge(fmut)
		}
		if len(verrs) > 0 {
			return verrs
		}

		if len(mut.ChangedKeys(snap)) == 0 {
			return nil
		}

		committed, err := m.store.Commit(ctx, snap, mut)
		if errors.Is(err, store.ErrConflict) {
			metrics.CommitConflictsTotal.Inc()
			m.logger.Debug("settings update conflicted, retrying", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return err
		}
		metrics.DocumentRevision.Set(float64(committed.Rev()))

		m.logger.Info("settings updated",
			"fields", names,
			"revision", committed.Rev(),
		)
		m.publishChanged(committed, snap, defs, fieldMuts)
		return nil
	}

	return fmt.Errorf("settings update: %w after %d attempts", store.ErrConflict, m.maxRetries+1)
}

// Upgrade migrates the document from oldVersion to the immediately
// following newVersion. The delta is the set of fields whose default
// changed between the two versions (including newly introduced ones);
// of that delta only raw keys that differ from the currently stored
// value are written, which makes re-running the same upgrade a no-op.
// Versions are never skipped: a multi-step upgrade chains adjacent
// steps so every intermediate version's key coverage holds.
func (m *Manager) Upgrade(ctx context.Context, oldVersion, newVersion Version) error {
	next, ok := NextVersion(oldVersion)
	if !ok || next != newVersion {
		return fmt.Errorf("settings upgrade: %s -> %s is not an adjacent version step", oldVersion, newVersion)
	}

	err := m.upgrade(ctx, oldVersion, newVersion)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.UpgradesTotal.WithLabelValues(oldVersion.String(), newVersion.String(), status).Inc()
	return err
}

func (m *Manager) upgrade(ctx context.Context, oldVersion, newVersion Version) error {
	oldDefaults := Defaults(oldVersion)
	empty := store.NewRawSnapshot(0, nil)

	// The upgrade delta at the raw level: keys of fields whose default
	// is new or changed between the versions. Computed once; the
	// default tables are pure functions of the versions.
	delta := store.Mutation{}
	deltaFields := make(map[string][]string) // field -> owned keys in delta
	for _, fd := range KnownSettings(newVersion) {
		newMut, err := fd.Lens.Encode(fd.Default, empty)
		if err != nil {
			return fmt.Errorf("settings upgrade: encode default for %s: %w", fd.Name, err)
		}
		if oldDefault, had := oldDefaults[fd.Name]; had {
			oldMut, err := fd.Lens.Encode(oldDefault, empty)
			if err != nil {
				return fmt.Errorf("settings upgrade: encode old default for %s: %w", fd.Name, err)
			}
			if reflect.DeepEqual(map[string]string(oldMut), map[string]string(newMut)) {
				continue
			}
		}
		delta.Merge(newMut)
		deltaFields[fd.Name] = newMut.Keys()
	}

	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		snap, err := m.store.Snapshot(ctx)
		if err != nil {
			return err
		}

		// Diff against the live document: only keys that actually
		// differ are written, so double application is harmless.
		mut := store.Mutation{}
		for k, v := range delta {
			if cur, ok := snap.Get(k); !ok || cur != v {
				mut[k] = v
			}
		}
		if len(mut) == 0 {
			m.logger.Debug("settings upgrade is a no-op",
				"from", oldVersion.String(),
				"to", newVersion.String(),
			)
			return nil
		}

		committed, err := m.store.Commit(ctx, snap, mut)
		if errors.Is(err, store.ErrConflict) {
			metrics.CommitConflictsTotal.Inc()
			continue
		}
		if err != nil {
			return err
		}
		metrics.DocumentRevision.Set(float64(committed.Rev()))

		m.logger.Info("settings upgraded",
			"from", oldVersion.String(),
			"to", newVersion.String(),
			"keys", mut.Keys(),
			"revision", committed.Rev(),
		)

		if m.notifier != nil {
			for name, keys := range deltaFields {
				if !anyKeyChanged(keys, mut) {
					continue
				}
				fd, _ := lookupField(newVersion, name)
				if v, err := fd.Lens.Decode(committed); err == nil {
					m.notifier.Publish(name, v, committed.Rev())
				}
			}
		}
		return nil
	}

	return fmt.Errorf("settings upgrade: %w after %d attempts", store.ErrConflict, m.maxRetries+1)
}

// UpgradeTo chains adjacent upgrades from the minimum supported
// version up to target. Steps already applied are no-ops, so replaying
// the chain after a crash or on every startup is safe.
func (m *Manager) UpgradeTo(ctx context.Context, target Version) error {
	v := MinSupportedVersion
	for v < target {
		next, ok := NextVersion(v)
		if !ok {
			return fmt.Errorf("settings upgrade: no version after %s (target %s)", v, target)
		}
		if next > target {
			return fmt.Errorf("settings upgrade: target %s is not a supported version", target)
		}
		if err := m.Upgrade(ctx, v, next); err != nil {
			return err
		}
		v = next
	}
	return nil
}

// SeedDefaults populates an empty store with the defaults of the
// minimum supported version. New nodes must start compatible with the
// oldest peer they might join; later Upgrade calls bring them forward.
func (m *Manager) SeedDefaults(ctx context.Context) error {
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return err
	}
	if snap.Len() > 0 {
		return fmt.Errorf("settings seed: store already initialized (revision %d)", snap.Rev())
	}

	mut := store.Mutation{}
	for _, fd := range KnownSettings(MinSupportedVersion) {
		fmut, err := fd.Lens.Encode(fd.Default, snap)
		if err != nil {
			return fmt.Errorf("settings seed: encode default for %s: %w", fd.Name, err)
		}
		mut.Merge(fmut)
	}

	committed, err := m.store.Commit(ctx, snap, mut)
	if err != nil {
		return err
	}
	metrics.DocumentRevision.Set(float64(committed.Rev()))

	m.logger.Info("settings seeded",
		"version", MinSupportedVersion.String(),
		"keys", len(mut),
		"revision", committed.Rev(),
	)
	return nil
}

// EnsureInitialized seeds the store on first-ever startup and is a
// no-op afterwards. A conflict during seeding means another caller
// initialized the store first, which is fine.
func (m *Manager) EnsureInitialized(ctx context.Context) error {
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return err
	}
	if snap.Len() > 0 {
		metrics.DocumentRevision.Set(float64(snap.Rev()))
		return nil
	}

	if err := m.SeedDefaults(ctx); err != nil && !errors.Is(err, store.ErrConflict) {
		return err
	}
	return nil
}

func (m *Manager) publishChanged(committed, base *store.RawSnapshot, defs []FieldDef, fieldMuts []store.Mutation) {
	if m.notifier == nil {
		return
	}
	for i, fd := range defs {
		if len(fieldMuts[i].ChangedKeys(base)) == 0 {
			continue
		}
		v, err := fd.Lens.Decode(committed)
		if err != nil {
			m.logger.Warn("failed to decode committed field for notification",
				"field", fd.Name,
				"error", err,
			)
			continue
		}
		m.notifier.Publish(fd.Name, v, committed.Rev())
	}
}

// isValidationError reports whether err is a rejection of the caller's
// input, as opposed to an infrastructure failure (store I/O, decode of
// a corrupt document).
func isValidationError(err error) bool {
	var verrs ValidationErrors
	var verr *ValidationError
	return errors.As(err, &verrs) || errors.As(err, &verr)
}

func anyKeyChanged(keys []string, mut store.Mutation) bool {
	for _, k := range keys {
		if _, ok := mut[k]; ok {
			return true
		}
	}
	return false
}

// equalValue compares two external values structurally.
func equalValue(a, b interface{}) bool {
	return reflect.DeepEqual(a, b)
}
