// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cruxdb/settingsd/pkg/metrics"
	"github.com/cruxdb/settingsd/pkg/store"
)

// versionOracle is a swappable compatibility version source for tests.
type versionOracle struct {
	mu sync.Mutex
	v  Version
}

func (o *versionOracle) get() Version {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.v
}

func (o *versionOracle) set(v Version) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.v = v
}

func newTestManager(t *testing.T, v Version) (*Manager, *store.MemoryStore, *versionOracle) {
	t.Helper()
	ms := store.NewMemoryStore()
	oracle := &versionOracle{v: v}
	m, err := NewManager(Config{
		Store:         ms,
		CompatVersion: oracle.get,
	})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return m, ms, oracle
}

func TestManager_SeedDefaults(t *testing.T) {
	m, ms, _ := newTestManager(t, Version60)
	ctx := context.Background()

	if err := m.SeedDefaults(ctx); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	doc, err := m.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll after seed failed: %v", err)
	}
	if len(doc) != len(KnownSettings(Version60)) {
		t.Errorf("expected %d fields, got %d", len(KnownSettings(Version60)), len(doc))
	}
	if doc["memoryQuota"] != int64(512) {
		t.Errorf("expected memoryQuota 512, got %v", doc["memoryQuota"])
	}
	if _, ok := doc["numReplica"]; ok {
		t.Error("numReplica must not appear at 6.0")
	}

	// Seeding stays at the minimum supported version: no 6.5 keys yet.
	snap, _ := ms.Snapshot(ctx)
	if snap.Has("indexer.settings.num_replica") {
		t.Error("seed wrote keys beyond the minimum supported version")
	}

	// Seeding twice is refused.
	if err := m.SeedDefaults(ctx); err == nil {
		t.Error("expected error seeding an initialized store")
	}
}

func TestManager_EnsureInitialized(t *testing.T) {
	m, ms, _ := newTestManager(t, Version60)
	ctx := context.Background()

	if err := m.EnsureInitialized(ctx); err != nil {
		t.Fatalf("first init failed: %v", err)
	}
	snap, _ := ms.Snapshot(ctx)
	rev := snap.Rev()

	// Second call is a no-op.
	if err := m.EnsureInitialized(ctx); err != nil {
		t.Fatalf("second init failed: %v", err)
	}
	snap, _ = ms.Snapshot(ctx)
	if snap.Rev() != rev {
		t.Errorf("EnsureInitialized committed on an initialized store (rev %d -> %d)", rev, snap.Rev())
	}
}

func TestManager_Get_TolerantDefault(t *testing.T) {
	m, _, _ := newTestManager(t, Version60)
	ctx := context.Background()

	// Unseeded store: single-field reads fall back to the caller's
	// default instead of failing the bootstrap race.
	v, err := m.Get(ctx, "memoryQuota", int64(512))
	if err != nil {
		t.Fatalf("tolerant get failed: %v", err)
	}
	if v != int64(512) {
		t.Errorf("expected default 512, got %v", v)
	}

	if _, err := m.Get(ctx, "noSuchSetting", nil); err == nil {
		t.Error("expected error for unknown setting")
	}
}

func TestManager_Get_MalformedStillFails(t *testing.T) {
	m, ms, _ := newTestManager(t, Version60)
	ctx := context.Background()

	snap, _ := ms.Snapshot(ctx)
	if _, err := ms.Commit(ctx, snap, store.Mutation{"indexer.settings.memory_quota": "garbage"}); err != nil {
		t.Fatalf("setup commit failed: %v", err)
	}

	_, err := m.Get(ctx, "memoryQuota", int64(512))
	var de *DecodeError
	if !errors.As(err, &de) || de.Missing {
		t.Fatalf("expected malformed DecodeError, got %v", err)
	}
}

func TestManager_Update_ScaledQuota(t *testing.T) {
	m, ms, _ := newTestManager(t, Version60)
	ctx := context.Background()
	if err := m.EnsureInitialized(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	if err := m.Update(ctx, map[string]interface{}{"memoryQuota": 1024}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	snap, _ := ms.Snapshot(ctx)
	raw, _ := snap.Get("indexer.settings.memory_quota")
	if raw != "1073741824" {
		t.Errorf("expected raw quota in bytes (1024<<20), got %q", raw)
	}

	v, err := m.Get(ctx, "memoryQuota", nil)
	if err != nil || v != int64(1024) {
		t.Errorf("expected external quota 1024, got %v (err=%v)", v, err)
	}
}

func TestManager_Update_AllOrNothing(t *testing.T) {
	m, ms, _ := newTestManager(t, Version65)
	ctx := context.Background()
	if err := m.EnsureInitialized(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := m.UpgradeTo(ctx, Version65); err != nil {
		t.Fatalf("upgrade failed: %v", err)
	}

	notifier := NewNotifier(nil)
	defer notifier.Close()
	var mu sync.Mutex
	var events []Event
	notifier.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	m.notifier = notifier

	before, _ := ms.Snapshot(ctx)

	err := m.Update(ctx, map[string]interface{}{
		"memoryQuota": 2048,     // valid
		"numReplica":  int64(99), // above max
	})
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if _, ok := verrs.Fields()["numReplica"]; !ok {
		t.Errorf("expected error keyed by field, got %v", verrs.Fields())
	}

	// Store unchanged.
	after, _ := ms.Snapshot(ctx)
	if after.Rev() != before.Rev() {
		t.Errorf("rejected update still committed (rev %d -> %d)", before.Rev(), after.Rev())
	}
	if v, _ := m.Get(ctx, "memoryQuota", nil); v != int64(512) {
		t.Errorf("valid half of rejected batch leaked: memoryQuota=%v", v)
	}

	// And no notification fired for the valid field.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 0 {
		t.Errorf("expected no events for a rejected batch, got %v", events)
	}
}

func TestManager_Update_UnknownFieldAtOldVersion(t *testing.T) {
	m, _, _ := newTestManager(t, Version60)
	ctx := context.Background()
	if err := m.EnsureInitialized(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	// numReplica only becomes active at 6.5.
	err := m.Update(ctx, map[string]interface{}{"numReplica": int64(1)})
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors for version-gated field, got %v", err)
	}
}

func TestManager_Update_NoOpSkipsCommit(t *testing.T) {
	m, ms, _ := newTestManager(t, Version60)
	ctx := context.Background()
	if err := m.EnsureInitialized(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	before, _ := ms.Snapshot(ctx)

	// Writing the value already stored commits nothing.
	if err := m.Update(ctx, map[string]interface{}{"memoryQuota": int64(512)}); err != nil {
		t.Fatalf("no-op update failed: %v", err)
	}
	after, _ := ms.Snapshot(ctx)
	if after.Rev() != before.Rev() {
		t.Errorf("no-op update committed (rev %d -> %d)", before.Rev(), after.Rev())
	}
}

func TestManager_Upgrade_AddsNumReplica(t *testing.T) {
	m, _, oracle := newTestManager(t, Version60)
	ctx := context.Background()
	if err := m.EnsureInitialized(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	docBefore, err := m.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}

	if err := m.Upgrade(ctx, Version60, Version65); err != nil {
		t.Fatalf("upgrade failed: %v", err)
	}
	oracle.set(Version65)

	v, err := m.Get(ctx, "numReplica", nil)
	if err != nil || v != int64(0) {
		t.Errorf("expected numReplica 0 after upgrade, got %v (err=%v)", v, err)
	}

	// All 6.0 fields unchanged.
	docAfter, err := m.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll after upgrade failed: %v", err)
	}
	for name, before := range docBefore {
		if !equalValue(docAfter[name], before) {
			t.Errorf("field %s changed across upgrade: %v != %v", name, docAfter[name], before)
		}
	}
}

func TestManager_Upgrade_RejectsNonAdjacent(t *testing.T) {
	m, _, _ := newTestManager(t, Version60)
	ctx := context.Background()

	if err := m.Upgrade(ctx, Version60, Version70); err == nil {
		t.Error("expected rejection of a version-skipping upgrade")
	}
	if err := m.Upgrade(ctx, Version65, Version60); err == nil {
		t.Error("expected rejection of a backwards upgrade")
	}
}

func TestManager_Upgrade_Idempotent(t *testing.T) {
	m, ms, _ := newTestManager(t, Version60)
	ctx := context.Background()
	if err := m.EnsureInitialized(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	// An operator-set value survives re-application.
	if err := m.Update(ctx, map[string]interface{}{"memoryQuota": 4096}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if err := m.Upgrade(ctx, Version60, Version65); err != nil {
		t.Fatalf("first upgrade failed: %v", err)
	}
	snap, _ := ms.Snapshot(ctx)
	first, _ := store.EncodeDocument(snap)
	rev := snap.Rev()

	if err := m.Upgrade(ctx, Version60, Version65); err != nil {
		t.Fatalf("second upgrade failed: %v", err)
	}
	snap, _ = ms.Snapshot(ctx)
	second, _ := store.EncodeDocument(snap)

	if !bytes.Equal(first, second) {
		t.Errorf("double upgrade changed the document:\n%s\n%s", first, second)
	}
	if snap.Rev() != rev {
		t.Errorf("second upgrade committed (rev %d -> %d)", rev, snap.Rev())
	}
}

func TestManager_UpgradeTo_CoversLatestSchema(t *testing.T) {
	m, _, oracle := newTestManager(t, Version60)
	ctx := context.Background()
	if err := m.EnsureInitialized(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	if err := m.UpgradeTo(ctx, Version70); err != nil {
		t.Fatalf("chained upgrade failed: %v", err)
	}
	oracle.set(Version70)

	// Every field of the new schema decodes: full key coverage.
	doc, err := m.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll at 7.0 failed: %v", err)
	}
	for _, fd := range KnownSettings(Version70) {
		if _, ok := doc[fd.Name]; !ok {
			t.Errorf("field %s missing after upgrade to 7.0", fd.Name)
		}
	}
	if doc["memHighThreshold"] != int64(70) {
		t.Errorf("expected memHighThreshold 70, got %v", doc["memHighThreshold"])
	}
}

func TestManager_GetAll_FailsOnMissedUpgrade(t *testing.T) {
	m, _, oracle := newTestManager(t, Version60)
	ctx := context.Background()
	if err := m.EnsureInitialized(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	// Version advances without the store being upgraded: the schema
	// inconsistency must surface, not silently default.
	oracle.set(Version65)

	_, err := m.GetAll(ctx)
	var de *DecodeError
	if !errors.As(err, &de) || !de.Missing {
		t.Fatalf("expected missing-key DecodeError, got %v", err)
	}
}

func TestManager_ConcurrentDisjointUpdates(t *testing.T) {
	m, _, _ := newTestManager(t, Version60)
	ctx := context.Background()
	if err := m.EnsureInitialized(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = m.Update(ctx, map[string]interface{}{"memoryQuota": 8192})
	}()
	go func() {
		defer wg.Done()
		errs[1] = m.Update(ctx, map[string]interface{}{"indexerThreads": int64(8)})
	}()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent update %d failed: %v", i, err)
		}
	}

	doc, err := m.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if doc["memoryQuota"] != int64(8192) {
		t.Errorf("lost update: memoryQuota=%v", doc["memoryQuota"])
	}
	if doc["indexerThreads"] != int64(8) {
		t.Errorf("lost update: indexerThreads=%v", doc["indexerThreads"])
	}
}

func TestManager_Update_ConflictSurfacedAfterRetries(t *testing.T) {
	ms := store.NewMemoryStore()
	m, err := NewManager(Config{
		Store:            ms,
		MaxCommitRetries: 2,
	})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	ctx := context.Background()
	if err := m.EnsureInitialized(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	// Every commit attempt loses the race to a competing writer.
	n := 0
	inHook := false
	ms.SetPreCommitHook(func() {
		if inHook {
			return
		}
		inHook = true
		defer func() { inHook = false }()
		n++
		snap, _ := ms.Snapshot(ctx)
		if _, err := ms.Commit(ctx, snap, store.Mutation{"noise": fmt.Sprintf("%d", n)}); err != nil {
			t.Errorf("competing commit failed: %v", err)
		}
	})

	err = m.Update(ctx, map[string]interface{}{"memoryQuota": 1024})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected surfaced conflict, got %v", err)
	}
	if n != 3 { // initial attempt + 2 retries
		t.Errorf("expected 3 commit attempts, got %d", n)
	}
}

func TestManager_Update_PublishesChangedFieldsOnly(t *testing.T) {
	m, _, _ := newTestManager(t, Version60)
	ctx := context.Background()
	if err := m.EnsureInitialized(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	notifier := NewNotifier(nil)
	defer notifier.Close()
	events := make(chan Event, 8)
	notifier.Subscribe(func(ev Event) { events <- ev })
	m.notifier = notifier

	err := m.Update(ctx, map[string]interface{}{
		"memoryQuota": 1024,       // changed
		"logLevel":    "info",     // equals the stored value
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Field != "memoryQuota" || ev.Value != int64(1024) {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event for changed field")
	}

	select {
	case ev := <-events:
		t.Errorf("unexpected event for unchanged field: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

// gatedCommitStore delays the return of one armed Commit until the
// gate is released, so a test can interleave a second writer's commit
// and publish between the first writer's commit and its publish.
type gatedCommitStore struct {
	store.Store

	mu      sync.Mutex
	gate    chan struct{}
	entered chan struct{}
}

func (s *gatedCommitStore) arm(gate, entered chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate, s.entered = gate, entered
}

func (s *gatedCommitStore) Commit(ctx context.Context, base *store.RawSnapshot, mut store.Mutation) (*store.RawSnapshot, error) {
	snap, err := s.Store.Commit(ctx, base, mut)

	s.mu.Lock()
	gate, entered := s.gate, s.entered
	s.gate, s.entered = nil, nil
	s.mu.Unlock()

	if gate != nil {
		close(entered)
		<-gate
	}
	return snap, err
}

func TestManager_NotificationOrderUnderCommitRace(t *testing.T) {
	gs := &gatedCommitStore{Store: store.NewMemoryStore()}
	notifier := NewNotifier(nil)
	defer notifier.Close()

	oracle := &versionOracle{v: Version60}
	m, err := NewManager(Config{
		Store:         gs,
		CompatVersion: oracle.get,
		Notifier:      notifier,
	})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	ctx := context.Background()
	if err := m.EnsureInitialized(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	events := make(chan Event, 8)
	notifier.Subscribe(func(ev Event) {
		if ev.Field == "memoryQuota" {
			events <- ev
		}
	})

	// Writer A commits first but is held up before it can publish;
	// writer B commits the later revision and publishes in between.
	gate := make(chan struct{})
	entered := make(chan struct{})
	gs.arm(gate, entered)

	done := make(chan error, 1)
	go func() {
		done <- m.Update(ctx, map[string]interface{}{"memoryQuota": 1000})
	}()
	<-entered

	if err := m.Update(ctx, map[string]interface{}{"memoryQuota": 2000}); err != nil {
		t.Fatalf("second update failed: %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first update failed: %v", err)
	}

	committed, err := m.Get(ctx, "memoryQuota", nil)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if committed != int64(2000) {
		t.Fatalf("expected committed quota 2000, got %v", committed)
	}

	// The subscriber's event stream must end on the committed value:
	// writer A's stale post-commit publish is discarded, not delivered
	// after writer B's.
	var last Event
	select {
	case last = <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
	for {
		select {
		case ev := <-events:
			if ev.Rev < last.Rev {
				t.Errorf("event for revision %d delivered after revision %d", ev.Rev, last.Rev)
			}
			last = ev
			continue
		case <-time.After(200 * time.Millisecond):
		}
		break
	}
	if last.Value != committed {
		t.Errorf("last event value %v disagrees with committed value %v", last.Value, committed)
	}
}

func TestManager_Update_StoreFailureCountsAsError(t *testing.T) {
	m, ms, _ := newTestManager(t, Version60)
	ctx := context.Background()
	if err := m.EnsureInitialized(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	errBefore := testutil.ToFloat64(metrics.UpdatesTotal.WithLabelValues("error"))
	invBefore := testutil.ToFloat64(metrics.UpdatesTotal.WithLabelValues("invalid"))

	ms.Close()
	err := m.Update(ctx, map[string]interface{}{"memoryQuota": 1024})
	if !errors.Is(err, store.ErrClosed) {
		t.Fatalf("expected closed-store error, got %v", err)
	}

	if got := testutil.ToFloat64(metrics.UpdatesTotal.WithLabelValues("error")); got != errBefore+1 {
		t.Errorf("expected error outcome count %v, got %v", errBefore+1, got)
	}
	if got := testutil.ToFloat64(metrics.UpdatesTotal.WithLabelValues("invalid")); got != invBefore {
		t.Errorf("store failure was counted as a validation rejection")
	}
}

func TestProperty_UpgradeIdempotence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("applying an upgrade twice equals applying it once", prop.ForAll(
		func(quota, threads int64) bool {
			ctx := context.Background()
			ms := store.NewMemoryStore()
			m, err := NewManager(Config{Store: ms})
			if err != nil {
				return false
			}
			if err := m.EnsureInitialized(ctx); err != nil {
				return false
			}
			if err := m.Update(ctx, map[string]interface{}{
				"memoryQuota":    quota,
				"indexerThreads": threads,
			}); err != nil {
				return false
			}

			if err := m.Upgrade(ctx, Version60, Version65); err != nil {
				return false
			}
			snap, _ := ms.Snapshot(ctx)
			once, _ := store.EncodeDocument(snap)

			if err := m.Upgrade(ctx, Version60, Version65); err != nil {
				return false
			}
			snap, _ = ms.Snapshot(ctx)
			twice, _ := store.EncodeDocument(snap)

			return bytes.Equal(once, twice)
		},
		gen.Int64Range(256, 1<<20),
		gen.Int64Range(0, 1024),
	))

	properties.TestingRun(t)
}
