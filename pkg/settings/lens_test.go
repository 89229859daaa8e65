// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"errors"
	"testing"

	"github.com/cruxdb/settingsd/pkg/store"
)

func emptySnap() *store.RawSnapshot {
	return store.NewRawSnapshot(0, nil)
}

func TestIntLens_EncodeDecode(t *testing.T) {
	lens := intLens{field: "memoryQuota", key: "indexer.settings.memory_quota", min: 256, max: 1 << 20, scale: 1 << 20}

	mut, err := lens.Encode(int64(1024), emptySnap())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if got := mut["indexer.settings.memory_quota"]; got != "1073741824" {
		t.Errorf("expected raw value scaled to bytes, got %q", got)
	}

	v, err := lens.Decode(emptySnap().Apply(mut))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if v != int64(1024) {
		t.Errorf("expected 1024, got %v", v)
	}
}

func TestIntLens_AcceptsJSONNumbers(t *testing.T) {
	lens := intLens{field: "numReplica", key: "k", min: 0, max: 10}

	// JSON decoding hands numbers over as float64.
	mut, err := lens.Encode(float64(3), emptySnap())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if mut["k"] != "3" {
		t.Errorf("expected \"3\", got %q", mut["k"])
	}

	if _, err := lens.Encode(float64(3.5), emptySnap()); err == nil {
		t.Error("expected rejection of non-integral float")
	}
}

func TestIntLens_Validation(t *testing.T) {
	lens := intLens{field: "maxRollbackPoints", key: "k", min: 1, max: 5000}

	tests := []struct {
		name  string
		value interface{}
	}{
		{"below min", int64(0)},
		{"above max", int64(5001)},
		{"wrong type", "five"},
		{"nil", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lens.Encode(tt.value, emptySnap())
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != "maxRollbackPoints" {
				t.Errorf("expected field path in error, got %q", ve.Field)
			}
		})
	}
}

func TestIntLens_DecodeErrors(t *testing.T) {
	lens := intLens{field: "f", key: "k", min: 0, max: 10}

	_, err := lens.Decode(emptySnap())
	var de *DecodeError
	if !errors.As(err, &de) || !de.Missing {
		t.Fatalf("expected missing-key DecodeError, got %v", err)
	}

	snap := store.NewRawSnapshot(0, map[string]string{"k": "not-a-number"})
	_, err = lens.Decode(snap)
	if !errors.As(err, &de) || de.Missing {
		t.Fatalf("expected malformed-key DecodeError, got %v", err)
	}
}

func TestBoolLens(t *testing.T) {
	lens := boolLens{field: "redistributeIndexes", key: "k"}

	mut, err := lens.Encode(true, emptySnap())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if mut["k"] != "true" {
		t.Errorf("expected \"true\", got %q", mut["k"])
	}

	v, err := lens.Decode(emptySnap().Apply(mut))
	if err != nil || v != true {
		t.Errorf("expected true, got %v (err=%v)", v, err)
	}

	if _, err := lens.Encode("yes", emptySnap()); err == nil {
		t.Error("expected rejection of non-boolean")
	}

	snap := store.NewRawSnapshot(0, map[string]string{"k": "1"})
	if _, err := lens.Decode(snap); err == nil {
		t.Error("expected decode failure for malformed boolean")
	}
}

func TestEnumLens(t *testing.T) {
	lens := enumLens{field: "logLevel", key: "k", allowed: []string{"error", "info", "debug"}}

	mut, err := lens.Encode("debug", emptySnap())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	v, err := lens.Decode(emptySnap().Apply(mut))
	if err != nil || v != "debug" {
		t.Errorf("expected \"debug\", got %v (err=%v)", v, err)
	}

	if _, err := lens.Encode("loud", emptySnap()); err == nil {
		t.Error("expected rejection of value outside enum")
	}

	snap := store.NewRawSnapshot(0, map[string]string{"k": "loud"})
	if _, err := lens.Decode(snap); err == nil {
		t.Error("expected decode failure for stored value outside enum")
	}
}

func TestCompositeLens_FullObject(t *testing.T) {
	lens := testWindowLens()

	obj := map[string]interface{}{
		"fromHour":   int64(1),
		"fromMinute": int64(30),
		"toHour":     int64(5),
		"toMinute":   int64(0),
	}
	mut, err := lens.Encode(obj, emptySnap())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if len(mut) != 4 {
		t.Fatalf("expected 4 raw keys, got %d", len(mut))
	}

	v, err := lens.Decode(emptySnap().Apply(mut))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !equalValue(v, obj) {
		t.Errorf("round trip mismatch: %v != %v", v, obj)
	}
}

func TestCompositeLens_PartialMergesCurrent(t *testing.T) {
	lens := testWindowLens()

	full := map[string]interface{}{
		"fromHour": int64(1), "fromMinute": int64(0),
		"toHour": int64(5), "toMinute": int64(0),
	}
	mut, err := lens.Encode(full, emptySnap())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	snap := emptySnap().Apply(mut)

	mut, err = lens.Encode(map[string]interface{}{"toHour": int64(7)}, snap)
	if err != nil {
		t.Fatalf("partial encode failed: %v", err)
	}
	v, err := lens.Decode(snap.Apply(mut))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	want := map[string]interface{}{
		"fromHour": int64(1), "fromMinute": int64(0),
		"toHour": int64(7), "toMinute": int64(0),
	}
	if !equalValue(v, want) {
		t.Errorf("expected merge with current values: %v != %v", v, want)
	}
}

func TestCompositeLens_Validation(t *testing.T) {
	lens := testWindowLens()

	tests := []struct {
		name  string
		value interface{}
	}{
		{"not an object", 17},
		{"unknown subfield", map[string]interface{}{"untilHour": int64(3)}},
		{"out of range", map[string]interface{}{
			"fromHour": int64(25), "fromMinute": int64(0),
			"toHour": int64(0), "toMinute": int64(0),
		}},
		{"partial on empty store", map[string]interface{}{"toHour": int64(7)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mut, err := lens.Encode(tt.value, emptySnap())
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if mut != nil {
				t.Error("failed encode must not return a partial mutation")
			}
		})
	}
}

func testWindowLens() compositeLens {
	return compositeLens{field: "compactionWindow", parts: []intPart{
		{name: "fromHour", key: "c.from_hour", min: 0, max: 23},
		{name: "fromMinute", key: "c.from_minute", min: 0, max: 59},
		{name: "toHour", key: "c.to_hour", min: 0, max: 23},
		{name: "toMinute", key: "c.to_minute", min: 0, max: 59},
	}}
}
