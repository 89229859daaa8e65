// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/cruxdb/settingsd/pkg/store"
)

// The lens round-trip law: for every value a lens's validation
// accepts, decoding the applied encode yields the value back, against
// any base snapshot.

func TestProperty_IntLensRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	lens := intLens{field: "memoryQuota", key: "indexer.settings.memory_quota", min: 256, max: 1 << 20, scale: 1 << 20}

	properties.Property("scaled int decodes to the encoded value", prop.ForAll(
		func(v int64, noise string) bool {
			base := store.NewRawSnapshot(0, map[string]string{"unrelated.key": noise})
			mut, err := lens.Encode(v, base)
			if err != nil {
				return false
			}
			// Lenses only touch the keys they own.
			if _, owns := mut["unrelated.key"]; owns {
				return false
			}
			got, err := lens.Decode(base.Apply(mut))
			return err == nil && got == v
		},
		gen.Int64Range(256, 1<<20),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestProperty_CompositeLensRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	lens := testWindowLens()

	properties.Property("composite window decodes to the encoded object", prop.ForAll(
		func(fh, fm, th, tm int64) bool {
			obj := map[string]interface{}{
				"fromHour": fh, "fromMinute": fm,
				"toHour": th, "toMinute": tm,
			}
			mut, err := lens.Encode(obj, emptySnap())
			if err != nil {
				return false
			}
			got, err := lens.Decode(emptySnap().Apply(mut))
			return err == nil && equalValue(got, obj)
		},
		gen.Int64Range(0, 23),
		gen.Int64Range(0, 59),
		gen.Int64Range(0, 23),
		gen.Int64Range(0, 59),
	))

	properties.TestingRun(t)
}

func TestProperty_EnumLensRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	lens := enumLens{field: "logLevel", key: "k", allowed: []string{"silent", "error", "info", "debug"}}

	properties.Property("enum decodes to the encoded value", prop.ForAll(
		func(v string) bool {
			mut, err := lens.Encode(v, emptySnap())
			if err != nil {
				return false
			}
			got, err := lens.Decode(emptySnap().Apply(mut))
			return err == nil && got == v
		},
		gen.OneConstOf("silent", "error", "info", "debug"),
	))

	properties.TestingRun(t)
}

func TestProperty_SchemaDefaultsRoundTrip(t *testing.T) {
	// Every field of every supported version round-trips its default,
	// which is the invariant CheckSchema enforces at startup.
	for _, v := range Versions() {
		for _, fd := range KnownSettings(v) {
			mut, err := fd.Lens.Encode(fd.Default, emptySnap())
			if err != nil {
				t.Errorf("%s at %s: default rejected: %v", fd.Name, v, err)
				continue
			}
			got, err := fd.Lens.Decode(emptySnap().Apply(mut))
			if err != nil {
				t.Errorf("%s at %s: default does not decode: %v", fd.Name, v, err)
				continue
			}
			if !equalValue(got, fd.Default) {
				t.Errorf("%s at %s: round trip mismatch: %v != %v", fd.Name, v, got, fd.Default)
			}
		}
	}
}
