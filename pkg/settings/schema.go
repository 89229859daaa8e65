// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"fmt"

	"github.com/cruxdb/settingsd/pkg/store"
)

// Version is a cluster compatibility version. Fields become active only
// once the whole cluster has advanced to the version that introduces
// them. Versions are totally ordered and only ever move forward.
type Version int

const (
	// Version60 is the minimum version this build supports. New nodes
	// seed their document at this version so they can join a cluster
	// still running the oldest supported release.
	Version60 Version = 60
	Version65 Version = 65
	Version70 Version = 70

	MinSupportedVersion = Version60
	LatestVersion       = Version70
)

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", int(v)/10, int(v)%10)
}

// ParseVersion parses the string form produced by Version.String.
func ParseVersion(s string) (Version, error) {
	var major, minor int
	if _, err := fmt.Sscanf(s, "%d.%d", &major, &minor); err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", s, err)
	}
	v := Version(major*10 + minor)
	for _, known := range Versions() {
		if v == known {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unsupported version %q", s)
}

// FieldDef binds one external field name to its lens and the default
// value seeded when the field first becomes active.
type FieldDef struct {
	Name    string
	Lens    Lens
	Default interface{}
}

// schemaBlock lists the fields introduced at one compatibility version.
type schemaBlock struct {
	since  Version
	fields []FieldDef
}

// schemaTable is the ordered, version-gated schema registry. Blocks are
// sorted by version; fields are only ever added as versions advance,
// never removed.
var schemaTable = []schemaBlock{
	{
		since: Version60,
		fields: []FieldDef{
			{
				Name:    "memoryQuota",
				Lens:    intLens{field: "memoryQuota", key: "indexer.settings.memory_quota", min: 256, max: 1 << 20, scale: 1 << 20},
				Default: int64(512),
			},
			{
				Name:    "indexerThreads",
				Lens:    intLens{field: "indexerThreads", key: "indexer.settings.max_cpu_percent", min: 0, max: 1024},
				Default: int64(0),
			},
			{
				Name:    "maxRollbackPoints",
				Lens:    intLens{field: "maxRollbackPoints", key: "indexer.settings.recovery.max_rollbacks", min: 1, max: 5000},
				Default: int64(2),
			},
			{
				Name:    "logLevel",
				Lens:    enumLens{field: "logLevel", key: "indexer.settings.log_level", allowed: []string{"silent", "fatal", "error", "warn", "info", "verbose", "timing", "debug", "trace"}},
				Default: "info",
			},
			{
				Name:    "storageMode",
				Lens:    enumLens{field: "storageMode", key: "indexer.settings.storage_mode", allowed: []string{"", "forestdb", "memory_optimized", "plasma"}},
				Default: "",
			},
			{
				Name:    "compactionMode",
				Lens:    enumLens{field: "compactionMode", key: "indexer.settings.compaction.compaction_mode", allowed: []string{"circular", "full"}},
				Default: "circular",
			},
			{
				Name: "compactionWindow",
				Lens: compositeLens{field: "compactionWindow", parts: []intPart{
					{name: "fromHour", key: "indexer.settings.compaction.interval.from_hour", min: 0, max: 23},
					{name: "fromMinute", key: "indexer.settings.compaction.interval.from_minute", min: 0, max: 59},
					{name: "toHour", key: "indexer.settings.compaction.interval.to_hour", min: 0, max: 23},
					{name: "toMinute", key: "indexer.settings.compaction.interval.to_minute", min: 0, max: 59},
				}},
				Default: map[string]interface{}{
					"fromHour":   int64(0),
					"fromMinute": int64(0),
					"toHour":     int64(0),
					"toMinute":   int64(0),
				},
			},
			{
				Name:    "compactionMinFrag",
				Lens:    intLens{field: "compactionMinFrag", key: "indexer.settings.compaction.min_frag", min: 0, max: 100},
				Default: int64(30),
			},
		},
	},
	{
		since: Version65,
		fields: []FieldDef{
			{
				Name:    "numReplica",
				Lens:    intLens{field: "numReplica", key: "indexer.settings.num_replica", min: 0, max: 10},
				Default: int64(0),
			},
			{
				Name:    "redistributeIndexes",
				Lens:    boolLens{field: "redistributeIndexes", key: "indexer.settings.rebalance.redistribute_indexes"},
				Default: false,
			},
			{
				Name:    "stealthDebug",
				Lens:    boolLens{field: "stealthDebug", key: "indexer.settings.stealth_debug"},
				Default: false,
			},
		},
	},
	{
		since: Version70,
		fields: []FieldDef{
			{
				Name:    "enablePageBloomFilter",
				Lens:    boolLens{field: "enablePageBloomFilter", key: "indexer.settings.enable_page_bloom_filter"},
				Default: false,
			},
			{
				Name:    "memHighThreshold",
				Lens:    intLens{field: "memHighThreshold", key: "indexer.settings.thresholds.mem_high", min: 0, max: 100},
				Default: int64(70),
			},
			{
				Name:    "memLowThreshold",
				Lens:    intLens{field: "memLowThreshold", key: "indexer.settings.thresholds.mem_low", min: 0, max: 100},
				Default: int64(50),
			},
		},
	},
}

// Versions returns the supported compatibility versions in ascending
// order.
func Versions() []Version {
	vs := make([]Version, len(schemaTable))
	for i, block := range schemaTable {
		vs[i] = block.since
	}
	return vs
}

// NextVersion returns the version immediately after v, if any.
func NextVersion(v Version) (Version, bool) {
	for i, block := range schemaTable {
		if block.since == v && i+1 < len(schemaTable) {
			return schemaTable[i+1].since, true
		}
	}
	return 0, false
}

// KnownSettings returns the ordered field definitions active at version
// v. A pure function of v: later versions extend earlier ones.
func KnownSettings(v Version) []FieldDef {
	var defs []FieldDef
	for _, block := range schemaTable {
		if block.since > v {
			break
		}
		defs = append(defs, block.fields...)
	}
	return defs
}

// Defaults returns the default external document at version v. Its key
// set is identical to KnownSettings(v) by construction; CheckSchema
// asserts the invariants that cannot hold by construction.
func Defaults(v Version) map[string]interface{} {
	defs := KnownSettings(v)
	out := make(map[string]interface{}, len(defs))
	for _, def := range defs {
		out[def.Name] = def.Default
	}
	return out
}

// lookupField resolves a field name at version v.
func lookupField(v Version, name string) (FieldDef, bool) {
	for _, def := range KnownSettings(v) {
		if def.Name == name {
			return def, true
		}
	}
	return FieldDef{}, false
}

// CheckSchema validates the schema table: versions strictly ascending,
// field names unique, and every default accepted by its lens and
// recovered exactly after an encode/decode round trip. Violations are
// programming errors; NewManager refuses to start on them.
func CheckSchema() error {
	seen := map[string]Version{}
	prev := Version(0)
	for _, block := range schemaTable {
		if block.since <= prev {
			return &SchemaError{Version: block.since, Message: "versions not strictly ascending"}
		}
		prev = block.since

		for _, def := range block.fields {
			if def.Name == "" || def.Lens == nil {
				return &SchemaError{Version: block.since, Message: fmt.Sprintf("incomplete field definition %q", def.Name)}
			}
			if at, dup := seen[def.Name]; dup {
				return &SchemaError{Version: block.since, Message: fmt.Sprintf("field %s already defined at %s", def.Name, at)}
			}
			seen[def.Name] = block.since

			empty := store.NewRawSnapshot(0, nil)
			mut, err := def.Lens.Encode(def.Default, empty)
			if err != nil {
				return &SchemaError{Version: block.since, Message: fmt.Sprintf("default for %s rejected: %v", def.Name, err)}
			}
			got, err := def.Lens.Decode(empty.Apply(mut))
			if err != nil {
				return &SchemaError{Version: block.since, Message: fmt.Sprintf("default for %s does not decode: %v", def.Name, err)}
			}
			if !equalValue(got, def.Default) {
				return &SchemaError{Version: block.since, Message: fmt.Sprintf("default for %s does not round-trip: %v != %v", def.Name, got, def.Default)}
			}
		}
	}
	return nil
}
