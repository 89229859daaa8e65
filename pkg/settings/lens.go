// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"fmt"
	"math"
	"strconv"

	"github.com/cruxdb/settingsd/pkg/store"
)

// Lens is a bidirectional transform between one external settings field
// and the raw store keys that hold it. Decode is a pure function of the
// keys the lens owns; Encode validates the external value and returns
// the raw mutation for it without touching any other key. For every
// value Encode accepts, decoding the applied mutation yields that value
// back.
type Lens interface {
	// Decode reads the field's value from a raw snapshot. Fails with
	// *DecodeError if an owned key is absent or malformed.
	Decode(snap *store.RawSnapshot) (interface{}, error)

	// Encode validates v and returns the raw keys to write for it.
	// Fails with *ValidationError; never returns a partial mutation.
	Encode(v interface{}, snap *store.RawSnapshot) (store.Mutation, error)
}

// intLens maps an integer field onto a single raw key, optionally
// scaled: raw value = external value * scale (e.g. MiB stored as
// bytes).
type intLens struct {
	field string
	key   string
	min   int64
	max   int64
	scale int64
}

func (l intLens) factor() int64 {
	if l.scale > 1 {
		return l.scale
	}
	return 1
}

func (l intLens) Decode(snap *store.RawSnapshot) (interface{}, error) {
	raw, ok := snap.Get(l.key)
	if !ok {
		return nil, &DecodeError{Field: l.field, Key: l.key, Missing: true}
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, &DecodeError{Field: l.field, Key: l.key, Err: err}
	}
	return n / l.factor(), nil
}

func (l intLens) Encode(v interface{}, snap *store.RawSnapshot) (store.Mutation, error) {
	n, ok := coerceInt(v)
	if !ok {
		return nil, &ValidationError{Field: l.field, Value: v, Message: "must be an integer"}
	}
	if n < l.min || n > l.max {
		return nil, &ValidationError{
			Field:   l.field,
			Value:   v,
			Message: fmt.Sprintf("must be between %d and %d", l.min, l.max),
		}
	}
	return store.Mutation{l.key: strconv.FormatInt(n*l.factor(), 10)}, nil
}

// boolLens maps a boolean field onto a single raw key.
type boolLens struct {
	field string
	key   string
}

func (l boolLens) Decode(snap *store.RawSnapshot) (interface{}, error) {
	raw, ok := snap.Get(l.key)
	if !ok {
		return nil, &DecodeError{Field: l.field, Key: l.key, Missing: true}
	}
	switch raw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return nil, &DecodeError{Field: l.field, Key: l.key, Err: fmt.Errorf("not a boolean: %q", raw)}
}

func (l boolLens) Encode(v interface{}, snap *store.RawSnapshot) (store.Mutation, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, &ValidationError{Field: l.field, Value: v, Message: "must be a boolean"}
	}
	return store.Mutation{l.key: strconv.FormatBool(b)}, nil
}

// enumLens maps a string field with a closed set of allowed values onto
// a single raw key.
type enumLens struct {
	field   string
	key     string
	allowed []string
}

func (l enumLens) Decode(snap *store.RawSnapshot) (interface{}, error) {
	raw, ok := snap.Get(l.key)
	if !ok {
		return nil, &DecodeError{Field: l.field, Key: l.key, Missing: true}
	}
	if !l.member(raw) {
		return nil, &DecodeError{Field: l.field, Key: l.key, Err: fmt.Errorf("not one of %v: %q", l.allowed, raw)}
	}
	return raw, nil
}

func (l enumLens) Encode(v interface{}, snap *store.RawSnapshot) (store.Mutation, error) {
	s, ok := v.(string)
	if !ok || !l.member(s) {
		return nil, &ValidationError{
			Field:   l.field,
			Value:   v,
			Message: fmt.Sprintf("must be one of %v", l.allowed),
		}
	}
	return store.Mutation{l.key: s}, nil
}

func (l enumLens) member(s string) bool {
	for _, a := range l.allowed {
		if a == s {
			return true
		}
	}
	return false
}

// intPart is one named integer constituent of a composite field.
type intPart struct {
	name string
	key  string
	min  int64
	max  int64
}

// compositeLens maps one structured field onto several raw keys, all
// decoded and encoded together. Encode accepts a partial object: parts
// not supplied keep their current stored value.
type compositeLens struct {
	field string
	parts []intPart
}

func (l compositeLens) Decode(snap *store.RawSnapshot) (interface{}, error) {
	obj := make(map[string]interface{}, len(l.parts))
	for _, p := range l.parts {
		raw, ok := snap.Get(p.key)
		if !ok {
			return nil, &DecodeError{Field: l.field, Key: p.key, Missing: true}
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &DecodeError{Field: l.field, Key: p.key, Err: err}
		}
		obj[p.name] = n
	}
	return obj, nil
}

func (l compositeLens) Encode(v interface{}, snap *store.RawSnapshot) (store.Mutation, error) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, &ValidationError{Field: l.field, Value: v, Message: "must be an object"}
	}
	for name := range obj {
		if !l.part(name) {
			return nil, &ValidationError{
				Field:   l.field + "." + name,
				Value:   obj[name],
				Message: "unknown subfield",
			}
		}
	}

	mut := store.Mutation{}
	for _, p := range l.parts {
		pv, supplied := obj[p.name]
		if !supplied {
			// Keep the current value; the field must already be fully
			// present for a partial encode.
			cur, ok := snap.Get(p.key)
			if !ok {
				return nil, &ValidationError{
					Field:   l.field + "." + p.name,
					Value:   nil,
					Message: "required",
				}
			}
			mut[p.key] = cur
			continue
		}
		n, ok := coerceInt(pv)
		if !ok {
			return nil, &ValidationError{
				Field:   l.field + "." + p.name,
				Value:   pv,
				Message: "must be an integer",
			}
		}
		if n < p.min || n > p.max {
			return nil, &ValidationError{
				Field:   l.field + "." + p.name,
				Value:   pv,
				Message: fmt.Sprintf("must be between %d and %d", p.min, p.max),
			}
		}
		mut[p.key] = strconv.FormatInt(n, 10)
	}
	return mut, nil
}

func (l compositeLens) part(name string) bool {
	for _, p := range l.parts {
		if p.name == name {
			return true
		}
	}
	return false
}

// coerceInt accepts the integer representations seen from Go callers
// and JSON decoding.
func coerceInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}
