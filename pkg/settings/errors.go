// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"fmt"
	"strings"
)

// ValidationError rejects bad external input for one field. The whole
// update it belongs to is refused before any raw key is written.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects per-field validation failures from one
// update so callers can render them all at once.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return strings.Join(msgs, "; ")
}

// Fields returns a field → message map, for API error bodies.
func (e ValidationErrors) Fields() map[string]string {
	m := make(map[string]string, len(e))
	for _, ve := range e {
		m[ve.Field] = ve.Message
	}
	return m
}

// DecodeError reports a raw store inconsistent with the active schema:
// a key the schema expects is absent or unparseable. Outside the
// tolerant single-field Get it indicates a missed or corrupted upgrade
// and is surfaced, never silently defaulted.
type DecodeError struct {
	Field   string
	Key     string
	Missing bool
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Missing {
		return fmt.Sprintf("decode failed for %s: raw key %q absent", e.Field, e.Key)
	}
	return fmt.Sprintf("decode failed for %s: raw key %q: %v", e.Field, e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// SchemaError reports a schema table invariant violation. It is a
// programming error: fatal at startup, never produced at runtime.
type SchemaError struct {
	Version Version
	Message string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema invariant violated at version %s: %s", e.Version, e.Message)
}
