// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw  string
		want interface{}
	}{
		{"1024", float64(1024)},
		{"30.5", float64(30.5)},
		{"true", true},
		{"false", false},
		{"info", "info"},
		{"00:00", "00:00"},
		{"", ""},
		{`"quoted"`, `"quoted"`}, // JSON strings stay raw, quotes included
	}

	for _, tt := range tests {
		if got := parseValue(tt.raw); got != tt.want {
			t.Errorf("parseValue(%q) = %v (%T), want %v (%T)",
				tt.raw, got, got, tt.want, tt.want)
		}
	}
}

func TestAPIClient_Get(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"server_version":"0.1.0-dev","compat_version":"7.0","latest_version":"7.0","revision":4}`))
	}))
	defer ts.Close()

	client := &APIClient{BaseURL: ts.URL, HTTPClient: ts.Client()}

	var status StatusResponse
	if err := client.Get("/api/v1/status", &status); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if status.CompatVersion != "7.0" || status.Revision != 4 {
		t.Errorf("unexpected response: %+v", status)
	}
}

func TestAPIClient_ValidationErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":{"memoryQuota":"above maximum"},"code":400}`))
	}))
	defer ts.Close()

	client := &APIClient{BaseURL: ts.URL, HTTPClient: ts.Client()}

	err := client.Post("/api/v1/settings", map[string]interface{}{"memoryQuota": 1 << 40}, nil)
	if err == nil {
		t.Fatal("expected error for rejected update")
	}
	if got := err.Error(); got != "update rejected: memoryQuota: above maximum" {
		t.Errorf("unexpected error message: %q", got)
	}
}

func TestAPIClient_PlainErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"concurrent update conflict, retry","code":409}`))
	}))
	defer ts.Close()

	client := &APIClient{BaseURL: ts.URL, HTTPClient: ts.Client()}

	var resp SettingsResponse
	err := client.Post("/api/v1/settings", map[string]interface{}{"logLevel": "debug"}, &resp)
	if err == nil {
		t.Fatal("expected error for conflict response")
	}
	if got := err.Error(); got != "API error (409): concurrent update conflict, retry" {
		t.Errorf("unexpected error message: %q", got)
	}
}
