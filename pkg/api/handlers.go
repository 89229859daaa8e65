// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cruxdb/settingsd/pkg/settings"
	"github.com/cruxdb/settingsd/pkg/store"
	"github.com/cruxdb/settingsd/pkg/version"
)

// Handlers contains all API endpoint handlers.
type Handlers struct {
	manager       SettingsManager
	storeReader   StoreReader
	clusterStatus ClusterStatus
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(m SettingsManager, sr StoreReader) *Handlers {
	return &Handlers{
		manager:     m,
		storeReader: sr,
	}
}

// SetClusterStatus wires in cluster membership info for /status.
// Optional; single-node deployments leave it unset.
func (h *Handlers) SetClusterStatus(cs ClusterStatus) {
	h.clusterStatus = cs
}

// HandleSettings handles GET and POST /api/v1/settings.
func (h *Handlers) HandleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getSettings(w, r)
	case http.MethodPost:
		h.postSettings(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handlers) getSettings(w http.ResponseWriter, r *http.Request) {
	doc, err := h.manager.GetAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, SettingsResponse{
		Settings:    doc,
		Version:     h.manager.CurrentVersion().String(),
		GeneratedAt: time.Now().UTC(),
	})
}

func (h *Handlers) postSettings(w http.ResponseWriter, r *http.Request) {
	var fields map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(fields) == 0 {
		writeError(w, http.StatusBadRequest, "empty update")
		return
	}

	if err := h.manager.Update(r.Context(), fields); err != nil {
		var verrs settings.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, ValidationFailureResponse{
				Errors: verrs.Fields(),
				Code:   http.StatusBadRequest,
			})
			return
		}
		var serr *settings.SchemaError
		if errors.As(err, &serr) {
			writeError(w, http.StatusBadRequest, serr.Error())
			return
		}
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "concurrent update conflict, retry")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.getSettings(w, r)
}

// HandleField handles GET /api/v1/settings/{field}.
func (h *Handlers) HandleField(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	field := strings.TrimPrefix(r.URL.Path, "/api/v1/settings/")
	if field == "" || strings.Contains(field, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	defaults := settings.Defaults(h.manager.CurrentVersion())
	def, known := defaults[field]
	if !known {
		writeError(w, http.StatusNotFound, "unknown setting: "+field)
		return
	}

	value, err := h.manager.Get(r.Context(), field, def)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, FieldResponse{Field: field, Value: value})
}

// HandleHistory handles GET /api/v1/history.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := h.storeReader.History(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	changes := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		changes = append(changes, HistoryEntry{
			Revision: rec.Rev,
			Time:     rec.Time,
			Keys:     rec.Keys,
		})
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		Changes:     changes,
		GeneratedAt: time.Now().UTC(),
	})
}

// HandleStatus handles GET /api/v1/status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap, err := h.storeReader.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := StatusResponse{
		ServerVersion: version.GetVersion(),
		CompatVersion: h.manager.CurrentVersion().String(),
		LatestVersion: settings.LatestVersion.String(),
		Revision:      snap.Rev(),
		GeneratedAt:   time.Now().UTC(),
	}
	if h.clusterStatus != nil {
		resp.ClusterMembers = h.clusterStatus.Members()
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if _, err := h.storeReader.Snapshot(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Healthy: false})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Healthy: true})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Can't do much here, response already started
		return
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  status,
	})
}
