// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/foreman/internal/models"
)

// HealthLive handles liveness probe requests.
// Returns 200 OK whenever the control API is serving.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: map[string]interface{}{
			"alive":  true,
			"uptime": h.now().Sub(h.startTime).Seconds(),
		},
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
		},
	})
}

// Status reports liveness, uptime and resource usage per worker.
//
// Query parameters:
//   - agent: restrict the report to one agent (404 if unknown)
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	workers, err := h.workers.Snapshot(r.URL.Query().Get("agent"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondData(w, http.StatusOK, models.StatusReport{
		StartedAt:     h.startTime.UTC(),
		UptimeSeconds: h.now().Sub(h.startTime).Seconds(),
		Workers:       workers,
	}, start)
}
