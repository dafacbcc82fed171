// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/foreman/internal/logging"
	"github.com/tomtom215/foreman/internal/models"
	"github.com/tomtom215/foreman/internal/samples"
)

// Queue reports Queued task counts per agent and band.
//
// Query parameters:
//   - agent: report a single agent (zero counts when nothing is queued)
func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if agent := r.URL.Query().Get("agent"); agent != "" {
		depth, err := h.store.QueueDepthFor(r.Context(), agent)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondData(w, http.StatusOK, []models.QueueDepth{depth}, start)
		return
	}

	depths, err := h.store.QueueDepth(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusOK, depths, start)
}

// Bottlenecks reports the slowest completed tasks and duration percentiles.
//
// Query parameters:
//   - limit: number of slow tasks (default 10, max 100)
func (h *Handler) Bottlenecks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit := clampInt(getIntParam(r, "limit", defaultBottleneckLimit), 1, maxBottleneckLimit)

	slowest, err := h.store.Slowest(r.Context(), limit)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	pct, err := h.store.Percentiles(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondData(w, http.StatusOK, models.BottleneckReport{Slowest: slowest, Percentiles: pct}, start)
}

// AgentMetrics reports aggregate stats for one registered agent.
//
// Query parameters:
//   - hours: sample window (default 24)
func (h *Handler) AgentMetrics(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	agentID := chi.URLParam(r, "id")

	if _, err := h.workers.Snapshot(agentID); err != nil {
		respondStoreError(w, err)
		return
	}

	stats, err := h.store.AgentStat(r.Context(), agentID, time.Time{})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	depth, err := h.store.QueueDepthFor(r.Context(), agentID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	out := models.AgentMetrics{Stats: stats, Depth: depth}
	if h.samples != nil {
		window := defaultSampleWindow
		if hours := getIntParam(r, "hours", 0); hours > 0 {
			window = time.Duration(hours) * time.Hour
		}
		rows, err := h.samples.Query(r.Context(), samples.QueryFilter{
			AgentID: agentID,
			Since:   h.now().Add(-window),
			Limit:   maxSampleRows,
		})
		if err != nil {
			// Samples are supplementary; the task aggregates are still served.
			logging.Ctx(r.Context()).Warn().Err(err).Str("agent_id", agentID).Msg("Sample query failed")
		} else {
			out.Samples = rows
		}
	}

	respondData(w, http.StatusOK, out, start)
}

// Cleanup runs a retention pass on demand.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.CleanupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	days := req.OlderThanDays
	if days == 0 {
		days = h.retentionDays
	}

	removed, err := h.store.Cleanup(r.Context(), days)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	logging.Ctx(r.Context()).Info().Int("older_than_days", days).Int("removed", removed).Msg("Cleanup requested via API")
	respondData(w, http.StatusOK, models.CleanupResponse{Removed: removed}, start)
}
