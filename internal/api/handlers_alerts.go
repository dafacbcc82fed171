// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/foreman/internal/logging"
)

// Alerts returns the most recent alerts, newest first.
//
// Query parameters:
//   - limit: number of alerts (default 50, 0 for the whole ring)
func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit := getIntParam(r, "limit", defaultAlertLimit)
	if limit < 0 {
		limit = 0
	}
	respondData(w, http.StatusOK, h.alerts.Recent(limit), start)
}

// AlertStream writes every alert emitted after the request arrives as one
// JSON object per line until the client disconnects.
func (h *Handler) AlertStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, CodeNotSupported, "Streaming not supported", nil)
		return
	}

	ch, err := h.alerts.Subscribe(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, CodeStoreUnavailable, "Alert bus unavailable", err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := logging.Ctx(r.Context())
	logger.Debug().Msg("Alert stream opened")

	for {
		select {
		case <-r.Context().Done():
			logger.Debug().Msg("Alert stream closed by client")
			return
		case alert, ok := <-ch:
			if !ok {
				return
			}
			line, err := json.Marshal(alert)
			if err != nil {
				logger.Error().Err(err).Str("alert_id", alert.ID).Msg("Failed to encode alert")
				continue
			}
			line = append(line, '\n')
			if _, err := w.Write(line); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
