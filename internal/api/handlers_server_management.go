// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/foreman/internal/logging"
	"github.com/tomtom215/foreman/internal/models"
)

// Shutdown asks the supervisor to stop. The response is written before the
// hook runs, since the hook tears down this server.
func (h *Handler) Shutdown(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if h.shutdown == nil {
		respondError(w, http.StatusServiceUnavailable, CodeNotSupported, ErrShutdownUnavailable.Error(), nil)
		return
	}

	var req models.ShutdownRequest
	if !decodeBody(w, r, &req) {
		return
	}

	logging.Ctx(r.Context()).Info().Bool("force", req.Force).Msg("Shutdown requested via API")
	respondData(w, http.StatusAccepted, map[string]interface{}{"force": req.Force}, start)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	h.shutdown(req.Force)
}
