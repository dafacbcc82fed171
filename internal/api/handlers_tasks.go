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
)

// EnqueueTask creates a Queued task and returns its id.
func (h *Handler) EnqueueTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.EnqueueRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id, err := h.store.Enqueue(r.Context(), &req)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	logging.Ctx(r.Context()).Debug().
		Str("task_id", id).
		Str("sender", sanitizeLogValue(req.Sender)).
		Str("recipient", sanitizeLogValue(req.Recipient)).
		Msg("Task enqueued via API")

	respondData(w, http.StatusCreated, models.EnqueueResponse{TaskID: id}, start)
}

// GetTask returns one task by id.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id := chi.URLParam(r, "id")
	task, err := h.store.Get(r.Context(), id)
	if err != nil {
		respondTaskError(w, r, id, err)
		return
	}
	respondData(w, http.StatusOK, task, start)
}

// StartTask claims a specific Queued task (Queued -> Running).
func (h *Handler) StartTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.StartRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	task, err := h.store.MarkStarted(r.Context(), id, req.Owner)
	if err != nil {
		respondTaskError(w, r, id, err)
		return
	}
	respondData(w, http.StatusOK, task, start)
}

// CompleteTask records a successful outcome (Running -> Completed).
func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.CompleteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	task, err := h.store.MarkCompleted(r.Context(), id, req.DurationMillis)
	if err != nil {
		respondTaskError(w, r, id, err)
		return
	}
	respondData(w, http.StatusOK, task, start)
}

// FailTask records a worker-reported failure (Running -> Failed).
func (h *Handler) FailTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.FailRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	task, err := h.store.MarkFailed(r.Context(), id, req.ErrorMessage)
	if err != nil {
		respondTaskError(w, r, id, err)
		return
	}
	respondData(w, http.StatusOK, task, start)
}
