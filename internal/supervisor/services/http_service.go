// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// HTTPServer matches the *http.Server lifecycle methods used here.
type HTTPServer interface {
	Serve(l net.Listener) error
	Shutdown(ctx context.Context) error
}

// HTTPServerService wraps an HTTP server as a supervised service.
//
// Serve translates http.Server's blocking Serve into suture's pattern:
//
//  1. Takes the listener reserved by Bind, or listens on addr
//  2. Serves in a goroutine until ctx is canceled or the server fails
//  3. On cancellation, calls Shutdown bounded by the shutdown timeout
//
// Example usage:
//
//	server := &http.Server{Handler: router}
//	svc := services.NewHTTPServerService(server, "127.0.0.1:7478", 10*time.Second)
//	tree.AddAPIService(svc)
type HTTPServerService struct {
	server          HTTPServer
	addr            string
	shutdownTimeout time.Duration
	name            string

	mu       sync.Mutex
	listener net.Listener
}

// NewHTTPServerService creates a new HTTP server service wrapper.
func NewHTTPServerService(server HTTPServer, addr string, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{
		server:          server,
		addr:            addr,
		shutdownTimeout: shutdownTimeout,
		name:            "http-server",
	}
}

// Bind reserves the listen address now so that a port conflict fails
// startup instead of looping through supervisor restarts.
func (h *HTTPServerService) Bind() (net.Addr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener != nil {
		return h.listener.Addr(), nil
	}
	l, err := net.Listen("tcp", h.addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", h.addr, err)
	}
	h.listener = l
	return l.Addr(), nil
}

// takeListener hands out the reserved listener once; restarts listen anew.
func (h *HTTPServerService) takeListener() (net.Listener, error) {
	h.mu.Lock()
	l := h.listener
	h.listener = nil
	h.mu.Unlock()
	if l != nil {
		return l, nil
	}
	l, err := net.Listen("tcp", h.addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", h.addr, err)
	}
	return l, nil
}

// Serve implements suture.Service.
//
// Returns ctx.Err() after a graceful shutdown, or an error if the server
// fails. http.ErrServerClosed is expected on shutdown and is not an error.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	l, err := h.takeListener()
	if err != nil {
		return fmt.Errorf("http server failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := h.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// The original context is canceled; shutdown gets its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}

		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer for suture's log messages.
func (h *HTTPServerService) String() string {
	return h.name
}
