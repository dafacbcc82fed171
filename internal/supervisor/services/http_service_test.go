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
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// mockHTTPServer is a test double for the HTTPServer interface.
type mockHTTPServer struct {
	serveErr    error
	shutdownErr error
	serveCount  atomic.Int32
	shutdownCnt atomic.Int32
	serveCalled chan net.Listener
	stopCh      chan struct{}
	stopOnce    atomic.Bool
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{
		serveCalled: make(chan net.Listener, 4),
		stopCh:      make(chan struct{}),
	}
}

func (m *mockHTTPServer) Serve(l net.Listener) error {
	m.serveCount.Add(1)
	m.serveCalled <- l
	if m.serveErr != nil {
		_ = l.Close()
		return m.serveErr
	}
	<-m.stopCh
	_ = l.Close()
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdownCnt.Add(1)
	if m.stopOnce.CompareAndSwap(false, true) {
		close(m.stopCh)
	}
	return m.shutdownErr
}

func TestHTTPServerService_Interface(t *testing.T) {
	var _ suture.Service = (*HTTPServerService)(nil)
	var _ HTTPServer = (*http.Server)(nil)
}

func TestNewHTTPServerService_DefaultTimeout(t *testing.T) {
	for _, timeout := range []time.Duration{0, -5 * time.Second} {
		svc := NewHTTPServerService(newMockHTTPServer(), "127.0.0.1:0", timeout)
		if svc.shutdownTimeout != 10*time.Second {
			t.Errorf("timeout %v: expected default 10s, got %v", timeout, svc.shutdownTimeout)
		}
	}
	if got := NewHTTPServerService(newMockHTTPServer(), "", time.Second).String(); got != "http-server" {
		t.Errorf("String() = %q", got)
	}
}

func TestHTTPServerService_Serve(t *testing.T) {
	t.Run("uses the bound listener and shuts down on cancel", func(t *testing.T) {
		server := newMockHTTPServer()
		svc := NewHTTPServerService(server, "127.0.0.1:0", time.Second)

		addr, err := svc.Bind()
		if err != nil {
			t.Fatalf("Bind: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()

		select {
		case l := <-server.serveCalled:
			if l.Addr().String() != addr.String() {
				t.Errorf("served on %s, bound %s", l.Addr(), addr)
			}
		case <-time.After(time.Second):
			t.Fatal("server did not start")
		}

		cancel()
		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return after cancellation")
		}
		if server.shutdownCnt.Load() != 1 {
			t.Errorf("expected 1 Shutdown call, got %d", server.shutdownCnt.Load())
		}
	})

	t.Run("returns server failure", func(t *testing.T) {
		server := newMockHTTPServer()
		server.serveErr = errors.New("boom")
		svc := NewHTTPServerService(server, "127.0.0.1:0", time.Second)

		err := svc.Serve(context.Background())
		if err == nil || !errors.Is(err, server.serveErr) {
			t.Errorf("expected wrapped boom, got %v", err)
		}
	})

	t.Run("returns shutdown failure", func(t *testing.T) {
		server := newMockHTTPServer()
		server.shutdownErr = errors.New("drain timeout")
		svc := NewHTTPServerService(server, "127.0.0.1:0", time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()
		<-server.serveCalled
		cancel()

		if err := <-errCh; err == nil || !errors.Is(err, server.shutdownErr) {
			t.Errorf("expected shutdown error, got %v", err)
		}
	})
}

func TestHTTPServerService_BindConflict(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer taken.Close()

	svc := NewHTTPServerService(newMockHTTPServer(), taken.Addr().String(), time.Second)
	if _, err := svc.Bind(); err == nil {
		t.Fatal("expected bind conflict")
	}
}

func TestHTTPServerService_RealServer(t *testing.T) {
	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
		ReadHeaderTimeout: time.Second,
	}
	svc := NewHTTPServerService(server, "127.0.0.1:0", time.Second)
	addr, err := svc.Bind()
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	resp, err := http.Get(fmt.Sprintf("http://%s/", addr))
	if err != nil {
		cancel()
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status %d", resp.StatusCode)
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
