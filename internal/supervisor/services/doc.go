// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

/*
Package services provides suture.Service wrappers for Foreman components.

Each wrapper translates a component's lifecycle (Start/Stop, Serve on a
listener) into suture's context-aware pattern:

	type Service interface {
	    Serve(ctx context.Context) error
	}

# Available Services

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Bind reserves the listen address before the tree starts
  - Configurable shutdown timeout for draining connections

Compactor (CompactorService):
  - Wraps queue.Compactor, the periodic retention pass
  - Start on Serve, Stop on context cancellation

The coordination loop implements suture.Service itself and needs no wrapper.

# Usage Example

	httpSvc := services.NewHTTPServerService(server, cfg.APIAddr(), 10*time.Second)
	if _, err := httpSvc.Bind(); err != nil {
	    return err
	}
	tree.AddAPIService(httpSvc)
	tree.AddDataService(services.NewCompactorService(queue.NewCompactor(store)))
*/
package services
