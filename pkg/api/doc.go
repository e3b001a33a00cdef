/*
Package api implements the Paddock HTTP control-plane API.

The api package is the interface external clients (the paddock CLI, dashboards,
and scripts) use to provision and inspect PostgreSQL instances. Every mutating
endpoint translates the request into a durable orchestration and returns
immediately with the orchestration id; the work itself survives server
restarts because it runs through the replay engine, not the HTTP handler.

# Architecture

The server sits between clients and the two stores:

	┌───────────────────────── CLIENT ─────────────────────────┐
	│                                                           │
	│   paddock CLI / curl / dashboard                          │
	│   Authorization: Bearer <token>                           │
	└──────────────────────────┬────────────────────────────────┘
	                           │ HTTP (default :8080)
	                           │
	┌──────────────────────────▼──── PADDOCK SERVER ────────────┐
	│                                                            │
	│  ┌──────────────────────────────────────────────┐         │
	│  │          HTTP API Server (pkg/api)           │         │
	│  │  - chi router, CORS, panic recovery          │         │
	│  │  - bearer-token middleware                   │         │
	│  │  - request validation (go-playground)        │         │
	│  │  - request logging + Prometheus metrics      │         │
	│  └───────────┬──────────────────────┬───────────┘         │
	│              │                      │                     │
	│  ┌───────────▼───────────┐  ┌───────▼────────────┐        │
	│  │  Orchestrator          │  │  Catalog           │        │
	│  │  (pkg/client over the  │  │  (pkg/cms over     │        │
	│  │   bbolt history store) │  │   PostgreSQL)      │        │
	│  └────────────────────────┘  └────────────────────┘        │
	└────────────────────────────────────────────────────────────┘

Reads are served from the catalog (the CMS database) because it reflects what
actually exists; orchestration state is exposed separately under /api/server
for operators debugging the runtime itself.

# Endpoints

Instance lifecycle:

  - POST /api/instances: validate, pick a unique Kubernetes name, start a
    create orchestration. Returns 202 with the orchestration id and the DNS
    name the instance will receive.
  - POST /api/instances/bulk: start 1-50 creates sharing one configuration.
  - GET /api/instances: list live instances without connection strings.
  - GET /api/instances/{name}: full record by k8s_name or user_name,
    including connection strings.
  - DELETE /api/instances/{name}: start a delete orchestration, 202.
  - DELETE /api/instances: bulk delete by names with per-name failures.

Orchestration diagnostics:

  - GET /api/server/orchestrations: first 50 instances with status.
  - GET /api/server/orchestrations/{id}: status, output, and the event
    history of each execution. ?history_limit=N returns only the last N
    executions; long-lived actors accumulate one execution per probe cycle.
  - POST /api/server/orchestrations/{id}/raise-event: deliver an external
    event, for example InstanceDeleted to drain an actor by hand.
  - GET /api/server/logs?lines=&filter=: tail of the daemon log file.

Unauthenticated:

  - GET /health: liveness with service name and version.
  - GET /ready: readiness gated on the store, runtime, and API components.
  - GET /metrics: Prometheus metrics.

# Errors

Non-2xx responses carry a {code, message} JSON envelope. Codes are
bad_request, unauthorized, not_found, conflict, and internal. A create that
requests a DNS name already held by a live instance fails fast with 409
before any orchestration starts; the create workflow re-checks the
reservation transactionally, so the preflight is a courtesy, not the guard.

# Authentication

When Config.AuthToken is set, every /api route requires

	Authorization: Bearer <token>

Health and metrics stay open so probes and scrapers need no credentials. An
empty token leaves the whole API open, which suits single-user development.

# Usage

	srv := api.NewServer(api.Config{
		Addr:      ":8080",
		AuthToken: cfg.Server.AuthToken,
		Namespace: cfg.Kubernetes.Namespace,
		LogPath:   filepath.Join(dataDir, "server.log"),
		Version:   version,
	}, orchestrationClient, catalogStore)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()
	...
	_ = srv.Shutdown(ctx)
*/
package api
