/*
Package server assembles and runs the Paddock control plane process.

The server package is the composition root: it opens the catalog and the
orchestration store, builds the workflow runtime with its activities,
and serves the HTTP API. It also manages the background daemon process
through a PID file, so the CLI can start, stop, and inspect a server
without a process supervisor.

# Architecture

One server process hosts every control-plane component:

	┌─────────────────────── SERVER PROCESS ──────────────────────┐
	│                                                              │
	│  ┌──────────────────────────────────────────────┐            │
	│  │          HTTP API Server (pkg/api)           │            │
	│  │  - instance and orchestration endpoints      │            │
	│  │  - health and Prometheus metrics             │            │
	│  └──────────────────┬───────────────────────────┘            │
	│                     │                                        │
	│  ┌──────────────────▼───────────────────────────┐            │
	│  │        Orchestration Client (pkg/client)     │            │
	│  │  - starts workflows, raises events            │           │
	│  └──────────────────┬───────────────────────────┘            │
	│                     │                                        │
	│  ┌──────────────────▼───────────────────────────┐            │
	│  │        Workflow Runtime (pkg/runtime)        │            │
	│  │  - replays histories, schedules activities   │            │
	│  │  - activity workers call Kubernetes and CMS  │            │
	│  └──────────────────┬───────────────────────────┘            │
	│                     │                                        │
	│  ┌─────────▼─────────┐  ┌──────────▼───────────┐             │
	│  │ BoltDB history    │  │ Postgres catalog     │             │
	│  │ (pkg/history)     │  │ (pkg/cms)            │             │
	│  └───────────────────┘  └──────────────────────┘             │
	└──────────────────────────────────────────────────────────────┘

# Startup Order

New wires components in dependency order:

 1. Open the Postgres catalog and verify its schema, failing fast with
    a pointer at paddock-migrate when tables are missing.
 2. Open the BoltDB history store under the data directory.
 3. Build the Kubernetes client (in-cluster config, then kubeconfig).
 4. Register workflows and construct the runtime.
 5. Build the orchestration client on the runtime's notifier so event
    waits wake immediately instead of polling.
 6. Register activity handlers and construct the API server.

Run starts the runtime and metrics collector, serves HTTP until the
context is cancelled, then tears everything down in reverse order.

# Daemon Lifecycle

Daemon manages a detached server through server.pid and server.log in
the data directory:

	d := server.NewDaemon(cfg.Runtime.DataDir)

	pid, err := d.Start("--config", path) // re-execs `paddock server run`
	st := d.Status("http://localhost:8080/health")
	err = d.Stop(30 * time.Second)        // SIGTERM, then SIGKILL

Start re-executes the current binary in a new session with output
appended to the log file, then confirms the process survived startup.
Stop escalates to SIGKILL when the daemon ignores SIGTERM past the
timeout.

# Usage

Running in the foreground:

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal(err)
	}

	srv, err := server.New(cfg, version)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Fatal(err)
	}

# See Also

  - pkg/api for the HTTP surface
  - pkg/runtime for workflow execution
  - pkg/cms for the instance catalog
  - pkg/config for the configuration file format
*/
package server
