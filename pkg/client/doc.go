/*
Package client starts, signals, and inspects durable orchestrations.

The client is the write side of the control plane's durable-execution
layer: it appends the seed events that make a new orchestration exist,
raises external events against running ones, and reads instance status
and history back out of the store. It shares the history.Store with the
runtime but never executes workflow code itself.

# Architecture

	┌───────────┐   StartOrchestration    ┌──────────────────┐
	│  Client   │ ──────────────────────▶ │  history.Store   │
	│           │   RaiseEvent            │  (BoltDB)        │
	│           │ ──────────────────────▶ │                  │
	└─────┬─────┘                         └────────┬─────────┘
	      │ WaitForOrchestration                   │ work queues
	      │ (notifier wake or poll)                ▼
	      │                                ┌──────────────────┐
	      └──────────────────────────────▶ │  runtime workers │
	                                       └──────────────────┘

Starting an orchestration writes an OrchestrationStarted seed and
enqueues the instance; a runtime (in the same process or another one
sharing the store) picks it up from there. Nothing here blocks on the
workflow actually running.

# Usage

Start and wait:

	cl := client.New(store, client.WithNotifier(rt.Notifier()))

	err := cl.StartOrchestration("create-mydb-a1b2c3d4", orchestrations.CreateInstance, input)
	if errors.Is(err, history.ErrInstanceExists) {
		// duplicate start, the first one wins
	}

	info, err := cl.WaitForOrchestration(ctx, "create-mydb-a1b2c3d4")

Signal a running actor:

	err := cl.RaiseEvent("actor-mydb-a1b2c3d4", types.InstanceDeletedEvent, nil)

Inspect history:

	execs, _ := cl.ListExecutions("actor-mydb-a1b2c3d4")
	events, _ := cl.ReadExecutionHistory("actor-mydb-a1b2c3d4", execs[len(execs)-1])

# Waiting

WaitForOrchestration returns when the orchestration reaches Completed or
Failed. With WithNotifier the wait wakes on the runtime's completion
signal and starts and raises wake an idle decider directly; without one
everything falls back to polling at WithPollInterval (default 250ms).
Context cancellation always wins.

# Input Encoding

Inputs and event payloads accept any JSON-marshalable value. A
json.RawMessage passes through verbatim, which the HTTP API uses to
forward request bodies without re-encoding.

# See Also

  - pkg/runtime for the executor that consumes started orchestrations
  - pkg/history for the store and event model
  - pkg/api for the HTTP surface built on this client
*/
package client
