/*
Package runtime executes orchestrations by replaying workflow code over
persisted history and running the activity tasks that replay produces.

The runtime owns two worker pools over the store's queues plus a
background sweeper that reclaims expired leases:

# Architecture

	┌────────────────────────────────────────────────────────┐
	│                        Runtime                         │
	│                                                        │
	│  decision loops (N)          activity workers (M)      │
	│  ┌──────────────────┐        ┌─────────────────────┐   │
	│  │ claim item       │        │ claim task          │   │
	│  │ load history     │        │ run ActivityFunc    │   │
	│  │ replay workflow  │        │ complete task       │   │
	│  │ commit decisions │        └──────────┬──────────┘   │
	│  └────────┬─────────┘                   │              │
	│           │                             │              │
	│       lease sweeper (returns expired claims)           │
	└───────────┼─────────────────────────────┼──────────────┘
	            ▼                             ▼
	   orchestrator queue             activity queue
	            └────────── history.Store ─────────┘

A decision round claims one orchestration item, loads the instance's
event history, applies any pending messages (activity completions,
external events, fired timers), replays the registered workflow
function, and commits the new events and derived work in a single store
transaction. Work derived from a round includes activity tasks, timer
messages and follow-up orchestration items, so progress is never lost
between the commit and the execution of its side effects.

Activity workers claim tasks, look up the handler in the
ActivityRegistry and invoke it with an ActivityContext carrying the
instance id, task id and a logger scoped to both. Handler results are
written back as completion messages, which re-enqueue the owning
orchestration for another decision round.

Every claim takes a lease. A worker that dies mid-task simply lets the
lease expire; the sweeper returns the item to its queue and another
worker picks it up. Replay makes the retry safe: completed activities
are fed from history, not re-executed.

# Usage

	workflows := workflow.NewRegistry()
	acts := runtime.NewActivityRegistry()
	orchestrations.Register(workflows, acts, deps)

	rt := runtime.New(store, workflows, acts, runtime.DefaultConfig())
	rt.Start()
	defer rt.Stop()

	cli := client.New(store, client.WithNotifier(rt.Notifier()))

Stop cancels the base context passed to activity handlers, drains the
worker pools and marks the runtime component unhealthy. The Notifier
lets clients block on instance completion instead of polling the store,
and carries the wake signals that pull idle workers off their poll
interval the moment new work is enqueued.

# See Also

  - pkg/workflow for the replay-side workflow API.
  - pkg/history for the store, queues and event model.
  - pkg/orchestrations for the registered workflow and activity set.
*/
package runtime
