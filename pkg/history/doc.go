/*
Package history is the durable heart of the orchestration engine: the
append-only event log, the work queues, and the leases that arbitrate
workers, all behind the Store interface and persisted in a single
BoltDB file.

# Data Model

Every orchestration is a WorkflowInstance identified by a caller-chosen
instance id. An instance owns one or more executions; ContinueAsNew
closes an execution and opens the next one, so long-lived actors keep a
bounded history. Each execution's history is an ordered list of Event
records that is only ever appended to:

	instance "actor-mydb-a1b2c3d4"
	  execution 1: OrchestrationStarted, ActivityScheduled(seq 1),
	               ActivityCompleted(seq 1), TimerCreated(seq 2),
	               TimerFired(seq 2), ..., ContinuedAsNew
	  execution 2: OrchestrationStarted, ...

Seq numbers correlate a scheduling event with its completion; the
runtime assigns them in primitive-invocation order, which is what makes
replay deterministic and lets the determinism guard detect workflow
code that diverged from its recorded history.

# Queues and Leases

Two queues drive execution. The orchestrator queue holds Messages
(starts, activity results, fired timers, external events, child
results) keyed by instance; a decider claims all deliverable messages
of one instance as an OrchestrationItem under an exclusive lease. The
activity queue holds ActivityTasks, leased one at a time per worker.
Durable timers are nothing special: a message whose VisibleAtMS lies in
the future.

Leases expire rather than being released on crash. ReclaimExpiredLeases
returns abandoned work to its queue, giving at-least-once execution:
deciders are idempotent because they replay, and activity results for
an already-recorded seq are dropped as duplicates.

# Atomicity

CommitDecisions applies everything a decision round produced in one
BoltDB transaction: consumed messages deleted, events appended, tasks
and messages enqueued, children created, instance status updated, lease
checked. ErrLeaseLost means another decider owns the instance now and
the round must be discarded, not retried.

# Storage Layout

BoltStore keeps five buckets in paddock.db: instances, history,
orchestrator_queue, activity_queue and leases. History keys are
(instance, execution, position) tuples encoded big-endian so a cursor
scan returns events in commit order.

# See Also

  - pkg/runtime executes decision rounds against this store.
  - pkg/workflow replays user code over the events stored here.
  - pkg/client is the user-facing surface over Store.
*/
package history
