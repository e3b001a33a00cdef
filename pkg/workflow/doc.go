/*
Package workflow is the replay-side workflow API: the deterministic
Context handed to workflow functions, the Future returned by every
scheduling primitive, and the executor that replays a function over its
recorded history.

# Replay Model

A workflow function is ordinary Go code with one rule: every
interaction with the outside world goes through the Context. Each call
to ScheduleActivity, ScheduleTimer, ScheduleSubOrchestration or
WaitEvent consumes the next seq number. On first execution the call
emits a scheduling event and the function suspends when it awaits an
unresolved Future. On every later decision round the executor re-runs
the function from the top, feeding recorded completions back through
the same Futures, until it either suspends again or returns.

The function must therefore be deterministic: same history in, same
calls out. Time comes from ctx.Now (the timestamp of the event being
replayed), randomness and I/O belong in activities. The executor
verifies each invocation against the recorded scheduling event at the
same seq and fails the execution with a nondeterminism error on any
mismatch, which is far cheaper to debug than silently corrupted state.

# Primitives

	func ProvisionThing(ctx *workflow.Context) (any, error) {
		var in ProvisionInput
		if err := ctx.Input(&in); err != nil {
			return nil, err
		}

		var created CreateOutput
		if err := ctx.ScheduleActivity("CreateThing", in).Get(&created); err != nil {
			return nil, err
		}

		timer := ctx.ScheduleTimer(30 * time.Second)
		event := ctx.WaitEvent("Cancel")
		switch ctx.Select(timer, event) {
		case 1:
			return nil, workflow.Fatalf("cancelled")
		}
		return created, nil
	}

Select suspends until one of the given Futures resolves and returns its
index, replay-stable because resolution order is recorded in history.
ContinueAsNew ends the current execution and starts the next one with
fresh input, the mechanism long-lived actors use to keep history short.

# Errors and Retries

Activity errors travel as strings through history, so classification is
by prefix: Conflictf marks permanent precondition failures, Fatalf
marks non-retryable bugs, and everything else is retryable. RetryPolicy
builds on that, scheduling durable timers between attempts with fixed,
linear or exponential backoff and an overall timeout budget enforced by
the runtime even when a worker hangs.

# See Also

  - pkg/runtime drives Execute from its decision loops.
  - pkg/history defines the events this package replays.
  - pkg/orchestrations holds the workflow functions registered here.
*/
package workflow
