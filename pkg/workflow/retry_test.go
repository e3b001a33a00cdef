package workflow

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddockdb/paddock/pkg/history"
)

// activityHandler fakes an activity worker for the runner: it returns the
// output, or a non-empty error string to record a failure.
type activityHandler func(attempt int, input json.RawMessage) (json.RawMessage, string)

// runner pumps decision rounds to a terminal outcome, completing scheduled
// activities through handlers and firing timers by advancing a fake clock.
type runner struct {
	t        *testing.T
	reg      *Registry
	handlers map[string]activityHandler
	hist     []*history.Event
	nowMS    int64
	firstNew int
}

func newRunner(t *testing.T, reg *Registry, handlers map[string]activityHandler) *runner {
	return &runner{t: t, reg: reg, handlers: handlers, nowMS: testStartMS}
}

func (r *runner) run(name, input string) *Result {
	r.t.Helper()
	r.hist = []*history.Event{{
		Kind:        history.KindOrchestrationStarted,
		TimestampMS: r.nowMS,
		Name:        name,
		Input:       json.RawMessage(input),
	}}
	r.firstNew = 1

	for round := 0; round < 200; round++ {
		res := Execute(r.reg, &Request{
			InstanceID:    "test-instance",
			ExecutionID:   1,
			History:       r.hist,
			FirstNewIndex: r.firstNew,
			Logger:        zerolog.Nop(),
		})
		for _, ev := range res.NewEvents {
			if ev.TimestampMS == 0 {
				ev.TimestampMS = r.nowMS
			}
		}
		r.hist = append(r.hist, res.NewEvents...)

		switch res.Outcome {
		case OutcomeCompleted, OutcomeFailed:
			return res
		case OutcomeContinuedAsNew:
			r.hist = []*history.Event{{
				Kind:        history.KindOrchestrationStarted,
				TimestampMS: r.nowMS,
				Name:        name,
				Input:       res.NewInput,
			}}
			r.firstNew = 1
			continue
		}

		var applied []*history.Event
		for _, ev := range res.NewEvents {
			switch ev.Kind {
			case history.KindActivityScheduled:
				handler, ok := r.handlers[ev.Name]
				require.True(r.t, ok, "no handler for activity %s", ev.Name)
				output, errStr := handler(ev.Attempt, ev.Input)
				r.nowMS += 1000
				if errStr == "" {
					applied = append(applied, &history.Event{
						Kind: history.KindActivityCompleted, Seq: ev.Seq, Output: output, TimestampMS: r.nowMS,
					})
				} else {
					applied = append(applied, &history.Event{
						Kind: history.KindActivityFailed, Seq: ev.Seq, Error: errStr, TimestampMS: r.nowMS,
					})
				}
			case history.KindTimerCreated:
				if ev.FireAtMS > r.nowMS {
					r.nowMS = ev.FireAtMS
				}
				applied = append(applied, &history.Event{
					Kind: history.KindTimerFired, Seq: ev.Seq, TimestampMS: r.nowMS,
				})
			}
		}
		require.NotEmpty(r.t, applied, "workflow suspended with nothing to apply")
		r.firstNew = len(r.hist)
		r.hist = append(r.hist, applied...)
	}
	r.t.Fatalf("workflow %s did not reach a terminal state", name)
	return nil
}

// countKind tallies history events of one kind.
func (r *runner) countKind(kind history.Kind) int {
	n := 0
	for _, ev := range r.hist {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func retryWorkflow(policy RetryPolicy) Func {
	return func(ctx *Context) (any, error) {
		var out string
		if err := policy.Execute(ctx, "flaky", nil, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

func failNTimes(n int) activityHandler {
	return func(attempt int, _ json.RawMessage) (json.RawMessage, string) {
		if attempt <= n {
			return nil, fmt.Sprintf("transient failure on attempt %d", attempt)
		}
		return json.RawMessage(`"ok"`), ""
	}
}

func TestRetryLinearBackoff(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts: 5,
		Backoff:     BackoffLinear,
		BaseDelay:   2 * time.Second,
		MaxDelay:    10 * time.Second,
		Timeout:     120 * time.Second,
	}
	reg := NewRegistry()
	reg.Register("Retry", retryWorkflow(policy))

	r := newRunner(t, reg, map[string]activityHandler{"flaky": failNTimes(3)})
	res := r.run("Retry", `null`)

	require.Equal(t, OutcomeCompleted, res.Outcome)
	assert.JSONEq(t, `"ok"`, string(res.Output))

	// Three failures, three backoff timers, success on the fourth attempt.
	assert.Equal(t, 3, r.countKind(history.KindActivityFailed))
	assert.Equal(t, 4, r.countKind(history.KindActivityScheduled))
	assert.Equal(t, 1, r.countKind(history.KindActivityCompleted))

	// Linear delays grow 2s, 4s, 6s from the failure that preceded each.
	var wantDelays = []int64{2000, 4000, 6000}
	var lastFailTS int64
	i := 0
	for _, ev := range r.hist {
		switch ev.Kind {
		case history.KindActivityFailed:
			lastFailTS = ev.TimestampMS
		case history.KindTimerCreated:
			require.Less(t, i, len(wantDelays))
			assert.Equal(t, wantDelays[i], ev.FireAtMS-lastFailTS, "timer %d", i)
			i++
		}
	}
	assert.Equal(t, len(wantDelays), i)

	// Attempts are tagged in order.
	attempt := 0
	for _, ev := range r.hist {
		if ev.Kind == history.KindActivityScheduled {
			attempt++
			assert.Equal(t, attempt, ev.Attempt)
		}
	}
}

func TestRetryExponentialBackoffCapped(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts: 6,
		Backoff:     BackoffExponential,
		BaseDelay:   2 * time.Second,
		Multiplier:  2,
		MaxDelay:    6 * time.Second,
	}
	assert.Equal(t, 2*time.Second, policy.delay(1))
	assert.Equal(t, 4*time.Second, policy.delay(2))
	assert.Equal(t, 6*time.Second, policy.delay(3)) // capped from 8s
	assert.Equal(t, 6*time.Second, policy.delay(4))
}

func TestRetryFixedBackoff(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, Backoff: BackoffFixed, BaseDelay: 3 * time.Second}
	assert.Equal(t, 3*time.Second, policy.delay(1))
	assert.Equal(t, 3*time.Second, policy.delay(2))
}

func TestRetryExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, Backoff: BackoffFixed, BaseDelay: time.Second}
	reg := NewRegistry()
	reg.Register("Retry", retryWorkflow(policy))

	r := newRunner(t, reg, map[string]activityHandler{"flaky": failNTimes(99)})
	res := r.run("Retry", `null`)

	require.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, "transient failure on attempt 3", res.Error)
	assert.Equal(t, 3, r.countKind(history.KindActivityScheduled))
	assert.Equal(t, 2, r.countKind(history.KindTimerCreated))
}

func TestRetryConflictBypassesRetry(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, Backoff: BackoffFixed, BaseDelay: time.Second}
	reg := NewRegistry()
	reg.Register("Retry", retryWorkflow(policy))

	handlers := map[string]activityHandler{
		"flaky": func(attempt int, _ json.RawMessage) (json.RawMessage, string) {
			return nil, Conflictf("DNS name 'db1' is already reserved by instance 'other'").Error()
		},
	}
	r := newRunner(t, reg, handlers)
	res := r.run("Retry", `null`)

	require.Equal(t, OutcomeFailed, res.Outcome)
	assert.True(t, IsConflict(res.Error))
	assert.Equal(t, 1, r.countKind(history.KindActivityScheduled))
	assert.Equal(t, 0, r.countKind(history.KindTimerCreated))
}

func TestRetryFatalBypassesRetry(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, Backoff: BackoffFixed, BaseDelay: time.Second}
	reg := NewRegistry()
	reg.Register("Retry", retryWorkflow(policy))

	handlers := map[string]activityHandler{
		"flaky": func(attempt int, _ json.RawMessage) (json.RawMessage, string) {
			return nil, Fatalf("KUBECONFIG not set").Error()
		},
	}
	r := newRunner(t, reg, handlers)
	res := r.run("Retry", `null`)

	require.Equal(t, OutcomeFailed, res.Outcome)
	assert.True(t, IsFatal(res.Error))
	assert.Equal(t, 1, r.countKind(history.KindActivityScheduled))
}

func TestRetryTimeoutIsFinal(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, Backoff: BackoffFixed, BaseDelay: time.Second, Timeout: time.Minute}
	reg := NewRegistry()
	reg.Register("Retry", retryWorkflow(policy))

	handlers := map[string]activityHandler{
		"flaky": func(attempt int, _ json.RawMessage) (json.RawMessage, string) {
			return nil, TimeoutError
		},
	}
	r := newRunner(t, reg, handlers)
	res := r.run("Retry", `null`)

	require.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, TimeoutError, res.Error)
	assert.Equal(t, 1, r.countKind(history.KindActivityScheduled))
}

func TestRetryOverallBudgetStopsAttempts(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts: 10,
		Backoff:     BackoffFixed,
		BaseDelay:   4 * time.Second,
		Timeout:     10 * time.Second,
	}
	reg := NewRegistry()
	reg.Register("Retry", retryWorkflow(policy))

	r := newRunner(t, reg, map[string]activityHandler{"flaky": failNTimes(99)})
	res := r.run("Retry", `null`)

	require.Equal(t, OutcomeFailed, res.Outcome)

	// Each failure costs 1s and each backoff 4s, so the 10s budget admits
	// only two attempts before the deadline check stops the loop.
	assert.Equal(t, 2, r.countKind(history.KindActivityScheduled))
	assert.Contains(t, res.Error, "transient failure")

	// The remaining budget shrinks with every schedule.
	var timeouts []int64
	for _, ev := range r.hist {
		if ev.Kind == history.KindActivityScheduled {
			timeouts = append(timeouts, ev.TimeoutMS)
		}
	}
	require.Len(t, timeouts, 2)
	assert.Equal(t, int64(10000), timeouts[0])
	assert.Greater(t, timeouts[0], timeouts[1])
	assert.Positive(t, timeouts[1])
}
