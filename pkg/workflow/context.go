package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Context is the only interface a workflow function has to the outside
// world. All reads and side effects go through scheduling primitives so
// that the function stays deterministic under replay.
type Context struct {
	ex *execution
}

// InstanceID returns the workflow instance identifier.
func (c *Context) InstanceID() string { return c.ex.instanceID }

// ExecutionID returns the current execution of this instance. It starts at
// 1 and increments on every continue-as-new.
func (c *Context) ExecutionID() uint64 { return c.ex.executionID }

// Name returns the registered workflow name.
func (c *Context) Name() string { return c.ex.name }

// Input unmarshals the orchestration input into out.
func (c *Context) Input(out any) error {
	if len(c.ex.input) == 0 {
		return nil
	}
	return json.Unmarshal(c.ex.input, out)
}

// Now returns deterministic workflow time: the timestamp of the most recent
// history event the function has consumed. It is stable across replays and
// must be used instead of time.Now inside workflow code.
func (c *Context) Now() time.Time {
	return time.UnixMilli(c.ex.nowMS)
}

// IsReplaying reports whether the function is still consuming previously
// recorded history.
func (c *Context) IsReplaying() bool { return c.ex.replaying }

// Logger returns a structured logger that is silenced during replay, so
// each line is emitted once per live decision rather than once per replay.
func (c *Context) Logger() *zerolog.Logger {
	if c.ex.replaying {
		nop := zerolog.Nop()
		return &nop
	}
	return &c.ex.logger
}

// ActivityOptions carry per-schedule settings. The retry helper uses them
// to tag attempts and to bound each schedule by the remaining overall
// budget.
type ActivityOptions struct {
	Attempt int
	Timeout time.Duration
}

// ActivityOption configures a single ScheduleActivity call.
type ActivityOption func(*ActivityOptions)

// WithAttempt tags the schedule with its attempt number within a retry
// sequence.
func WithAttempt(n int) ActivityOption {
	return func(o *ActivityOptions) { o.Attempt = n }
}

// WithTimeout arranges for the runtime to record ActivityFailed("timeout")
// if no completion arrives within d, whether or not the worker finishes.
func WithTimeout(d time.Duration) ActivityOption {
	return func(o *ActivityOptions) { o.Timeout = d }
}

// ScheduleActivity records an ActivityScheduled event, or matches the
// recorded one on replay, and returns a future for its completion.
func (c *Context) ScheduleActivity(name string, input any, opts ...ActivityOption) *Future {
	var o ActivityOptions
	for _, opt := range opts {
		opt(&o)
	}
	return c.ex.scheduleActivity(name, mustMarshal("activity "+name, input), &o)
}

// ScheduleTimer records a durable timer that fires delay after the current
// workflow time.
func (c *Context) ScheduleTimer(delay time.Duration) *Future {
	return c.ex.scheduleTimer(delay)
}

// ScheduleSubOrchestration starts a child workflow and returns a future
// that resolves when the child reaches a terminal state.
func (c *Context) ScheduleSubOrchestration(name, instanceID string, input any) *Future {
	return c.ex.scheduleSubOrchestration(name, instanceID, mustMarshal("sub-orchestration "+name, input), false)
}

// StartDetached starts a child workflow with no parent linkage: the caller
// gets no completion future and the child outlives it.
func (c *Context) StartDetached(name, instanceID string, input any) {
	c.ex.scheduleSubOrchestration(name, instanceID, mustMarshal("detached "+name, input), true)
}

// WaitEvent subscribes to the next unconsumed external event with the given
// name. Raised events buffer in history until a subscription consumes them.
func (c *Context) WaitEvent(name string) *Future {
	return c.ex.waitEvent(name)
}

// Select suspends until at least one of the futures is resolved and returns
// the index of the winner, the future whose result was recorded earliest.
func (c *Context) Select(futures ...*Future) int {
	return c.ex.selectAny(futures)
}

// ContinueAsNew ends the current execution and restarts the workflow with
// fresh history and the given input. It does not return.
func (c *Context) ContinueAsNew(input any) {
	panic(&continueAsNew{input: mustMarshal("continue-as-new", input)})
}

func mustMarshal(what string, v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("marshal %s input: %w", what, err))
	}
	return raw
}
