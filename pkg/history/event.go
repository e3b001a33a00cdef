package history

import (
	"encoding/json"
)

// Kind discriminates the event variants recorded in an execution's history.
// Replay switches exhaustively on this tag.
type Kind string

const (
	KindOrchestrationStarted      Kind = "OrchestrationStarted"
	KindActivityScheduled         Kind = "ActivityScheduled"
	KindActivityCompleted         Kind = "ActivityCompleted"
	KindActivityFailed            Kind = "ActivityFailed"
	KindTimerCreated              Kind = "TimerCreated"
	KindTimerFired                Kind = "TimerFired"
	KindSubOrchestrationScheduled Kind = "SubOrchestrationScheduled"
	KindSubOrchestrationCompleted Kind = "SubOrchestrationCompleted"
	KindSubOrchestrationFailed    Kind = "SubOrchestrationFailed"
	KindExternalEventRaised       Kind = "ExternalEventRaised"
	KindExternalEventReceived     Kind = "ExternalEventReceived"
	KindContinuedAsNew            Kind = "ContinuedAsNew"
	KindOrchestrationCompleted    Kind = "OrchestrationCompleted"
	KindOrchestrationFailed       Kind = "OrchestrationFailed"
)

// Event is a single history entry. Kind selects which fields are meaningful;
// unused fields stay zero and are omitted on the wire. Events are immutable
// once appended and are returned in commit order.
type Event struct {
	// Seq correlates a scheduling event with its completion. It is assigned
	// by the runtime in primitive-invocation order within an execution and
	// is zero for events that need no correlation (start, raise, terminal).
	Seq  uint64 `json:"seq,omitempty"`
	Kind Kind   `json:"kind"`

	// TimestampMS is the wall-clock commit time in unix milliseconds. It is
	// the value workflow code observes through its deterministic clock.
	TimestampMS int64 `json:"ts_ms"`

	// Name holds the workflow name (start), activity name (scheduled), or
	// external event name (raised/received).
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`

	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`

	// FireAtMS is the due time of a TimerCreated event.
	FireAtMS int64 `json:"fire_at_ms,omitempty"`

	// ChildInstanceID names the child of a SubOrchestrationScheduled event.
	ChildInstanceID string `json:"child_instance_id,omitempty"`

	Payload json.RawMessage `json:"payload,omitempty"`

	// Attempt is the 1-based retry attempt of an ActivityScheduled event.
	Attempt int `json:"attempt,omitempty"`

	// TimeoutMS bounds the scheduled activity; past it the runtime records
	// an ActivityFailed{error:"timeout"} regardless of the worker.
	TimeoutMS int64 `json:"timeout_ms,omitempty"`

	// Detached marks a SubOrchestrationScheduled the parent never awaits.
	Detached bool `json:"detached,omitempty"`
}

// IsScheduling reports whether the event consumes a seq at scheduling time.
// The determinism guard matches workflow invocations against these.
func (e *Event) IsScheduling() bool {
	switch e.Kind {
	case KindActivityScheduled, KindTimerCreated, KindSubOrchestrationScheduled:
		return true
	}
	return false
}

// IsTerminal reports whether the event ends its execution.
func (e *Event) IsTerminal() bool {
	switch e.Kind {
	case KindOrchestrationCompleted, KindOrchestrationFailed, KindContinuedAsNew:
		return true
	}
	return false
}
