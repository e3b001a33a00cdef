package history

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrInstanceExists is returned when starting an orchestration whose
	// instance ID is already in use.
	ErrInstanceExists = errors.New("orchestration instance already exists")

	// ErrInstanceNotFound is returned for reads of unknown instances.
	ErrInstanceNotFound = errors.New("orchestration instance not found")

	// ErrInstanceTerminal is returned when raising an event into an
	// instance whose latest execution already completed or failed.
	ErrInstanceTerminal = errors.New("orchestration instance is terminal")

	// ErrLeaseLost is returned by CommitDecisions when the caller's lease
	// token no longer owns the instance.
	ErrLeaseLost = errors.New("instance lease lost")
)

// Status is the externally visible state of a WorkflowInstance, derived
// from the latest execution.
type Status string

const (
	StatusRunning   Status = "Running"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusNotFound  Status = "NotFound"
)

// InstanceInfo is the persisted metadata of a WorkflowInstance.
type InstanceInfo struct {
	InstanceID       string          `json:"instance_id"`
	Name             string          `json:"name"`
	Version          string          `json:"version,omitempty"`
	Status           Status          `json:"status"`
	CurrentExecution uint64          `json:"current_execution_id"`
	Output           json.RawMessage `json:"output,omitempty"`
	Error            string          `json:"error,omitempty"`

	// Parent fields link a sub-orchestration back to the awaiting parent
	// execution. Empty for root and detached instances.
	ParentInstanceID  string `json:"parent_instance_id,omitempty"`
	ParentExecutionID uint64 `json:"parent_execution_id,omitempty"`
	ParentSeq         uint64 `json:"parent_seq,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageType discriminates orchestrator queue messages.
type MessageType string

const (
	MessageStart                     MessageType = "Start"
	MessageActivityCompleted         MessageType = "ActivityCompleted"
	MessageActivityFailed            MessageType = "ActivityFailed"
	MessageActivityTimeout           MessageType = "ActivityTimeout"
	MessageTimerFired                MessageType = "TimerFired"
	MessageExternalEvent             MessageType = "ExternalEvent"
	MessageSubOrchestrationCompleted MessageType = "SubOrchestrationCompleted"
	MessageSubOrchestrationFailed    MessageType = "SubOrchestrationFailed"
)

// Message is one orchestrator queue entry. A message becomes deliverable
// once VisibleAtMS passes; durable timers are messages with a future
// visibility.
type Message struct {
	ID           string          `json:"id"`
	Type         MessageType     `json:"type"`
	InstanceID   string          `json:"instance_id"`
	ExecutionID  uint64          `json:"execution_id,omitempty"`
	Seq          uint64          `json:"seq,omitempty"`
	Name         string          `json:"name,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
	Error        string          `json:"error,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	VisibleAtMS  int64           `json:"visible_at_ms"`
	EnqueuedAtMS int64           `json:"enqueued_at_ms"`
	Pos          uint64          `json:"pos"`
}

// ActivityTask is one activity queue entry, leased by a single worker at a
// time but delivered at-least-once overall.
type ActivityTask struct {
	ID            string          `json:"id"`
	InstanceID    string          `json:"instance_id"`
	ExecutionID   uint64          `json:"execution_id"`
	Seq           uint64          `json:"seq"`
	Name          string          `json:"name"`
	Input         json.RawMessage `json:"input,omitempty"`
	Attempt       int             `json:"attempt,omitempty"`
	VisibleAtMS   int64           `json:"visible_at_ms"`
	EnqueuedAtMS  int64           `json:"enqueued_at_ms"`
	Pos           uint64          `json:"pos"`
	LockToken     string          `json:"lock_token,omitempty"`
	LockedUntilMS int64           `json:"locked_until_ms,omitempty"`
}

// OrchestrationItem is a claimed batch of deliverable messages for one
// instance, held under an exclusive lease.
type OrchestrationItem struct {
	InstanceID string
	LockToken  string
	Messages   []*Message
}

// StartRequest creates a WorkflowInstance with execution 1.
type StartRequest struct {
	InstanceID        string          `json:"instance_id"`
	Name              string          `json:"name"`
	Version           string          `json:"version,omitempty"`
	Input             json.RawMessage `json:"input,omitempty"`
	ParentInstanceID  string          `json:"parent_instance_id,omitempty"`
	ParentExecutionID uint64          `json:"parent_execution_id,omitempty"`
	ParentSeq         uint64          `json:"parent_seq,omitempty"`
}

// DecisionCommit is the atomic outcome of one decision round.
type DecisionCommit struct {
	InstanceID  string
	ExecutionID uint64
	LockToken   string

	// ConsumedMessageIDs are removed from the orchestrator queue.
	ConsumedMessageIDs []string

	// Events are appended to (InstanceID, ExecutionID) in order.
	Events []*Event

	// ActivityTasks and Messages are enqueued; messages may target other
	// instances (parent notifications).
	ActivityTasks []*ActivityTask
	Messages      []*Message

	// StartChildren creates sub-orchestration instances; an existing
	// instance is left untouched (replayed commit).
	StartChildren []*StartRequest

	// Status, Output and Error update the instance record. Status Running
	// leaves a non-terminal instance as is.
	Status Status
	Output json.RawMessage
	Error  string

	// ContinueAsNew, when set, closes this execution and opens the next
	// one with the given start event as its entire history.
	ContinueAsNew *Event
}

// Store persists workflow instances, their event histories, the work
// queues, and the leases that arbitrate workers.
type Store interface {
	// Client surface
	StartOrchestration(req *StartRequest) error
	RaiseEvent(instanceID, name string, payload json.RawMessage) error
	GetInstanceInfo(instanceID string) (*InstanceInfo, error)
	ListInstances() ([]string, error)
	ListExecutions(instanceID string) ([]uint64, error)
	ReadHistory(instanceID string, executionID uint64) ([]*Event, error)

	// Orchestration plane
	ClaimOrchestrationItem(lease time.Duration) (*OrchestrationItem, error)
	CommitDecisions(commit *DecisionCommit) error
	AbandonOrchestrationItem(instanceID, lockToken string) error

	// Activity plane
	ClaimActivityTask(lease time.Duration) (*ActivityTask, error)
	CompleteActivityTask(task *ActivityTask, output json.RawMessage, taskErr string) error

	// Maintenance
	ReclaimExpiredLeases() (int, error)
	QueueDepths() (orchestrations int, activities int, err error)
	Close() error
}
