package history

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*BoltStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store, err := NewBoltStore(t.TempDir(), WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, clock
}

func startTestInstance(t *testing.T, store *BoltStore, instanceID string) {
	t.Helper()
	err := store.StartOrchestration(&StartRequest{
		InstanceID: instanceID,
		Name:       "TestWorkflow",
		Input:      json.RawMessage(`{"n":1}`),
	})
	require.NoError(t, err)
}

func TestStartOrchestration(t *testing.T) {
	store, _ := newTestStore(t)

	startTestInstance(t, store, "wf-1")

	info, err := store.GetInstanceInfo("wf-1")
	require.NoError(t, err)
	assert.Equal(t, "TestWorkflow", info.Name)
	assert.Equal(t, StatusRunning, info.Status)
	assert.Equal(t, uint64(1), info.CurrentExecution)

	events, err := store.ReadHistory("wf-1", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, KindOrchestrationStarted, events[0].Kind)
	assert.JSONEq(t, `{"n":1}`, string(events[0].Input))

	// The start message is immediately claimable.
	item, err := store.ClaimOrchestrationItem(time.Minute)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "wf-1", item.InstanceID)
	require.Len(t, item.Messages, 1)
	assert.Equal(t, MessageStart, item.Messages[0].Type)
}

func TestStartOrchestrationDuplicate(t *testing.T) {
	store, _ := newTestStore(t)

	startTestInstance(t, store, "wf-1")
	err := store.StartOrchestration(&StartRequest{InstanceID: "wf-1", Name: "TestWorkflow"})
	assert.ErrorIs(t, err, ErrInstanceExists)
}

func TestStartOrchestrationValidation(t *testing.T) {
	store, _ := newTestStore(t)

	tests := []struct {
		name string
		req  *StartRequest
	}{
		{"empty instance id", &StartRequest{Name: "TestWorkflow"}},
		{"empty workflow name", &StartRequest{InstanceID: "wf-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, store.StartOrchestration(tt.req))
		})
	}
}

func TestRaiseEvent(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.RaiseEvent("missing", "Ping", nil)
	assert.ErrorIs(t, err, ErrInstanceNotFound)

	startTestInstance(t, store, "wf-1")
	require.NoError(t, store.RaiseEvent("wf-1", "Ping", json.RawMessage(`{"x":2}`)))

	item, err := store.ClaimOrchestrationItem(time.Minute)
	require.NoError(t, err)
	require.NotNil(t, item)
	require.Len(t, item.Messages, 2)
	assert.Equal(t, MessageStart, item.Messages[0].Type)
	assert.Equal(t, MessageExternalEvent, item.Messages[1].Type)
	assert.Equal(t, "Ping", item.Messages[1].Name)
}

func TestRaiseEventTerminal(t *testing.T) {
	store, _ := newTestStore(t)
	startTestInstance(t, store, "wf-1")

	item, err := store.ClaimOrchestrationItem(time.Minute)
	require.NoError(t, err)
	err = store.CommitDecisions(&DecisionCommit{
		InstanceID:         "wf-1",
		ExecutionID:        1,
		LockToken:          item.LockToken,
		ConsumedMessageIDs: messageIDs(item.Messages),
		Events:             []*Event{{Kind: KindOrchestrationCompleted, Output: json.RawMessage(`"ok"`)}},
		Status:             StatusCompleted,
		Output:             json.RawMessage(`"ok"`),
	})
	require.NoError(t, err)

	err = store.RaiseEvent("wf-1", "Ping", nil)
	assert.ErrorIs(t, err, ErrInstanceTerminal)
}

func TestLeaseExclusion(t *testing.T) {
	store, clock := newTestStore(t)
	startTestInstance(t, store, "wf-1")

	item, err := store.ClaimOrchestrationItem(time.Minute)
	require.NoError(t, err)
	require.NotNil(t, item)

	// Same instance cannot be claimed while the lease is held.
	second, err := store.ClaimOrchestrationItem(time.Minute)
	require.NoError(t, err)
	assert.Nil(t, second)

	// Once the lease expires the messages become claimable again.
	clock.Advance(2 * time.Minute)
	third, err := store.ClaimOrchestrationItem(time.Minute)
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Equal(t, "wf-1", third.InstanceID)
	assert.NotEqual(t, item.LockToken, third.LockToken)

	// The stale token can no longer commit.
	err = store.CommitDecisions(&DecisionCommit{
		InstanceID:  "wf-1",
		ExecutionID: 1,
		LockToken:   item.LockToken,
	})
	assert.ErrorIs(t, err, ErrLeaseLost)
}

func TestCommitDecisions(t *testing.T) {
	store, _ := newTestStore(t)
	startTestInstance(t, store, "wf-1")

	item, err := store.ClaimOrchestrationItem(time.Minute)
	require.NoError(t, err)

	commit := &DecisionCommit{
		InstanceID:         "wf-1",
		ExecutionID:        1,
		LockToken:          item.LockToken,
		ConsumedMessageIDs: messageIDs(item.Messages),
		Events: []*Event{
			{Seq: 1, Kind: KindActivityScheduled, Name: "noop", Input: json.RawMessage(`{}`)},
		},
		ActivityTasks: []*ActivityTask{
			{InstanceID: "wf-1", ExecutionID: 1, Seq: 1, Name: "noop", Input: json.RawMessage(`{}`)},
		},
		Status: StatusRunning,
	}
	require.NoError(t, store.CommitDecisions(commit))

	// Queue message consumed, lease released, nothing orchestrator-side.
	next, err := store.ClaimOrchestrationItem(time.Minute)
	require.NoError(t, err)
	assert.Nil(t, next)

	events, err := store.ReadHistory("wf-1", 1)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, KindActivityScheduled, events[1].Kind)

	// The scheduled task is claimable by an activity worker.
	task, err := store.ClaimActivityTask(time.Minute)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "noop", task.Name)
	assert.Equal(t, uint64(1), task.Seq)
}

func TestActivityCompletionFlow(t *testing.T) {
	store, _ := newTestStore(t)
	startTestInstance(t, store, "wf-1")

	item, err := store.ClaimOrchestrationItem(time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.CommitDecisions(&DecisionCommit{
		InstanceID:         "wf-1",
		ExecutionID:        1,
		LockToken:          item.LockToken,
		ConsumedMessageIDs: messageIDs(item.Messages),
		Events:             []*Event{{Seq: 1, Kind: KindActivityScheduled, Name: "noop"}},
		ActivityTasks:      []*ActivityTask{{InstanceID: "wf-1", ExecutionID: 1, Seq: 1, Name: "noop"}},
		Status:             StatusRunning,
	}))

	task, err := store.ClaimActivityTask(time.Minute)
	require.NoError(t, err)
	require.NotNil(t, task)

	require.NoError(t, store.CompleteActivityTask(task, json.RawMessage(`"done"`), ""))

	// Completion is idempotent: a duplicate commit is dropped.
	require.NoError(t, store.CompleteActivityTask(task, json.RawMessage(`"done-again"`), ""))

	item, err = store.ClaimOrchestrationItem(time.Minute)
	require.NoError(t, err)
	require.NotNil(t, item)
	require.Len(t, item.Messages, 1)
	assert.Equal(t, MessageActivityCompleted, item.Messages[0].Type)
	assert.Equal(t, uint64(1), item.Messages[0].Seq)
	assert.JSONEq(t, `"done"`, string(item.Messages[0].Output))
}

func TestTimerVisibility(t *testing.T) {
	store, clock := newTestStore(t)
	startTestInstance(t, store, "wf-1")

	item, err := store.ClaimOrchestrationItem(time.Minute)
	require.NoError(t, err)
	fireAt := clock.Now().Add(5 * time.Second).UnixMilli()
	require.NoError(t, store.CommitDecisions(&DecisionCommit{
		InstanceID:         "wf-1",
		ExecutionID:        1,
		LockToken:          item.LockToken,
		ConsumedMessageIDs: messageIDs(item.Messages),
		Events:             []*Event{{Seq: 1, Kind: KindTimerCreated, FireAtMS: fireAt}},
		Messages: []*Message{
			{Type: MessageTimerFired, InstanceID: "wf-1", ExecutionID: 1, Seq: 1, VisibleAtMS: fireAt},
		},
		Status: StatusRunning,
	}))

	// Not yet due.
	next, err := store.ClaimOrchestrationItem(time.Minute)
	require.NoError(t, err)
	assert.Nil(t, next)

	clock.Advance(5 * time.Second)
	next, err = store.ClaimOrchestrationItem(time.Minute)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Len(t, next.Messages, 1)
	assert.Equal(t, MessageTimerFired, next.Messages[0].Type)
}

func TestContinueAsNewRollsExecution(t *testing.T) {
	store, _ := newTestStore(t)
	startTestInstance(t, store, "wf-1")

	item, err := store.ClaimOrchestrationItem(time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.CommitDecisions(&DecisionCommit{
		InstanceID:         "wf-1",
		ExecutionID:        1,
		LockToken:          item.LockToken,
		ConsumedMessageIDs: messageIDs(item.Messages),
		Events:             []*Event{{Kind: KindContinuedAsNew, Input: json.RawMessage(`{"n":2}`)}},
		ContinueAsNew: &Event{
			Kind:  KindOrchestrationStarted,
			Name:  "TestWorkflow",
			Input: json.RawMessage(`{"n":2}`),
		},
	}))

	info, err := store.GetInstanceInfo("wf-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, info.Status)
	assert.Equal(t, uint64(2), info.CurrentExecution)

	execs, err := store.ListExecutions("wf-1")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, execs)

	// The new execution's history is only its start event.
	events, err := store.ReadHistory("wf-1", 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, KindOrchestrationStarted, events[0].Kind)
	assert.JSONEq(t, `{"n":2}`, string(events[0].Input))

	// And a start message wakes the new execution.
	next, err := store.ClaimOrchestrationItem(time.Minute)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Len(t, next.Messages, 1)
	assert.Equal(t, MessageStart, next.Messages[0].Type)
	assert.Equal(t, uint64(2), next.Messages[0].ExecutionID)
}

func TestChildStartIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	startTestInstance(t, store, "parent")

	item, err := store.ClaimOrchestrationItem(time.Minute)
	require.NoError(t, err)
	commit := &DecisionCommit{
		InstanceID:         "parent",
		ExecutionID:        1,
		LockToken:          item.LockToken,
		ConsumedMessageIDs: messageIDs(item.Messages),
		Events: []*Event{
			{Seq: 1, Kind: KindSubOrchestrationScheduled, Name: "Child", ChildInstanceID: "child-1"},
		},
		StartChildren: []*StartRequest{
			{InstanceID: "child-1", Name: "Child", ParentInstanceID: "parent", ParentExecutionID: 1, ParentSeq: 1},
		},
		Status: StatusRunning,
	}
	require.NoError(t, store.CommitDecisions(commit))

	info, err := store.GetInstanceInfo("child-1")
	require.NoError(t, err)
	assert.Equal(t, "parent", info.ParentInstanceID)
	assert.Equal(t, uint64(1), info.ParentExecutionID)
	assert.Equal(t, uint64(1), info.ParentSeq)

	// A replayed commit must not reset the child.
	item, err = store.ClaimOrchestrationItem(time.Minute)
	require.NoError(t, err)
	require.NotNil(t, item) // child's start message
	if item.InstanceID == "child-1" {
		require.NoError(t, store.CommitDecisions(&DecisionCommit{
			InstanceID:         "child-1",
			ExecutionID:        1,
			LockToken:          item.LockToken,
			ConsumedMessageIDs: messageIDs(item.Messages),
			StartChildren:      []*StartRequest{{InstanceID: "child-1", Name: "Child"}},
			Status:             StatusRunning,
		}))
	}

	execs, err := store.ListExecutions("child-1")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, execs)
}

func TestReclaimExpiredLeases(t *testing.T) {
	store, clock := newTestStore(t)
	startTestInstance(t, store, "wf-1")

	item, err := store.ClaimOrchestrationItem(30 * time.Second)
	require.NoError(t, err)
	require.NoError(t, store.CommitDecisions(&DecisionCommit{
		InstanceID:         "wf-1",
		ExecutionID:        1,
		LockToken:          item.LockToken,
		ConsumedMessageIDs: messageIDs(item.Messages),
		Events:             []*Event{{Seq: 1, Kind: KindActivityScheduled, Name: "noop"}},
		ActivityTasks:      []*ActivityTask{{InstanceID: "wf-1", ExecutionID: 1, Seq: 1, Name: "noop"}},
		Status:             StatusRunning,
	}))

	task, err := store.ClaimActivityTask(30 * time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)

	// While locked, no other worker can claim the task.
	other, err := store.ClaimActivityTask(30 * time.Second)
	require.NoError(t, err)
	assert.Nil(t, other)

	clock.Advance(time.Minute)
	n, err := store.ReclaimExpiredLeases()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The task is deliverable again.
	again, err := store.ClaimActivityTask(30 * time.Second)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, task.ID, again.ID)
}

func TestQueueDepths(t *testing.T) {
	store, _ := newTestStore(t)
	startTestInstance(t, store, "wf-1")
	startTestInstance(t, store, "wf-2")

	orch, act, err := store.QueueDepths()
	require.NoError(t, err)
	assert.Equal(t, 2, orch)
	assert.Equal(t, 0, act)
}

func messageIDs(msgs []*Message) []string {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}
