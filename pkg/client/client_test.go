package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddockdb/paddock/pkg/history"
	"github.com/paddockdb/paddock/pkg/runtime"
	"github.com/paddockdb/paddock/pkg/workflow"
)

func newHarness(t *testing.T, opts ...Option) (*Client, *runtime.Runtime, history.Store) {
	t.Helper()

	store, err := history.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	workflows := workflow.NewRegistry()
	workflows.Register("echo", func(ctx *workflow.Context) (any, error) {
		var in json.RawMessage
		if err := ctx.Input(&in); err != nil {
			return nil, err
		}
		return in, nil
	})
	workflows.Register("pending", func(ctx *workflow.Context) (any, error) {
		var payload string
		if err := ctx.WaitEvent("release").Get(&payload); err != nil {
			return nil, err
		}
		return payload, nil
	})

	rt := runtime.New(store, workflows, runtime.NewActivityRegistry(), runtime.Config{
		OrchestrationWorkers: 1,
		ActivityWorkers:      1,
		LeaseDuration:        time.Minute,
		PollInterval:         2 * time.Millisecond,
	})
	rt.Start()
	t.Cleanup(rt.Stop)

	return New(store, opts...), rt, store
}

func TestStartAndWaitWithNotifier(t *testing.T) {
	store, err := history.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	workflows := workflow.NewRegistry()
	workflows.Register("echo", func(ctx *workflow.Context) (any, error) {
		var in json.RawMessage
		if err := ctx.Input(&in); err != nil {
			return nil, err
		}
		return in, nil
	})

	rt := runtime.New(store, workflows, runtime.NewActivityRegistry(), runtime.Config{
		OrchestrationWorkers: 1,
		ActivityWorkers:      1,
		LeaseDuration:        time.Minute,
		PollInterval:         2 * time.Millisecond,
	})
	rt.Start()
	t.Cleanup(rt.Stop)

	// A long poll interval proves the notifier, not polling, wakes us.
	c := New(store, WithNotifier(rt.Notifier()), WithPollInterval(time.Hour))

	require.NoError(t, c.StartOrchestration("echo-1", "echo", map[string]string{"k": "v"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	info, err := c.WaitForOrchestration(ctx, "echo-1")
	require.NoError(t, err)
	assert.Equal(t, history.StatusCompleted, info.Status)
	assert.JSONEq(t, `{"k":"v"}`, string(info.Output))
}

func TestWaitPollsWithoutNotifier(t *testing.T) {
	c, _, _ := newHarness(t, WithPollInterval(5*time.Millisecond))

	require.NoError(t, c.StartOrchestration("echo-2", "echo", 7))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	info, err := c.WaitForOrchestration(ctx, "echo-2")
	require.NoError(t, err)
	assert.Equal(t, history.StatusCompleted, info.Status)
	assert.JSONEq(t, `7`, string(info.Output))
}

func TestWaitForOrchestrationCancelled(t *testing.T) {
	c, _, _ := newHarness(t, WithPollInterval(5*time.Millisecond))

	require.NoError(t, c.StartOrchestration("pending-1", "pending", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.WaitForOrchestration(ctx, "pending-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForUnknownInstance(t *testing.T) {
	c, _, _ := newHarness(t)

	_, err := c.WaitForOrchestration(context.Background(), "nope")
	assert.ErrorIs(t, err, history.ErrInstanceNotFound)
}

func TestGetOrchestrationStatus(t *testing.T) {
	c, _, _ := newHarness(t, WithPollInterval(5*time.Millisecond))

	status, err := c.GetOrchestrationStatus("missing")
	require.NoError(t, err)
	assert.Equal(t, history.StatusNotFound, status.Status)

	require.NoError(t, c.StartOrchestration("pending-2", "pending", nil))
	status, err = c.GetOrchestrationStatus("pending-2")
	require.NoError(t, err)
	assert.Equal(t, history.StatusRunning, status.Status)

	require.NoError(t, c.RaiseEvent("pending-2", "release", "go"))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = c.WaitForOrchestration(ctx, "pending-2")
	require.NoError(t, err)

	status, err = c.GetOrchestrationStatus("pending-2")
	require.NoError(t, err)
	assert.Equal(t, history.StatusCompleted, status.Status)
	assert.JSONEq(t, `"go"`, string(status.Output))
}

func TestStartOrchestrationDuplicate(t *testing.T) {
	c, _, _ := newHarness(t)

	require.NoError(t, c.StartOrchestration("dup-1", "pending", nil))
	err := c.StartOrchestration("dup-1", "pending", nil)
	assert.ErrorIs(t, err, history.ErrInstanceExists)
}

func TestRaiseEventUnknownInstance(t *testing.T) {
	c, _, _ := newHarness(t)

	err := c.RaiseEvent("missing", "release", nil)
	assert.ErrorIs(t, err, history.ErrInstanceNotFound)
}

func TestListAndReadHistory(t *testing.T) {
	c, _, _ := newHarness(t, WithPollInterval(5*time.Millisecond))

	require.NoError(t, c.StartOrchestration("echo-3", "echo", "x"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := c.WaitForOrchestration(ctx, "echo-3")
	require.NoError(t, err)

	ids, err := c.ListInstances()
	require.NoError(t, err)
	assert.Contains(t, ids, "echo-3")

	execs, err := c.ListExecutions("echo-3")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, execs)

	events, err := c.ReadExecutionHistory("echo-3", 1)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, history.KindOrchestrationStarted, events[0].Kind)
	assert.Equal(t, history.KindOrchestrationCompleted, events[len(events)-1].Kind)
}

func TestMarshalInputPassesRawJSONThrough(t *testing.T) {
	raw := json.RawMessage(`{"already":"encoded"}`)
	got, err := marshalInput(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = marshalInput(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}
