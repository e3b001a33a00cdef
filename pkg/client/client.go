package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/paddockdb/paddock/pkg/history"
	"github.com/paddockdb/paddock/pkg/log"
	"github.com/paddockdb/paddock/pkg/metrics"
	"github.com/paddockdb/paddock/pkg/runtime"
)

// Client is the programmatic surface for starting and inspecting
// orchestrations, consumed by the HTTP API and the CLI. It reads and
// writes the history store directly; an optional notifier short-circuits
// waiting for terminal states when the runtime runs in the same process.
type Client struct {
	store        history.Store
	notifier     *runtime.Notifier
	pollInterval time.Duration
	logger       zerolog.Logger
}

// Option adjusts client construction.
type Option func(*Client)

// WithNotifier wires the runtime's signal hub: WaitForOrchestration wakes
// immediately on completion, and starts and raises wake an idle decider
// instead of waiting out its poll interval.
func WithNotifier(n *runtime.Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithPollInterval overrides the fallback polling cadence used while
// waiting for terminal states.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// New creates a client over the given store.
func New(store history.Store, opts ...Option) *Client {
	c := &Client{
		store:        store,
		pollInterval: 250 * time.Millisecond,
		logger:       log.WithComponent("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartOrchestration creates a new workflow instance and enqueues its
// first decision round. Returns history.ErrInstanceExists when the id is
// already taken.
func (c *Client) StartOrchestration(instanceID, workflow string, input any) error {
	raw, err := marshalInput(input)
	if err != nil {
		return err
	}

	if err := c.store.StartOrchestration(&history.StartRequest{
		InstanceID: instanceID,
		Name:       workflow,
		Input:      raw,
	}); err != nil {
		return err
	}
	c.wakeOrchestrator()

	metrics.OrchestrationsStartedTotal.WithLabelValues(workflow).Inc()
	c.logger.Info().Str("instance_id", instanceID).Str("workflow", workflow).Msg("Orchestration started")
	return nil
}

// RaiseEvent delivers an external event into the instance's current
// execution. Events raised before the workflow subscribes are buffered in
// history and matched later.
func (c *Client) RaiseEvent(instanceID, event string, payload any) error {
	raw, err := marshalInput(payload)
	if err != nil {
		return err
	}
	if err := c.store.RaiseEvent(instanceID, event, raw); err != nil {
		return err
	}
	c.wakeOrchestrator()
	return nil
}

// wakeOrchestrator pokes the runtime's deciders when it shares our
// process; a remote or test client without a notifier just polls.
func (c *Client) wakeOrchestrator() {
	if c.notifier != nil {
		c.notifier.WakeOrchestrator()
	}
}

// OrchestrationStatus is the caller-facing view of an instance outcome.
type OrchestrationStatus struct {
	Status history.Status  `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// GetOrchestrationStatus reports Running, Completed with output, Failed
// with details, or NotFound. Unknown instances are a status, not an
// error, so callers can poll ids they only expect to exist eventually.
func (c *Client) GetOrchestrationStatus(instanceID string) (*OrchestrationStatus, error) {
	info, err := c.store.GetInstanceInfo(instanceID)
	if errors.Is(err, history.ErrInstanceNotFound) {
		return &OrchestrationStatus{Status: history.StatusNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	return &OrchestrationStatus{Status: info.Status, Output: info.Output, Error: info.Error}, nil
}

// ListInstances returns all known instance ids.
func (c *Client) ListInstances() ([]string, error) {
	return c.store.ListInstances()
}

// GetInstanceInfo returns the instance record.
func (c *Client) GetInstanceInfo(instanceID string) (*history.InstanceInfo, error) {
	return c.store.GetInstanceInfo(instanceID)
}

// ListExecutions returns the instance's execution ids in order; more than
// one means the workflow continued as new.
func (c *Client) ListExecutions(instanceID string) ([]uint64, error) {
	return c.store.ListExecutions(instanceID)
}

// ReadExecutionHistory returns one execution's event log in append order.
func (c *Client) ReadExecutionHistory(instanceID string, executionID uint64) ([]*history.Event, error) {
	return c.store.ReadHistory(instanceID, executionID)
}

// WaitForOrchestration blocks until the instance reaches a terminal state
// or ctx is done. The instance must already exist.
func (c *Client) WaitForOrchestration(ctx context.Context, instanceID string) (*history.InstanceInfo, error) {
	var ch chan *history.InstanceInfo
	if c.notifier != nil {
		ch = c.notifier.Register(instanceID)
		defer c.notifier.Unregister(instanceID, ch)
	}

	// Check after registering so a completion between the lookup and the
	// registration cannot be missed.
	info, err := c.store.GetInstanceInfo(instanceID)
	if err != nil {
		return nil, err
	}
	if isTerminal(info.Status) {
		return info, nil
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case info := <-ch:
			return info, nil
		case <-ticker.C:
			info, err := c.store.GetInstanceInfo(instanceID)
			if err != nil {
				return nil, err
			}
			if isTerminal(info.Status) {
				return info, nil
			}
		}
	}
}

func isTerminal(s history.Status) bool {
	return s == history.StatusCompleted || s == history.StatusFailed
}

func marshalInput(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input: %w", err)
	}
	return b, nil
}
