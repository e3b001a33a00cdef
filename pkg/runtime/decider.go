package runtime

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/paddockdb/paddock/pkg/history"
	"github.com/paddockdb/paddock/pkg/metrics"
	"github.com/paddockdb/paddock/pkg/workflow"
)

// decideOne claims one orchestration item and runs a full decision round
// over it: apply the claimed messages to history, replay the workflow, and
// commit the resulting events and work items atomically. Returns false when
// the queue had nothing deliverable.
func (r *Runtime) decideOne(logger zerolog.Logger) (bool, error) {
	item, err := r.store.ClaimOrchestrationItem(r.cfg.LeaseDuration)
	if err != nil {
		return false, fmt.Errorf("failed to claim orchestration item: %w", err)
	}
	if item == nil {
		return false, nil
	}

	metrics.DecisionRoundsTotal.Inc()
	timer := metrics.NewTimer()
	defer func() { timer.ObserveDuration(metrics.DecisionDuration) }()

	if err := r.decide(item, logger); err != nil {
		if errors.Is(err, history.ErrLeaseLost) {
			logger.Warn().Str("instance_id", item.InstanceID).Msg("Lease lost during decision round")
			return true, nil
		}
		if abandonErr := r.store.AbandonOrchestrationItem(item.InstanceID, item.LockToken); abandonErr != nil && !errors.Is(abandonErr, history.ErrLeaseLost) {
			logger.Error().Err(abandonErr).Str("instance_id", item.InstanceID).Msg("Failed to abandon orchestration item")
		}
		return true, err
	}
	return true, nil
}

func (r *Runtime) decide(item *history.OrchestrationItem, logger zerolog.Logger) error {
	info, err := r.store.GetInstanceInfo(item.InstanceID)
	if err != nil {
		return fmt.Errorf("failed to load instance %s: %w", item.InstanceID, err)
	}

	consumed := make([]string, 0, len(item.Messages))
	for _, m := range item.Messages {
		consumed = append(consumed, m.ID)
	}

	// Terminal instances consume their late messages without deciding
	// anything; duplicate completions and stale timers die here.
	if info.Status == history.StatusCompleted || info.Status == history.StatusFailed {
		return r.store.CommitDecisions(&history.DecisionCommit{
			InstanceID:         item.InstanceID,
			ExecutionID:        info.CurrentExecution,
			LockToken:          item.LockToken,
			ConsumedMessageIDs: consumed,
		})
	}

	execID := info.CurrentExecution
	hist, err := r.store.ReadHistory(item.InstanceID, execID)
	if err != nil {
		return fmt.Errorf("failed to read history %s/%d: %w", item.InstanceID, execID, err)
	}

	firstNew := len(hist)
	applied := r.applyMessages(info, hist, item.Messages, logger)
	full := append(hist, applied...)

	res := workflow.Execute(r.workflows, &workflow.Request{
		InstanceID:    item.InstanceID,
		ExecutionID:   execID,
		History:       full,
		FirstNewIndex: firstNew,
		Logger:        logger.With().Str("workflow", info.Name).Str("instance_id", item.InstanceID).Logger(),
	})

	nowMS := r.now().UnixMilli()
	for _, ev := range res.NewEvents {
		if ev.TimestampMS == 0 {
			ev.TimestampMS = nowMS
		}
	}

	commit := &history.DecisionCommit{
		InstanceID:         item.InstanceID,
		ExecutionID:        execID,
		LockToken:          item.LockToken,
		ConsumedMessageIDs: consumed,
		Events:             append(applied, res.NewEvents...),
	}
	r.deriveWork(commit, res.NewEvents, nowMS)

	switch res.Outcome {
	case workflow.OutcomeCompleted:
		commit.Status = history.StatusCompleted
		commit.Output = res.Output
		r.notifyParent(commit, info, history.MessageSubOrchestrationCompleted, res.Output, "")
	case workflow.OutcomeFailed:
		commit.Status = history.StatusFailed
		commit.Error = res.Error
		r.notifyParent(commit, info, history.MessageSubOrchestrationFailed, nil, res.Error)
	case workflow.OutcomeContinuedAsNew:
		commit.ContinueAsNew = &history.Event{
			Kind:        history.KindOrchestrationStarted,
			TimestampMS: nowMS,
			Name:        info.Name,
			Version:     info.Version,
			Input:       res.NewInput,
		}
	}

	if err := r.store.CommitDecisions(commit); err != nil {
		return err
	}
	r.wakeForCommit(commit, nowMS)

	switch res.Outcome {
	case workflow.OutcomeCompleted:
		logger.Info().
			Str("instance_id", item.InstanceID).
			Str("workflow", info.Name).
			Msg("Orchestration completed")
		metrics.OrchestrationsFinishedTotal.WithLabelValues(info.Name, "completed").Inc()
		info.Status = history.StatusCompleted
		info.Output = res.Output
		r.notifier.Notify(info)
	case workflow.OutcomeFailed:
		logger.Warn().
			Str("instance_id", item.InstanceID).
			Str("workflow", info.Name).
			Str("error", res.Error).
			Msg("Orchestration failed")
		metrics.OrchestrationsFinishedTotal.WithLabelValues(info.Name, "failed").Inc()
		info.Status = history.StatusFailed
		info.Error = res.Error
		r.notifier.Notify(info)
	case workflow.OutcomeContinuedAsNew:
		logger.Debug().
			Str("instance_id", item.InstanceID).
			Uint64("execution_id", execID+1).
			Msg("Orchestration continued as new")
	}
	return nil
}

// applyMessages converts deliverable queue messages into history events,
// dropping anything stale or already resolved so replay stays consistent
// under at-least-once delivery.
func (r *Runtime) applyMessages(info *history.InstanceInfo, hist []*history.Event, msgs []*history.Message, logger zerolog.Logger) []*history.Event {
	execID := info.CurrentExecution

	scheduled := make(map[uint64]history.Kind)
	resolved := make(map[uint64]bool)
	for _, ev := range hist {
		switch ev.Kind {
		case history.KindActivityScheduled, history.KindTimerCreated, history.KindSubOrchestrationScheduled:
			scheduled[ev.Seq] = ev.Kind
		case history.KindActivityCompleted, history.KindActivityFailed, history.KindTimerFired,
			history.KindSubOrchestrationCompleted, history.KindSubOrchestrationFailed,
			history.KindExternalEventReceived:
			resolved[ev.Seq] = true
		}
	}

	completion := func(m *history.Message, want history.Kind) bool {
		if m.ExecutionID != execID {
			logger.Debug().
				Str("instance_id", info.InstanceID).
				Uint64("message_execution_id", m.ExecutionID).
				Uint64("current_execution_id", execID).
				Str("type", string(m.Type)).
				Msg("Dropping message for stale execution")
			return false
		}
		if scheduled[m.Seq] != want || resolved[m.Seq] {
			return false
		}
		resolved[m.Seq] = true
		return true
	}

	nowMS := r.now().UnixMilli()
	var applied []*history.Event
	for _, m := range msgs {
		switch m.Type {
		case history.MessageStart:
			// Wakes the decider; the start event is already in history.
		case history.MessageExternalEvent:
			applied = append(applied, &history.Event{
				Kind:        history.KindExternalEventRaised,
				TimestampMS: nowMS,
				Name:        m.Name,
				Payload:     m.Payload,
			})
		case history.MessageActivityCompleted:
			if completion(m, history.KindActivityScheduled) {
				applied = append(applied, &history.Event{
					Kind: history.KindActivityCompleted, TimestampMS: nowMS, Seq: m.Seq, Output: m.Output,
				})
			}
		case history.MessageActivityFailed:
			if completion(m, history.KindActivityScheduled) {
				applied = append(applied, &history.Event{
					Kind: history.KindActivityFailed, TimestampMS: nowMS, Seq: m.Seq, Error: m.Error,
				})
			}
		case history.MessageActivityTimeout:
			if completion(m, history.KindActivityScheduled) {
				applied = append(applied, &history.Event{
					Kind: history.KindActivityFailed, TimestampMS: nowMS, Seq: m.Seq, Error: workflow.TimeoutError,
				})
			}
		case history.MessageTimerFired:
			if completion(m, history.KindTimerCreated) {
				applied = append(applied, &history.Event{
					Kind: history.KindTimerFired, TimestampMS: nowMS, Seq: m.Seq,
				})
			}
		case history.MessageSubOrchestrationCompleted:
			if completion(m, history.KindSubOrchestrationScheduled) {
				applied = append(applied, &history.Event{
					Kind: history.KindSubOrchestrationCompleted, TimestampMS: nowMS, Seq: m.Seq, Output: m.Output,
				})
			}
		case history.MessageSubOrchestrationFailed:
			if completion(m, history.KindSubOrchestrationScheduled) {
				applied = append(applied, &history.Event{
					Kind: history.KindSubOrchestrationFailed, TimestampMS: nowMS, Seq: m.Seq, Error: m.Error,
				})
			}
		default:
			logger.Warn().Str("type", string(m.Type)).Msg("Dropping message of unknown type")
		}
	}
	return applied
}

// deriveWork turns this round's new scheduling events into queue entries:
// activity tasks, timer and timeout wakeups, and child starts.
func (r *Runtime) deriveWork(commit *history.DecisionCommit, events []*history.Event, nowMS int64) {
	for _, ev := range events {
		switch ev.Kind {
		case history.KindActivityScheduled:
			commit.ActivityTasks = append(commit.ActivityTasks, &history.ActivityTask{
				InstanceID:  commit.InstanceID,
				ExecutionID: commit.ExecutionID,
				Seq:         ev.Seq,
				Name:        ev.Name,
				Input:       ev.Input,
				Attempt:     ev.Attempt,
			})
			if ev.TimeoutMS > 0 {
				commit.Messages = append(commit.Messages, &history.Message{
					Type:        history.MessageActivityTimeout,
					InstanceID:  commit.InstanceID,
					ExecutionID: commit.ExecutionID,
					Seq:         ev.Seq,
					VisibleAtMS: nowMS + ev.TimeoutMS,
				})
			}
		case history.KindTimerCreated:
			commit.Messages = append(commit.Messages, &history.Message{
				Type:        history.MessageTimerFired,
				InstanceID:  commit.InstanceID,
				ExecutionID: commit.ExecutionID,
				Seq:         ev.Seq,
				VisibleAtMS: ev.FireAtMS,
			})
		case history.KindSubOrchestrationScheduled:
			child := &history.StartRequest{
				InstanceID: ev.ChildInstanceID,
				Name:       ev.Name,
				Input:      ev.Input,
			}
			if !ev.Detached {
				child.ParentInstanceID = commit.InstanceID
				child.ParentExecutionID = commit.ExecutionID
				child.ParentSeq = ev.Seq
			}
			commit.StartChildren = append(commit.StartChildren, child)
		}
	}
}

// wakeForCommit pokes idle workers for the work a commit just enqueued.
// Future-visible messages (timers, timeout wakeups) are skipped; polling
// picks those up once they become deliverable.
func (r *Runtime) wakeForCommit(commit *history.DecisionCommit, nowMS int64) {
	if len(commit.ActivityTasks) > 0 {
		r.notifier.WakeActivities()
	}
	if len(commit.StartChildren) > 0 || commit.ContinueAsNew != nil {
		r.notifier.WakeOrchestrator()
		return
	}
	for _, m := range commit.Messages {
		if m.VisibleAtMS <= nowMS {
			r.notifier.WakeOrchestrator()
			return
		}
	}
}

// notifyParent enqueues the sub-orchestration completion message for the
// awaiting parent execution, if any.
func (r *Runtime) notifyParent(commit *history.DecisionCommit, info *history.InstanceInfo, mtype history.MessageType, output []byte, errMsg string) {
	if info.ParentInstanceID == "" {
		return
	}
	commit.Messages = append(commit.Messages, &history.Message{
		Type:        mtype,
		InstanceID:  info.ParentInstanceID,
		ExecutionID: info.ParentExecutionID,
		Seq:         info.ParentSeq,
		Output:      output,
		Error:       errMsg,
	})
}
