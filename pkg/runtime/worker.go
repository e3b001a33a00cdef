package runtime

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/paddockdb/paddock/pkg/history"
	"github.com/paddockdb/paddock/pkg/metrics"
	"github.com/paddockdb/paddock/pkg/workflow"
)

// executeOne claims one activity task, runs its handler, and reports the
// result back as a message on the orchestration queue. Returns false when
// the queue had nothing deliverable.
func (r *Runtime) executeOne(logger zerolog.Logger) (bool, error) {
	task, err := r.store.ClaimActivityTask(r.cfg.LeaseDuration)
	if err != nil {
		return false, fmt.Errorf("failed to claim activity task: %w", err)
	}
	if task == nil {
		return false, nil
	}
	r.runActivity(task, logger)
	return true, nil
}

func (r *Runtime) runActivity(task *history.ActivityTask, logger zerolog.Logger) {
	logger = logger.With().
		Str("activity", task.Name).
		Str("instance_id", task.InstanceID).
		Uint64("seq", task.Seq).
		Int("attempt", task.Attempt).
		Logger()

	fn, ok := r.activities.lookup(task.Name)
	if !ok {
		// No handler will ever exist for this name, so retrying is
		// pointless. Fail the activity permanently.
		logger.Error().Msg("No handler registered for activity")
		r.completeTask(task, nil, workflow.Fatalf("unknown activity: %s", task.Name).Error(), logger)
		return
	}

	actx := &ActivityContext{
		Context:    r.baseCtx,
		InstanceID: task.InstanceID,
		Seq:        task.Seq,
		Attempt:    task.Attempt,
		Logger:     logger,
	}

	timer := metrics.NewTimer()
	logger.Debug().Msg("Executing activity")
	output, err := fn(actx, task.Input)
	timer.ObserveDurationVec(metrics.ActivityDuration, task.Name)

	if err != nil {
		if r.baseCtx.Err() != nil {
			// Shutdown interrupted the handler. Leave the task locked;
			// the lease expires and another worker re-executes it.
			logger.Warn().Err(err).Msg("Abandoning activity interrupted by shutdown")
			return
		}
		metrics.ActivityExecutionsTotal.WithLabelValues(task.Name, "failure").Inc()
		logger.Warn().Err(err).Dur("elapsed", timer.Duration()).Msg("Activity failed")
		r.completeTask(task, nil, err.Error(), logger)
		return
	}

	metrics.ActivityExecutionsTotal.WithLabelValues(task.Name, "success").Inc()
	logger.Debug().Dur("elapsed", timer.Duration()).Msg("Activity completed")
	r.completeTask(task, output, "", logger)
}

func (r *Runtime) completeTask(task *history.ActivityTask, output []byte, errMsg string, logger zerolog.Logger) {
	if err := r.store.CompleteActivityTask(task, output, errMsg); err != nil {
		// The lease sweeper will re-deliver the task; the next execution
		// must be idempotent, which activity contracts already require.
		logger.Error().Err(err).Msg("Failed to record activity result")
		return
	}
	// The completion message needs a decision round.
	r.notifier.WakeOrchestrator()
}
