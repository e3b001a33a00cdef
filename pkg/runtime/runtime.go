package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/paddockdb/paddock/pkg/history"
	"github.com/paddockdb/paddock/pkg/log"
	"github.com/paddockdb/paddock/pkg/metrics"
	"github.com/paddockdb/paddock/pkg/workflow"
)

// Config holds runtime tuning knobs.
type Config struct {
	OrchestrationWorkers int           // concurrent decision loops
	ActivityWorkers      int           // concurrent activity executors
	LeaseDuration        time.Duration // how long a claimed queue item stays locked
	PollInterval         time.Duration // idle wait between queue polls
	SweepInterval        time.Duration // how often expired leases are swept back
}

// DefaultConfig returns production defaults. Activity workers outnumber
// decision workers because activities block on Kubernetes and Postgres
// while decision rounds are pure CPU.
func DefaultConfig() Config {
	return Config{
		OrchestrationWorkers: 4,
		ActivityWorkers:      20,
		LeaseDuration:        5 * time.Minute,
		PollInterval:         100 * time.Millisecond,
		SweepInterval:        30 * time.Second,
	}
}

// Runtime drives orchestrations to completion. It claims orchestration
// items from the store, replays workflow code over persisted history,
// commits the resulting decisions, and executes the activity tasks those
// decisions produce.
type Runtime struct {
	store      history.Store
	workflows  *workflow.Registry
	activities *ActivityRegistry
	notifier   *Notifier
	cfg        Config
	now        func() time.Time
	logger     zerolog.Logger

	// baseCtx is the parent of every activity handler context; Stop
	// cancels it so blocked handlers abort instead of delaying shutdown.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option adjusts runtime construction.
type Option func(*Runtime)

// WithClock overrides the wall clock, used by tests to control time.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) {
		r.now = now
	}
}

// New creates a runtime over the given store and registries. Call Start
// to begin processing.
func New(store history.Store, workflows *workflow.Registry, activities *ActivityRegistry, cfg Config, opts ...Option) *Runtime {
	if cfg.OrchestrationWorkers <= 0 {
		cfg.OrchestrationWorkers = 1
	}
	if cfg.ActivityWorkers <= 0 {
		cfg.ActivityWorkers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 5 * time.Minute
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	r := &Runtime{
		store:      store,
		workflows:  workflows,
		activities: activities,
		notifier:   NewNotifier(),
		cfg:        cfg,
		now:        time.Now,
		logger:     log.WithComponent("runtime"),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Notifier exposes instance completion notifications, used by the client
// to wait for terminal states without polling.
func (r *Runtime) Notifier() *Notifier {
	return r.notifier
}

// Start launches the decision loops, activity workers and the lease
// sweeper. It returns immediately; processing continues until Stop.
func (r *Runtime) Start() {
	r.logger.Info().
		Int("orchestration_workers", r.cfg.OrchestrationWorkers).
		Int("activity_workers", r.cfg.ActivityWorkers).
		Dur("lease_duration", r.cfg.LeaseDuration).
		Msg("Starting orchestration runtime")

	for i := 0; i < r.cfg.OrchestrationWorkers; i++ {
		r.wg.Add(1)
		go r.deciderLoop(i)
	}
	for i := 0; i < r.cfg.ActivityWorkers; i++ {
		r.wg.Add(1)
		go r.activityLoop(i)
	}
	if r.cfg.SweepInterval > 0 {
		r.wg.Add(1)
		go r.sweeperLoop()
	}

	metrics.SetComponent("runtime", true, "")
}

// Stop shuts the runtime down and waits for in-flight work to finish.
// Activity handlers see their context cancelled; a handler that aborts
// leaves its task locked, and the lease expiry re-delivers it after the
// next start.
func (r *Runtime) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.baseCancel()
	})
	r.wg.Wait()
	metrics.SetComponent("runtime", false, "stopped")
	r.logger.Info().Msg("Orchestration runtime stopped")
}

// deciderLoop polls the orchestration queue. After a successful round it
// polls again immediately since more work is likely batched behind it;
// when idle it sleeps until the poll interval or a wake signal.
func (r *Runtime) deciderLoop(id int) {
	defer r.wg.Done()

	logger := r.logger.With().Int("decider", id).Logger()
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		worked, err := r.decideOne(logger)
		if err != nil {
			logger.Error().Err(err).Msg("Decision round failed")
		}
		if worked {
			continue
		}

		select {
		case <-r.stopCh:
			return
		case <-r.notifier.OrchestratorWake():
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

// activityLoop polls the activity queue and executes claimed tasks.
func (r *Runtime) activityLoop(id int) {
	defer r.wg.Done()

	logger := r.logger.With().Int("worker", id).Logger()
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		worked, err := r.executeOne(logger)
		if err != nil {
			logger.Error().Err(err).Msg("Activity execution round failed")
		}
		if worked {
			continue
		}

		select {
		case <-r.stopCh:
			return
		case <-r.notifier.ActivityWake():
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

// sweeperLoop returns work items whose worker died mid-lease to the
// queues.
func (r *Runtime) sweeperLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := r.store.ReclaimExpiredLeases()
			if err != nil {
				r.logger.Error().Err(err).Msg("Lease sweep failed")
				continue
			}
			if n > 0 {
				metrics.LeasesReclaimedTotal.Add(float64(n))
				r.logger.Warn().Int("reclaimed", n).Msg("Reclaimed expired leases")
				r.notifier.WakeOrchestrator()
				r.notifier.WakeActivities()
			}
		case <-r.stopCh:
			return
		}
	}
}
