package metrics

import (
	"context"
	"time"
)

// QueueStats reports pending work in the durable store.
type QueueStats interface {
	QueueDepths() (orchestrator int, activity int, err error)
}

// StateCounter reports catalog instances grouped by lifecycle state.
type StateCounter interface {
	CountInstancesByState(ctx context.Context) (map[string]int, error)
}

// Collector periodically samples queue depths and catalog state counts into
// gauges. Counters are incremented inline by the runtime and API layers.
type Collector struct {
	queues   QueueStats
	catalog  StateCounter
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector. catalog may be nil when the control
// plane runs without a catalog database.
func NewCollector(queues QueueStats, catalog StateCounter) *Collector {
	return &Collector{
		queues:   queues,
		catalog:  catalog,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectQueueMetrics()
	c.collectInstanceMetrics()
}

func (c *Collector) collectQueueMetrics() {
	if c.queues == nil {
		return
	}
	orch, act, err := c.queues.QueueDepths()
	if err != nil {
		return
	}
	OrchestratorQueueDepth.Set(float64(orch))
	ActivityQueueDepth.Set(float64(act))
}

func (c *Collector) collectInstanceMetrics() {
	if c.catalog == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	counts, err := c.catalog.CountInstancesByState(ctx)
	if err != nil {
		return
	}
	for state, count := range counts {
		InstancesTotal.WithLabelValues(state).Set(float64(count))
	}
}
