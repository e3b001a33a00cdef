package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Orchestration metrics
	OrchestrationsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paddock_orchestrations_started_total",
			Help: "Total number of orchestrations started by workflow",
		},
		[]string{"workflow"},
	)

	OrchestrationsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paddock_orchestrations_finished_total",
			Help: "Total number of orchestrations that reached a terminal state by workflow and outcome",
		},
		[]string{"workflow", "outcome"},
	)

	DecisionRoundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "paddock_decision_rounds_total",
			Help: "Total number of decision rounds executed",
		},
	)

	DecisionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "paddock_decision_duration_seconds",
			Help:    "Decision round duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Activity metrics
	ActivityExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paddock_activity_executions_total",
			Help: "Total number of activity executions by activity and outcome",
		},
		[]string{"activity", "outcome"},
	)

	ActivityDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paddock_activity_duration_seconds",
			Help:    "Activity execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"activity"},
	)

	// Queue metrics
	OrchestratorQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "paddock_orchestrator_queue_depth",
			Help: "Number of pending orchestrator queue messages",
		},
	)

	ActivityQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "paddock_activity_queue_depth",
			Help: "Number of pending activity tasks",
		},
	)

	LeasesReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "paddock_leases_reclaimed_total",
			Help: "Total number of expired leases and stale task locks reclaimed",
		},
	)

	// Catalog metrics
	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "paddock_instances_total",
			Help: "Number of catalog instances by lifecycle state",
		},
		[]string{"state"},
	)

	HealthChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paddock_health_checks_total",
			Help: "Total number of instance health checks by result",
		},
		[]string{"status"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paddock_api_requests_total",
			Help: "Total number of API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paddock_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(OrchestrationsStartedTotal)
	prometheus.MustRegister(OrchestrationsFinishedTotal)
	prometheus.MustRegister(DecisionRoundsTotal)
	prometheus.MustRegister(DecisionDuration)
	prometheus.MustRegister(ActivityExecutionsTotal)
	prometheus.MustRegister(ActivityDuration)
	prometheus.MustRegister(OrchestratorQueueDepth)
	prometheus.MustRegister(ActivityQueueDepth)
	prometheus.MustRegister(LeasesReclaimedTotal)
	prometheus.MustRegister(InstancesTotal)
	prometheus.MustRegister(HealthChecksTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
