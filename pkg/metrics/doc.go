/*
Package metrics provides Prometheus metrics and health reporting for
Paddock.

All collectors register on the default registry at package init under a
paddock_ prefix and are exported as package-level variables, so any
package can instrument without plumbing a registry around. The HTTP API
serves them at GET /metrics.

# Metrics

Orchestration execution:
  - paddock_orchestrations_started_total{workflow}
  - paddock_orchestrations_finished_total{workflow,outcome}
  - paddock_decision_rounds_total
  - paddock_decision_duration_seconds

Activity execution:
  - paddock_activity_executions_total{activity,outcome}
  - paddock_activity_duration_seconds{activity}

Store and queues:
  - paddock_orchestrator_queue_depth
  - paddock_activity_queue_depth
  - paddock_leases_reclaimed_total

Domain:
  - paddock_instances_total{state}
  - paddock_health_checks_total{status}

HTTP API:
  - paddock_api_requests_total{method,route,status}
  - paddock_api_request_duration_seconds{method,route}

# Periodic Collector

Queue depths and instance-state counts are sampled, not event-driven.
Collector polls the history store and the catalog every 15 seconds and
sets the gauges:

	collector := metrics.NewCollector(store, catalog)
	collector.Start()
	defer collector.Stop()

Either source may be nil; the collector skips what it cannot reach.

# Health Registry

The package also tracks component health for the readiness endpoint.
Components report themselves as they come up and down:

	metrics.SetComponent("runtime", true, "")

GET /ready (ReadyHandler) reports ready only once the store, runtime,
and api components are all registered healthy, which keeps traffic away
until the process can actually serve it. Timer wraps the
start/observe pattern used around decision rounds and activity calls.

# See Also

  - pkg/api for the /metrics and /ready routes
  - pkg/server for collector wiring and component registration
*/
package metrics
