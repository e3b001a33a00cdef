/*
Package types defines the core data structures shared across Paddock.

This package contains the domain model of the control plane: the catalog
record for a PostgreSQL instance, its lifecycle and health enumerations,
the append-only audit records, and the input/output payloads of the
durable workflows. Every other package builds on these types, so this
package imports nothing from the rest of the tree.

# Core Types

Catalog records:
  - Instance: One PostgreSQL instance, from creation through deletion.
    Carries both identities (user_name as requested, k8s_name with the
    unique suffix), the DNS reservation, connection strings, and the ids
    of the orchestrations that created, monitor, and delete it.
  - HealthCheckRecord: One appended health observation.
  - InstanceEventRecord: One appended state-change audit entry.

Workflow payloads:
  - CreateInstanceInput/Output: Parameters and terminal result of the
    CreateInstance workflow.
  - DeleteInstanceInput/Output: Parameters and terminal result of the
    DeleteInstance workflow.
  - InstanceActorInput: Parameters of the long-running per-instance
    health actor.

Enumerations:
  - InstanceState: creating, running, failed, deleting, deleted.
  - HealthStatus: unknown, healthy, unhealthy.

# State Machine

Instances follow a forward-only state machine:

	creating → running → deleting → deleted
	    ↓                   ↑
	  failed ───────────────┘

CanTransitionTo encodes the allowed edges. A state may re-assert itself
(idempotent workflow retries), and nothing leaves deleted. Activities
that would violate an edge report a conflict instead of writing.

# DNS Reservations

A live instance owns its dns_name exclusively. Deletion frees the name
by prefixing it with DeletedDNSPrefix rather than clearing the column,
which keeps the audit trail while a partial unique index ignores
prefixed rows.

# Serialization

Every type carries both json tags (workflow payloads, API responses)
and db tags (sqlx column mapping). Optional columns use pointers so
NULL survives the round trip.

# See Also

  - pkg/cms for catalog persistence
  - pkg/orchestrations for the workflows these payloads feed
  - pkg/api for the HTTP request/response shapes built on them
*/
package types
