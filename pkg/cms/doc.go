/*
Package cms is the catalog management system: the PostgreSQL-backed
source of truth for which instances exist, who owns which DNS name, and
what the health history of each instance looks like.

# Schema

All tables live in the paddock_cms schema, created and versioned by
embedded goose migrations (see migrations/):

  - instances: one row per instance, keyed by k8s_name, carrying the
    user-facing name, DNS reservation, state, health, connection
    strings and orchestration id.
  - instance_health_checks: append-only probe results from the
    instance actors.
  - instance_events: state transitions recorded for auditing.

A partial unique index enforces DNS exclusivity among live rows only;
deletion rewrites dns_name to a "__deleted_" prefixed tombstone, so a
name frees up immediately while the historical row survives.

# Semantics

Activity work is delivered at least once, so every write converges
instead of duplicating: ReserveInstance re-returns the existing id when
the same orchestration retries and raises DNSConflictError only when a
different live owner holds the name, UpdateInstanceState applies the
lifecycle transition rules and reports whether anything changed, and
DeleteInstanceRecord treats a missing row as already done.

Lookups return ErrNotFound for missing rows; callers distinguish it
from transport errors with errors.Is. The read side (ListInstances,
FindInstance, GetInstanceConnection, CountInstancesByState) backs both
the HTTP API and the instances-by-state gauge.

Migrate, MigrateDown and MigrationStatus wrap goose for the
paddock-migrate tool; the server itself only verifies the schema
version at startup and refuses to run against a stale catalog.
*/
package cms
