/*
Package activities implements the side-effecting handlers that
orchestration workflows schedule. Workflows stay deterministic; every
Kubernetes call, catalog write and connection probe lives here and runs
at-least-once on the activity worker pool.

Handlers split into two groups. The kubernetes group (deploy-postgres,
delete-postgres, wait-for-ready, get-connection-strings,
test-connection, raise-event) talks to the cluster and to the
provisioned servers. The cms group (cms-create-instance-record,
cms-update-instance-state, cms-free-dns-name and friends) wraps one
catalog operation each, so a workflow records catalog state changes in
its history exactly like any other side effect.

Because delivery is at-least-once, every handler is written to be
idempotent: deploys use server-side apply semantics, deletes treat
NotFound as success, catalog updates are conditional on the current
state and report whether they applied. Errors returned with
workflow.Conflictf or workflow.Fatalf stop retry policies; anything
else is considered transient.

Deps carries the shared dependencies (kube client, catalog, event
raiser) plus the real-time poll knobs tests shrink. Register binds each
name in names.go to its handler; the names are part of recorded
histories and must never change.
*/
package activities
