/*
Package orchestrations holds the workflows that manage a PostgreSQL
instance's lifecycle: CreateInstance, DeleteInstance and the long-lived
InstanceActor health monitor.

# Workflows

CreateInstance provisions one instance end to end: reserve the DNS
name, insert the catalog row, create the Kubernetes resources (secret,
statefulset, services), poll pod readiness on a durable timer, resolve
connection strings once the LoadBalancer has an address, verify a real
connection, mark the catalog row running, and finally start the
instance's health actor as a detached child. Any failure flips the row
to failed and runs the delete workflow as a sub-orchestration so no
half-provisioned resources are left behind.

DeleteInstance tears an instance down in the reverse order, tolerating
resources that were never created, then tombstones the DNS reservation
and signals the actor with an InstanceDeleted event so it exits.

InstanceActor performs one probe cycle per execution: read the
connection string from the catalog, test the connection, record the
health check, update the instance's health, then sleep on a durable
timer racing the InstanceDeleted event. Each cycle ends with
ContinueAsNew, so the actor runs for the lifetime of the instance with
a history that never grows past a single iteration.

# Orchestration IDs

Ids are derived from the instance's Kubernetes name. CreateID is
deterministic ("create-mydb-a1b2c3d4") so a duplicate create request
collides on ErrInstanceExists instead of provisioning twice. ActorID
follows the same scheme. DeleteID carries a unix timestamp because a
delete that failed must be retryable under a fresh id.

# Registration

	workflows := workflow.NewRegistry()
	orchestrations.Register(workflows, orchestrations.DefaultOptions())

	acts := runtime.NewActivityRegistry()
	activities.New(kubeClient, catalog, events).Register(acts)

Options carries the polling cadences (readiness attempts and interval,
actor cycle interval); tests shrink them together with the store clock
to run full lifecycles in milliseconds.
*/
package orchestrations
