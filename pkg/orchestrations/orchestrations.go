package orchestrations

import (
	"fmt"
	"time"

	"github.com/paddockdb/paddock/pkg/workflow"
)

// Workflow names as stored in orchestration histories.
const (
	CreateInstance = "CreateInstance"
	DeleteInstance = "DeleteInstance"
	InstanceActor  = "InstanceActor"
)

// CreateID returns the orchestration id for creating a Kubernetes name.
// Create ids are deterministic so a duplicate request collides instead
// of provisioning twice.
func CreateID(k8sName string) string { return "create-" + k8sName }

// ActorID returns the orchestration id of an instance's health actor.
func ActorID(k8sName string) string { return "actor-" + k8sName }

// DeleteID returns a delete orchestration id. Delete ids carry a
// timestamp so an instance whose first delete failed can be deleted
// again under a fresh id.
func DeleteID(k8sName string, at time.Time) string {
	return fmt.Sprintf("delete-%s-%d", k8sName, at.Unix())
}

// cleanupDeleteID scopes the teardown a failed create runs. It must be
// deterministic because it is chosen inside a replayed workflow.
func cleanupDeleteID(k8sName string) string {
	return fmt.Sprintf("delete-%s-cleanup", k8sName)
}

// Options tune the polling cadences of the workflows. Tests shrink them
// to keep durable timers short.
type Options struct {
	// ReadinessAttempts x ReadinessInterval bounds how long a new
	// instance may take to pass its pod readiness probe.
	ReadinessAttempts int
	ReadinessInterval time.Duration

	// ActorInterval is the pause between health-actor iterations.
	ActorInterval time.Duration
}

// DefaultOptions returns the production cadences: five minutes of
// readiness polling and a thirty-second health cycle.
func DefaultOptions() Options {
	return Options{
		ReadinessAttempts: 60,
		ReadinessInterval: 5 * time.Second,
		ActorInterval:     30 * time.Second,
	}
}

// connectionStringsRetry covers the window between a pod passing its
// readiness probe and the cloud provider assigning a LoadBalancer IP.
var connectionStringsRetry = workflow.RetryPolicy{
	MaxAttempts: 5,
	Backoff:     workflow.BackoffLinear,
	BaseDelay:   2 * time.Second,
	MaxDelay:    10 * time.Second,
	Timeout:     120 * time.Second,
}

// testConnectionRetry covers DNS propagation and first-connection
// flakiness of a fresh server.
var testConnectionRetry = workflow.RetryPolicy{
	MaxAttempts: 5,
	Backoff:     workflow.BackoffExponential,
	BaseDelay:   2 * time.Second,
	Multiplier:  2,
	MaxDelay:    30 * time.Second,
	Timeout:     60 * time.Second,
}

// Register binds the three instance workflows.
func Register(reg *workflow.Registry, opts Options) {
	reg.Register(CreateInstance, createInstance(opts))
	reg.Register(DeleteInstance, deleteInstance(opts))
	reg.Register(InstanceActor, instanceActor(opts))
}
