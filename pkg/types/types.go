package types

import (
	"time"

	"github.com/google/uuid"
)

// InstanceState represents the lifecycle state of a PostgreSQL instance
type InstanceState string

const (
	InstanceStateCreating InstanceState = "creating"
	InstanceStateRunning  InstanceState = "running"
	InstanceStateFailed   InstanceState = "failed"
	InstanceStateDeleting InstanceState = "deleting"
	InstanceStateDeleted  InstanceState = "deleted"
)

// CanTransitionTo reports whether a state change follows one of the two
// allowed chains: creating→running→deleting→deleted or
// creating→failed→deleting→deleted. A state may always re-assert itself.
func (s InstanceState) CanTransitionTo(next InstanceState) bool {
	if s == next {
		return true
	}
	switch s {
	case InstanceStateCreating:
		return next == InstanceStateRunning || next == InstanceStateFailed || next == InstanceStateDeleting
	case InstanceStateRunning:
		return next == InstanceStateDeleting
	case InstanceStateFailed:
		return next == InstanceStateDeleting
	case InstanceStateDeleting:
		return next == InstanceStateDeleted
	case InstanceStateDeleted:
		return false
	}
	return false
}

// HealthStatus represents the last observed health of an instance
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// DeletedDNSPrefix marks a freed DNS reservation while keeping the row for audit
const DeletedDNSPrefix = "__deleted_"

// Instance is the catalog record for a PostgreSQL instance
type Instance struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	UserName        string        `json:"user_name" db:"user_name"`
	K8sName         string        `json:"k8s_name" db:"k8s_name"`
	DNSName         *string       `json:"dns_name,omitempty" db:"dns_name"`
	State           InstanceState `json:"state" db:"state"`
	Health          HealthStatus  `json:"health_status" db:"health_status"`
	Message         *string       `json:"message,omitempty" db:"message"`
	Namespace       string        `json:"namespace" db:"namespace"`
	PostgresVersion string        `json:"postgres_version" db:"postgres_version"`
	StorageSizeGB   int           `json:"storage_size_gb" db:"storage_size_gb"`
	UseLoadBalancer bool          `json:"use_load_balancer" db:"use_load_balancer"`

	IPConnectionString  *string `json:"ip_connection_string,omitempty" db:"ip_connection_string"`
	DNSConnectionString *string `json:"dns_connection_string,omitempty" db:"dns_connection_string"`
	ExternalIP          *string `json:"external_ip,omitempty" db:"external_ip"`

	CreateOrchestrationID        string  `json:"create_orchestration_id" db:"create_orchestration_id"`
	DeleteOrchestrationID        *string `json:"delete_orchestration_id,omitempty" db:"delete_orchestration_id"`
	InstanceActorOrchestrationID *string `json:"instance_actor_orchestration_id,omitempty" db:"instance_actor_orchestration_id"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// HealthCheckRecord is one appended health observation for an instance
type HealthCheckRecord struct {
	ID              int64        `json:"id" db:"id"`
	InstanceID      uuid.UUID    `json:"instance_id" db:"instance_id"`
	Status          HealthStatus `json:"status" db:"status"`
	PostgresVersion *string      `json:"postgres_version,omitempty" db:"postgres_version"`
	ResponseTimeMS  *int64       `json:"response_time_ms,omitempty" db:"response_time_ms"`
	ErrorMessage    *string      `json:"error_message,omitempty" db:"error_message"`
	CheckedAt       time.Time    `json:"checked_at" db:"checked_at"`
}

// InstanceEventRecord is one appended state-change audit entry
type InstanceEventRecord struct {
	ID         int64     `json:"id" db:"id"`
	InstanceID uuid.UUID `json:"instance_id" db:"instance_id"`
	EventType  string    `json:"event_type" db:"event_type"`
	OldState   *string   `json:"old_state,omitempty" db:"old_state"`
	NewState   *string   `json:"new_state,omitempty" db:"new_state"`
	Message    *string   `json:"message,omitempty" db:"message"`
	Metadata   *string   `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// CreateInstanceInput starts a CreateInstance workflow
type CreateInstanceInput struct {
	UserName        string `json:"user_name"`
	K8sName         string `json:"k8s_name"`
	Password        string `json:"password"`
	PostgresVersion string `json:"postgres_version,omitempty"`
	StorageSizeGB   int    `json:"storage_size_gb,omitempty"`
	UseLoadBalancer bool   `json:"use_load_balancer,omitempty"`
	DNSLabel        string `json:"dns_label,omitempty"`
	Namespace       string `json:"namespace,omitempty"`
	OrchestrationID string `json:"orchestration_id"`
}

// CreateInstanceOutput is the terminal result of a successful CreateInstance
type CreateInstanceOutput struct {
	InstanceName        string `json:"instance_name"`
	IPConnectionString  string `json:"ip_connection_string"`
	DNSConnectionString string `json:"dns_connection_string,omitempty"`
	ExternalIP          string `json:"external_ip,omitempty"`
	PostgresVersion     string `json:"postgres_version"`
	DeploySeconds       int64  `json:"deploy_seconds"`
}

// DeleteInstanceInput starts a DeleteInstance workflow
type DeleteInstanceInput struct {
	Name            string `json:"name"`
	Namespace       string `json:"namespace,omitempty"`
	OrchestrationID string `json:"orchestration_id"`
}

// DeleteInstanceOutput is the terminal result of a DeleteInstance
type DeleteInstanceOutput struct {
	InstanceName string `json:"instance_name"`
	Deleted      bool   `json:"deleted"`
}

// InstanceActorInput starts (or continues) an InstanceActor workflow
type InstanceActorInput struct {
	K8sName         string `json:"k8s_name"`
	Namespace       string `json:"namespace,omitempty"`
	OrchestrationID string `json:"orchestration_id"`
}

// InstanceDeletedEvent is the external event name that drains an InstanceActor
const InstanceDeletedEvent = "InstanceDeleted"

// Defaults applied when a create request leaves fields unset
const (
	DefaultPostgresVersion = "18"
	DefaultStorageSizeGB   = 10
	DefaultNamespace       = "paddock"
)
