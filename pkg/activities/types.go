package activities

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/paddockdb/paddock/pkg/types"
)

// DeployPostgresInput names the instance and its Kubernetes shape.
type DeployPostgresInput struct {
	InstanceName    string `json:"instance_name"`
	Namespace       string `json:"namespace"`
	Password        string `json:"password"`
	PostgresVersion string `json:"postgres_version"`
	StorageSizeGB   int    `json:"storage_size_gb"`
	UseLoadBalancer bool   `json:"use_load_balancer"`
	DNSLabel        string `json:"dns_label,omitempty"`
}

// DeployPostgresOutput reports whether the resources were created now or
// already present from an earlier attempt.
type DeployPostgresOutput struct {
	AlreadyDeployed bool `json:"already_deployed"`
}

type DeletePostgresInput struct {
	InstanceName string `json:"instance_name"`
	Namespace    string `json:"namespace"`
}

// DeletePostgresOutput reports whether any resource actually existed.
type DeletePostgresOutput struct {
	ResourcesDeleted bool `json:"resources_deleted"`
}

type WaitForReadyInput struct {
	InstanceName string `json:"instance_name"`
	Namespace    string `json:"namespace"`
}

// WaitForReadyOutput is a single readiness observation; the workflow owns
// the polling loop.
type WaitForReadyOutput struct {
	Ready bool   `json:"ready"`
	Phase string `json:"phase"`
}

type GetConnectionStringsInput struct {
	InstanceName    string `json:"instance_name"`
	Namespace       string `json:"namespace"`
	Password        string `json:"password"`
	UseLoadBalancer bool   `json:"use_load_balancer"`
	DNSLabel        string `json:"dns_label,omitempty"`
}

type GetConnectionStringsOutput struct {
	IPConnectionString  string `json:"ip_connection_string"`
	DNSConnectionString string `json:"dns_connection_string,omitempty"`
	ExternalIP          string `json:"external_ip,omitempty"`
}

type TestConnectionInput struct {
	InstanceName        string `json:"instance_name"`
	IPConnectionString  string `json:"ip_connection_string,omitempty"`
	DNSConnectionString string `json:"dns_connection_string,omitempty"`
}

type TestConnectionOutput struct {
	Target  string `json:"target"`
	Version string `json:"version,omitempty"`
}

type RaiseEventInput struct {
	TargetInstanceID string          `json:"target_instance_id"`
	EventName        string          `json:"event_name"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

type RaiseEventOutput struct {
	Raised bool `json:"raised"`
}

type CreateRecordInput struct {
	UserName        string  `json:"user_name"`
	K8sName         string  `json:"k8s_name"`
	Namespace       string  `json:"namespace"`
	PostgresVersion string  `json:"postgres_version"`
	StorageSizeGB   int     `json:"storage_size_gb"`
	UseLoadBalancer bool    `json:"use_load_balancer"`
	DNSName         *string `json:"dns_name,omitempty"`
	OrchestrationID string  `json:"orchestration_id"`
}

type CreateRecordOutput struct {
	InstanceID uuid.UUID `json:"instance_id"`
}

type UpdateStateInput struct {
	K8sName               string  `json:"k8s_name"`
	State                 string  `json:"state"`
	Message               *string `json:"message,omitempty"`
	IPConnectionString    *string `json:"ip_connection_string,omitempty"`
	DNSConnectionString   *string `json:"dns_connection_string,omitempty"`
	ExternalIP            *string `json:"external_ip,omitempty"`
	DeleteOrchestrationID *string `json:"delete_orchestration_id,omitempty"`
}

type UpdateStateOutput struct {
	Updated       bool   `json:"updated"`
	PreviousState string `json:"previous_state,omitempty"`
}

type FreeDNSNameInput struct {
	K8sName string `json:"k8s_name"`
}

type FreeDNSNameOutput struct {
	Freed bool `json:"freed"`
}

type GetInstanceInput struct {
	K8sName string `json:"k8s_name"`
}

// GetInstanceOutput carries the catalog row when one exists. A missing
// row is an answer, not a failure.
type GetInstanceOutput struct {
	Found    bool            `json:"found"`
	Instance *types.Instance `json:"instance,omitempty"`
}

type GetConnectionInput struct {
	K8sName string `json:"k8s_name"`
}

type GetConnectionOutput struct {
	Found            bool    `json:"found"`
	ConnectionString *string `json:"connection_string,omitempty"`
	State            string  `json:"state,omitempty"`
}

type RecordHealthCheckInput struct {
	K8sName         string  `json:"k8s_name"`
	Status          string  `json:"status"`
	PostgresVersion *string `json:"postgres_version,omitempty"`
	ResponseTimeMS  *int64  `json:"response_time_ms,omitempty"`
	ErrorMessage    *string `json:"error_message,omitempty"`
}

type RecordHealthCheckOutput struct {
	Recorded bool  `json:"recorded"`
	CheckID  int64 `json:"check_id,omitempty"`
}

type UpdateHealthInput struct {
	K8sName string `json:"k8s_name"`
	Status  string `json:"status"`
}

type UpdateHealthOutput struct {
	Updated bool `json:"updated"`
}

type RecordActorInput struct {
	K8sName         string `json:"k8s_name"`
	OrchestrationID string `json:"orchestration_id"`
}

type RecordActorOutput struct {
	Recorded bool `json:"recorded"`
}

type DeleteRecordInput struct {
	K8sName string `json:"k8s_name"`
}

type DeleteRecordOutput struct {
	Deleted bool `json:"deleted"`
}
