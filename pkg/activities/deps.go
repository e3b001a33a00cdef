package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paddockdb/paddock/pkg/cms"
	"github.com/paddockdb/paddock/pkg/kube"
	"github.com/paddockdb/paddock/pkg/runtime"
	"github.com/paddockdb/paddock/pkg/types"
)

// Catalog is the slice of the CMS store the activities use.
type Catalog interface {
	ReserveInstance(ctx context.Context, params cms.ReserveInstanceParams) (uuid.UUID, error)
	UpdateInstanceState(ctx context.Context, params cms.UpdateInstanceStateParams) (bool, types.InstanceState, error)
	FreeDNSName(ctx context.Context, k8sName string) (bool, error)
	GetInstanceByK8sName(ctx context.Context, k8sName string) (*types.Instance, error)
	GetInstanceConnection(ctx context.Context, k8sName string) (*cms.ConnectionInfo, error)
	RecordHealthCheck(ctx context.Context, params cms.HealthCheckParams) (int64, bool, error)
	UpdateInstanceHealth(ctx context.Context, k8sName string, status types.HealthStatus) (bool, error)
	RecordInstanceActor(ctx context.Context, k8sName, orchestrationID string) (bool, error)
	DeleteInstanceRecord(ctx context.Context, k8sName string) (bool, error)
}

// EventRaiser delivers external events into other orchestrations.
type EventRaiser interface {
	RaiseEvent(instanceID, event string, payload any) error
}

// Deps holds everything the activity handlers touch. The poll knobs are
// exported so tests can shrink the real sleeps the handlers take.
type Deps struct {
	Kube    *kube.Client
	Catalog Catalog
	Events  EventRaiser

	// LBPollAttempts x LBPollInterval bounds the wait for a LoadBalancer
	// ingress IP inside get-connection-strings.
	LBPollAttempts int
	LBPollInterval time.Duration

	// DeletePause separates StatefulSet and PVC deletion so the kubelet
	// can release the volume first.
	DeletePause time.Duration

	// ProbeTimeout bounds a single test-connection attempt.
	ProbeTimeout time.Duration
}

// New builds the activity set with production defaults.
func New(kubeClient *kube.Client, catalog Catalog, events EventRaiser) *Deps {
	return &Deps{
		Kube:           kubeClient,
		Catalog:        catalog,
		Events:         events,
		LBPollAttempts: 10,
		LBPollInterval: 5 * time.Second,
		DeletePause:    5 * time.Second,
		ProbeTimeout:   10 * time.Second,
	}
}

// Register binds every activity name to its handler.
func (d *Deps) Register(reg *runtime.ActivityRegistry) {
	reg.Register(DeployPostgres, d.deployPostgres)
	reg.Register(DeletePostgres, d.deletePostgres)
	reg.Register(WaitForReady, d.waitForReady)
	reg.Register(GetConnectionStrings, d.getConnectionStrings)
	reg.Register(TestConnection, d.testConnection)
	reg.Register(RaiseEvent, d.raiseEvent)

	reg.Register(CMSCreateInstanceRecord, d.createInstanceRecord)
	reg.Register(CMSUpdateInstanceState, d.updateInstanceState)
	reg.Register(CMSFreeDNSName, d.freeDNSName)
	reg.Register(CMSGetInstanceByK8sName, d.getInstanceByK8sName)
	reg.Register(CMSGetInstanceConnection, d.getInstanceConnection)
	reg.Register(CMSRecordHealthCheck, d.recordHealthCheck)
	reg.Register(CMSUpdateInstanceHealth, d.updateInstanceHealth)
	reg.Register(CMSRecordInstanceActor, d.recordInstanceActor)
	reg.Register(CMSDeleteInstanceRecord, d.deleteInstanceRecord)
}

func marshal(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal activity output: %w", err)
	}
	return raw, nil
}

// sleep waits for d or until the activity context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
