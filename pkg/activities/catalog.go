package activities

import (
	"encoding/json"
	"errors"

	"github.com/paddockdb/paddock/pkg/cms"
	"github.com/paddockdb/paddock/pkg/runtime"
	"github.com/paddockdb/paddock/pkg/types"
	"github.com/paddockdb/paddock/pkg/workflow"
)

// createInstanceRecord reserves the catalog row and the DNS name for a
// create orchestration. A DNS name held by someone else comes back as a
// conflict error so the workflow fails instead of retrying forever.
func (d *Deps) createInstanceRecord(ctx *runtime.ActivityContext, input json.RawMessage) (json.RawMessage, error) {
	var in CreateRecordInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, workflow.Fatalf("decode cms-create-instance-record input: %v", err)
	}
	if in.K8sName == "" || in.OrchestrationID == "" {
		return nil, workflow.Fatalf("cms-create-instance-record requires k8s_name and orchestration_id")
	}

	id, err := d.Catalog.ReserveInstance(ctx, cms.ReserveInstanceParams{
		UserName:        in.UserName,
		K8sName:         in.K8sName,
		Namespace:       in.Namespace,
		PostgresVersion: in.PostgresVersion,
		StorageSizeGB:   in.StorageSizeGB,
		UseLoadBalancer: in.UseLoadBalancer,
		DNSName:         in.DNSName,
		OrchestrationID: in.OrchestrationID,
	})
	if err != nil {
		var conflict *cms.DNSConflictError
		if errors.As(err, &conflict) {
			return nil, workflow.Conflictf("%s", conflict.Error())
		}
		return nil, err
	}
	return marshal(CreateRecordOutput{InstanceID: id})
}

func (d *Deps) updateInstanceState(ctx *runtime.ActivityContext, input json.RawMessage) (json.RawMessage, error) {
	var in UpdateStateInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, workflow.Fatalf("decode cms-update-instance-state input: %v", err)
	}
	state := types.InstanceState(in.State)
	switch state {
	case types.InstanceStateCreating, types.InstanceStateRunning, types.InstanceStateFailed,
		types.InstanceStateDeleting, types.InstanceStateDeleted:
	default:
		return nil, workflow.Fatalf("unknown instance state '%s'", in.State)
	}

	updated, previous, err := d.Catalog.UpdateInstanceState(ctx, cms.UpdateInstanceStateParams{
		K8sName:               in.K8sName,
		State:                 state,
		Message:               in.Message,
		IPConnectionString:    in.IPConnectionString,
		DNSConnectionString:   in.DNSConnectionString,
		ExternalIP:            in.ExternalIP,
		DeleteOrchestrationID: in.DeleteOrchestrationID,
	})
	if err != nil {
		return nil, err
	}
	return marshal(UpdateStateOutput{Updated: updated, PreviousState: string(previous)})
}

func (d *Deps) freeDNSName(ctx *runtime.ActivityContext, input json.RawMessage) (json.RawMessage, error) {
	var in FreeDNSNameInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, workflow.Fatalf("decode cms-free-dns-name input: %v", err)
	}
	freed, err := d.Catalog.FreeDNSName(ctx, in.K8sName)
	if err != nil {
		return nil, err
	}
	return marshal(FreeDNSNameOutput{Freed: freed})
}

func (d *Deps) getInstanceByK8sName(ctx *runtime.ActivityContext, input json.RawMessage) (json.RawMessage, error) {
	var in GetInstanceInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, workflow.Fatalf("decode cms-get-instance-by-k8s-name input: %v", err)
	}
	inst, err := d.Catalog.GetInstanceByK8sName(ctx, in.K8sName)
	if errors.Is(err, cms.ErrNotFound) {
		return marshal(GetInstanceOutput{Found: false})
	}
	if err != nil {
		return nil, err
	}
	return marshal(GetInstanceOutput{Found: true, Instance: inst})
}

func (d *Deps) getInstanceConnection(ctx *runtime.ActivityContext, input json.RawMessage) (json.RawMessage, error) {
	var in GetConnectionInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, workflow.Fatalf("decode cms-get-instance-connection input: %v", err)
	}
	info, err := d.Catalog.GetInstanceConnection(ctx, in.K8sName)
	if errors.Is(err, cms.ErrNotFound) {
		return marshal(GetConnectionOutput{Found: false})
	}
	if err != nil {
		return nil, err
	}
	return marshal(GetConnectionOutput{
		Found:            true,
		ConnectionString: info.ConnectionString,
		State:            info.State,
	})
}

func (d *Deps) recordHealthCheck(ctx *runtime.ActivityContext, input json.RawMessage) (json.RawMessage, error) {
	var in RecordHealthCheckInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, workflow.Fatalf("decode cms-record-health-check input: %v", err)
	}
	status, err := parseHealthStatus(in.Status)
	if err != nil {
		return nil, err
	}
	id, recorded, err := d.Catalog.RecordHealthCheck(ctx, cms.HealthCheckParams{
		K8sName:         in.K8sName,
		Status:          status,
		PostgresVersion: in.PostgresVersion,
		ResponseTimeMS:  in.ResponseTimeMS,
		ErrorMessage:    in.ErrorMessage,
	})
	if err != nil {
		return nil, err
	}
	return marshal(RecordHealthCheckOutput{Recorded: recorded, CheckID: id})
}

func (d *Deps) updateInstanceHealth(ctx *runtime.ActivityContext, input json.RawMessage) (json.RawMessage, error) {
	var in UpdateHealthInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, workflow.Fatalf("decode cms-update-instance-health input: %v", err)
	}
	status, err := parseHealthStatus(in.Status)
	if err != nil {
		return nil, err
	}
	updated, err := d.Catalog.UpdateInstanceHealth(ctx, in.K8sName, status)
	if err != nil {
		return nil, err
	}
	return marshal(UpdateHealthOutput{Updated: updated})
}

func (d *Deps) recordInstanceActor(ctx *runtime.ActivityContext, input json.RawMessage) (json.RawMessage, error) {
	var in RecordActorInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, workflow.Fatalf("decode cms-record-instance-actor input: %v", err)
	}
	if in.OrchestrationID == "" {
		return nil, workflow.Fatalf("cms-record-instance-actor requires orchestration_id")
	}
	recorded, err := d.Catalog.RecordInstanceActor(ctx, in.K8sName, in.OrchestrationID)
	if err != nil {
		return nil, err
	}
	return marshal(RecordActorOutput{Recorded: recorded})
}

func (d *Deps) deleteInstanceRecord(ctx *runtime.ActivityContext, input json.RawMessage) (json.RawMessage, error) {
	var in DeleteRecordInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, workflow.Fatalf("decode cms-delete-instance-record input: %v", err)
	}
	deleted, err := d.Catalog.DeleteInstanceRecord(ctx, in.K8sName)
	if err != nil {
		return nil, err
	}
	return marshal(DeleteRecordOutput{Deleted: deleted})
}

func parseHealthStatus(s string) (types.HealthStatus, error) {
	status := types.HealthStatus(s)
	switch status {
	case types.HealthUnknown, types.HealthHealthy, types.HealthUnhealthy:
		return status, nil
	default:
		return "", workflow.Fatalf("unknown health status '%s'", s)
	}
}
