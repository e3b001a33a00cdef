package orchestrations

import (
	"fmt"
	"time"

	"github.com/paddockdb/paddock/pkg/activities"
	"github.com/paddockdb/paddock/pkg/types"
	"github.com/paddockdb/paddock/pkg/workflow"
)

// createInstance provisions a PostgreSQL instance end to end: reserve
// the catalog row, deploy to Kubernetes, wait for readiness, build and
// prove the connection strings, mark the row running and hand the
// instance to a detached health actor. Any failure after the
// reservation runs the cleanup branch, which reuses DeleteInstance as a
// sub-orchestration.
func createInstance(opts Options) workflow.Func {
	return func(ctx *workflow.Context) (any, error) {
		var in types.CreateInstanceInput
		if err := ctx.Input(&in); err != nil {
			return nil, fmt.Errorf("decode create input: %w", err)
		}
		applyCreateDefaults(&in)

		ctx.Logger().Info().
			Str("k8s_name", in.K8sName).
			Str("user_name", in.UserName).
			Str("postgres_version", in.PostgresVersion).
			Msg("Creating instance")

		// Reserve the row and the DNS name before any resources exist. A
		// conflict here fails the workflow with nothing to roll back.
		var dnsName *string
		if in.DNSLabel != "" {
			dnsName = &in.DNSLabel
		}
		var reserved activities.CreateRecordOutput
		err := ctx.ScheduleActivity(activities.CMSCreateInstanceRecord, activities.CreateRecordInput{
			UserName:        in.UserName,
			K8sName:         in.K8sName,
			Namespace:       in.Namespace,
			PostgresVersion: in.PostgresVersion,
			StorageSizeGB:   in.StorageSizeGB,
			UseLoadBalancer: in.UseLoadBalancer,
			DNSName:         dnsName,
			OrchestrationID: in.OrchestrationID,
		}).Get(&reserved)
		if err != nil {
			return nil, err
		}

		out, err := provisionInstance(ctx, opts, in)
		if err != nil {
			cleanupFailedCreate(ctx, in, err)
			return nil, err
		}
		return out, nil
	}
}

func applyCreateDefaults(in *types.CreateInstanceInput) {
	if in.PostgresVersion == "" {
		in.PostgresVersion = types.DefaultPostgresVersion
	}
	if in.StorageSizeGB <= 0 {
		in.StorageSizeGB = types.DefaultStorageSizeGB
	}
	if in.Namespace == "" {
		in.Namespace = types.DefaultNamespace
	}
}

// provisionInstance is the body of the create workflow; every error
// return lands in the cleanup branch.
func provisionInstance(ctx *workflow.Context, opts Options, in types.CreateInstanceInput) (*types.CreateInstanceOutput, error) {
	startedAt := ctx.Now()

	if err := ctx.ScheduleActivity(activities.DeployPostgres, activities.DeployPostgresInput{
		InstanceName:    in.K8sName,
		Namespace:       in.Namespace,
		Password:        in.Password,
		PostgresVersion: in.PostgresVersion,
		StorageSizeGB:   in.StorageSizeGB,
		UseLoadBalancer: in.UseLoadBalancer,
		DNSLabel:        in.DNSLabel,
	}).Get(nil); err != nil {
		return nil, err
	}

	ready := false
	for attempt := 1; attempt <= opts.ReadinessAttempts; attempt++ {
		var status activities.WaitForReadyOutput
		if err := ctx.ScheduleActivity(activities.WaitForReady, activities.WaitForReadyInput{
			InstanceName: in.K8sName,
			Namespace:    in.Namespace,
		}).Get(&status); err != nil {
			return nil, err
		}
		if status.Ready {
			ready = true
			break
		}
		if err := ctx.ScheduleTimer(opts.ReadinessInterval).Get(nil); err != nil {
			return nil, err
		}
	}
	if !ready {
		return nil, fmt.Errorf("instance '%s' did not become ready after %d attempts", in.K8sName, opts.ReadinessAttempts)
	}

	var conns activities.GetConnectionStringsOutput
	if err := connectionStringsRetry.Execute(ctx, activities.GetConnectionStrings, activities.GetConnectionStringsInput{
		InstanceName:    in.K8sName,
		Namespace:       in.Namespace,
		Password:        in.Password,
		UseLoadBalancer: in.UseLoadBalancer,
		DNSLabel:        in.DNSLabel,
	}, &conns); err != nil {
		return nil, err
	}

	if err := testConnectionRetry.Execute(ctx, activities.TestConnection, activities.TestConnectionInput{
		InstanceName:        in.K8sName,
		IPConnectionString:  conns.IPConnectionString,
		DNSConnectionString: conns.DNSConnectionString,
	}, nil); err != nil {
		return nil, err
	}

	readySeconds := int64(ctx.Now().Sub(startedAt) / time.Second)
	message := fmt.Sprintf("Instance ready in %d seconds", readySeconds)
	update := activities.UpdateStateInput{
		K8sName:            in.K8sName,
		State:              string(types.InstanceStateRunning),
		Message:            &message,
		IPConnectionString: &conns.IPConnectionString,
	}
	if conns.DNSConnectionString != "" {
		update.DNSConnectionString = &conns.DNSConnectionString
	}
	if conns.ExternalIP != "" {
		update.ExternalIP = &conns.ExternalIP
	}
	if err := ctx.ScheduleActivity(activities.CMSUpdateInstanceState, update).Get(nil); err != nil {
		return nil, err
	}

	// The actor outlives this workflow; it is started detached and only
	// its id is recorded on the catalog row so deletion can signal it.
	actorID := ActorID(in.K8sName)
	ctx.StartDetached(InstanceActor, actorID, types.InstanceActorInput{
		K8sName:         in.K8sName,
		Namespace:       in.Namespace,
		OrchestrationID: actorID,
	})

	if err := ctx.ScheduleActivity(activities.CMSRecordInstanceActor, activities.RecordActorInput{
		K8sName:         in.K8sName,
		OrchestrationID: actorID,
	}).Get(nil); err != nil {
		return nil, err
	}

	ctx.Logger().Info().
		Str("k8s_name", in.K8sName).
		Int64("seconds", readySeconds).
		Msg("Instance is running")

	return &types.CreateInstanceOutput{
		InstanceName:        in.K8sName,
		IPConnectionString:  conns.IPConnectionString,
		DNSConnectionString: conns.DNSConnectionString,
		ExternalIP:          conns.ExternalIP,
		PostgresVersion:     in.PostgresVersion,
		DeploySeconds:       readySeconds,
	}, nil
}

// cleanupFailedCreate tears down whatever the body managed to build. It
// never fails: each step is best-effort and the original error is what
// the workflow reports.
func cleanupFailedCreate(ctx *workflow.Context, in types.CreateInstanceInput, cause error) {
	logger := ctx.Logger()
	logger.Error().Err(cause).Str("k8s_name", in.K8sName).Msg("Create failed, cleaning up")

	message := cause.Error()
	if err := ctx.ScheduleActivity(activities.CMSUpdateInstanceState, activities.UpdateStateInput{
		K8sName: in.K8sName,
		State:   string(types.InstanceStateFailed),
		Message: &message,
	}).Get(nil); err != nil {
		logger.Warn().Err(err).Msg("Could not mark instance failed")
	}

	if err := ctx.ScheduleActivity(activities.CMSFreeDNSName, activities.FreeDNSNameInput{
		K8sName: in.K8sName,
	}).Get(nil); err != nil {
		logger.Warn().Err(err).Msg("Could not free DNS name")
	}

	cleanupID := cleanupDeleteID(in.K8sName)
	if err := ctx.ScheduleSubOrchestration(DeleteInstance, cleanupID, types.DeleteInstanceInput{
		Name:            in.K8sName,
		Namespace:       in.Namespace,
		OrchestrationID: cleanupID,
	}).Get(nil); err != nil {
		logger.Warn().Err(err).Msg("Cleanup delete failed")
	}
}
