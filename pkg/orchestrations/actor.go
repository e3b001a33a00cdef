package orchestrations

import (
	"fmt"

	"github.com/paddockdb/paddock/pkg/activities"
	"github.com/paddockdb/paddock/pkg/types"
	"github.com/paddockdb/paddock/pkg/workflow"
)

// instanceActor is the long-lived health monitor for one instance. Each
// execution performs a single probe cycle and then continues as new, so
// the history never grows past one iteration. It exits when the catalog
// row disappears or when DeleteInstance raises InstanceDeleted.
func instanceActor(opts Options) workflow.Func {
	return func(ctx *workflow.Context) (any, error) {
		var in types.InstanceActorInput
		if err := ctx.Input(&in); err != nil {
			return nil, fmt.Errorf("decode actor input: %w", err)
		}
		logger := ctx.Logger()

		var conn activities.GetConnectionOutput
		if err := ctx.ScheduleActivity(activities.CMSGetInstanceConnection, activities.GetConnectionInput{
			K8sName: in.K8sName,
		}).Get(&conn); err != nil {
			return nil, err
		}
		if !conn.Found {
			logger.Info().Str("k8s_name", in.K8sName).Msg("Catalog record gone, actor exiting")
			return nil, nil
		}
		if conn.State == string(types.InstanceStateDeleting) || conn.State == string(types.InstanceStateDeleted) {
			logger.Info().Str("k8s_name", in.K8sName).Str("state", conn.State).Msg("Instance is draining")
		}

		if conn.ConnectionString == nil || *conn.ConnectionString == "" {
			// Not provisioned yet; look again next cycle.
			if err := ctx.ScheduleTimer(opts.ActorInterval).Get(nil); err != nil {
				return nil, err
			}
			ctx.ContinueAsNew(in)
		}

		probeStart := ctx.Now()
		var probed activities.TestConnectionOutput
		probeErr := ctx.ScheduleActivity(activities.TestConnection, activities.TestConnectionInput{
			InstanceName:       in.K8sName,
			IPConnectionString: *conn.ConnectionString,
		}).Get(&probed)
		responseTime := ctx.Now().Sub(probeStart).Milliseconds()

		status := types.HealthHealthy
		var version, errMsg *string
		if probeErr != nil {
			status = types.HealthUnhealthy
			msg := probeErr.Error()
			errMsg = &msg
		} else if probed.Version != "" {
			version = &probed.Version
		}

		if err := ctx.ScheduleActivity(activities.CMSRecordHealthCheck, activities.RecordHealthCheckInput{
			K8sName:         in.K8sName,
			Status:          string(status),
			PostgresVersion: version,
			ResponseTimeMS:  &responseTime,
			ErrorMessage:    errMsg,
		}).Get(nil); err != nil {
			logger.Warn().Err(err).Msg("Could not record health check")
		}
		if err := ctx.ScheduleActivity(activities.CMSUpdateInstanceHealth, activities.UpdateHealthInput{
			K8sName: in.K8sName,
			Status:  string(status),
		}).Get(nil); err != nil {
			logger.Warn().Err(err).Msg("Could not update instance health")
		}

		// Sleep out the interval, but wake immediately if deletion signals
		// us. Whichever event lands in history first wins on replay too.
		timer := ctx.ScheduleTimer(opts.ActorInterval)
		deleted := ctx.WaitEvent(types.InstanceDeletedEvent)
		if ctx.Select(timer, deleted) == 1 {
			logger.Info().Str("k8s_name", in.K8sName).Msg("Instance deleted, actor exiting")
			return nil, nil
		}

		ctx.ContinueAsNew(in)
		return nil, nil // unreachable, ContinueAsNew never returns
	}
}
