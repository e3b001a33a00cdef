package orchestrations

import (
	"fmt"

	"github.com/paddockdb/paddock/pkg/activities"
	"github.com/paddockdb/paddock/pkg/types"
	"github.com/paddockdb/paddock/pkg/workflow"
)

// deleteInstance tears an instance down: mark the row deleting, remove
// the Kubernetes resources, signal the health actor, then retire the
// catalog record. Every catalog write is best-effort so a half-deleted
// instance can always be deleted again.
func deleteInstance(Options) workflow.Func {
	return func(ctx *workflow.Context) (any, error) {
		var in types.DeleteInstanceInput
		if err := ctx.Input(&in); err != nil {
			return nil, fmt.Errorf("decode delete input: %w", err)
		}
		if in.Namespace == "" {
			in.Namespace = types.DefaultNamespace
		}
		logger := ctx.Logger()
		logger.Info().Str("k8s_name", in.Name).Msg("Deleting instance")

		// Capture the actor id before the record goes away.
		var lookup activities.GetInstanceOutput
		if err := ctx.ScheduleActivity(activities.CMSGetInstanceByK8sName, activities.GetInstanceInput{
			K8sName: in.Name,
		}).Get(&lookup); err != nil {
			return nil, err
		}
		var actorID string
		if lookup.Found && lookup.Instance != nil && lookup.Instance.InstanceActorOrchestrationID != nil {
			actorID = *lookup.Instance.InstanceActorOrchestrationID
		}

		if lookup.Found {
			message := "Deletion requested"
			deleteID := ctx.InstanceID()
			if err := ctx.ScheduleActivity(activities.CMSUpdateInstanceState, activities.UpdateStateInput{
				K8sName:               in.Name,
				State:                 string(types.InstanceStateDeleting),
				Message:               &message,
				DeleteOrchestrationID: &deleteID,
			}).Get(nil); err != nil {
				logger.Warn().Err(err).Msg("Could not mark instance deleting")
			}
		}

		var removal activities.DeletePostgresOutput
		if err := ctx.ScheduleActivity(activities.DeletePostgres, activities.DeletePostgresInput{
			InstanceName: in.Name,
			Namespace:    in.Namespace,
		}).Get(&removal); err != nil {
			return nil, err
		}

		if actorID != "" {
			// Best-effort: the actor may have exited on its own already.
			if err := ctx.ScheduleActivity(activities.RaiseEvent, activities.RaiseEventInput{
				TargetInstanceID: actorID,
				EventName:        types.InstanceDeletedEvent,
			}).Get(nil); err != nil {
				logger.Warn().Err(err).Str("actor", actorID).Msg("Could not signal instance actor")
			}
		}

		message := fmt.Sprintf("Deleted (resources deleted: %t)", removal.ResourcesDeleted)
		if err := ctx.ScheduleActivity(activities.CMSUpdateInstanceState, activities.UpdateStateInput{
			K8sName: in.Name,
			State:   string(types.InstanceStateDeleted),
			Message: &message,
		}).Get(nil); err != nil {
			logger.Warn().Err(err).Msg("Could not mark instance deleted")
		}

		if err := ctx.ScheduleActivity(activities.CMSDeleteInstanceRecord, activities.DeleteRecordInput{
			K8sName: in.Name,
		}).Get(nil); err != nil {
			logger.Warn().Err(err).Msg("Could not delete instance record")
		}

		if err := ctx.ScheduleActivity(activities.CMSFreeDNSName, activities.FreeDNSNameInput{
			K8sName: in.Name,
		}).Get(nil); err != nil {
			logger.Warn().Err(err).Msg("Could not free DNS name")
		}

		logger.Info().
			Str("k8s_name", in.Name).
			Bool("resources_deleted", removal.ResourcesDeleted).
			Msg("Instance deleted")

		return &types.DeleteInstanceOutput{
			InstanceName: in.Name,
			Deleted:      removal.ResourcesDeleted,
		}, nil
	}
}
