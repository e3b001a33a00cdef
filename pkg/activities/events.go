package activities

import (
	"encoding/json"
	"fmt"

	"github.com/paddockdb/paddock/pkg/runtime"
	"github.com/paddockdb/paddock/pkg/workflow"
)

// raiseEvent delivers an external event into another orchestration,
// typically InstanceDeleted into a health actor. The target may have
// finished already; callers decide whether that matters.
func (d *Deps) raiseEvent(ctx *runtime.ActivityContext, input json.RawMessage) (json.RawMessage, error) {
	var in RaiseEventInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, workflow.Fatalf("decode raise-event input: %v", err)
	}
	if in.TargetInstanceID == "" || in.EventName == "" {
		return nil, workflow.Fatalf("raise-event requires target_instance_id and event_name")
	}

	if err := d.Events.RaiseEvent(in.TargetInstanceID, in.EventName, in.Payload); err != nil {
		return nil, fmt.Errorf("raise event '%s' on '%s': %w", in.EventName, in.TargetInstanceID, err)
	}
	ctx.Logger.Info().
		Str("target", in.TargetInstanceID).
		Str("event", in.EventName).
		Msg("Raised external event")
	return marshal(RaiseEventOutput{Raised: true})
}
