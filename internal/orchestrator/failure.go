package orchestrator

import (
	"presentos/internal/model"
	"presentos/internal/notify"
)

func notifyFailure(r model.CapabilityResult) model.Notification {
	n := notify.CapabilityFailure(r.Capability, r.Failure)
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	n.Metadata["step_id"] = r.StepID
	n.Metadata["intent"] = string(r.Intent.Kind)
	return n
}
