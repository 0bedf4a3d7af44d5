package registry

import (
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
	"github.com/dukex/stepflow/pkg/steps/message"
	"github.com/dukex/stepflow/pkg/steps/passthrough"
	"github.com/dukex/stepflow/pkg/steps/script"
	"github.com/dukex/stepflow/pkg/steps/service"
	"github.com/dukex/stepflow/pkg/steps/task"
	"github.com/dukex/stepflow/pkg/steps/timer"
)

// DefaultStepFactories returns the factories of every built-in step type.
func DefaultStepFactories() []protocol.StepFactory {
	return []protocol.StepFactory{
		passthrough.NewStepFactory(models.StepTypeStart),
		passthrough.NewStepFactory(models.StepTypeEnd),
		passthrough.NewStepFactory(models.StepTypeDecision),
		passthrough.NewStepFactory(models.StepTypeError),
		task.NewStepFactory(),
		service.NewStepFactory(),
		script.NewStepFactory(),
		timer.NewStepFactory(),
		message.NewMessageStepFactory(),
		message.NewNotificationStepFactory(),
	}
}

// RegisterDefaultSteps registers all built-in step handlers with the registry.
func (r *Registry) RegisterDefaultSteps(collaborators protocol.Collaborators) error {
	for _, factory := range DefaultStepFactories() {
		if err := r.RegisterFactory(factory, collaborators); err != nil {
			return err
		}
	}

	return nil
}

// HealthCheck reports whether every built-in step type has a handler.
func (r *Registry) HealthCheck() (string, bool) {
	for _, stepType := range models.KnownStepTypes {
		if !r.IsRegistered(stepType) {
			return "step type " + string(stepType) + " has no handler", false
		}
	}

	return "ok", true
}
