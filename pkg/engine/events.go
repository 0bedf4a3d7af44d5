package engine

import (
	"context"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/models"
)

// publish sends a lifecycle event keyed by instance id. Events are published
// after the store write, so a failure is logged and never undoes the operation.
func (e *Engine) publish(ctx context.Context, instanceID string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, instanceID, event); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish event",
			"instance_id", instanceID,
			"event_type", event.GetType(),
			"error", err)
	}
}

func (e *Engine) publishCreated(ctx context.Context, instance *models.WorkflowInstance) {
	e.publish(ctx, instance.ID, events.InstanceCreated{
		BaseEvent:     events.NewBaseEvent(events.InstanceCreatedEvent, instance.DefinitionID, instance.ID),
		CurrentStepID: instance.CurrentStepID,
	})
}

func (e *Engine) publishAdvanced(
	ctx context.Context,
	instance *models.WorkflowInstance,
	from, to *models.WorkflowStep,
	result models.ExecutionResult,
	opts ActionOptions,
) {
	e.publish(ctx, instance.ID, events.InstanceAdvanced{
		BaseEvent:  events.NewBaseEvent(events.InstanceAdvancedEvent, instance.DefinitionID, instance.ID),
		FromStepID: from.ID,
		ToStepID:   to.ID,
		ActorID:    opts.ActorID,
		Fallback:   result.Fallback,
		NotBefore:  instance.NotBefore,
	})
}

func (e *Engine) publishCompleted(
	ctx context.Context,
	instance *models.WorkflowInstance,
	final *models.WorkflowStep,
	opts ActionOptions,
) {
	e.publish(ctx, instance.ID, events.InstanceCompleted{
		BaseEvent:   events.NewBaseEvent(events.InstanceCompletedEvent, instance.DefinitionID, instance.ID),
		FinalStepID: final.ID,
		ActorID:     opts.ActorID,
	})
}

func (e *Engine) publishTerminated(ctx context.Context, instance *models.WorkflowInstance, opts ActionOptions) {
	e.publish(ctx, instance.ID, events.InstanceTerminated{
		BaseEvent: events.NewBaseEvent(events.InstanceTerminatedEvent, instance.DefinitionID, instance.ID),
		StepID:    instance.CurrentStepID,
		ActorID:   opts.ActorID,
		Comment:   opts.Comment,
	})
}

func (e *Engine) publishStepFailed(
	ctx context.Context,
	instance *models.WorkflowInstance,
	step *models.WorkflowStep,
	stepErr error,
) {
	e.publish(ctx, instance.ID, events.StepFailed{
		BaseEvent: events.NewBaseEvent(events.StepFailedEvent, instance.DefinitionID, instance.ID),
		StepID:    step.ID,
		StepName:  step.Name,
		Error:     stepErr.Error(),
	})
}
