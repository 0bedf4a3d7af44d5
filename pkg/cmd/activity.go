package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
)

var activityEvents = []events.EventType{
	events.InstanceCreatedEvent,
	events.InstanceAdvancedEvent,
	events.InstanceCompletedEvent,
	events.InstanceTerminatedEvent,
	events.StepFailedEvent,
	events.DefinitionPublishedEvent,
	events.DefinitionArchivedEvent,
	events.MessageDispatchedEvent,
}

type baseEventer interface {
	Base() events.BaseEvent
}

// SubscribeActivityLog registers a handler that logs every lifecycle event the bus
// delivers and starts consuming. Consumption stops when ctx ends or the bus closes.
func SubscribeActivityLog(ctx context.Context, bus eventbus.EventSubscriber, logger *slog.Logger) error {
	handler := activityHandler(logger.With("module", "activity"))

	for _, eventType := range activityEvents {
		if err := bus.Handle(eventType, handler); err != nil {
			return fmt.Errorf("failed to handle %s: %w", eventType, err)
		}
	}

	if err := bus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe activity log: %w", err)
	}

	return nil
}

func activityHandler(logger *slog.Logger) eventbus.EventHandler {
	return func(ctx context.Context, event any) error {
		base, ok := event.(baseEventer)
		if !ok {
			logger.WarnContext(ctx, "unexpected event payload", "payload_type", fmt.Sprintf("%T", event))

			return nil
		}

		e := base.Base()
		logger.InfoContext(ctx, "workflow activity",
			"event_id", e.ID,
			"event_type", e.Type,
			"definition_id", e.DefinitionID,
			"instance_id", e.InstanceID,
			"timestamp", e.Timestamp)

		return nil
	}
}
