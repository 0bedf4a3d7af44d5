// Package dispatch provides Dispatcher implementations for message and notification steps.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/protocol"
)

// LogDispatcher writes each message to the logger and never fails. A logger
// carried by the context takes precedence.
type LogDispatcher struct {
	logger *slog.Logger
}

var _ protocol.Dispatcher = (*LogDispatcher)(nil)

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.With("module", "dispatch")}
}

func (d *LogDispatcher) Send(ctx context.Context, channel, message string, recipients []string) error {
	attrs := []any{"channel", channel, "recipients", recipients, "message", message}

	logger := log.FromContext(ctx, nil)
	if logger == nil {
		logger = d.logger

		if scope, ok := protocol.ScopeFromContext(ctx); ok {
			attrs = append(attrs, "instance_id", scope.InstanceID, "step_id", scope.StepID)
		}
	}

	logger.InfoContext(ctx, "message dispatched", attrs...)

	return nil
}

// EventDispatcher publishes a MessageDispatched event per message. Delivery to
// the actual channel is left to whoever consumes the messages topic.
type EventDispatcher struct {
	publisher eventbus.EventPublisher
}

var _ protocol.Dispatcher = (*EventDispatcher)(nil)

func NewEventDispatcher(publisher eventbus.EventPublisher) *EventDispatcher {
	return &EventDispatcher{publisher: publisher}
}

func (d *EventDispatcher) Send(ctx context.Context, channel, message string, recipients []string) error {
	scope, _ := protocol.ScopeFromContext(ctx)

	event := events.MessageDispatched{
		BaseEvent:  events.NewBaseEvent(events.MessageDispatchedEvent, scope.DefinitionID, scope.InstanceID),
		Channel:    channel,
		Message:    message,
		Recipients: recipients,
	}

	key := scope.InstanceID
	if key == "" {
		key = channel
	}

	if err := d.publisher.Publish(ctx, key, event); err != nil {
		return fmt.Errorf("failed to publish message on %s: %w", channel, err)
	}

	return nil
}

// MultiDispatcher sends to every dispatcher in order and stops at the first error.
type MultiDispatcher []protocol.Dispatcher

func (m MultiDispatcher) Send(ctx context.Context, channel, message string, recipients []string) error {
	for _, dispatcher := range m {
		if err := dispatcher.Send(ctx, channel, message, recipients); err != nil {
			return err
		}
	}

	return nil
}
