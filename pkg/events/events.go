// Package events defines event types and structures for workflow lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every lifecycle event.
const Topic = "stepflow.events"

// MessagesTopic carries messages handed to the event bus dispatcher.
const MessagesTopic = "stepflow.messages"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Instance lifecycle events.
	InstanceCreatedEvent    EventType = "instance.created"
	InstanceAdvancedEvent   EventType = "instance.advanced"
	InstanceCompletedEvent  EventType = "instance.completed"
	InstanceTerminatedEvent EventType = "instance.terminated"
	StepFailedEvent         EventType = "step.failed"

	// Definition lifecycle events.
	DefinitionPublishedEvent EventType = "definition.published"
	DefinitionArchivedEvent  EventType = "definition.archived"

	// MessageDispatchedEvent carries a rendered message step to downstream senders.
	MessageDispatchedEvent EventType = "message.dispatched"
)

type BaseEvent struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	DefinitionID string         `json:"definition_id,omitempty"`
	InstanceID   string         `json:"instance_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, definitionID, instanceID string) BaseEvent {
	return BaseEvent{
		ID:           uuid.New().String(),
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		DefinitionID: definitionID,
		InstanceID:   instanceID,
		Metadata:     make(map[string]any),
	}
}

// Base returns the envelope shared by every event.
func (e BaseEvent) Base() BaseEvent {
	return e
}

type InstanceCreated struct {
	BaseEvent

	CurrentStepID string `json:"current_step_id"`
}

func (e InstanceCreated) GetType() EventType {
	return InstanceCreatedEvent
}

// InstanceAdvanced is published after an instance moves to its next step.
type InstanceAdvanced struct {
	BaseEvent

	FromStepID string     `json:"from_step_id"`
	ToStepID   string     `json:"to_step_id"`
	ActorID    string     `json:"actor_id,omitempty"`
	Fallback   bool       `json:"fallback,omitempty"`
	NotBefore  *time.Time `json:"not_before,omitempty"`
}

func (e InstanceAdvanced) GetType() EventType {
	return InstanceAdvancedEvent
}

type InstanceCompleted struct {
	BaseEvent

	FinalStepID string `json:"final_step_id"`
	ActorID     string `json:"actor_id,omitempty"`
}

func (e InstanceCompleted) GetType() EventType {
	return InstanceCompletedEvent
}

type InstanceTerminated struct {
	BaseEvent

	StepID  string `json:"step_id"`
	ActorID string `json:"actor_id,omitempty"`
	Comment string `json:"comment,omitempty"`
}

func (e InstanceTerminated) GetType() EventType {
	return InstanceTerminatedEvent
}

// StepFailed is published when a step fails and no error handler recovers it.
type StepFailed struct {
	BaseEvent

	StepID   string `json:"step_id"`
	StepName string `json:"step_name"`
	Error    string `json:"error"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}

type DefinitionPublished struct {
	BaseEvent

	Name    string `json:"name"`
	Version string `json:"version"`
}

func (e DefinitionPublished) GetType() EventType {
	return DefinitionPublishedEvent
}

type DefinitionArchived struct {
	BaseEvent

	Name string `json:"name"`
}

func (e DefinitionArchived) GetType() EventType {
	return DefinitionArchivedEvent
}

type MessageDispatched struct {
	BaseEvent

	Channel    string   `json:"channel"`
	Message    string   `json:"message"`
	Recipients []string `json:"recipients"`
}

func (e MessageDispatched) GetType() EventType {
	return MessageDispatchedEvent
}

// New returns an empty event of the given type to decode a payload into,
// or nil for unknown types.
func New(eventType EventType) any {
	switch eventType {
	case InstanceCreatedEvent:
		return &InstanceCreated{}
	case InstanceAdvancedEvent:
		return &InstanceAdvanced{}
	case InstanceCompletedEvent:
		return &InstanceCompleted{}
	case InstanceTerminatedEvent:
		return &InstanceTerminated{}
	case StepFailedEvent:
		return &StepFailed{}
	case DefinitionPublishedEvent:
		return &DefinitionPublished{}
	case DefinitionArchivedEvent:
		return &DefinitionArchived{}
	case MessageDispatchedEvent:
		return &MessageDispatched{}
	default:
		return nil
	}
}
