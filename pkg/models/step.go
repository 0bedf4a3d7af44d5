package models

import (
	"encoding/json"
	"fmt"
)

// StepType is the closed set of step type tags understood by the engine.
type StepType string

const (
	StepTypeStart        StepType = "start"
	StepTypeTask         StepType = "task"
	StepTypeService      StepType = "service"
	StepTypeScript       StepType = "script"
	StepTypeDecision     StepType = "decision"
	StepTypeTimer        StepType = "timer"
	StepTypeMessage      StepType = "message"
	StepTypeNotification StepType = "notification"
	StepTypeError        StepType = "error"
	StepTypeEnd          StepType = "end"
)

// KnownStepTypes lists every built-in step type.
var KnownStepTypes = []StepType{
	StepTypeStart,
	StepTypeTask,
	StepTypeService,
	StepTypeScript,
	StepTypeDecision,
	StepTypeTimer,
	StepTypeMessage,
	StepTypeNotification,
	StepTypeError,
	StepTypeEnd,
}

// IsKnown reports whether t is one of the built-in step types.
func (t StepType) IsKnown() bool {
	for _, known := range KnownStepTypes {
		if t == known {
			return true
		}
	}

	return false
}

// Position is the presentation-only canvas location of a step.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// WorkflowStep is a typed node in the workflow graph.
//
// Config always holds the variant that matches Type; decoding from JSON
// selects the variant from the type tag.
type WorkflowStep struct {
	ID            string            `json:"id"                       validate:"required"`
	Name          string            `json:"name"                     validate:"required,min=1"`
	Type          StepType          `json:"type"                     validate:"required"`
	Position      Position          `json:"position"`
	Config        StepConfig        `json:"config"`
	Mappings      []VariableMapping `json:"mappings,omitempty"       validate:"dive"`
	ErrorHandlers []ErrorHandler    `json:"error_handlers,omitempty" validate:"dive"`
}

// NewStep builds a step, rejecting a configuration whose variant does not match stepType.
// A nil configuration, typed or not, becomes the zero configuration for stepType.
func NewStep(id, name string, stepType StepType, config StepConfig) (*WorkflowStep, error) {
	if isNilConfig(config) {
		config = NewStepConfig(stepType)
	}

	if !configMatches(stepType, config) {
		return nil, fmt.Errorf("%w: %T cannot configure a %s step", ErrConfigMismatch, config, stepType)
	}

	return &WorkflowStep{
		ID:     id,
		Name:   name,
		Type:   stepType,
		Config: config,
	}, nil
}

// TaskConfig returns the task configuration when the step is a task step.
func (s *WorkflowStep) TaskConfig() (*TaskConfig, bool) {
	cfg, ok := s.Config.(*TaskConfig)

	return cfg, ok && cfg != nil && s.Type == StepTypeTask
}

// ServiceConfig returns the service configuration when the step is a service step.
func (s *WorkflowStep) ServiceConfig() (*ServiceConfig, bool) {
	cfg, ok := s.Config.(*ServiceConfig)

	return cfg, ok && cfg != nil && s.Type == StepTypeService
}

// ScriptConfig returns the script configuration when the step is a script step.
func (s *WorkflowStep) ScriptConfig() (*ScriptConfig, bool) {
	cfg, ok := s.Config.(*ScriptConfig)

	return cfg, ok && cfg != nil && s.Type == StepTypeScript
}

// TimerConfig returns the timer configuration when the step is a timer step.
func (s *WorkflowStep) TimerConfig() (*TimerConfig, bool) {
	cfg, ok := s.Config.(*TimerConfig)

	return cfg, ok && cfg != nil && s.Type == StepTypeTimer
}

// MessageConfig returns the message configuration for message and notification steps.
func (s *WorkflowStep) MessageConfig() (*MessageConfig, bool) {
	cfg, ok := s.Config.(*MessageConfig)

	return cfg, ok && cfg != nil && (s.Type == StepTypeMessage || s.Type == StepTypeNotification)
}

// MappingsFor returns the step's mappings for one direction, in declared order.
func (s *WorkflowStep) MappingsFor(direction MappingDirection) []VariableMapping {
	var mappings []VariableMapping

	for _, m := range s.Mappings {
		if m.Type == direction {
			mappings = append(mappings, m)
		}
	}

	return mappings
}

// UnmarshalJSON decodes the step and its type-specific configuration.
func (s *WorkflowStep) UnmarshalJSON(data []byte) error {
	type alias WorkflowStep

	aux := struct {
		*alias

		Config json.RawMessage `json:"config"`
	}{alias: (*alias)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	config := NewStepConfig(s.Type)

	if len(aux.Config) > 0 && string(aux.Config) != "null" {
		if err := json.Unmarshal(aux.Config, config); err != nil {
			return fmt.Errorf("failed to decode %s config for step %s: %w", s.Type, s.ID, err)
		}
	}

	s.Config = config

	return nil
}
