// Package models defines the core domain models for step-based business workflows.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefinitionStatus represents the lifecycle state of a workflow definition.
type DefinitionStatus string

const (
	DefinitionStatusDraft     DefinitionStatus = "draft"     // Editable, not yet executable
	DefinitionStatusPublished DefinitionStatus = "published" // Validated, executable
	DefinitionStatusArchived  DefinitionStatus = "archived"  // Historical, read only
)

// WorkflowDefinition is the designed, reusable workflow graph.
// A definition exclusively owns its steps and transitions.
type WorkflowDefinition struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"                   validate:"required,min=3"`
	Description string                `json:"description"`
	Version     string                `json:"version"                validate:"omitempty,semver"`
	Status      DefinitionStatus      `json:"status"                 validate:"required,oneof=draft published archived"`
	Steps       []*WorkflowStep       `json:"steps"                  validate:"dive"`
	Transitions []*WorkflowTransition `json:"transitions"            validate:"dive"`
	CreatedBy   string                `json:"created_by"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	PublishedAt *time.Time            `json:"published_at,omitempty"`
}

// WorkflowTransition is a directed, optionally conditioned edge between two steps.
type WorkflowTransition struct {
	ID        string `json:"id"                  validate:"required"`
	From      string `json:"from"                validate:"required"`
	To        string `json:"to"                  validate:"required"`
	Condition string `json:"condition,omitempty"`
}

// HasCondition reports whether the transition carries a non-blank condition.
func (t *WorkflowTransition) HasCondition() bool {
	for _, r := range t.Condition {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return true
		}
	}

	return false
}

// StepByID returns the step with the given id.
func (d *WorkflowDefinition) StepByID(id string) (*WorkflowStep, bool) {
	for _, step := range d.Steps {
		if step != nil && step.ID == id {
			return step, true
		}
	}

	return nil, false
}

// StepsOfType returns the steps tagged with the given type, in declared order.
func (d *WorkflowDefinition) StepsOfType(stepType StepType) []*WorkflowStep {
	var steps []*WorkflowStep

	for _, step := range d.Steps {
		if step != nil && step.Type == stepType {
			steps = append(steps, step)
		}
	}

	return steps
}

// StartStep returns the first declared start step.
func (d *WorkflowDefinition) StartStep() (*WorkflowStep, bool) {
	starts := d.StepsOfType(StepTypeStart)
	if len(starts) == 0 {
		return nil, false
	}

	return starts[0], true
}

// Outgoing returns the transitions leaving stepID in declared order.
func (d *WorkflowDefinition) Outgoing(stepID string) []*WorkflowTransition {
	var transitions []*WorkflowTransition

	for _, t := range d.Transitions {
		if t != nil && t.From == stepID {
			transitions = append(transitions, t)
		}
	}

	return transitions
}

// Incoming returns the transitions entering stepID in declared order.
func (d *WorkflowDefinition) Incoming(stepID string) []*WorkflowTransition {
	var transitions []*WorkflowTransition

	for _, t := range d.Transitions {
		if t != nil && t.To == stepID {
			transitions = append(transitions, t)
		}
	}

	return transitions
}

// IsExecutable reports whether instances may be started from the definition.
func (d *WorkflowDefinition) IsExecutable() bool {
	return d.Status != DefinitionStatusArchived
}

// Clone returns a deep copy of the definition.
func (d *WorkflowDefinition) Clone() (*WorkflowDefinition, error) {
	if d == nil {
		return nil, nil
	}

	body, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to copy definition %s: %w", d.ID, err)
	}

	var clone WorkflowDefinition
	if err := json.Unmarshal(body, &clone); err != nil {
		return nil, fmt.Errorf("failed to copy definition %s: %w", d.ID, err)
	}

	return &clone, nil
}
