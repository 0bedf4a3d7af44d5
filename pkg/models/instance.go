package models

import "time"

// InstanceStatus represents the execution state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusActive     InstanceStatus = "active"
	InstanceStatusCompleted  InstanceStatus = "completed"
	InstanceStatusTerminated InstanceStatus = "terminated"
)

// WorkflowInstance is one execution of a workflow definition.
type WorkflowInstance struct {
	ID            string         `json:"id"`
	DefinitionID  string         `json:"definition_id"`
	Status        InstanceStatus `json:"status"`
	CurrentStepID string         `json:"current_step_id"`
	Data          map[string]any `json:"data"`
	StepResults   map[string]any `json:"step_results"`
	History       []HistoryEntry `json:"history"`
	NotBefore     *time.Time     `json:"not_before,omitempty"`
	Version       int64          `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	TerminatedAt  *time.Time     `json:"terminated_at,omitempty"`
}

// HistoryEntry records one visit of an instance to a step.
// An entry with a nil ExitedAt is open.
type HistoryEntry struct {
	StepID    string         `json:"step_id"`
	StepName  string         `json:"step_name"`
	EnteredAt time.Time      `json:"entered_at"`
	ExitedAt  *time.Time     `json:"exited_at,omitempty"`
	Snapshot  map[string]any `json:"snapshot,omitempty"`
	ActorID   string         `json:"actor_id,omitempty"`
	Comment   string         `json:"comment,omitempty"`
}

// IsOpen reports whether the entry has not been exited yet.
func (h HistoryEntry) IsOpen() bool {
	return h.ExitedAt == nil
}

// IsTerminal reports whether the instance can no longer change.
func (i *WorkflowInstance) IsTerminal() bool {
	return i.Status == InstanceStatusCompleted || i.Status == InstanceStatusTerminated
}

// OpenEntry returns the index of the open history entry, or -1.
func (i *WorkflowInstance) OpenEntry() int {
	for idx := len(i.History) - 1; idx >= 0; idx-- {
		if i.History[idx].IsOpen() {
			return idx
		}
	}

	return -1
}

// Clone returns a deep copy of the instance.
func (i *WorkflowInstance) Clone() *WorkflowInstance {
	if i == nil {
		return nil
	}

	clone := *i
	clone.Data = CopyData(i.Data)
	clone.StepResults = CopyData(i.StepResults)
	clone.History = CopyHistory(i.History)
	clone.NotBefore = copyTime(i.NotBefore)
	clone.CompletedAt = copyTime(i.CompletedAt)
	clone.TerminatedAt = copyTime(i.TerminatedAt)

	return &clone
}

// CopyHistory returns a deep copy of a history slice.
func CopyHistory(history []HistoryEntry) []HistoryEntry {
	if history == nil {
		return nil
	}

	copied := make([]HistoryEntry, len(history))
	for idx, entry := range history {
		entry.ExitedAt = copyTime(entry.ExitedAt)
		entry.Snapshot = CopyData(entry.Snapshot)
		copied[idx] = entry
	}

	return copied
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	v := *t

	return &v
}
