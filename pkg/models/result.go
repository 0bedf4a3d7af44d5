package models

import "time"

// ExecutionResult is what a step handler returns for a successful execution.
type ExecutionResult struct {
	// Data is the instance data after the step ran
	Data map[string]any `json:"data"`

	// Output is the step specific result (service response, script value, ...)
	Output any `json:"output,omitempty"`

	// NotBefore is set by timer steps: the instance must not move on before it
	NotBefore *time.Time `json:"not_before,omitempty"`

	// Schedule carries an uninterpreted timer schedule value
	Schedule string `json:"schedule,omitempty"`

	// Fallback reports that the result came from a fallback error handler
	Fallback bool `json:"fallback,omitempty"`
}
