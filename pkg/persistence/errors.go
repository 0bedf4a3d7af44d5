package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrDefinitionNotFound indicates a definition was not found by the given identifier.
	ErrDefinitionNotFound = errors.New("definition not found")

	// ErrInstanceNotFound indicates an instance was not found by the given identifier.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrInstanceExists indicates CreateInstance was called with an id already in use.
	ErrInstanceExists = errors.New("instance already exists")

	// ErrConcurrentUpdate indicates the stored instance changed since it was loaded.
	ErrConcurrentUpdate = errors.New("instance was modified concurrently")
)

// DefinitionError wraps definition-related errors with additional context.
type DefinitionError struct {
	Op           string // Operation being performed (e.g., "LoadDefinition", "SaveDefinition")
	DefinitionID string
	Err          error
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("%s operation failed for definition %s: %v", e.Op, e.DefinitionID, e.Err)
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for definition errors.
func (e *DefinitionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewDefinitionError creates a new definition error with context.
func NewDefinitionError(op, definitionID string, err error) *DefinitionError {
	return &DefinitionError{Op: op, DefinitionID: definitionID, Err: err}
}

// InstanceError wraps instance-related errors with additional context.
type InstanceError struct {
	Op         string
	InstanceID string
	Err        error
}

func (e *InstanceError) Error() string {
	return fmt.Sprintf("%s operation failed for instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

func (e *InstanceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewInstanceError creates a new instance error with context.
func NewInstanceError(op, instanceID string, err error) *InstanceError {
	return &InstanceError{Op: op, InstanceID: instanceID, Err: err}
}

// IsDefinitionNotFound checks if an error indicates a definition was not found.
func IsDefinitionNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}

// IsInstanceNotFound checks if an error indicates an instance was not found.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsConcurrentUpdate checks if an error indicates a lost compare-and-swap.
func IsConcurrentUpdate(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate)
}
