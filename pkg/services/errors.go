// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/stepflow/pkg/validation"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidStatus  = errors.New("invalid definition status")
	ErrDefinitionNil  = errors.New("definition cannot be nil")

	// Publishing Validation Errors (422 Unprocessable Entity).
	ErrPublishRejected = errors.New("definition has validation errors")

	// Business Logic Conflicts (409 Conflict).
	ErrDefinitionExists      = errors.New("definition already exists")
	ErrCannotModifyPublished = errors.New("only draft definitions can be modified")
	ErrDefinitionArchived    = errors.New("definition is archived")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// PublishRejectedError carries the full validation report of a definition that
// could not be published, so every finding can be fixed in one pass.
type PublishRejectedError struct {
	DefinitionID string
	Report       validation.Report
}

func (e *PublishRejectedError) Error() string {
	return fmt.Sprintf("definition %s cannot be published: %d error(s)", e.DefinitionID, len(e.Report.Errors()))
}

func (e *PublishRejectedError) Is(target error) bool {
	return target == ErrPublishRejected
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrDefinitionNil)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDefinitionExists) ||
		errors.Is(err, ErrCannotModifyPublished) ||
		errors.Is(err, ErrDefinitionArchived)
}

// IsPublishRejected checks if publishing failed on validation findings.
func IsPublishRejected(err error) bool {
	return errors.Is(err, ErrPublishRejected)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
