package models

import (
	"encoding/json"
	"time"
)

// ErrorHandlerType identifies the reaction applied when a step fails.
type ErrorHandlerType string

const (
	ErrorHandlerRetry        ErrorHandlerType = "retry"
	ErrorHandlerFallback     ErrorHandlerType = "fallback"
	ErrorHandlerNotification ErrorHandlerType = "notification"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 5 * time.Second
)

// ErrorHandler is one entry of a step's ordered failure policy.
type ErrorHandler struct {
	Type                 ErrorHandlerType `json:"type"                            validate:"required,oneof=retry fallback notification"`
	MaxRetries           *int             `json:"max_retries,omitempty"           validate:"omitempty,min=0"`
	RetryDelay           *int             `json:"retry_delay,omitempty"           validate:"omitempty,min=0"` // seconds
	FallbackValue        json.RawMessage  `json:"fallback_value,omitempty"`
	NotificationTemplate string           `json:"notification_template,omitempty"`
	Channel              string           `json:"channel,omitempty"`
	Recipients           []string         `json:"recipients,omitempty"`
}

// Retries returns the configured retry budget, defaulting to DefaultMaxRetries.
func (h ErrorHandler) Retries() int {
	if h.MaxRetries == nil {
		return DefaultMaxRetries
	}

	return *h.MaxRetries
}

// Delay returns the configured wait between retries, defaulting to DefaultRetryDelay.
func (h ErrorHandler) Delay() time.Duration {
	if h.RetryDelay == nil {
		return DefaultRetryDelay
	}

	return time.Duration(*h.RetryDelay) * time.Second
}

// Fallback decodes the fallback value. A JSON string whose contents are themselves
// JSON is decoded once more; otherwise the string is used as is.
func (h ErrorHandler) Fallback() (any, error) {
	if len(h.FallbackValue) == 0 {
		return nil, nil
	}

	var value any
	if err := json.Unmarshal(h.FallbackValue, &value); err != nil {
		return nil, err
	}

	if text, ok := value.(string); ok {
		var nested any
		if err := json.Unmarshal([]byte(text), &nested); err == nil {
			return nested, nil
		}
	}

	return value, nil
}
