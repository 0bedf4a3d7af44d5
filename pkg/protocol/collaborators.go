package protocol

import (
	"context"
	"errors"
	"time"
)

// ServiceInvoker calls an external service on behalf of a service step.
type ServiceInvoker interface {
	Invoke(ctx context.Context, endpoint, method string, headers map[string]string, body string) (any, error)
}

// ScriptEvaluator runs a script step's source over the instance data.
type ScriptEvaluator interface {
	Evaluate(ctx context.Context, language, source string, data map[string]any) (any, error)
}

// Dispatcher delivers a rendered message to recipients over a channel.
type Dispatcher interface {
	Send(ctx context.Context, channel, message string, recipients []string) error
}

// ConditionEvaluator decides transition conditions.
// Evaluate never fails: malformed expressions and non-boolean results are false.
type ConditionEvaluator interface {
	Evaluate(expression string, data map[string]any) bool
}

// TransformEvaluator evaluates a mapping transform with the source bound to `value`.
type TransformEvaluator interface {
	Transform(expression string, value any) (any, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock is the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

// Collaborators bundles what step handlers need from outside the engine.
type Collaborators struct {
	Invoker    ServiceInvoker
	Scripts    ScriptEvaluator
	Dispatcher Dispatcher
	Clock      Clock
}

// ErrCollaboratorUnavailable is returned by step handlers whose collaborator was not configured.
var ErrCollaboratorUnavailable = errors.New("collaborator not configured")
