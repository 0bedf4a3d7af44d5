package protocol

import "context"

// ExecutionScope identifies the step being executed. The engine attaches it to
// the context handed to step handlers and their collaborators.
type ExecutionScope struct {
	DefinitionID string
	InstanceID   string
	StepID       string
}

type scopeKey struct{}

// ContextWithScope returns a context carrying scope.
func ContextWithScope(ctx context.Context, scope ExecutionScope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFromContext returns the scope attached to ctx, if any.
func ScopeFromContext(ctx context.Context) (ExecutionScope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(ExecutionScope)

	return scope, ok
}
