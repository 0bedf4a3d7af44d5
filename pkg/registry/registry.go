// Package registry dispatches step execution to the handler registered for the step's type.
package registry

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
	"github.com/dukex/stepflow/pkg/steps/passthrough"
)

// Registry maps step types to handlers. Step types without a handler are
// executed by a passthrough handler.
type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	handlers  map[models.StepType]protocol.StepHandler
	factories map[models.StepType]protocol.StepFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log.With("module", "registry"),
		handlers:  make(map[models.StepType]protocol.StepHandler),
		factories: make(map[models.StepType]protocol.StepFactory),
	}
}

// Register makes handler serve its step type, replacing any earlier handler.
func (r *Registry) Register(handler protocol.StepHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[handler.Type()] = handler
}

// RegisterFactory creates a handler from factory and registers both.
func (r *Registry) RegisterFactory(factory protocol.StepFactory, collaborators protocol.Collaborators) error {
	handler, err := factory.Create(collaborators)
	if err != nil {
		return fmt.Errorf("failed to create %s step handler: %w", factory.ID(), err)
	}

	r.Register(handler)

	r.mu.Lock()
	r.factories[factory.ID()] = factory
	r.mu.Unlock()

	return nil
}

// Handler returns the handler for stepType, falling back to passthrough.
func (r *Registry) Handler(stepType models.StepType) protocol.StepHandler {
	r.mu.RLock()
	handler, ok := r.handlers[stepType]
	r.mu.RUnlock()

	if !ok {
		return passthrough.NewStep(stepType)
	}

	return handler
}

// IsRegistered reports whether a handler was registered for stepType.
func (r *Registry) IsRegistered(stepType models.StepType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.handlers[stepType]

	return ok
}

// Execute runs step with the handler registered for its type.
func (r *Registry) Execute(ctx context.Context, step *models.WorkflowStep, data map[string]any) (models.ExecutionResult, error) {
	handler := r.Handler(step.Type)

	if !r.IsRegistered(step.Type) {
		r.logger.DebugContext(ctx, "no handler registered, passing through", "step_id", step.ID, "step_type", step.Type)
	}

	return handler.Execute(ctx, step, data)
}

// Types returns the registered step types in lexical order.
func (r *Registry) Types() []models.StepType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.StepType, 0, len(r.handlers))
	for stepType := range r.handlers {
		types = append(types, stepType)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// Factories returns the registered factories ordered by step type.
func (r *Registry) Factories() []protocol.StepFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factories := make([]protocol.StepFactory, 0, len(r.factories))
	for _, factory := range r.factories {
		factories = append(factories, factory)
	}

	sort.Slice(factories, func(i, j int) bool { return factories[i].ID() < factories[j].ID() })

	return factories
}

// LoadStepPlugins loads step factories from <pluginsPath>/steps/**/*.so.
// Each plugin must export a protocol.StepFactory named "Step".
func (r *Registry) LoadStepPlugins(pluginsPath string) ([]protocol.StepFactory, error) {
	return loadPlugin[protocol.StepFactory](r.logger, pluginsPath, "Step")
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"
	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "*/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s does not export %s: %w", p, symbolName, err)
		}

		castV, ok := v.(T)
		if !ok {
			// Lookup returns a pointer to exported variables
			ptr, isPtr := v.(*T)
			if !isPtr {
				return nil, fmt.Errorf("plugin %s: symbol %s has unexpected type %T", p, symbolName, v)
			}

			castV = *ptr
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded step plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
