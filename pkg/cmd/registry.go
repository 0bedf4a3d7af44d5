// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/dukex/stepflow/pkg/collaborators/dispatch"
	"github.com/dukex/stepflow/pkg/collaborators/httpcall"
	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/expression"
	"github.com/dukex/stepflow/pkg/protocol"
	"github.com/dukex/stepflow/pkg/registry"
)

// NewCollaborators wires the production collaborators. Dispatched messages are
// logged and published on the event bus.
func NewCollaborators(logger *slog.Logger, evaluator *expression.Evaluator, bus eventbus.EventPublisher) protocol.Collaborators {
	dispatcher := dispatch.MultiDispatcher{dispatch.NewLogDispatcher(logger)}
	if bus != nil {
		dispatcher = append(dispatcher, dispatch.NewEventDispatcher(bus))
	}

	return protocol.Collaborators{
		Invoker:    httpcall.NewInvoker(logger),
		Scripts:    expression.NewScriptEvaluator(evaluator),
		Dispatcher: dispatcher,
		Clock:      protocol.SystemClock,
	}
}

func registerStepPlugins(reg *registry.Registry, pluginsPath string, collaborators protocol.Collaborators) error {
	stepPlugins, err := reg.LoadStepPlugins(pluginsPath)
	if err != nil {
		return err
	}

	for _, plugin := range stepPlugins {
		if err := reg.RegisterFactory(plugin, collaborators); err != nil {
			return err
		}
	}

	return nil
}

// NewRegistry registers the built-in step types followed by any step plugins
// found under pluginsPath. A plugin may replace a built-in type.
func NewRegistry(log *slog.Logger, pluginsPath string, collaborators protocol.Collaborators) (*registry.Registry, error) {
	reg := registry.NewRegistry(log)

	if err := reg.RegisterDefaultSteps(collaborators); err != nil {
		return nil, err
	}

	if err := registerStepPlugins(reg, pluginsPath, collaborators); err != nil {
		return nil, err
	}

	return reg, nil
}
