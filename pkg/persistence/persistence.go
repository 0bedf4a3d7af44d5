// Package persistence provides the storage abstraction for workflow definitions and instances.
package persistence

import (
	"context"
	"sort"

	"github.com/dukex/stepflow/pkg/models"
)

// ListDefinitionsOptions filters ListDefinitions. Zero values match everything.
type ListDefinitionsOptions struct {
	Status models.DefinitionStatus
}

// Matches reports whether def passes the filter.
func (o ListDefinitionsOptions) Matches(def *models.WorkflowDefinition) bool {
	return o.Status == "" || def.Status == o.Status
}

// Store persists definitions and instances.
//
// SaveInstance is a compare-and-swap: the write succeeds only while the stored
// instance still has expectedStatus and expectedVersion, and on success the
// stored and passed version becomes expectedVersion+1. A lost race returns
// ErrConcurrentUpdate. Implementations hand out copies, so callers may mutate
// what they load.
type Store interface {
	SaveDefinition(ctx context.Context, def *models.WorkflowDefinition) error
	LoadDefinition(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	ListDefinitions(ctx context.Context, opts ListDefinitionsOptions) ([]*models.WorkflowDefinition, error)

	CreateInstance(ctx context.Context, instance *models.WorkflowInstance) error
	LoadInstance(ctx context.Context, id string) (*models.WorkflowInstance, error)
	SaveInstance(
		ctx context.Context,
		instance *models.WorkflowInstance,
		expectedStatus models.InstanceStatus,
		expectedVersion int64,
	) error
	AppendHistory(ctx context.Context, instanceID string, entry models.HistoryEntry) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// SortDefinitions orders definitions by creation time, then id.
func SortDefinitions(defs []*models.WorkflowDefinition) {
	sort.SliceStable(defs, func(i, j int) bool {
		if !defs[i].CreatedAt.Equal(defs[j].CreatedAt) {
			return defs[i].CreatedAt.Before(defs[j].CreatedAt)
		}

		return defs[i].ID < defs[j].ID
	})
}
