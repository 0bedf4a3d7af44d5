// Package memory provides an in-process Store backed by maps.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// Persistence is a goroutine-safe Store. Everything it returns is a copy.
type Persistence struct {
	mu          sync.RWMutex
	definitions map[string]*models.WorkflowDefinition
	instances   map[string]*models.WorkflowInstance
}

var _ persistence.Store = (*Persistence)(nil)

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{
		definitions: make(map[string]*models.WorkflowDefinition),
		instances:   make(map[string]*models.WorkflowInstance),
	}
}

func (p *Persistence) SaveDefinition(_ context.Context, def *models.WorkflowDefinition) error {
	stored, err := def.Clone()
	if err != nil {
		return persistence.NewDefinitionError("SaveDefinition", def.ID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := p.definitions[def.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}

	stored.UpdatedAt = now
	def.CreatedAt = stored.CreatedAt
	def.UpdatedAt = now

	p.definitions[def.ID] = stored

	return nil
}

func (p *Persistence) LoadDefinition(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	def, ok := p.definitions[id]
	if !ok {
		return nil, persistence.NewDefinitionError("LoadDefinition", id, persistence.ErrDefinitionNotFound)
	}

	return def.Clone()
}

func (p *Persistence) ListDefinitions(
	_ context.Context,
	opts persistence.ListDefinitionsOptions,
) ([]*models.WorkflowDefinition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	defs := make([]*models.WorkflowDefinition, 0, len(p.definitions))

	for _, def := range p.definitions {
		if !opts.Matches(def) {
			continue
		}

		clone, err := def.Clone()
		if err != nil {
			return nil, err
		}

		defs = append(defs, clone)
	}

	persistence.SortDefinitions(defs)

	return defs, nil
}

func (p *Persistence) CreateInstance(_ context.Context, instance *models.WorkflowInstance) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.instances[instance.ID]; ok {
		return persistence.NewInstanceError("CreateInstance", instance.ID, persistence.ErrInstanceExists)
	}

	p.instances[instance.ID] = instance.Clone()

	return nil
}

func (p *Persistence) LoadInstance(_ context.Context, id string) (*models.WorkflowInstance, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	instance, ok := p.instances[id]
	if !ok {
		return nil, persistence.NewInstanceError("LoadInstance", id, persistence.ErrInstanceNotFound)
	}

	return instance.Clone(), nil
}

func (p *Persistence) SaveInstance(
	_ context.Context,
	instance *models.WorkflowInstance,
	expectedStatus models.InstanceStatus,
	expectedVersion int64,
) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored, ok := p.instances[instance.ID]
	if !ok {
		return persistence.NewInstanceError("SaveInstance", instance.ID, persistence.ErrInstanceNotFound)
	}

	if stored.Status != expectedStatus || stored.Version != expectedVersion {
		return persistence.NewInstanceError("SaveInstance", instance.ID, persistence.ErrConcurrentUpdate)
	}

	instance.Version = expectedVersion + 1
	p.instances[instance.ID] = instance.Clone()

	return nil
}

func (p *Persistence) AppendHistory(_ context.Context, instanceID string, entry models.HistoryEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored, ok := p.instances[instanceID]
	if !ok {
		return persistence.NewInstanceError("AppendHistory", instanceID, persistence.ErrInstanceNotFound)
	}

	stored.History = append(stored.History, models.CopyHistory([]models.HistoryEntry{entry})...)
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()

	return nil
}

// HealthCheck always succeeds.
func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

// Close performs any necessary cleanup. For in-memory persistence, there is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}
