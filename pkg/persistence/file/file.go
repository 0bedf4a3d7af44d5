// Package file provides file-based persistence for workflow definitions and instances.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

const (
	definitionsDir = "definitions"
	instancesDir   = "instances"
)

// Persistence stores one JSON document per definition and per instance under root.
// A process-wide mutex serialises writes so the instance compare-and-swap holds
// for every writer sharing this value.
type Persistence struct {
	root string
	mu   sync.Mutex
}

var _ persistence.Store = (*Persistence)(nil)

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	return &Persistence{root: strings.Replace(root, "file://", "", 1)}
}

// Root returns the directory documents are stored under.
func (fp *Persistence) Root() string {
	return fp.root
}

func (fp *Persistence) SaveDefinition(_ context.Context, def *models.WorkflowDefinition) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	var existing models.WorkflowDefinition

	found, err := fp.read(definitionsDir, def.ID, &existing)
	if err != nil {
		return persistence.NewDefinitionError("SaveDefinition", def.ID, err)
	}

	now := time.Now().UTC()
	if found {
		def.CreatedAt = existing.CreatedAt
	} else if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}

	def.UpdatedAt = now

	if err := fp.write(definitionsDir, def.ID, def); err != nil {
		return persistence.NewDefinitionError("SaveDefinition", def.ID, err)
	}

	return nil
}

func (fp *Persistence) LoadDefinition(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	var def models.WorkflowDefinition

	found, err := fp.read(definitionsDir, id, &def)
	if err != nil {
		return nil, persistence.NewDefinitionError("LoadDefinition", id, err)
	}

	if !found {
		return nil, persistence.NewDefinitionError("LoadDefinition", id, persistence.ErrDefinitionNotFound)
	}

	return &def, nil
}

func (fp *Persistence) ListDefinitions(
	ctx context.Context,
	opts persistence.ListDefinitionsOptions,
) ([]*models.WorkflowDefinition, error) {
	jsonFiles, err := fs.Glob(os.DirFS(filepath.Join(fp.root, definitionsDir)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list definition files: %w", err)
	}

	defs := make([]*models.WorkflowDefinition, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		def, err := fp.LoadDefinition(ctx, strings.TrimSuffix(file, ".json"))
		if err != nil {
			if persistence.IsDefinitionNotFound(err) {
				continue
			}

			return nil, err
		}

		if opts.Matches(def) {
			defs = append(defs, def)
		}
	}

	persistence.SortDefinitions(defs)

	return defs, nil
}

func (fp *Persistence) CreateInstance(_ context.Context, instance *models.WorkflowInstance) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if _, err := os.Stat(fp.path(instancesDir, instance.ID)); err == nil {
		return persistence.NewInstanceError("CreateInstance", instance.ID, persistence.ErrInstanceExists)
	}

	if err := fp.write(instancesDir, instance.ID, instance); err != nil {
		return persistence.NewInstanceError("CreateInstance", instance.ID, err)
	}

	return nil
}

func (fp *Persistence) LoadInstance(_ context.Context, id string) (*models.WorkflowInstance, error) {
	instance, err := fp.loadInstance(id)
	if err != nil {
		return nil, persistence.NewInstanceError("LoadInstance", id, err)
	}

	return instance, nil
}

func (fp *Persistence) SaveInstance(
	_ context.Context,
	instance *models.WorkflowInstance,
	expectedStatus models.InstanceStatus,
	expectedVersion int64,
) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	stored, err := fp.loadInstance(instance.ID)
	if err != nil {
		return persistence.NewInstanceError("SaveInstance", instance.ID, err)
	}

	if stored.Status != expectedStatus || stored.Version != expectedVersion {
		return persistence.NewInstanceError("SaveInstance", instance.ID, persistence.ErrConcurrentUpdate)
	}

	instance.Version = expectedVersion + 1

	if err := fp.write(instancesDir, instance.ID, instance); err != nil {
		instance.Version = expectedVersion

		return persistence.NewInstanceError("SaveInstance", instance.ID, err)
	}

	return nil
}

func (fp *Persistence) AppendHistory(_ context.Context, instanceID string, entry models.HistoryEntry) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	stored, err := fp.loadInstance(instanceID)
	if err != nil {
		return persistence.NewInstanceError("AppendHistory", instanceID, err)
	}

	stored.History = append(stored.History, entry)
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()

	if err := fp.write(instancesDir, instanceID, stored); err != nil {
		return persistence.NewInstanceError("AppendHistory", instanceID, err)
	}

	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

func (fp *Persistence) loadInstance(id string) (*models.WorkflowInstance, error) {
	var instance models.WorkflowInstance

	found, err := fp.read(instancesDir, id, &instance)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrInstanceNotFound
	}

	return &instance, nil
}

func (fp *Persistence) path(dir, id string) string {
	return filepath.Join(fp.root, dir, filepath.Base(filepath.Clean(id))+".json")
}

func (fp *Persistence) read(dir, id string, target any) (bool, error) {
	body, err := os.ReadFile(fp.path(dir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s: %w", id, err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", id, err)
	}

	return true, nil
}

// write replaces the document through a temporary file so readers never see a partial write.
func (fp *Persistence) write(dir, id string, document any) error {
	err := os.MkdirAll(filepath.Join(fp.root, dir), 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	target := fp.path(dir, id)
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to replace %s: %w", id, err)
	}

	return nil
}
