package mocks

import (
	"context"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of persistence.Store interface.
type MockStore struct {
	mock.Mock
}

var _ persistence.Store = (*MockStore)(nil)

func (m *MockStore) SaveDefinition(ctx context.Context, def *models.WorkflowDefinition) error {
	args := m.Called(ctx, def)

	return args.Error(0)
}

func (m *MockStore) LoadDefinition(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowDefinition), args.Error(1)
}

func (m *MockStore) ListDefinitions(
	ctx context.Context,
	opts persistence.ListDefinitionsOptions,
) ([]*models.WorkflowDefinition, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowDefinition), args.Error(1)
}

func (m *MockStore) CreateInstance(ctx context.Context, instance *models.WorkflowInstance) error {
	args := m.Called(ctx, instance)

	return args.Error(0)
}

func (m *MockStore) LoadInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowInstance), args.Error(1)
}

func (m *MockStore) SaveInstance(
	ctx context.Context,
	instance *models.WorkflowInstance,
	expectedStatus models.InstanceStatus,
	expectedVersion int64,
) error {
	args := m.Called(ctx, instance, expectedStatus, expectedVersion)

	return args.Error(0)
}

func (m *MockStore) AppendHistory(ctx context.Context, instanceID string, entry models.HistoryEntry) error {
	args := m.Called(ctx, instanceID, entry)

	return args.Error(0)
}

func (m *MockStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockStore) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
