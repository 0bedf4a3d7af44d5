package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/mocks"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/persistence/memory"
	"github.com/dukex/stepflow/pkg/protocol"
	"github.com/dukex/stepflow/pkg/services"
	"github.com/dukex/stepflow/pkg/testutil"
	"github.com/dukex/stepflow/pkg/validation"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var publishedAt = time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*services.Definitions, *memory.Persistence, *mocks.MockEventBus) {
	t.Helper()

	store := memory.NewPersistence()
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "definitions", mock.Anything).Return(nil)

	service := services.NewDefinitions(store, validator.New(), log.Discard(),
		services.WithEventPublisher(bus),
		services.WithClock(protocol.ClockFunc(func() time.Time { return publishedAt })),
	)

	return service, store, bus
}

func TestDefinitions_Create(t *testing.T) {
	ctx := context.Background()
	service, store, _ := newService(t)

	def := testutil.CreateLinearDefinition()
	def.ID = ""
	def.Version = ""
	def.Status = models.DefinitionStatusPublished

	created, err := service.Create(ctx, def)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.DefinitionStatusDraft, created.Status)
	assert.Equal(t, services.DefaultVersion, created.Version)

	stored, err := store.LoadDefinition(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, stored.Name)
	assert.Len(t, stored.Steps, 3)
}

func TestDefinitions_CreateValidation(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newService(t)

	_, err := service.Create(ctx, nil)
	require.ErrorIs(t, err, services.ErrDefinitionNil)
	assert.True(t, services.IsValidationError(err))

	def := testutil.CreateLinearDefinition()
	def.Name = "x"

	_, err = service.Create(ctx, def)
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))

	var serviceErr *services.ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, "INVALID_DEFINITION", serviceErr.Code)

	def = testutil.CreateLinearDefinition()
	def.Version = "not-a-version"

	_, err = service.Create(ctx, def)
	assert.True(t, services.IsValidationError(err))
}

func TestDefinitions_CreateDuplicateID(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newService(t)

	def := testutil.CreateLinearDefinition()
	_, err := service.Create(ctx, def)
	require.NoError(t, err)

	again := testutil.CreateLinearDefinition()
	again.ID = def.ID

	_, err = service.Create(ctx, again)
	require.ErrorIs(t, err, services.ErrDefinitionExists)
	assert.True(t, services.IsConflictError(err))
}

func TestDefinitions_UpdateOnlyDrafts(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newService(t)

	created, err := service.Create(ctx, testutil.CreateLinearDefinition())
	require.NoError(t, err)

	changed := testutil.CreateApprovalDefinition()
	changed.Name = "Expense approval"
	changed.Version = ""

	updated, err := service.Update(ctx, created.ID, changed)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Expense approval", updated.Name)
	assert.Equal(t, created.Version, updated.Version)

	_, err = service.Publish(ctx, created.ID)
	require.NoError(t, err)

	_, err = service.Update(ctx, created.ID, testutil.CreateLinearDefinition())
	require.ErrorIs(t, err, services.ErrCannotModifyPublished)
	assert.True(t, services.IsConflictError(err))

	_, err = service.Update(ctx, "missing", testutil.CreateLinearDefinition())
	assert.True(t, persistence.IsDefinitionNotFound(err))
}

func TestDefinitions_Publish(t *testing.T) {
	ctx := context.Background()
	service, _, bus := newService(t)

	created, err := service.Create(ctx, testutil.CreateLinearDefinition())
	require.NoError(t, err)

	published, err := service.Publish(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefinitionStatusPublished, published.Status)
	require.NotNil(t, published.PublishedAt)
	assert.True(t, publishedAt.Equal(*published.PublishedAt))

	again, err := service.Publish(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefinitionStatusPublished, again.Status)

	assert.Equal(t, []events.EventType{events.DefinitionPublishedEvent}, bus.PublishedTypes())
}

func TestDefinitions_PublishRejectsErrors(t *testing.T) {
	ctx := context.Background()
	service, store, bus := newService(t)

	def := testutil.CreateLinearDefinition()
	def.Steps = def.Steps[1:]
	def.Transitions = def.Transitions[1:]

	created, err := service.Create(ctx, def)
	require.NoError(t, err)

	_, err = service.Publish(ctx, created.ID)
	require.ErrorIs(t, err, services.ErrPublishRejected)
	assert.True(t, services.IsPublishRejected(err))

	var rejected *services.PublishRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.True(t, rejected.Report.HasCode(validation.CodeMissingStart))

	stored, err := store.LoadDefinition(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefinitionStatusDraft, stored.Status)
	assert.Empty(t, bus.PublishedTypes())
}

func TestDefinitions_PublishAllowsWarnings(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newService(t)

	def := testutil.CreateLinearDefinition()
	def.Steps = append(def.Steps, testutil.CreateTestStep("orphan", models.StepTypeTask))

	created, err := service.Create(ctx, def)
	require.NoError(t, err)

	report, err := service.Validate(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, report.HasCode(validation.CodeUnreachableStep))
	assert.True(t, report.CanPublish())

	published, err := service.Publish(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefinitionStatusPublished, published.Status)
}

func TestDefinitions_Archive(t *testing.T) {
	ctx := context.Background()
	service, _, bus := newService(t)

	created, err := service.Create(ctx, testutil.CreateLinearDefinition())
	require.NoError(t, err)

	archived, err := service.Archive(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefinitionStatusArchived, archived.Status)

	_, err = service.Archive(ctx, created.ID)
	require.ErrorIs(t, err, services.ErrDefinitionArchived)

	_, err = service.Publish(ctx, created.ID)
	require.ErrorIs(t, err, services.ErrDefinitionArchived)

	assert.Equal(t, []events.EventType{events.DefinitionArchivedEvent}, bus.PublishedTypes())
}

func TestDefinitions_List(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newService(t)

	first, err := service.Create(ctx, testutil.CreateLinearDefinition())
	require.NoError(t, err)

	second, err := service.Create(ctx, testutil.CreateApprovalDefinition())
	require.NoError(t, err)

	_, err = service.Publish(ctx, second.ID)
	require.NoError(t, err)

	all, err := service.List(ctx, services.ListDefinitionsRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	drafts, err := service.List(ctx, services.ListDefinitionsRequest{Status: "draft"})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, first.ID, drafts[0].ID)

	_, err = service.List(ctx, services.ListDefinitionsRequest{Status: "deleted"})
	require.ErrorIs(t, err, services.ErrInvalidStatus)
}

func TestDefinitions_HealthCheck(t *testing.T) {
	service, _, _ := newService(t)

	message, ok := service.HealthCheck(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)

	store := &mocks.MockStore{}
	store.On("HealthCheck", mock.Anything).Return(errors.New("connection refused"))

	message, ok = services.NewDefinitions(store, nil, log.Discard()).HealthCheck(context.Background())
	assert.False(t, ok)
	assert.Contains(t, message, "connection refused")
}

func TestServiceError(t *testing.T) {
	err := services.NewValidationError("List", "INVALID_STATUS", "bad status", services.ErrInvalidStatus)

	assert.Equal(t, "List: bad status", err.Error())
	require.ErrorIs(t, err, services.ErrInvalidStatus)
	assert.False(t, services.IsConflictError(err))

	bare := &services.ServiceError{Op: "Archive", Err: services.ErrDefinitionArchived}
	assert.Equal(t, "Archive: definition is archived", bare.Error())
}
