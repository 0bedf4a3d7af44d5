// Package storetest holds the behaviour every persistence.Store must share.
// Store implementations call Run from their own tests.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) persistence.Store

// Run exercises the Store contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("definition round trip", func(t *testing.T) { testDefinitionRoundTrip(t, newStore(t)) })
	t.Run("definition not found", func(t *testing.T) { testDefinitionNotFound(t, newStore(t)) })
	t.Run("list definitions", func(t *testing.T) { testListDefinitions(t, newStore(t)) })
	t.Run("instance round trip", func(t *testing.T) { testInstanceRoundTrip(t, newStore(t)) })
	t.Run("instance not found", func(t *testing.T) { testInstanceNotFound(t, newStore(t)) })
	t.Run("duplicate instance", func(t *testing.T) { testDuplicateInstance(t, newStore(t)) })
	t.Run("compare and swap", func(t *testing.T) { testCompareAndSwap(t, newStore(t)) })
	t.Run("concurrent saves", func(t *testing.T) { testConcurrentSaves(t, newStore(t)) })
	t.Run("append history", func(t *testing.T) { testAppendHistory(t, newStore(t)) })
	t.Run("health check", func(t *testing.T) { require.NoError(t, newStore(t).HealthCheck(context.Background())) })
}

// NewInstance returns an active instance of def positioned on its first task.
func NewInstance(def *models.WorkflowDefinition) *models.WorkflowInstance {
	now := time.Now().UTC().Truncate(time.Millisecond)

	return &models.WorkflowInstance{
		ID:            uuid.NewString(),
		DefinitionID:  def.ID,
		Status:        models.InstanceStatusActive,
		CurrentStepID: "review",
		Data:          map[string]any{"order": "A-1", "amount": 250.5},
		StepResults:   map[string]any{},
		History: []models.HistoryEntry{
			{StepID: "start", StepName: "Start", EnteredAt: now, ExitedAt: &now},
			{StepID: "review", StepName: "Review", EnteredAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testDefinitionRoundTrip(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	def := testutil.CreateApprovalDefinition()

	require.NoError(t, store.SaveDefinition(ctx, def))
	assert.False(t, def.CreatedAt.IsZero())

	loaded, err := store.LoadDefinition(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, def.ID, loaded.ID)
	assert.Equal(t, def.Name, loaded.Name)
	require.Len(t, loaded.Steps, len(def.Steps))
	require.Len(t, loaded.Transitions, len(def.Transitions))

	submit, ok := loaded.StepByID("submit")
	require.True(t, ok)

	cfg, ok := submit.TaskConfig()
	require.True(t, ok)
	assert.Equal(t, "amount", cfg.Fields[0].Name)

	decide := loaded.Outgoing("decide")
	require.Len(t, decide, 2)
	assert.Equal(t, "amount > 1000", decide[0].Condition)

	loaded.Name = "changed locally"
	again, err := store.LoadDefinition(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, def.Name, again.Name)

	def.Status = models.DefinitionStatusPublished
	require.NoError(t, store.SaveDefinition(ctx, def))

	updated, err := store.LoadDefinition(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefinitionStatusPublished, updated.Status)
}

func testDefinitionNotFound(t *testing.T, store persistence.Store) {
	_, err := store.LoadDefinition(context.Background(), uuid.NewString())
	require.Error(t, err)
	assert.True(t, persistence.IsDefinitionNotFound(err))
}

func testListDefinitions(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)

	first := testutil.CreateLinearDefinition()
	first.ID = uuid.NewString()
	first.CreatedAt = base

	second := testutil.CreateApprovalDefinition()
	second.ID = uuid.NewString()
	second.CreatedAt = base.Add(time.Minute)
	second.Status = models.DefinitionStatusPublished

	require.NoError(t, store.SaveDefinition(ctx, second))
	require.NoError(t, store.SaveDefinition(ctx, first))

	all, err := store.ListDefinitions(ctx, persistence.ListDefinitionsOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)

	published, err := store.ListDefinitions(ctx, persistence.ListDefinitionsOptions{Status: models.DefinitionStatusPublished})
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, second.ID, published[0].ID)
}

func testInstanceRoundTrip(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	def := testutil.CreateLinearDefinition()
	require.NoError(t, store.SaveDefinition(ctx, def))

	instance := NewInstance(def)
	require.NoError(t, store.CreateInstance(ctx, instance))

	loaded, err := store.LoadInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, instance.DefinitionID, loaded.DefinitionID)
	assert.Equal(t, models.InstanceStatusActive, loaded.Status)
	assert.Equal(t, "review", loaded.CurrentStepID)
	assert.Equal(t, "A-1", loaded.Data["order"])
	assert.InDelta(t, 250.5, loaded.Data["amount"], 0.0001)
	assert.Equal(t, int64(0), loaded.Version)
	require.Len(t, loaded.History, 2)
	assert.False(t, loaded.History[0].IsOpen())
	assert.True(t, loaded.History[1].IsOpen())
	assert.Equal(t, 1, loaded.OpenEntry())

	loaded.Data["order"] = "mutated"
	again, err := store.LoadInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "A-1", again.Data["order"])
}

func testInstanceNotFound(t *testing.T, store persistence.Store) {
	ctx := context.Background()

	_, err := store.LoadInstance(ctx, uuid.NewString())
	assert.True(t, persistence.IsInstanceNotFound(err))

	ghost := NewInstance(testutil.CreateLinearDefinition())
	err = store.SaveInstance(ctx, ghost, models.InstanceStatusActive, 0)
	assert.True(t, persistence.IsInstanceNotFound(err))

	err = store.AppendHistory(ctx, ghost.ID, models.HistoryEntry{StepID: "review"})
	assert.True(t, persistence.IsInstanceNotFound(err))
}

func testDuplicateInstance(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	instance := NewInstance(testutil.CreateLinearDefinition())

	require.NoError(t, store.CreateInstance(ctx, instance))

	err := store.CreateInstance(ctx, instance)
	require.ErrorIs(t, err, persistence.ErrInstanceExists)
}

func testCompareAndSwap(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	instance := NewInstance(testutil.CreateLinearDefinition())
	require.NoError(t, store.CreateInstance(ctx, instance))

	loaded, err := store.LoadInstance(ctx, instance.ID)
	require.NoError(t, err)

	loaded.Data["approved"] = true
	require.NoError(t, store.SaveInstance(ctx, loaded, models.InstanceStatusActive, 0))
	assert.Equal(t, int64(1), loaded.Version)

	stale := instance.Clone()
	stale.Data["approved"] = false
	err = store.SaveInstance(ctx, stale, models.InstanceStatusActive, 0)
	require.Error(t, err)
	assert.True(t, persistence.IsConcurrentUpdate(err))

	err = store.SaveInstance(ctx, stale, models.InstanceStatusCompleted, 1)
	assert.True(t, persistence.IsConcurrentUpdate(err))

	current, err := store.LoadInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, true, current.Data["approved"])
	assert.Equal(t, int64(1), current.Version)

	completedAt := time.Now().UTC().Truncate(time.Millisecond)
	current.Status = models.InstanceStatusCompleted
	current.CompletedAt = &completedAt
	require.NoError(t, store.SaveInstance(ctx, current, models.InstanceStatusActive, 1))

	final, err := store.LoadInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, final.Status)
	require.NotNil(t, final.CompletedAt)
	assert.True(t, completedAt.Equal(*final.CompletedAt))
	assert.Equal(t, int64(2), final.Version)
}

func testConcurrentSaves(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	instance := NewInstance(testutil.CreateLinearDefinition())
	require.NoError(t, store.CreateInstance(ctx, instance))

	const writers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for range writers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			candidate := instance.Clone()
			candidate.Data["writer"] = uuid.NewString()

			if err := store.SaveInstance(ctx, candidate, models.InstanceStatusActive, 0); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else {
				assert.True(t, persistence.IsConcurrentUpdate(err), "unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, successes)
}

func testAppendHistory(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	instance := NewInstance(testutil.CreateLinearDefinition())
	require.NoError(t, store.CreateInstance(ctx, instance))

	now := time.Now().UTC().Truncate(time.Millisecond)
	note := models.HistoryEntry{
		StepID:    "review",
		StepName:  "Review",
		EnteredAt: now,
		ExitedAt:  &now,
		ActorID:   "alice",
		Comment:   "waiting on receipts",
	}

	require.NoError(t, store.AppendHistory(ctx, instance.ID, note))

	loaded, err := store.LoadInstance(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, loaded.History, 3)
	assert.Equal(t, "waiting on receipts", loaded.History[2].Comment)
	assert.Equal(t, "alice", loaded.History[2].ActorID)
	assert.Equal(t, 1, loaded.OpenEntry())
	assert.Equal(t, int64(1), loaded.Version)

	err = store.SaveInstance(ctx, instance, models.InstanceStatusActive, 0)
	assert.True(t, persistence.IsConcurrentUpdate(err))
}
