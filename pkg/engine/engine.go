// Package engine runs workflow instances one step at a time.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/errorhandling"
	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/expression"
	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/mapping"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/otelhelper"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/protocol"
	"github.com/dukex/stepflow/pkg/validation"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StepExecutor runs a single step. *registry.Registry implements it.
type StepExecutor interface {
	Execute(ctx context.Context, step *models.WorkflowStep, data map[string]any) (models.ExecutionResult, error)
}

// Mapper applies a step's variable mappings for one direction.
type Mapper interface {
	Apply(
		ctx context.Context,
		mappings []models.VariableMapping,
		direction models.MappingDirection,
		data map[string]any,
	) (map[string]any, []mapping.Warning)
}

// Guard wraps step execution with the step's error handlers.
type Guard interface {
	Guard(
		ctx context.Context,
		step *models.WorkflowStep,
		data map[string]any,
		execute errorhandling.ExecuteFunc,
	) (models.ExecutionResult, error)
}

// CreateOptions carries the optional arguments of CreateInstance.
type CreateOptions struct {
	// InstanceID forces the id of the new instance; a UUID is generated when empty
	InstanceID string
	ActorID    string
}

// ActionOptions carries the acting user and comment recorded in history.
type ActionOptions struct {
	ActorID string
	Comment string
}

// Engine owns the instance state machine. It holds no state of its own beyond
// its collaborators, so several engines may share a store.
type Engine struct {
	store      persistence.Store
	executor   StepExecutor
	conditions protocol.ConditionEvaluator
	mapper     Mapper
	guard      Guard
	publisher  eventbus.EventPublisher
	tracer     trace.Tracer
	clock      protocol.Clock
	newID      func() string
	locks      *keyedMutex
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMapper replaces the variable mapping engine.
func WithMapper(mapper Mapper) Option {
	return func(e *Engine) {
		e.mapper = mapper
	}
}

// WithGuard replaces the error handling engine.
func WithGuard(guard Guard) Option {
	return func(e *Engine) {
		e.guard = guard
	}
}

// WithPublisher publishes lifecycle events after each successful operation.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

// WithTracer records one span per operation.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithClock replaces the clock used for history timestamps and timers.
func WithClock(clock protocol.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithIDGenerator replaces the instance id generator.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}

// NewEngine creates an engine. When conditions also implements
// protocol.TransformEvaluator it is used for mapping transforms. A nil
// conditions falls back to the hcl expression evaluator.
func NewEngine(
	store persistence.Store,
	executor StepExecutor,
	conditions protocol.ConditionEvaluator,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	logger = logger.With("module", "engine")

	if conditions == nil {
		conditions = expression.NewEvaluator(logger)
	}

	transformer, _ := conditions.(protocol.TransformEvaluator)

	engine := &Engine{
		store:      store,
		executor:   executor,
		conditions: conditions,
		mapper:     mapping.NewEngine(transformer, logger),
		guard:      errorhandling.NewEngine(nil, logger),
		tracer:     otelhelper.NoopTracer(),
		clock:      protocol.SystemClock,
		newID:      uuid.NewString,
		locks:      newKeyedMutex(),
		logger:     logger,
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// ValidateDefinition runs the graph validator.
func (e *Engine) ValidateDefinition(def *models.WorkflowDefinition) validation.Report {
	return validation.Validate(def)
}

// CreateInstance starts an instance of the definition at the first step after
// start. History is seeded with a closed start entry and an open entry for
// that step.
func (e *Engine) CreateInstance(
	ctx context.Context,
	definitionID string,
	initialData map[string]any,
	opts CreateOptions,
) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.create_instance",
		attribute.String(otelhelper.DefinitionIDKey, definitionID),
		attribute.String(otelhelper.ActorIDKey, opts.ActorID),
	)
	defer span.End()

	instance, def, err := e.createInstance(ctx, definitionID, initialData, opts)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, newInstanceError("create", opts.InstanceID, err)
	}

	span.SetAttributes(
		attribute.String(otelhelper.InstanceIDKey, instance.ID),
		attribute.String(otelhelper.StepIDKey, instance.CurrentStepID),
	)

	e.logger.InfoContext(ctx, "instance created",
		"definition_id", def.ID,
		"instance_id", instance.ID,
		"current_step_id", instance.CurrentStepID)

	e.publishCreated(ctx, instance)

	return instance, nil
}

func (e *Engine) createInstance(
	ctx context.Context,
	definitionID string,
	initialData map[string]any,
	opts CreateOptions,
) (*models.WorkflowInstance, *models.WorkflowDefinition, error) {
	def, err := e.store.LoadDefinition(ctx, definitionID)
	if err != nil {
		return nil, nil, err
	}

	if !def.IsExecutable() {
		return nil, nil, fmt.Errorf("%w: definition %s is %s", ErrInvalidDefinition, def.ID, def.Status)
	}

	start, ok := def.StartStep()
	if !ok {
		return nil, nil, fmt.Errorf("%w: definition %s has no start step", ErrInvalidDefinition, def.ID)
	}

	data := models.CopyData(initialData)
	if data == nil {
		data = make(map[string]any)
	}

	transition, err := e.selectTransition(start, def.Outgoing(start.ID), data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: start step %s: %w", ErrInvalidDefinition, start.ID, err)
	}

	first, ok := def.StepByID(transition.To)
	if !ok {
		return nil, nil, fmt.Errorf("%w: transition %s targets unknown step %s", ErrInvalidDefinition, transition.ID, transition.To)
	}

	data, _ = e.mapper.Apply(ctx, first.Mappings, models.MappingInput, data)

	now := e.clock.Now()
	startExited := now

	instanceID := opts.InstanceID
	if instanceID == "" {
		instanceID = e.newID()
	}

	instance := &models.WorkflowInstance{
		ID:            instanceID,
		DefinitionID:  def.ID,
		Status:        models.InstanceStatusActive,
		CurrentStepID: first.ID,
		Data:          data,
		StepResults:   make(map[string]any),
		History: []models.HistoryEntry{
			{StepID: start.ID, StepName: start.Name, EnteredAt: now, ExitedAt: &startExited, ActorID: opts.ActorID},
			{StepID: first.ID, StepName: first.Name, EnteredAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := e.store.CreateInstance(ctx, instance); err != nil {
		return nil, nil, err
	}

	return instance, def, nil
}

// Advance executes the instance's current step with stepOutput merged into its
// data and moves it along the selected transition. On an end step the
// instance is completed instead. State errors and step failures leave the
// stored instance untouched.
func (e *Engine) Advance(
	ctx context.Context,
	instanceID string,
	stepOutput map[string]any,
	opts ActionOptions,
) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.advance",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
		attribute.String(otelhelper.ActorIDKey, opts.ActorID),
	)
	defer span.End()

	unlock := e.locks.Lock(instanceID)
	defer unlock()

	instance, err := e.advance(ctx, span, instanceID, stepOutput, opts)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, newInstanceError("advance", instanceID, err)
	}

	span.SetAttributes(
		attribute.String(otelhelper.InstanceStatusKey, string(instance.Status)),
		attribute.String(otelhelper.NextStepIDKey, instance.CurrentStepID),
	)

	return instance, nil
}

func (e *Engine) advance(
	ctx context.Context,
	span trace.Span,
	instanceID string,
	stepOutput map[string]any,
	opts ActionOptions,
) (*models.WorkflowInstance, error) {
	instance, err := e.store.LoadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if instance.Status != models.InstanceStatusActive {
		return nil, fmt.Errorf("%w: status is %s", ErrInstanceNotActive, instance.Status)
	}

	now := e.clock.Now()
	if instance.NotBefore != nil && now.Before(*instance.NotBefore) {
		return nil, fmt.Errorf("%w: not before %s", ErrTimerNotElapsed, instance.NotBefore.Format(time.RFC3339))
	}

	def, err := e.store.LoadDefinition(ctx, instance.DefinitionID)
	if err != nil {
		if persistence.IsDefinitionNotFound(err) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
		}

		return nil, err
	}

	step, ok := def.StepByID(instance.CurrentStepID)
	if !ok {
		return nil, fmt.Errorf("%w: current step %s is not in definition %s", ErrInvalidState, instance.CurrentStepID, def.ID)
	}

	open := instance.OpenEntry()
	if open < 0 || instance.History[open].StepID != step.ID {
		return nil, fmt.Errorf("%w: no open history entry for step %s", ErrInvalidState, step.ID)
	}

	span.SetAttributes(
		attribute.String(otelhelper.DefinitionIDKey, def.ID),
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.StepNameKey, step.Name),
		attribute.String(otelhelper.StepTypeKey, string(step.Type)),
	)

	logger := e.logger.With("instance_id", instance.ID, "step_id", step.ID, "step_type", step.Type)

	data := models.MergeData(instance.Data, stepOutput)

	data, _ = e.mapper.Apply(ctx, step.Mappings, models.MappingOutput, data)

	result, err := e.executeStep(ctx, def, instance, step, data)
	if err != nil {
		logger.WarnContext(ctx, "step execution failed", "error", err)
		e.publishStepFailed(ctx, instance, step, err)

		return nil, &StepExecutionFailedError{StepID: step.ID, StepName: step.Name, Err: err}
	}

	if result.Data != nil {
		data = result.Data
	}

	if result.Output != nil {
		if instance.StepResults == nil {
			instance.StepResults = make(map[string]any)
		}

		instance.StepResults[step.ID] = result.Output
	}

	expectedStatus := instance.Status
	expectedVersion := instance.Version

	e.closeEntry(instance, open, now, data, opts)
	instance.NotBefore = nil
	instance.UpdatedAt = now

	if step.Type == models.StepTypeEnd {
		instance.Status = models.InstanceStatusCompleted
		instance.Data = data
		instance.CompletedAt = &now

		if err := e.store.SaveInstance(ctx, instance, expectedStatus, expectedVersion); err != nil {
			return nil, err
		}

		logger.InfoContext(ctx, "instance completed")
		e.publishCompleted(ctx, instance, step, opts)

		return instance, nil
	}

	transition, err := e.selectTransition(step, def.Outgoing(step.ID), data)
	if err != nil {
		return nil, err
	}

	next, ok := def.StepByID(transition.To)
	if !ok {
		return nil, fmt.Errorf("%w: transition %s targets unknown step %s", ErrInvalidState, transition.ID, transition.To)
	}

	instance.History = append(instance.History, models.HistoryEntry{
		StepID:    next.ID,
		StepName:  next.Name,
		EnteredAt: now,
	})
	instance.CurrentStepID = next.ID
	instance.NotBefore = result.NotBefore

	instance.Data, _ = e.mapper.Apply(ctx, next.Mappings, models.MappingInput, data)

	if err := e.store.SaveInstance(ctx, instance, expectedStatus, expectedVersion); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "instance advanced", "transition_id", transition.ID, "next_step_id", next.ID)
	e.publishAdvanced(ctx, instance, step, next, result, opts)

	return instance, nil
}

func (e *Engine) executeStep(
	ctx context.Context,
	def *models.WorkflowDefinition,
	instance *models.WorkflowInstance,
	step *models.WorkflowStep,
	data map[string]any,
) (models.ExecutionResult, error) {
	ctx = protocol.ContextWithScope(ctx, protocol.ExecutionScope{
		DefinitionID: def.ID,
		InstanceID:   instance.ID,
		StepID:       step.ID,
	})

	ctx = log.ContextWithLogger(ctx, e.logger.With("instance_id", instance.ID, "step_id", step.ID))

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.execute_step",
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.StepTypeKey, string(step.Type)),
	)
	defer span.End()

	result, err := e.guard.Guard(ctx, step, data, func(ctx context.Context) (models.ExecutionResult, error) {
		return e.executor.Execute(ctx, step, models.CopyData(data))
	})
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return result, err
}

// selectTransition picks the transition to follow out of step. Decision steps
// take the first transition whose condition holds, then the first one without
// a condition. Every other step takes the first declared transition.
func (e *Engine) selectTransition(
	step *models.WorkflowStep,
	transitions []*models.WorkflowTransition,
	data map[string]any,
) (*models.WorkflowTransition, error) {
	if len(transitions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDeadEnd, step.ID)
	}

	if step.Type != models.StepTypeDecision {
		return transitions[0], nil
	}

	for _, transition := range transitions {
		if transition.HasCondition() && e.conditions.Evaluate(transition.Condition, data) {
			return transition, nil
		}
	}

	for _, transition := range transitions {
		if !transition.HasCondition() {
			return transition, nil
		}
	}

	return nil, fmt.Errorf("%w: decision %s", ErrNoDecisionPathMatched, step.ID)
}

func (e *Engine) closeEntry(
	instance *models.WorkflowInstance,
	idx int,
	now time.Time,
	data map[string]any,
	opts ActionOptions,
) {
	exited := now
	entry := &instance.History[idx]
	entry.ExitedAt = &exited
	entry.Snapshot = models.CopyData(data)
	entry.ActorID = opts.ActorID
	entry.Comment = opts.Comment
}

// Terminate stops an active instance. The conditional write on the prior
// status keeps a concurrent advance from reactivating it.
func (e *Engine) Terminate(ctx context.Context, instanceID string, opts ActionOptions) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.terminate",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
		attribute.String(otelhelper.ActorIDKey, opts.ActorID),
	)
	defer span.End()

	unlock := e.locks.Lock(instanceID)
	defer unlock()

	instance, err := e.terminate(ctx, instanceID, opts)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, newInstanceError("terminate", instanceID, err)
	}

	e.logger.InfoContext(ctx, "instance terminated", "instance_id", instance.ID, "step_id", instance.CurrentStepID)
	e.publishTerminated(ctx, instance, opts)

	return instance, nil
}

func (e *Engine) terminate(ctx context.Context, instanceID string, opts ActionOptions) (*models.WorkflowInstance, error) {
	instance, err := e.store.LoadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if instance.Status != models.InstanceStatusActive {
		return nil, fmt.Errorf("%w: status is %s", ErrInstanceNotActive, instance.Status)
	}

	expectedStatus := instance.Status
	expectedVersion := instance.Version
	now := e.clock.Now()

	if open := instance.OpenEntry(); open >= 0 {
		e.closeEntry(instance, open, now, instance.Data, opts)
	}

	instance.Status = models.InstanceStatusTerminated
	instance.TerminatedAt = &now
	instance.UpdatedAt = now
	instance.NotBefore = nil

	if err := e.store.SaveInstance(ctx, instance, expectedStatus, expectedVersion); err != nil {
		return nil, err
	}

	return instance, nil
}

// Annotate records a comment against the instance's current step without
// moving it. The entry is closed on creation. Completed and terminated
// instances are frozen and reject annotations with ErrInstanceNotActive.
func (e *Engine) Annotate(ctx context.Context, instanceID string, opts ActionOptions) error {
	unlock := e.locks.Lock(instanceID)
	defer unlock()

	instance, err := e.store.LoadInstance(ctx, instanceID)
	if err != nil {
		return newInstanceError("annotate", instanceID, err)
	}

	if instance.Status != models.InstanceStatusActive {
		return newInstanceError("annotate", instanceID,
			fmt.Errorf("%w: status is %s", ErrInstanceNotActive, instance.Status))
	}

	stepName := instance.CurrentStepID
	if open := instance.OpenEntry(); open >= 0 {
		stepName = instance.History[open].StepName
	}

	now := e.clock.Now()
	exited := now

	entry := models.HistoryEntry{
		StepID:    instance.CurrentStepID,
		StepName:  stepName,
		EnteredAt: now,
		ExitedAt:  &exited,
		ActorID:   opts.ActorID,
		Comment:   opts.Comment,
	}

	if err := e.store.AppendHistory(ctx, instanceID, entry); err != nil {
		return newInstanceError("annotate", instanceID, err)
	}

	return nil
}

// Instance returns the stored instance.
func (e *Engine) Instance(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	instance, err := e.store.LoadInstance(ctx, instanceID)
	if err != nil {
		return nil, newInstanceError("get", instanceID, err)
	}

	return instance, nil
}

// GetHistory returns a copy of the instance's history in execution order.
func (e *Engine) GetHistory(ctx context.Context, instanceID string) ([]models.HistoryEntry, error) {
	instance, err := e.store.LoadInstance(ctx, instanceID)
	if err != nil {
		return nil, newInstanceError("history", instanceID, err)
	}

	return models.CopyHistory(instance.History), nil
}
