package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/protocol"
	"github.com/dukex/stepflow/pkg/validation"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrDefinitionNotFound is returned when a definition is not found.
var ErrDefinitionNotFound = persistence.ErrDefinitionNotFound

// DefaultVersion is assigned to definitions created without a version.
const DefaultVersion = "0.1.0"

// Definitions manages the draft, published and archived lifecycle of workflow definitions.
type Definitions struct {
	store     persistence.Store
	validate  *validator.Validate
	publisher eventbus.EventPublisher
	clock     protocol.Clock
	logger    *slog.Logger
}

// DefinitionsOption configures the Definitions service.
type DefinitionsOption func(*Definitions)

// WithEventPublisher publishes definition.published and definition.archived events.
func WithEventPublisher(publisher eventbus.EventPublisher) DefinitionsOption {
	return func(d *Definitions) {
		d.publisher = publisher
	}
}

// WithClock replaces the clock used for PublishedAt.
func WithClock(clock protocol.Clock) DefinitionsOption {
	return func(d *Definitions) {
		d.clock = clock
	}
}

// NewDefinitions creates a new definitions service.
func NewDefinitions(
	store persistence.Store,
	validate *validator.Validate,
	logger *slog.Logger,
	opts ...DefinitionsOption,
) *Definitions {
	definitions := &Definitions{
		store:    store,
		validate: validate,
		clock:    protocol.SystemClock,
		logger:   logger.With("module", "definitions_service"),
	}

	for _, opt := range opts {
		opt(definitions)
	}

	return definitions
}

// HealthCheck checks the health of the persistence layer.
func (d *Definitions) HealthCheck(ctx context.Context) (string, bool) {
	if d.store == nil {
		return "Persistence layer not initialized", false
	}

	err := d.store.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListDefinitionsRequest contains options for listing definitions.
type ListDefinitionsRequest struct {
	Status string
}

// List returns definitions ordered by creation time, optionally filtered by status.
func (d *Definitions) List(ctx context.Context, req ListDefinitionsRequest) ([]*models.WorkflowDefinition, error) {
	opts := persistence.ListDefinitionsOptions{}

	if status := strings.TrimSpace(req.Status); status != "" {
		allowedStatuses := []models.DefinitionStatus{
			models.DefinitionStatusDraft,
			models.DefinitionStatusPublished,
			models.DefinitionStatusArchived,
		}

		if !slices.Contains(allowedStatuses, models.DefinitionStatus(status)) {
			return nil, NewValidationError(
				"List",
				"INVALID_STATUS",
				fmt.Sprintf("invalid status '%s', allowed: draft, published, archived", status),
				ErrInvalidStatus,
			)
		}

		opts.Status = models.DefinitionStatus(status)
	}

	defs, err := d.store.ListDefinitions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}

	return defs, nil
}

// Get retrieves a definition by its ID.
func (d *Definitions) Get(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return d.store.LoadDefinition(ctx, id)
}

// Create stores a new draft. An empty ID is replaced by a generated one.
func (d *Definitions) Create(ctx context.Context, def *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if def == nil {
		return nil, ErrDefinitionNil
	}

	if def.ID == "" {
		def.ID = uuid.New().String()
	} else if _, err := d.store.LoadDefinition(ctx, def.ID); err == nil {
		return nil, &ServiceError{Op: "Create", Code: "DEFINITION_EXISTS", Err: ErrDefinitionExists}
	} else if !persistence.IsDefinitionNotFound(err) {
		return nil, err
	}

	if def.Version == "" {
		def.Version = DefaultVersion
	}

	def.Status = models.DefinitionStatusDraft
	def.PublishedAt = nil

	if err := d.checkStruct("Create", def); err != nil {
		return nil, err
	}

	if err := d.store.SaveDefinition(ctx, def); err != nil {
		return nil, fmt.Errorf("failed to create definition: %w", err)
	}

	d.logger.InfoContext(ctx, "definition created", "definition_id", def.ID, "name", def.Name)

	return def, nil
}

// Update replaces the steps, transitions and metadata of a draft.
func (d *Definitions) Update(
	ctx context.Context,
	id string,
	def *models.WorkflowDefinition,
) (*models.WorkflowDefinition, error) {
	if def == nil {
		return nil, ErrDefinitionNil
	}

	existing, err := d.store.LoadDefinition(ctx, id)
	if err != nil {
		return nil, err
	}

	if existing.Status != models.DefinitionStatusDraft {
		return nil, &ServiceError{
			Op:      "Update",
			Code:    "CANNOT_MODIFY",
			Message: fmt.Sprintf("definition %s is %s; only drafts can be modified", id, existing.Status),
			Err:     ErrCannotModifyPublished,
		}
	}

	def.ID = id
	def.Status = models.DefinitionStatusDraft
	def.CreatedBy = existing.CreatedBy
	def.PublishedAt = nil

	if def.Version == "" {
		def.Version = existing.Version
	}

	if err := d.checkStruct("Update", def); err != nil {
		return nil, err
	}

	if err := d.store.SaveDefinition(ctx, def); err != nil {
		return nil, fmt.Errorf("failed to update definition: %w", err)
	}

	return def, nil
}

// Validate runs the graph validator over a stored definition.
func (d *Definitions) Validate(ctx context.Context, id string) (validation.Report, error) {
	def, err := d.store.LoadDefinition(ctx, id)
	if err != nil {
		return validation.Report{}, err
	}

	return validation.Validate(def), nil
}

// Publish makes a draft executable. A definition with error findings is
// rejected with a PublishRejectedError carrying the report. Publishing an
// already published definition returns it unchanged.
func (d *Definitions) Publish(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	def, err := d.store.LoadDefinition(ctx, id)
	if err != nil {
		return nil, err
	}

	switch def.Status {
	case models.DefinitionStatusPublished:
		return def, nil
	case models.DefinitionStatusArchived:
		return nil, &ServiceError{Op: "Publish", Code: "DEFINITION_ARCHIVED", Err: ErrDefinitionArchived}
	}

	report := validation.Validate(def)
	if !report.CanPublish() {
		d.logger.InfoContext(ctx, "definition publish rejected",
			"definition_id", id,
			"errors", len(report.Errors()),
			"warnings", len(report.Warnings()))

		return nil, &PublishRejectedError{DefinitionID: id, Report: report}
	}

	now := d.clock.Now()
	def.Status = models.DefinitionStatusPublished
	def.PublishedAt = &now

	if err := d.store.SaveDefinition(ctx, def); err != nil {
		return nil, fmt.Errorf("failed to publish definition: %w", err)
	}

	d.logger.InfoContext(ctx, "definition published", "definition_id", id, "warnings", len(report.Warnings()))

	d.publish(ctx, events.DefinitionPublished{
		BaseEvent: events.NewBaseEvent(events.DefinitionPublishedEvent, def.ID, ""),
		Name:      def.Name,
		Version:   def.Version,
	})

	return def, nil
}

// Archive retires a definition. Archived definitions cannot start instances.
func (d *Definitions) Archive(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	def, err := d.store.LoadDefinition(ctx, id)
	if err != nil {
		return nil, err
	}

	if def.Status == models.DefinitionStatusArchived {
		return nil, &ServiceError{Op: "Archive", Code: "DEFINITION_ARCHIVED", Err: ErrDefinitionArchived}
	}

	def.Status = models.DefinitionStatusArchived

	if err := d.store.SaveDefinition(ctx, def); err != nil {
		return nil, fmt.Errorf("failed to archive definition: %w", err)
	}

	d.logger.InfoContext(ctx, "definition archived", "definition_id", id)

	d.publish(ctx, events.DefinitionArchived{
		BaseEvent: events.NewBaseEvent(events.DefinitionArchivedEvent, def.ID, ""),
		Name:      def.Name,
	})

	return def, nil
}

func (d *Definitions) checkStruct(op string, def *models.WorkflowDefinition) error {
	if d.validate == nil {
		return nil
	}

	if err := d.validate.Struct(def); err != nil {
		return NewValidationError(op, "INVALID_DEFINITION", err.Error(), ErrInvalidRequest)
	}

	return nil
}

func (d *Definitions) publish(ctx context.Context, event eventbus.Event) {
	if d.publisher == nil {
		return
	}

	if err := d.publisher.Publish(ctx, "definitions", event); err != nil {
		d.logger.ErrorContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
