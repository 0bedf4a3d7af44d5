// Package postgresql provides PostgreSQL persistence for workflow definitions and instances.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/persistence/sqlbase"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// Persistence implements persistence.Store for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ persistence.Store = (*Persistence)(nil)

// NewPersistence creates a new PostgreSQL persistence layer and migrates the schema.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{db: database, logger: logger}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) SaveDefinition(ctx context.Context, def *models.WorkflowDefinition) error {
	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}

	def.UpdatedAt = now

	document, err := json.Marshal(def)
	if err != nil {
		return persistence.NewDefinitionError("SaveDefinition", def.ID, fmt.Errorf("failed to marshal definition: %w", err))
	}

	query := `
		INSERT INTO workflow_definitions (id, name, status, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , status = EXCLUDED.status
		  , document = jsonb_set(EXCLUDED.document, '{created_at}', workflow_definitions.document->'created_at')
		  , updated_at = EXCLUDED.updated_at
		RETURNING created_at
	`

	err = p.db.QueryRowContext(ctx, query,
		def.ID, def.Name, string(def.Status), document, def.CreatedAt, def.UpdatedAt,
	).Scan(&def.CreatedAt)
	if err != nil {
		return persistence.NewDefinitionError("SaveDefinition", def.ID, fmt.Errorf("failed to save definition: %w", err))
	}

	def.CreatedAt = def.CreatedAt.UTC()

	return nil
}

func (p *Persistence) LoadDefinition(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	var document []byte

	err := p.db.QueryRowContext(ctx, "SELECT document FROM workflow_definitions WHERE id = $1", id).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewDefinitionError("LoadDefinition", id, persistence.ErrDefinitionNotFound)
		}

		return nil, persistence.NewDefinitionError("LoadDefinition", id, fmt.Errorf("failed to query definition: %w", err))
	}

	var def models.WorkflowDefinition
	if err := json.Unmarshal(document, &def); err != nil {
		return nil, persistence.NewDefinitionError("LoadDefinition", id, fmt.Errorf("failed to unmarshal definition: %w", err))
	}

	return &def, nil
}

func (p *Persistence) ListDefinitions(
	ctx context.Context,
	opts persistence.ListDefinitionsOptions,
) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT document
		FROM workflow_definitions
		WHERE ($1::text = '' OR status = $1::text)
		ORDER BY created_at ASC, id ASC
	`

	rows, err := p.db.QueryContext(ctx, query, string(opts.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to query definitions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			p.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	defs := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}

		var def models.WorkflowDefinition
		if err := json.Unmarshal(document, &def); err != nil {
			return nil, fmt.Errorf("failed to unmarshal definition: %w", err)
		}

		defs = append(defs, &def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating definitions: %w", err)
	}

	return defs, nil
}

func (p *Persistence) CreateInstance(ctx context.Context, instance *models.WorkflowInstance) error {
	row, err := newInstanceRow(instance)
	if err != nil {
		return persistence.NewInstanceError("CreateInstance", instance.ID, err)
	}

	query := `
		INSERT INTO workflow_instances (
			id, definition_id, status, current_step_id, data, step_results, history,
			not_before, version, created_at, updated_at, completed_at, terminated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = p.db.ExecContext(ctx, query,
		instance.ID, instance.DefinitionID, string(instance.Status), instance.CurrentStepID,
		row.data, row.stepResults, row.history,
		instance.NotBefore, instance.Version, instance.CreatedAt, instance.UpdatedAt,
		instance.CompletedAt, instance.TerminatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewInstanceError("CreateInstance", instance.ID, persistence.ErrInstanceExists)
		}

		return persistence.NewInstanceError("CreateInstance", instance.ID, fmt.Errorf("failed to insert instance: %w", err))
	}

	return nil
}

func (p *Persistence) LoadInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	query := `
		SELECT
			id
		  , definition_id
		  , status
		  , current_step_id
		  , data
		  , step_results
		  , history
		  , not_before
		  , version
		  , created_at
		  , updated_at
		  , completed_at
		  , terminated_at
		FROM workflow_instances
		WHERE id = $1
	`

	instance, err := scanInstance(p.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewInstanceError("LoadInstance", id, persistence.ErrInstanceNotFound)
		}

		return nil, persistence.NewInstanceError("LoadInstance", id, err)
	}

	return instance, nil
}

func (p *Persistence) SaveInstance(
	ctx context.Context,
	instance *models.WorkflowInstance,
	expectedStatus models.InstanceStatus,
	expectedVersion int64,
) error {
	row, err := newInstanceRow(instance)
	if err != nil {
		return persistence.NewInstanceError("SaveInstance", instance.ID, err)
	}

	query := `
		UPDATE workflow_instances SET
			status = $4
		  , current_step_id = $5
		  , data = $6
		  , step_results = $7
		  , history = $8
		  , not_before = $9
		  , version = version + 1
		  , updated_at = $10
		  , completed_at = $11
		  , terminated_at = $12
		WHERE id = $1 AND status = $2 AND version = $3
	`

	result, err := p.db.ExecContext(ctx, query,
		instance.ID, string(expectedStatus), expectedVersion,
		string(instance.Status), instance.CurrentStepID,
		row.data, row.stepResults, row.history,
		instance.NotBefore, instance.UpdatedAt, instance.CompletedAt, instance.TerminatedAt,
	)
	if err != nil {
		return persistence.NewInstanceError("SaveInstance", instance.ID, fmt.Errorf("failed to update instance: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewInstanceError("SaveInstance", instance.ID, fmt.Errorf("failed to get affected rows: %w", err))
	}

	if affected == 0 {
		return persistence.NewInstanceError("SaveInstance", instance.ID, p.missOrConflict(ctx, instance.ID))
	}

	instance.Version = expectedVersion + 1

	return nil
}

func (p *Persistence) AppendHistory(ctx context.Context, instanceID string, entry models.HistoryEntry) error {
	encoded, err := json.Marshal([]models.HistoryEntry{entry})
	if err != nil {
		return persistence.NewInstanceError("AppendHistory", instanceID, fmt.Errorf("failed to marshal history entry: %w", err))
	}

	query := `
		UPDATE workflow_instances SET
			history = history || $2::jsonb
		  , version = version + 1
		  , updated_at = $3
		WHERE id = $1
	`

	result, err := p.db.ExecContext(ctx, query, instanceID, encoded, time.Now().UTC())
	if err != nil {
		return persistence.NewInstanceError("AppendHistory", instanceID, fmt.Errorf("failed to append history: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewInstanceError("AppendHistory", instanceID, fmt.Errorf("failed to get affected rows: %w", err))
	}

	if affected == 0 {
		return persistence.NewInstanceError("AppendHistory", instanceID, persistence.ErrInstanceNotFound)
	}

	return nil
}

// missOrConflict tells a missing row from a lost compare-and-swap.
func (p *Persistence) missOrConflict(ctx context.Context, id string) error {
	var exists bool

	err := p.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM workflow_instances WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check instance: %w", err)
	}

	if !exists {
		return persistence.ErrInstanceNotFound
	}

	return persistence.ErrConcurrentUpdate
}

type instanceRow struct {
	data        []byte
	stepResults []byte
	history     []byte
}

func newInstanceRow(instance *models.WorkflowInstance) (instanceRow, error) {
	var (
		row instanceRow
		err error
	)

	if row.data, err = marshalJSON(instance.Data, "{}"); err != nil {
		return row, fmt.Errorf("failed to marshal data: %w", err)
	}

	if row.stepResults, err = marshalJSON(instance.StepResults, "{}"); err != nil {
		return row, fmt.Errorf("failed to marshal step results: %w", err)
	}

	if row.history, err = marshalJSON(instance.History, "[]"); err != nil {
		return row, fmt.Errorf("failed to marshal history: %w", err)
	}

	return row, nil
}

func marshalJSON[T any](value T, empty string) ([]byte, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	if string(body) == "null" {
		return []byte(empty), nil
	}

	return body, nil
}

func scanInstance(row *sql.Row) (*models.WorkflowInstance, error) {
	var (
		instance                   models.WorkflowInstance
		status                     string
		data, stepResults, history []byte
		notBefore                  sql.NullTime
		completedAt, terminatedAt  sql.NullTime
	)

	err := row.Scan(
		&instance.ID,
		&instance.DefinitionID,
		&status,
		&instance.CurrentStepID,
		&data,
		&stepResults,
		&history,
		&notBefore,
		&instance.Version,
		&instance.CreatedAt,
		&instance.UpdatedAt,
		&completedAt,
		&terminatedAt,
	)
	if err != nil {
		return nil, err
	}

	instance.Status = models.InstanceStatus(status)
	instance.CreatedAt = instance.CreatedAt.UTC()
	instance.UpdatedAt = instance.UpdatedAt.UTC()
	instance.NotBefore = nullTime(notBefore)
	instance.CompletedAt = nullTime(completedAt)
	instance.TerminatedAt = nullTime(terminatedAt)

	if err := json.Unmarshal(data, &instance.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	if err := json.Unmarshal(stepResults, &instance.StepResults); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step results: %w", err)
	}

	if err := json.Unmarshal(history, &instance.History); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}

	return &instance, nil
}

func nullTime(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}

	t := value.Time.UTC()

	return &t
}
