// Package redis provides a Redis-backed Store.
//
// Key layout, under a configurable prefix:
//
//	<prefix>definition:<id>   => JSON definition document
//	<prefix>definitions       => SET of definition ids
//	<prefix>instance:<id>     => JSON instance document
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "stepflow:"

// Persistence implements persistence.Store on Redis. Instance updates use
// WATCH/MULTI so a concurrent writer aborts the transaction.
type Persistence struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

var _ persistence.Store = (*Persistence)(nil)

// NewPersistence connects to the Redis server at redisURL (redis://host:port/db).
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewPersistenceWithClient(client, DefaultPrefix, logger), nil
}

// NewPersistenceWithClient wraps an existing client. An empty prefix uses DefaultPrefix.
func NewPersistenceWithClient(client *redis.Client, prefix string, logger *slog.Logger) *Persistence {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Persistence{client: client, prefix: prefix, logger: logger}
}

func (r *Persistence) keyDefinition(id string) string {
	return r.prefix + "definition:" + id
}

func (r *Persistence) keyDefinitions() string {
	return r.prefix + "definitions"
}

func (r *Persistence) keyInstance(id string) string {
	return r.prefix + "instance:" + id
}

func (r *Persistence) SaveDefinition(ctx context.Context, def *models.WorkflowDefinition) error {
	existing, err := r.LoadDefinition(ctx, def.ID)

	switch {
	case err == nil:
		def.CreatedAt = existing.CreatedAt
	case persistence.IsDefinitionNotFound(err):
		if def.CreatedAt.IsZero() {
			def.CreatedAt = time.Now().UTC()
		}
	default:
		return err
	}

	def.UpdatedAt = time.Now().UTC()

	document, err := json.Marshal(def)
	if err != nil {
		return persistence.NewDefinitionError("SaveDefinition", def.ID, fmt.Errorf("failed to marshal definition: %w", err))
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.keyDefinition(def.ID), document, 0)
		pipe.SAdd(ctx, r.keyDefinitions(), def.ID)

		return nil
	})
	if err != nil {
		return persistence.NewDefinitionError("SaveDefinition", def.ID, fmt.Errorf("failed to save definition: %w", err))
	}

	return nil
}

func (r *Persistence) LoadDefinition(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	body, err := r.client.Get(ctx, r.keyDefinition(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewDefinitionError("LoadDefinition", id, persistence.ErrDefinitionNotFound)
		}

		return nil, persistence.NewDefinitionError("LoadDefinition", id, err)
	}

	var def models.WorkflowDefinition
	if err := json.Unmarshal(body, &def); err != nil {
		return nil, persistence.NewDefinitionError("LoadDefinition", id, fmt.Errorf("failed to unmarshal definition: %w", err))
	}

	return &def, nil
}

func (r *Persistence) ListDefinitions(
	ctx context.Context,
	opts persistence.ListDefinitionsOptions,
) ([]*models.WorkflowDefinition, error) {
	ids, err := r.client.SMembers(ctx, r.keyDefinitions()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list definition ids: %w", err)
	}

	defs := make([]*models.WorkflowDefinition, 0, len(ids))
	if len(ids) == 0 {
		return defs, nil
	}

	pipe := r.client.Pipeline()

	cmds := make([]*redis.StringCmd, len(ids))
	for idx, id := range ids {
		cmds[idx] = pipe.Get(ctx, r.keyDefinition(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load definitions: %w", err)
	}

	for _, cmd := range cmds {
		body, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}

			return nil, err
		}

		var def models.WorkflowDefinition
		if err := json.Unmarshal(body, &def); err != nil {
			return nil, fmt.Errorf("failed to unmarshal definition: %w", err)
		}

		if opts.Matches(&def) {
			defs = append(defs, &def)
		}
	}

	persistence.SortDefinitions(defs)

	return defs, nil
}

func (r *Persistence) CreateInstance(ctx context.Context, instance *models.WorkflowInstance) error {
	document, err := json.Marshal(instance)
	if err != nil {
		return persistence.NewInstanceError("CreateInstance", instance.ID, fmt.Errorf("failed to marshal instance: %w", err))
	}

	created, err := r.client.SetNX(ctx, r.keyInstance(instance.ID), document, 0).Result()
	if err != nil {
		return persistence.NewInstanceError("CreateInstance", instance.ID, err)
	}

	if !created {
		return persistence.NewInstanceError("CreateInstance", instance.ID, persistence.ErrInstanceExists)
	}

	return nil
}

func (r *Persistence) LoadInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	instance, err := r.getInstance(ctx, r.client, id)
	if err != nil {
		return nil, persistence.NewInstanceError("LoadInstance", id, err)
	}

	return instance, nil
}

func (r *Persistence) SaveInstance(
	ctx context.Context,
	instance *models.WorkflowInstance,
	expectedStatus models.InstanceStatus,
	expectedVersion int64,
) error {
	next := *instance
	next.Version = expectedVersion + 1

	err := r.update(ctx, instance.ID, func(stored *models.WorkflowInstance) (*models.WorkflowInstance, error) {
		if stored.Status != expectedStatus || stored.Version != expectedVersion {
			return nil, persistence.ErrConcurrentUpdate
		}

		return &next, nil
	})
	if err != nil {
		return persistence.NewInstanceError("SaveInstance", instance.ID, err)
	}

	instance.Version = next.Version

	return nil
}

func (r *Persistence) AppendHistory(ctx context.Context, instanceID string, entry models.HistoryEntry) error {
	err := r.update(ctx, instanceID, func(stored *models.WorkflowInstance) (*models.WorkflowInstance, error) {
		stored.History = append(stored.History, entry)
		stored.Version++
		stored.UpdatedAt = time.Now().UTC()

		return stored, nil
	})
	if err != nil {
		return persistence.NewInstanceError("AppendHistory", instanceID, err)
	}

	return nil
}

// HealthCheck pings the server.
func (r *Persistence) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Close closes the client connection pool.
func (r *Persistence) Close(_ context.Context) error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

// update applies mutate to the stored instance inside WATCH/MULTI. A write by
// another client between the read and EXEC fails the transaction.
func (r *Persistence) update(
	ctx context.Context,
	id string,
	mutate func(stored *models.WorkflowInstance) (*models.WorkflowInstance, error),
) error {
	key := r.keyInstance(id)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := r.getInstance(ctx, tx, id)
		if err != nil {
			return err
		}

		next, err := mutate(stored)
		if err != nil {
			return err
		}

		document, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal instance: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, document, 0)

			return nil
		})

		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		r.logger.DebugContext(ctx, "instance transaction aborted by concurrent write", "instance_id", id)

		return persistence.ErrConcurrentUpdate
	}

	return err
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *Persistence) getInstance(ctx context.Context, reader getter, id string) (*models.WorkflowInstance, error) {
	body, err := reader.Get(ctx, r.keyInstance(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.ErrInstanceNotFound
		}

		return nil, err
	}

	var instance models.WorkflowInstance
	if err := json.Unmarshal(body, &instance); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance: %w", err)
	}

	return &instance, nil
}
