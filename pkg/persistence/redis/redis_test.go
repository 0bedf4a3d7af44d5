package redis_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/persistence"
	stepflowredis "github.com/dukex/stepflow/pkg/persistence/redis"
	"github.com/dukex/stepflow/pkg/persistence/storetest"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	redisOnce     sync.Once
	redisEndpoint string
	redisErr      error
)

func redisAddress(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}

	redisOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		container, err := testcontainers.Run(
			ctx, "redis:7-alpine",
			testcontainers.WithExposedPorts("6379/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("6379/tcp"),
				wait.ForLog("Ready to accept connections"),
			),
		)
		if err != nil {
			redisErr = err

			return
		}

		redisEndpoint, redisErr = container.Endpoint(ctx, "")
	})

	require.NoError(t, redisErr)

	return redisEndpoint
}

func newStore(t *testing.T) *stepflowredis.Persistence {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: redisAddress(t)})
	require.NoError(t, client.Ping(context.Background()).Err())

	store := stepflowredis.NewPersistenceWithClient(client, "stepflow:test:"+uuid.NewString()+":", log.Discard())

	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})

	return store
}

func TestPersistence_Store(t *testing.T) {
	storetest.Run(t, func(t *testing.T) persistence.Store {
		return newStore(t)
	})
}

func TestNewPersistence_URL(t *testing.T) {
	ctx := context.Background()

	store, err := stepflowredis.NewPersistence(ctx, log.Discard(), "redis://"+redisAddress(t)+"/0")
	require.NoError(t, err)
	assert.NoError(t, store.HealthCheck(ctx))
	assert.NoError(t, store.Close(ctx))
}

func TestNewPersistence_InvalidURL(t *testing.T) {
	_, err := stepflowredis.NewPersistence(context.Background(), log.Discard(), "not a url")
	assert.Error(t, err)
}
