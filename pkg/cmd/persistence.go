package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/persistence/file"
	"github.com/dukex/stepflow/pkg/persistence/memory"
	"github.com/dukex/stepflow/pkg/persistence/postgresql"
	"github.com/dukex/stepflow/pkg/persistence/redis"
)

// NewPersistence opens the store named by the scheme of databaseURL:
// memory://, file://<dir>, postgres://, postgresql://, redis:// or rediss://.
// A URL without a scheme is treated as a file store directory.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Store, error) {
	provider, rest := parsePersistenceProvider(databaseURL)

	logger.InfoContext(ctx, "Opening persistence", "provider", provider)

	switch provider {
	case "memory":
		return memory.NewPersistence(), nil
	case "file":
		return file.NewPersistence(rest), nil
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "redis", "rediss":
		return redis.NewPersistence(ctx, logger, databaseURL)
	default:
		return nil, fmt.Errorf("unsupported persistence provider %q", provider)
	}
}

func parsePersistenceProvider(databaseURL string) (string, string) {
	provider, rest, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file", databaseURL
	}

	return strings.ToLower(provider), rest
}
