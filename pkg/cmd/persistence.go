package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/storeflow/pkg/persistence"
	"github.com/dukex/storeflow/pkg/persistence/file"
	"github.com/dukex/storeflow/pkg/persistence/memory"
	"github.com/dukex/storeflow/pkg/persistence/postgresql"
	"github.com/dukex/storeflow/pkg/persistence/redis"
)

var supportedPersistenceProviders = []string{"memory", "file", "postgres", "postgresql", "redis", "rediss"}

// NewPersistence opens the backend named by the scheme of databaseURL.
// A bare path without a scheme is treated as a file:// root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider, err := parsePersistenceProvider(databaseURL)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "opening persistence", "provider", provider)

	switch provider {
	case "memory":
		return memory.NewPersistence(), nil
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "redis", "rediss":
		return redis.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) (string, error) {
	if databaseURL == "" {
		return "", fmt.Errorf("database URL is required, one of %s", strings.Join(supportedPersistenceProviders, ", "))
	}

	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file", nil
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider, nil
		}
	}

	return "", fmt.Errorf("unsupported persistence provider %q", provider)
}
