package booking

import (
	"context"
	"strings"
)

// NewLedger selects the ledger backend: Postgres when DATABASE_URL is set,
// Redis when REDIS_URL is set, otherwise in-memory.
func NewLedger(ctx context.Context, databaseURL, redisURL string) (Ledger, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresLedger(ctx, databaseURL)
	}
	if strings.TrimSpace(redisURL) != "" {
		return NewRedisLedger(ctx, redisURL)
	}
	return NewMemoryLedger(), nil
}
