package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisLedgerTTL = 24 * time.Hour

// RedisLedger shares booking confirmations across instances through Redis.
type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(ctx context.Context, redisURL string) (*RedisLedger, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisLedger{client: client}, nil
}

func ledgerKey(token string) string {
	return "frontdesk:booking:" + token
}

func (l *RedisLedger) Get(ctx context.Context, token string) (Result, bool, error) {
	raw, err := l.client.Get(ctx, ledgerKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("ledger lookup: %w", err)
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, false, fmt.Errorf("decode ledger entry: %w", err)
	}
	return res, true, nil
}

func (l *RedisLedger) Put(ctx context.Context, token string, res Result) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	// SetNX keeps the first recorded outcome authoritative under races.
	if err := l.client.SetNX(ctx, ledgerKey(token), raw, redisLedgerTTL).Err(); err != nil {
		return fmt.Errorf("ledger insert: %w", err)
	}
	return nil
}

func (l *RedisLedger) Close() {
	_ = l.client.Close()
}
