package booking

import (
	"context"
	"sync"
)

// Ledger records confirmed booking results by idempotency token so a retried
// request never creates a duplicate appointment.
type Ledger interface {
	Get(ctx context.Context, token string) (Result, bool, error)
	Put(ctx context.Context, token string, res Result) error
	Close()
}

// MemoryLedger is the process-local ledger used when neither Postgres nor
// Redis is configured. Sufficient for a single instance; results die with the
// process, which matches the session durability model.
type MemoryLedger struct {
	mu      sync.RWMutex
	results map[string]Result
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{results: make(map[string]Result)}
}

func (l *MemoryLedger) Get(_ context.Context, token string) (Result, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	res, ok := l.results[token]
	return res, ok, nil
}

func (l *MemoryLedger) Put(_ context.Context, token string, res Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results[token] = res
	return nil
}

func (l *MemoryLedger) Close() {}
