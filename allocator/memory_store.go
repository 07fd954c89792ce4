package allocator

import (
	"context"
	"sync"
)

// MemoryStore keeps the registry in process memory behind a mutex. It is the
// store for the common deployment where the allocator service is the single
// authority, and for tests.
type MemoryStore struct {
	mu     sync.Mutex
	values []int
}

// NewMemoryStore creates an empty in-memory registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Begin locks the registry for the duration of the transaction.
func (s *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &memoryTx{store: s, staged: append([]int(nil), s.values...)}, nil
}

// memoryTx stages mutations and publishes them on Commit.
type memoryTx struct {
	store    *MemoryStore
	staged   []int
	finished bool
}

func (tx *memoryTx) Values(ctx context.Context) ([]int, error) {
	return append([]int(nil), tx.staged...), nil
}

func (tx *memoryTx) Append(ctx context.Context, value int) error {
	tx.staged = append(tx.staged, value)
	return nil
}

func (tx *memoryTx) Clear(ctx context.Context) error {
	tx.staged = nil
	return nil
}

func (tx *memoryTx) Commit(ctx context.Context) error {
	if tx.finished {
		return nil
	}
	tx.finished = true
	tx.store.values = tx.staged
	tx.store.mu.Unlock()
	return nil
}

func (tx *memoryTx) Rollback() error {
	if tx.finished {
		return nil
	}
	tx.finished = true
	tx.store.mu.Unlock()
	return nil
}
