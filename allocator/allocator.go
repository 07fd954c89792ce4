// Package allocator implements the location-share allocator: the single
// authoritative registry that assigns every voter a unique slot in the shared
// positional vector.
//
// Voters arrive with a proposed value derived from both collectors' partial
// location shares. The allocator linear-probes from the proposal, with
// 1-based wraparound modulo the voter count, until a free value is found.
// When the registry reaches the configured voter count it is cleared, which
// doubles as the assignment-complete signal.
//
// The registry is held behind the Store interface. MemoryStore serves the
// single-process service; PostgresStore provides a transactional registry
// with a cross-process advisory lock for deployments where the allocator
// itself is replicated.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrRegistryInconsistent reports a probe that exhausted every slot without
// finding a free value. Under the protocol invariants this cannot happen with
// fewer than TotalVoters committed entries, so it indicates a corrupted
// registry and is fatal, never retried.
var ErrRegistryInconsistent = errors.New("location share registry inconsistent: all slots taken")

// Store provides scoped mutually exclusive access to the share registry.
type Store interface {
	// Begin acquires the registry under mutual exclusion. The returned
	// transaction must be finished with exactly one Commit or Rollback.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one exclusive registry transaction.
type Tx interface {
	// Values returns the committed location shares in insertion order.
	// An absent registry reads as empty.
	Values(ctx context.Context) ([]int, error)

	// Append adds a newly assigned share to the registry.
	Append(ctx context.Context, value int) error

	// Clear deletes the registry entirely.
	Clear(ctx context.Context) error

	Commit(ctx context.Context) error
	Rollback() error
}

// Allocator assigns unique location shares over a Store.
type Allocator struct {
	store       Store
	totalVoters int
	log         *slog.Logger
}

// New creates an allocator for an election of totalVoters slots.
func New(store Store, totalVoters int, log *slog.Logger) (*Allocator, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if totalVoters <= 0 {
		return nil, fmt.Errorf("total voters must be positive, got %d", totalVoters)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Allocator{store: store, totalVoters: totalVoters, log: log}, nil
}

// Commit assigns a unique location share, probing from proposed. It returns
// the assigned value and whether this commit completed the assignment (the
// registry held exactly totalVoters entries and was cleared).
func (a *Allocator) Commit(ctx context.Context, proposed int) (assigned int, done bool, err error) {
	tx, err := a.store.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("acquiring registry: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	values, err := tx.Values(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("reading registry: %w", err)
	}

	taken := make(map[int]bool, len(values))
	for _, v := range values {
		taken[v] = true
	}

	assigned = normalize(proposed, a.totalVoters)
	probed := 0
	for taken[assigned] {
		probed++
		if probed >= a.totalVoters {
			return 0, false, ErrRegistryInconsistent
		}
		assigned = assigned%a.totalVoters + 1
	}

	if err = tx.Append(ctx, assigned); err != nil {
		return 0, false, fmt.Errorf("appending share: %w", err)
	}

	done = len(values)+1 == a.totalVoters
	if done {
		// Assignment complete: the cleared registry signals the next run
		// starts fresh.
		if err = tx.Clear(ctx); err != nil {
			return 0, false, fmt.Errorf("clearing registry: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("committing registry: %w", err)
	}

	a.log.Info("location share assigned",
		"proposed", proposed, "assigned", assigned, "probed", probed, "done", done)
	return assigned, done, nil
}

// Registry returns a snapshot of the committed shares, for diagnostics.
func (a *Allocator) Registry(ctx context.Context) ([]int, error) {
	tx, err := a.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return tx.Values(ctx)
}

// TotalVoters returns the number of slots this allocator manages.
func (a *Allocator) TotalVoters() int {
	return a.totalVoters
}

// normalize maps an arbitrary proposal into [1, total], with 0 mapping to
// total (1-based wraparound).
func normalize(v, total int) int {
	v %= total
	if v <= 0 {
		v += total
	}
	return v
}
