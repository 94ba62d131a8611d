// Package ledger remembers which transfers a destination has already applied,
// so a redelivered record is not counted twice.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrClosed = errors.New("ledger is closed")

// Ledger records applied transfer ids for one destination.
type Ledger interface {
	// Applied reports whether id has been marked.
	Applied(ctx context.Context, id uuid.UUID) (bool, error)
	// Mark records id as applied. Marking twice is not an error.
	Mark(ctx context.Context, id uuid.UUID) error
	// Count is the number of marked ids.
	Count(ctx context.Context) (int, error)
	Close() error
}

// MemoryLedger is a process-local Ledger.
type MemoryLedger struct {
	mu      sync.RWMutex
	applied map[uuid.UUID]time.Time
	closed  bool
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{applied: make(map[uuid.UUID]time.Time)}
}

func (m *MemoryLedger) Applied(ctx context.Context, id uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.applied[id]
	return ok, nil
}

func (m *MemoryLedger) Mark(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.applied[id]; !ok {
		m.applied[id] = time.Now()
	}
	return nil
}

func (m *MemoryLedger) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return len(m.applied), nil
}

func (m *MemoryLedger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
