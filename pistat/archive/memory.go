package archive

import (
	"context"
	"fmt"
	"sync"

	"github.com/armon/go-radix"
	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/pistat/pistat/transfer"
)

// MemoryArchive keeps envelopes in a radix tree keyed by session and creation
// time, so walking a session prefix yields its envelopes oldest first.
type MemoryArchive struct {
	mu     sync.RWMutex
	tree   *radix.Tree
	byID   map[uuid.UUID]string // id -> tree key
	closed bool
}

type memoryItem struct {
	entry Entry
	data  []byte
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{
		tree: radix.New(),
		byID: make(map[uuid.UUID]string),
	}
}

// The NUL separator keeps session "a" from matching keys of session "a/b".
func sessionPrefix(session string) string { return session + "\x00" }

// itemKey flips the sign bit of the creation time so that byte order of the
// fixed-width digits matches time order, including before 1970.
func itemKey(e Entry) string {
	at := uint64(e.CreatedAt.UnixNano()) ^ (1 << 63)
	return fmt.Sprintf("%s%020d\x00%s", sessionPrefix(e.Session), at, e.ID)
}

func (m *MemoryArchive) Put(ctx context.Context, env *transfer.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry, data, err := seal(env)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.byID[entry.ID]; ok {
		return nil
	}
	key := itemKey(entry)
	m.tree.Insert(key, memoryItem{entry: entry, data: data})
	m.byID[entry.ID] = key
	return nil
}

func (m *MemoryArchive) Get(ctx context.Context, id uuid.UUID) (*transfer.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrClosed
	}
	var item memoryItem
	key, ok := m.byID[id]
	if ok {
		v, _ := m.tree.Get(key)
		item = v.(memoryItem)
	}
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return open(id, item.data)
}

func (m *MemoryArchive) Latest(ctx context.Context, session string) (*transfer.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrClosed
	}
	var last *memoryItem
	m.tree.WalkPrefix(sessionPrefix(session), func(_ string, v interface{}) bool {
		item := v.(memoryItem)
		last = &item
		return false
	})
	m.mu.RUnlock()
	if last == nil {
		return nil, fmt.Errorf("%w: session %q is empty", ErrNotFound, session)
	}
	return open(last.entry.ID, last.data)
}

func (m *MemoryArchive) List(ctx context.Context, session string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []Entry
	m.tree.WalkPrefix(sessionPrefix(session), func(_ string, v interface{}) bool {
		out = append(out, v.(memoryItem).entry)
		return false
	})
	return out, nil
}

// Len is the number of archived envelopes.
func (m *MemoryArchive) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}

func (m *MemoryArchive) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
