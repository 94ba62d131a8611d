// Package transport moves sealed envelopes between workers. It does not
// frame or retry beyond one message per Send.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrClosed       = errors.New("transport is closed")
	ErrUnknownPeer  = errors.New("unknown peer")
	ErrQueueFull    = errors.New("receive queue is full")
	ErrEmptyPayload = errors.New("empty payload")
)

// DefaultQueueSize bounds a receive queue when no size is configured.
const DefaultQueueSize = 64

// Transport sends opaque payloads to named peers and receives the payloads
// addressed to this worker.
type Transport interface {
	// Send delivers payload to dest. It returns once the peer has queued it.
	Send(ctx context.Context, dest string, payload []byte) error
	// Receive blocks until a payload arrives, ctx is done or the transport closes.
	Receive(ctx context.Context) ([]byte, error)
	// Addr is the name peers use to reach this transport.
	Addr() string
	Close() error
}

// inbox is the bounded receive queue shared by every transport.
type inbox struct {
	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newInbox(size int) *inbox {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &inbox{queue: make(chan []byte, size), done: make(chan struct{})}
}

func (b *inbox) push(payload []byte) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	select {
	case b.queue <- payload:
		return nil
	case <-b.done:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

func (b *inbox) pop(ctx context.Context) ([]byte, error) {
	select {
	case p := <-b.queue:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		return nil, ErrClosed
	}
}

func (b *inbox) close() {
	b.closeOnce.Do(func() { close(b.done) })
}

// MemoryHub connects MemoryTransports within one process.
type MemoryHub struct {
	mu    sync.RWMutex
	peers map[string]*MemoryTransport
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{peers: make(map[string]*MemoryTransport)}
}

// Join registers a transport reachable as addr.
func (h *MemoryHub) Join(addr string, queueSize int) (*MemoryTransport, error) {
	if addr == "" {
		return nil, fmt.Errorf("address cannot be empty")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[addr]; ok {
		return nil, fmt.Errorf("address %q already joined", addr)
	}
	t := &MemoryTransport{hub: h, addr: addr, in: newInbox(queueSize)}
	h.peers[addr] = t
	return t, nil
}

func (h *MemoryHub) leave(addr string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, addr)
}

func (h *MemoryHub) lookup(addr string) (*MemoryTransport, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.peers[addr]
	return t, ok
}

// MemoryTransport is one endpoint of a MemoryHub.
type MemoryTransport struct {
	hub  *MemoryHub
	addr string
	in   *inbox
}

func (t *MemoryTransport) Addr() string { return t.addr }

func (t *MemoryTransport) Send(ctx context.Context, dest string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	peer, ok := t.hub.lookup(dest)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPeer, dest)
	}
	// The receiver owns what it pops; never share the sender's buffer.
	return peer.in.push(append([]byte(nil), payload...))
}

func (t *MemoryTransport) Receive(ctx context.Context) ([]byte, error) {
	return t.in.pop(ctx)
}

func (t *MemoryTransport) Close() error {
	t.hub.leave(t.addr)
	t.in.close()
	return nil
}
