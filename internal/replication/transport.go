package replication

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when sending on a closed transport.
var ErrClosed = errors.New("transport closed")

// Transport is a best-effort broadcast pipe shared by every peer on one
// channel name. Delivery is lossy and unordered across senders. Some
// transports echo a sender's own messages back to it; the Channel filters
// those by source.
type Transport interface {
	// Send broadcasts payload to the other peers.
	Send(ctx context.Context, payload []byte) error
	// Messages yields inbound payloads until the transport is closed.
	Messages() <-chan []byte
	// Close releases the transport. It is safe to call more than once.
	Close() error
}

// memoryQueueSize bounds each endpoint's inbox; overflow is dropped.
const memoryQueueSize = 256

// Hub is an in-process broadcast medium. Every endpoint joined under the same
// name receives what the others send, never its own messages.
type Hub struct {
	mu       sync.Mutex
	channels map[string]map[*MemoryTransport]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{channels: make(map[string]map[*MemoryTransport]struct{})}
}

// Join attaches a new endpoint to the named channel.
func (h *Hub) Join(name string) *MemoryTransport {
	t := &MemoryTransport{
		hub:   h,
		name:  name,
		inbox: make(chan []byte, memoryQueueSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	peers, ok := h.channels[name]
	if !ok {
		peers = make(map[*MemoryTransport]struct{})
		h.channels[name] = peers
	}
	peers[t] = struct{}{}
	return t
}

// Peers returns how many endpoints are joined to name.
func (h *Hub) Peers(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels[name])
}

func (h *Hub) broadcast(from *MemoryTransport, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for peer := range h.channels[from.name] {
		if peer == from {
			continue
		}
		msg := append([]byte(nil), payload...)
		select {
		case peer.inbox <- msg:
		default:
			// inbox full: lossy by contract
		}
	}
}

func (h *Hub) leave(t *MemoryTransport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peers, ok := h.channels[t.name]; ok {
		delete(peers, t)
		if len(peers) == 0 {
			delete(h.channels, t.name)
		}
	}
	close(t.inbox)
}

// MemoryTransport is one endpoint on a Hub.
type MemoryTransport struct {
	hub   *Hub
	name  string
	inbox chan []byte

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

var _ Transport = (*MemoryTransport)(nil)

// Send delivers payload to every other endpoint on the channel.
func (t *MemoryTransport) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrClosed
	}
	t.hub.broadcast(t, payload)
	return nil
}

// Messages returns the endpoint's inbox.
func (t *MemoryTransport) Messages() <-chan []byte {
	return t.inbox
}

// Close detaches the endpoint from the hub and closes its inbox.
func (t *MemoryTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		t.hub.leave(t)
	})
	return nil
}
