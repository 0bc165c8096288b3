// Package replication keeps peer window instances' topologies in sync by
// broadcasting snapshots over a shared, lossy channel.
//
// There is no server-side state: every peer holds its own topology and the
// channel only moves copies between them. Incoming snapshots are merged by
// the caller (last writer wins per id, by arrival).
package replication

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultChannelName         = "browser-windows-sync"
	DefaultInitialRequestDelay = 50 * time.Millisecond
	DefaultInitialSyncTimeout  = 3 * time.Second
	defaultSendTimeout         = time.Second
)

// Options configures a Channel.
type Options struct {
	// Source is the local window id, stamped on every outbound message.
	Source string
	// ReadState returns the current local topology. The result is sent as is.
	ReadState func() Snapshot
	// ApplyState merges a snapshot received from source.
	ApplyState func(source string, state Snapshot)
	// RemoveWindow drops a departed peer.
	RemoveWindow func(id string)

	InitialRequestDelay time.Duration
	InitialSyncTimeout  time.Duration
	Logger              *slog.Logger
}

// Channel is one instance's endpoint of the replication protocol. It is
// created by Open and must be released with Close.
type Channel struct {
	transport Transport
	opts      Options
	logger    *slog.Logger

	applying atomic.Bool

	syncOnce sync.Once
	synced   chan struct{}

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Open starts listening on transport, schedules the initial snapshot request
// and arms the initial sync timeout.
func Open(transport Transport, opts Options) *Channel {
	if opts.InitialRequestDelay <= 0 {
		opts.InitialRequestDelay = DefaultInitialRequestDelay
	}
	if opts.InitialSyncTimeout <= 0 {
		opts.InitialSyncTimeout = DefaultInitialSyncTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Channel{
		transport: transport,
		opts:      opts,
		logger:    logger.With("window_id", opts.Source),
		synced:    make(chan struct{}),
		done:      make(chan struct{}),
	}

	c.wg.Add(2)
	go c.listen()
	go c.handshake()
	return c
}

func (c *Channel) listen() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case payload, ok := <-c.transport.Messages():
			if !ok {
				return
			}
			c.handle(payload)
		}
	}
}

// handshake asks peers for their state once the listener is running, and
// resolves the initial sync by timeout if nobody answers.
func (c *Channel) handshake() {
	defer c.wg.Done()

	delay := time.NewTimer(c.opts.InitialRequestDelay)
	defer delay.Stop()
	select {
	case <-c.done:
		return
	case <-delay.C:
		c.RequestInitialSnapshot()
	}

	timeout := time.NewTimer(c.opts.InitialSyncTimeout)
	defer timeout.Stop()
	select {
	case <-c.done:
	case <-c.synced:
	case <-timeout.C:
		c.logger.Debug("no peer answered initial snapshot request, assuming alone")
		c.markSynced()
	}
}

func (c *Channel) handle(payload []byte) {
	msg, err := Decode(payload)
	if err != nil {
		c.logger.Debug("dropping replication message", "error", err)
		return
	}
	if msg.Source != "" && msg.Source == c.opts.Source {
		return
	}

	switch msg.Type {
	case KindSnapshot:
		c.applyRemote(func() {
			if c.opts.ApplyState != nil {
				c.opts.ApplyState(msg.Source, msg.Data.Clone())
			}
		})
		if len(msg.Data) > 0 {
			c.markSynced()
		}
	case KindRequestSnapshot:
		c.respond(false)
	case KindRequestInitialSnapshot:
		c.respond(true)
	case KindWindowClosed:
		c.applyRemote(func() {
			if c.opts.RemoveWindow != nil {
				c.opts.RemoveWindow(msg.Source)
			}
		})
	}
}

// applyRemote runs fn with the re-entrancy guard raised. The guard is always
// lowered again, also when fn panics.
func (c *Channel) applyRemote(fn func()) {
	c.applying.Store(true)
	defer func() {
		c.applying.Store(false)
		if r := recover(); r != nil {
			c.logger.Error("panic while applying remote state", "error", r)
		}
	}()
	fn()
}

func (c *Channel) markSynced() {
	c.syncOnce.Do(func() { close(c.synced) })
}

// Applying reports whether an inbound snapshot is being applied right now.
func (c *Channel) Applying() bool {
	return c.applying.Load()
}

// Publish broadcasts the local topology. It is dropped while a remote
// snapshot is being applied.
func (c *Channel) Publish() {
	if c.Applying() {
		return
	}
	msg := NewMessage(KindSnapshot, c.opts.Source)
	msg.Data = c.readState()
	c.send(msg)
}

// respond answers a snapshot request. Plain requests are answered only when
// there is something to report; initial requests are always answered.
func (c *Channel) respond(initial bool) {
	if c.Applying() {
		return
	}
	state := c.readState()
	if !initial && len(state) == 0 {
		return
	}
	msg := NewMessage(KindSnapshot, c.opts.Source)
	msg.Data = state
	msg.IsResponse = !initial
	msg.IsInitialResponse = initial
	c.send(msg)
}

// RequestSnapshot asks every peer for its current topology.
func (c *Channel) RequestSnapshot() {
	c.send(NewMessage(KindRequestSnapshot, c.opts.Source))
}

// RequestInitialSnapshot asks every peer for its topology on join.
func (c *Channel) RequestInitialSnapshot() {
	c.send(NewMessage(KindRequestInitialSnapshot, c.opts.Source))
}

// AnnounceDeparture tells peers to drop this window. It is not subject to the
// re-entrancy guard.
func (c *Channel) AnnounceDeparture() {
	c.send(NewMessage(KindWindowClosed, c.opts.Source))
}

// InitialSync is closed once the first non-empty snapshot arrived or the
// initial sync timeout elapsed.
func (c *Channel) InitialSync() <-chan struct{} {
	return c.synced
}

// WaitForInitialSync blocks until InitialSync resolves, the channel closes or
// ctx is done.
func (c *Channel) WaitForInitialSync(ctx context.Context) error {
	select {
	case <-c.synced:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) readState() Snapshot {
	if c.opts.ReadState == nil {
		return Snapshot{}
	}
	return c.opts.ReadState().Clone()
}

func (c *Channel) send(msg Message) {
	select {
	case <-c.done:
		return
	default:
	}

	payload, err := Encode(msg)
	if err != nil {
		c.logger.Warn("failed to encode replication message", "type", msg.Type, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
	defer cancel()
	if err := c.transport.Send(ctx, payload); err != nil {
		if errors.Is(err, ErrClosed) {
			return
		}
		c.logger.Warn("failed to send replication message", "type", msg.Type, "error", err)
	}
}

// Close stops the listener and releases the transport.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.transport.Close()
		c.wg.Wait()
	})
	return err
}
