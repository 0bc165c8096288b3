// Package topology holds each window instance's view of every peer window and
// keeps it in sync through a replication channel.
package topology

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/1broseidon/winmesh/internal/geometry"
	"github.com/1broseidon/winmesh/internal/replication"
)

// DefaultInitializingWindow is how long a fresh store publishes regardless of
// focus.
const DefaultInitializingWindow = 5 * time.Second

// ErrAlreadyInitialized is returned by Initialize on a store that is not
// Uninitialized.
var ErrAlreadyInitialized = errors.New("topology store already initialized")

// State is the store lifecycle.
type State int

const (
	Uninitialized State = iota
	Initializing
	Steady
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Steady:
		return "steady"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Identity hands out the session-scoped window id.
type Identity interface {
	WindowID() (string, error)
}

// Sampler reads the local window's geometry and focus.
type Sampler interface {
	Sample(ctx context.Context) (geometry.WindowGeometry, error)
	Focused() bool
}

// Dialer opens a fresh transport for each Initialize.
type Dialer func(ctx context.Context) (replication.Transport, error)

// Options configures a Store.
type Options struct {
	Identity Identity
	Sampler  Sampler
	Dial     Dialer

	InitializingWindow  time.Duration
	InitialRequestDelay time.Duration
	InitialSyncTimeout  time.Duration

	Logger *slog.Logger
}

// Store is the authoritative topology of one window instance. All methods are
// safe for concurrent use.
type Store struct {
	identity Identity
	sampler  Sampler
	dial     Dialer

	initializingWindow  time.Duration
	initialRequestDelay time.Duration
	initialSyncTimeout  time.Duration

	logger *slog.Logger

	mu         sync.Mutex
	state      State
	windowID   string
	windows    map[string]geometry.WindowGeometry
	tombstones map[string]struct{}
	channel    *replication.Channel
	initTimer  *time.Timer

	subMu      sync.Mutex
	subs       map[int]func(Topology)
	nextSub    int
	dirty      bool
	delivering bool
}

// NewStore creates an Uninitialized store.
func NewStore(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	window := opts.InitializingWindow
	if window <= 0 {
		window = DefaultInitializingWindow
	}
	return &Store{
		identity:            opts.Identity,
		sampler:             opts.Sampler,
		dial:                opts.Dial,
		initializingWindow:  window,
		initialRequestDelay: opts.InitialRequestDelay,
		initialSyncTimeout:  opts.InitialSyncTimeout,
		logger:              logger,
		windows:             make(map[string]geometry.WindowGeometry),
		tombstones:          make(map[string]struct{}),
		subs:                make(map[int]func(Topology)),
	}
}

// Initialize assigns the window id, seeds the topology with the current
// sample, opens the replication channel and waits for the initial sync.
//
// A failed first sample does not fail initialization: the store starts
// empty and the local entry appears with the first good sample.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Uninitialized {
		s.mu.Unlock()
		return ErrAlreadyInitialized
	}
	s.mu.Unlock()

	id, err := s.identity.WindowID()
	if err != nil {
		return fmt.Errorf("failed to obtain window id: %w", err)
	}

	g, sampleErr := s.sampler.Sample(ctx)
	if sampleErr != nil {
		s.logger.Warn("initial sample failed, starting with empty topology", "error", sampleErr)
	}

	var transport replication.Transport
	if s.dial != nil {
		transport, err = s.dial(ctx)
		if err != nil {
			return fmt.Errorf("failed to open replication transport: %w", err)
		}
	}

	s.mu.Lock()
	if s.state != Uninitialized {
		s.mu.Unlock()
		if transport != nil {
			transport.Close()
		}
		return ErrAlreadyInitialized
	}
	s.windowID = id
	s.windows = make(map[string]geometry.WindowGeometry)
	s.tombstones = make(map[string]struct{})
	if sampleErr == nil {
		s.windows[id] = g
	}
	s.state = Initializing
	s.initTimer = time.AfterFunc(s.initializingWindow, s.finishInitializing)
	if transport != nil {
		s.channel = replication.Open(transport, replication.Options{
			Source:              id,
			ReadState:           s.snapshot,
			ApplyState:          s.applySnapshot,
			RemoveWindow:        s.applyDeparture,
			InitialRequestDelay: s.initialRequestDelay,
			InitialSyncTimeout:  s.initialSyncTimeout,
			Logger:              s.logger,
		})
	}
	channel := s.channel
	s.mu.Unlock()

	s.logger.Info("topology store initialized", "window_id", id)
	s.notify()

	if channel == nil {
		return nil
	}
	if err := channel.WaitForInitialSync(ctx); err != nil && !errors.Is(err, replication.ErrClosed) {
		return err
	}
	s.publish()
	return nil
}

func (s *Store) finishInitializing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Initializing {
		s.state = Steady
	}
}

// UpdateCurrentWindow replaces the local entry and publishes it when the
// instance is focused or still initializing.
func (s *Store) UpdateCurrentWindow(g geometry.WindowGeometry) {
	s.mu.Lock()
	if s.windowID == "" {
		s.mu.Unlock()
		return
	}
	s.windows[s.windowID] = g
	s.mu.Unlock()

	s.notify()
	s.publish()
}

// UpdateOtherWindow inserts or overwrites a peer entry without publishing.
func (s *Store) UpdateOtherWindow(id string, g geometry.WindowGeometry) {
	s.mu.Lock()
	if id == "" || id == s.windowID {
		s.mu.Unlock()
		return
	}
	s.windows[id] = g
	delete(s.tombstones, id)
	s.mu.Unlock()

	s.notify()
}

// RemoveWindow drops a peer and publishes the result. The local window is
// never removed.
func (s *Store) RemoveWindow(id string) {
	if !s.remove(id) {
		return
	}
	s.notify()
	s.publish()
}

func (s *Store) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == s.windowID {
		return false
	}
	if _, ok := s.windows[id]; !ok {
		return false
	}
	delete(s.windows, id)
	return true
}

// Topology returns a sorted copy of the current topology.
func (s *Store) Topology() Topology {
	return FromSnapshot(s.snapshot())
}

// State reports the lifecycle state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// WindowID returns the local id, empty before Initialize.
func (s *Store) WindowID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.windowID
}

// Clear closes the channel and returns the store to Uninitialized.
func (s *Store) Clear() {
	s.mu.Lock()
	channel := s.channel
	s.channel = nil
	if s.initTimer != nil {
		s.initTimer.Stop()
		s.initTimer = nil
	}
	s.windowID = ""
	s.windows = make(map[string]geometry.WindowGeometry)
	s.tombstones = make(map[string]struct{})
	s.state = Uninitialized
	s.mu.Unlock()

	if channel != nil {
		if err := channel.Close(); err != nil {
			s.logger.Debug("failed to close replication channel", "error", err)
		}
	}
	s.notify()
}

// Depart tells peers this window is gone and clears the store. The session id
// is left alone: a window that starts again under it is re-admitted as soon as
// it speaks.
func (s *Store) Depart(ctx context.Context) {
	s.mu.Lock()
	channel := s.channel
	id := s.windowID
	s.mu.Unlock()

	if channel != nil && id != "" {
		channel.AnnounceDeparture()
	}
	s.Clear()
	if id != "" {
		s.logger.Info("window departed", "window_id", id)
	}
}

// Subscribe registers fn for every topology change. The returned function
// revokes the subscription.
func (s *Store) Subscribe(fn func(Topology)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// RequestSnapshot asks every peer for its topology.
func (s *Store) RequestSnapshot() {
	s.mu.Lock()
	channel := s.channel
	s.mu.Unlock()
	if channel != nil {
		channel.RequestSnapshot()
	}
}

// notify delivers the current topology to every subscriber. Only one
// goroutine delivers at a time; changes made meanwhile mark the store dirty
// and the delivering goroutine reads the topology again, so the last
// delivery always reflects the latest state.
func (s *Store) notify() {
	s.subMu.Lock()
	s.dirty = true
	if s.delivering {
		s.subMu.Unlock()
		return
	}
	s.delivering = true
	for s.dirty {
		s.dirty = false
		fns := make([]func(Topology), 0, len(s.subs))
		for _, fn := range s.subs {
			fns = append(fns, fn)
		}
		s.subMu.Unlock()

		s.deliver(s.Topology(), fns)
		s.subMu.Lock()
	}
	s.delivering = false
	s.subMu.Unlock()
}

// deliver runs fns in order. A panicking subscriber releases the delivery
// role before the panic continues.
func (s *Store) deliver(top Topology, fns []func(Topology)) {
	ok := false
	defer func() {
		if !ok {
			s.subMu.Lock()
			s.delivering = false
			s.subMu.Unlock()
		}
	}()
	for _, fn := range fns {
		fn(top)
	}
	ok = true
}

// publish broadcasts the topology when not applying remote state and the
// instance is either initializing or focused.
func (s *Store) publish() {
	s.mu.Lock()
	channel := s.channel
	initializing := s.state == Initializing
	s.mu.Unlock()

	if channel == nil || channel.Applying() {
		return
	}
	if !initializing && (s.sampler == nil || !s.sampler.Focused()) {
		return
	}
	channel.Publish()
}

func (s *Store) snapshot() replication.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(replication.Snapshot, len(s.windows))
	for id, g := range s.windows {
		out[id] = g
	}
	return out
}

// applySnapshot merges a peer snapshot: last writer wins per id, the local
// entry is never overwritten and departed ids stay gone until their owner
// speaks again.
func (s *Store) applySnapshot(source string, in replication.Snapshot) {
	s.mu.Lock()
	if s.windowID == "" {
		s.mu.Unlock()
		return
	}
	delete(s.tombstones, source)
	changed := false
	for id, g := range in {
		if id == s.windowID {
			continue
		}
		if _, dead := s.tombstones[id]; dead {
			continue
		}
		if cur, ok := s.windows[id]; ok && cur == g {
			continue
		}
		s.windows[id] = g
		changed = true
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

func (s *Store) applyDeparture(id string) {
	s.mu.Lock()
	if s.windowID == "" || id == s.windowID {
		s.mu.Unlock()
		return
	}
	s.tombstones[id] = struct{}{}
	_, existed := s.windows[id]
	delete(s.windows, id)
	s.mu.Unlock()

	if existed {
		s.logger.Debug("peer departed", "peer_id", id)
		s.notify()
	}
}
