package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/1broseidon/winmesh/internal/geometry"
	"github.com/1broseidon/winmesh/internal/pathbuilder"
	"github.com/1broseidon/winmesh/internal/sampler"
	"github.com/1broseidon/winmesh/internal/topology"
)

// departTimeout bounds the window-closed broadcast on shutdown.
const departTimeout = 2 * time.Second

// Identity is an instance's session id. It is forgotten once the window it
// belongs to has closed.
type Identity interface {
	topology.Identity
	Forget() error
}

// InstanceConfig wires one window instance.
type InstanceConfig struct {
	Identity Identity
	Sampler  sampler.Source
	Dial     topology.Dialer

	SampleInterval      time.Duration
	InitializingWindow  time.Duration
	InitialRequestDelay time.Duration
	InitialSyncTimeout  time.Duration

	Builder *pathbuilder.Builder
	Mode    pathbuilder.Mode

	Logger *slog.Logger
}

// Instance is one running window: it samples the local window, keeps the
// topology store in sync and recomputes the frame on every change.
type Instance struct {
	identity Identity
	store    *topology.Store
	sampler  sampler.Source
	builder  *pathbuilder.Builder
	mode     pathbuilder.Mode
	ticker   *Ticker
	logger   *slog.Logger

	mu        sync.Mutex
	top       topology.Topology
	frame     pathbuilder.Frame
	last      geometry.WindowGeometry
	hasLast   bool
	loading   bool
	sampleErr error
	watchers  map[int]chan pathbuilder.Frame
	nextWatch int
	stopped   bool
}

// NewInstance creates an instance. Nothing runs until Run.
func NewInstance(cfg InstanceConfig) *Instance {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	builder := cfg.Builder
	if builder == nil {
		builder = pathbuilder.NewBuilder()
	}
	mode := cfg.Mode
	if mode == "" {
		mode = pathbuilder.ModeLocal
	}

	inst := &Instance{
		store: topology.NewStore(topology.Options{
			Identity:            cfg.Identity,
			Sampler:             cfg.Sampler,
			Dial:                cfg.Dial,
			InitializingWindow:  cfg.InitializingWindow,
			InitialRequestDelay: cfg.InitialRequestDelay,
			InitialSyncTimeout:  cfg.InitialSyncTimeout,
			Logger:              logger,
		}),
		identity: cfg.Identity,
		sampler:  cfg.Sampler,
		builder:  builder,
		mode:     mode,
		logger:   logger,
		loading:  true,
		watchers: make(map[int]chan pathbuilder.Frame),
	}
	inst.frame = inst.compose(nil)
	inst.frame.Loading = true
	inst.ticker = NewTicker(TickerConfig{
		Name:     "sample",
		Interval: cfg.SampleInterval,
		Logger:   logger,
	}, inst.sample)
	return inst
}

// Store exposes the topology store.
func (i *Instance) Store() *topology.Store {
	return i.store
}

// Run initializes the store and samples until ctx is cancelled, then departs.
func (i *Instance) Run(ctx context.Context) error {
	unsubscribe := i.store.Subscribe(i.recompute)

	if err := i.store.Initialize(ctx); err != nil {
		unsubscribe()
		i.store.Clear()
		i.stop()
		return fmt.Errorf("failed to initialize window: %w", err)
	}
	top := i.store.Topology()
	i.logger.Info("window instance running",
		"window_id", i.store.WindowID(),
		"windows", top.IDs(),
		"interval", i.ticker.Interval())

	i.ticker.TickNow(ctx)
	i.ticker.Run(ctx)

	// The sample loop and the subscription go together.
	unsubscribe()
	i.mu.Lock()
	closed := i.sampleErr != nil
	i.mu.Unlock()

	departCtx, cancel := context.WithTimeout(context.Background(), departTimeout)
	defer cancel()
	id := i.store.WindowID()
	i.store.Depart(departCtx)
	if closed {
		i.forget(id)
	}
	i.stop()
	return nil
}

// forget drops the session id of a window that can no longer be sampled, so
// a new window reusing its key starts fresh. A window stopped while still
// readable keeps its id for the next run.
func (i *Instance) forget(id string) {
	if i.identity == nil {
		return
	}
	if err := i.identity.Forget(); err != nil {
		i.logger.Warn("failed to forget window id", "window_id", id, "error", err)
		return
	}
	i.logger.Debug("window id forgotten", "window_id", id)
}

// sample pushes changed geometry into the store. Failures surface on the
// frame and are retried next tick.
func (i *Instance) sample(ctx context.Context) {
	g, err := i.sampler.Sample(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		i.mu.Lock()
		first := i.sampleErr == nil
		i.sampleErr = err
		i.loading = false
		i.mu.Unlock()
		if first {
			i.logger.Warn("window sample failed", "error", err)
		}
		i.refresh()
		return
	}

	i.mu.Lock()
	recovered := i.sampleErr != nil
	changed := !i.hasLast || g != i.last
	i.sampleErr = nil
	i.loading = false
	i.last = g
	i.hasLast = true
	i.mu.Unlock()

	if recovered {
		i.logger.Info("window sample recovered")
		// peers may have moved while we could not see our own window
		i.Refresh()
	}
	if changed {
		i.store.UpdateCurrentWindow(g)
		return
	}
	if recovered {
		i.refresh()
	}
}

func (i *Instance) compose(top topology.Topology) pathbuilder.Frame {
	id := i.store.WindowID()
	focal := ""
	if i.mode == pathbuilder.ModeLocal {
		focal = id
	}
	f := i.builder.Frame(top, focal)
	f.WindowID = id
	return f
}

// recompute is the store subscriber. The store delivers topologies in order,
// so the last one seen is the current one.
func (i *Instance) recompute(top topology.Topology) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.top = top
	i.publishFrame()
}

// refresh rebuilds the frame from the last delivered topology, for changes in
// sampling state only.
func (i *Instance) refresh() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.publishFrame()
}

// publishFrame must be called with i.mu held.
func (i *Instance) publishFrame() {
	frame := i.compose(i.top)
	frame.Loading = i.loading
	if i.sampleErr != nil {
		frame.Error = i.sampleErr.Error()
	}
	i.frame = frame
	for _, ch := range i.watchers {
		// keep only the newest frame for slow watchers
		select {
		case <-ch:
		default:
		}
		ch <- frame
	}
}

// Frame returns the latest frame.
func (i *Instance) Frame() pathbuilder.Frame {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.frame
}

// Topology returns the current topology.
func (i *Instance) Topology() topology.Topology {
	return i.store.Topology()
}

// Polygon summarises the global polygon of the current topology.
func (i *Instance) Polygon() pathbuilder.Polygon {
	return i.builder.Polygon(i.store.Topology())
}

// Refresh asks every peer to resend its topology.
func (i *Instance) Refresh() {
	i.store.RequestSnapshot()
}

// WindowID returns the local window id, empty before Run initializes it.
func (i *Instance) WindowID() string {
	return i.store.WindowID()
}

// Watch streams frames, starting with the current one. Slow readers only see
// the newest frame. The channel is closed by cancel or when the instance
// stops.
func (i *Instance) Watch() (<-chan pathbuilder.Frame, func()) {
	ch := make(chan pathbuilder.Frame, 1)

	i.mu.Lock()
	if i.stopped {
		i.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := i.nextWatch
	i.nextWatch++
	i.watchers[id] = ch
	ch <- i.frame
	i.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			i.mu.Lock()
			defer i.mu.Unlock()
			if w, ok := i.watchers[id]; ok {
				delete(i.watchers, id)
				close(w)
			}
		})
	}
}

func (i *Instance) stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stopped = true
	for id, ch := range i.watchers {
		delete(i.watchers, id)
		close(ch)
	}
}
