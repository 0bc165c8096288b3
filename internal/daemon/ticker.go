package daemon

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// DefaultSampleInterval is roughly one display refresh.
const DefaultSampleInterval = 16 * time.Millisecond

// TickerConfig holds configuration for a Ticker.
type TickerConfig struct {
	Name     string
	Interval time.Duration
	Logger   *slog.Logger
}

// Ticker runs a task on a fixed cadence until its context is cancelled.
type Ticker struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context)
	logger   *slog.Logger
}

// NewTicker creates a ticker for task.
func NewTicker(cfg TickerConfig, task func(ctx context.Context)) *Ticker {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	name := cfg.Name
	if name == "" {
		name = "ticker"
	}

	return &Ticker{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger,
	}
}

// Interval returns the tick period.
func (t *Ticker) Interval() time.Duration {
	return t.interval
}

// Run starts the loop. Blocks until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Debug("ticker started", "name", t.name, "interval", t.interval)

	for {
		select {
		case <-ctx.Done():
			t.logger.Debug("ticker stopped", "name", t.name)
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

// TickNow runs the task once, synchronously.
func (t *Ticker) TickNow(ctx context.Context) {
	t.tick(ctx)
}

func (t *Ticker) tick(ctx context.Context) {
	// Recover from panics so one bad tick does not stop the loop
	defer func() {
		if err := recover(); err != nil {
			t.logger.Error("ticker panic recovered", "name", t.name, "error", err)
		}
	}()

	t.task(ctx)
}
