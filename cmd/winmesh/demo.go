package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/1broseidon/winmesh/internal/config"
	"github.com/1broseidon/winmesh/internal/daemon"
	"github.com/1broseidon/winmesh/internal/pathbuilder"
	"github.com/1broseidon/winmesh/internal/platform"
	"github.com/1broseidon/winmesh/internal/replication"
	"github.com/1broseidon/winmesh/internal/sampler"
	"github.com/1broseidon/winmesh/internal/session"
)

const (
	demoWindowWidth  = 400
	demoWindowHeight = 300
)

type demoOptions struct {
	windows int
	timeout time.Duration
	mode    string
}

func newDemoCmd(a *app) *cobra.Command {
	opts := &demoOptions{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run several in-process windows on a memory channel and print their frames",
		Long: `Start several window instances in this process, connected by an in-memory
channel, wait until every one of them sees all the others, print each frame,
then close the last window and print the frames again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *a.cfg
			if opts.mode != "" {
				cfg.Render.Mode = opts.mode
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runDemo(cmd.Context(), cmd.OutOrStdout(), &cfg, opts, a.logger)
		},
	}
	cmd.Flags().IntVarP(&opts.windows, "windows", "n", 3, "number of windows")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "how long to wait for the windows to converge")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "override render.mode (local or global)")
	return cmd
}

type demoWindow struct {
	inst   *daemon.Instance
	cancel context.CancelFunc
	done   chan struct{}
}

func (w *demoWindow) close() {
	w.cancel()
	<-w.done
}

// demoRect places window i of n on an alternating zigzag across the fallback
// layout, so every window center is a corner of the polygon.
func demoRect(i, n int, bounds platform.Rect) platform.Rect {
	cx := bounds.Width * (i + 1) / (n + 1)
	cy := bounds.Height / 4
	if i%2 == 1 {
		cy = bounds.Height * 3 / 4
	}
	return platform.Rect{
		X:      cx - demoWindowWidth/2,
		Y:      cy - demoWindowHeight/2,
		Width:  demoWindowWidth,
		Height: demoWindowHeight,
	}
}

func runDemo(ctx context.Context, out io.Writer, cfg *config.Config, opts *demoOptions, logger *slog.Logger) error {
	if opts.windows < 1 {
		return fmt.Errorf("windows must be >= 1")
	}

	hub := replication.NewHub()
	ids := session.NewMemoryProvider()
	bounds := sampler.FallbackBounds(cfg.FallbackLayout())

	windows := make([]*demoWindow, 0, opts.windows)
	var wg sync.WaitGroup
	defer func() {
		for _, w := range windows {
			w.cancel()
		}
		wg.Wait()
	}()

	for i := 0; i < opts.windows; i++ {
		g := sampler.Normalize(demoRect(i, opts.windows, bounds), bounds)
		inst := daemon.NewInstance(daemon.InstanceConfig{
			Identity: session.Bind(ids, fmt.Sprintf("demo:%d", i)),
			Sampler:  sampler.NewStaticSource(g, true),
			Dial: func(context.Context) (replication.Transport, error) {
				return hub.Join(cfg.Channel), nil
			},
			SampleInterval:      cfg.Timings.SampleInterval,
			InitializingWindow:  cfg.Timings.InitializingWindow,
			InitialRequestDelay: cfg.Timings.InitialRequestDelay,
			// Everyone starts at once; nobody has anything to wait for.
			InitialSyncTimeout: 100 * time.Millisecond,
			Builder:            cfg.Builder(),
			Mode:               pathbuilder.Mode(cfg.Render.Mode),
			Logger:             logger.With("demo_window", i),
		})

		wctx, cancel := context.WithCancel(ctx)
		w := &demoWindow{inst: inst, cancel: cancel, done: make(chan struct{})}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(w.done)
			if err := inst.Run(wctx); err != nil {
				logger.Error("demo window failed", "window", i, "error", err)
			}
		}()
		windows = append(windows, w)
	}

	if err := waitForCount(ctx, windows, opts.windows, opts.timeout); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d windows\n", opts.windows)
	printDemoFrames(out, windows)

	if opts.windows < 2 {
		return nil
	}

	last := windows[len(windows)-1]
	windows = windows[:len(windows)-1]
	last.close()

	if err := waitForCount(ctx, windows, len(windows), opts.timeout); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nafter closing one: %d windows\n", len(windows))
	printDemoFrames(out, windows)
	return nil
}

func waitForCount(ctx context.Context, windows []*demoWindow, count int, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for {
		converged := true
		for _, w := range windows {
			f := w.inst.Frame()
			if f.Loading || f.ScreenCount != count {
				converged = false
				break
			}
		}
		if converged {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("windows did not converge on %d within %s", count, timeout)
		case <-tick.C:
		}
	}
}

func printDemoFrames(out io.Writer, windows []*demoWindow) {
	for _, w := range windows {
		f := w.inst.Frame()
		fmt.Fprintf(out, "  %s\n    viewBox: %s\n    path:    %s\n", f.WindowID, f.ViewBox, f.Path)
	}
}
