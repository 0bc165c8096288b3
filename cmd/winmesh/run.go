package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/1broseidon/winmesh/internal/config"
	"github.com/1broseidon/winmesh/internal/daemon"
	"github.com/1broseidon/winmesh/internal/httpapi"
	"github.com/1broseidon/winmesh/internal/ipc"
	"github.com/1broseidon/winmesh/internal/mcp"
	"github.com/1broseidon/winmesh/internal/pathbuilder"
	"github.com/1broseidon/winmesh/internal/platform"
	"github.com/1broseidon/winmesh/internal/replication"
	"github.com/1broseidon/winmesh/internal/sampler"
	"github.com/1broseidon/winmesh/internal/session"
	"github.com/1broseidon/winmesh/internal/topology"
)

type runOptions struct {
	display  string
	window   string
	title    string
	session  string
	static   string
	mode     string
	httpAddr string
	mcp      bool
	quiet    bool
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Track one window and stream its frame",
		Long: `Track one window, replicate its geometry to every other instance on the
channel and print a JSON frame ({path, viewBox, screenCount}) on every change.

The window is taken from --window, then $WINDOWID, then --title, then the
currently active window. --static skips X11 entirely and reports a fixed
rectangle inside the fallback display layout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runInstance(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	addRunFlags(cmd, opts)
	cmd.Flags().BoolVar(&opts.mcp, "mcp", false, "serve MCP tools on stdio instead of printing frames")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not print frames")
	return cmd
}

func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.display, "display", "", "X display to connect to (default $DISPLAY)")
	f.StringVar(&opts.window, "window", "", "X11 window id to track, decimal or 0x hex (default $WINDOWID)")
	f.StringVar(&opts.title, "title", "", "track the first window whose title contains this text")
	f.StringVar(&opts.session, "session", "", "session key the window id is remembered under (default derived from the window)")
	f.StringVar(&opts.static, "static", "", "report a fixed window rectangle x,y,width,height instead of reading X11")
	f.StringVar(&opts.mode, "mode", "", "override render.mode (local or global)")
	f.StringVar(&opts.httpAddr, "http", "", "serve the HTTP API on this address (overrides http.addr)")
}

// runInstance runs one window instance with its optional HTTP and MCP
// surfaces until ctx is cancelled or one of them stops.
func (a *app) runInstance(ctx context.Context, opts *runOptions, stdout io.Writer) error {
	cfg := *a.cfg
	if opts.mode != "" {
		cfg.Render.Mode = opts.mode
	}
	if opts.httpAddr != "" {
		cfg.HTTP.Addr = opts.httpAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	src, key, closeSource, err := a.openSource(&cfg, opts)
	if err != nil {
		return err
	}
	defer closeSource()

	provider, err := openIdentities(&cfg, opts)
	if err != nil {
		return err
	}

	inst := daemon.NewInstance(daemon.InstanceConfig{
		Identity:            session.Bind(provider, key),
		Sampler:             src,
		Dial:                newDialer(&cfg),
		SampleInterval:      cfg.Timings.SampleInterval,
		InitializingWindow:  cfg.Timings.InitializingWindow,
		InitialRequestDelay: cfg.Timings.InitialRequestDelay,
		InitialSyncTimeout:  cfg.Timings.InitialSyncTimeout,
		Builder:             cfg.Builder(),
		Mode:                pathbuilder.Mode(cfg.Render.Mode),
		Logger:              a.logger,
	})
	a.logger.Info("starting window instance",
		"session", key,
		"channel", cfg.Channel,
		"transport", cfg.Transport.Kind,
		"mode", cfg.Render.Mode)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return inst.Run(gctx)
	})
	if cfg.HTTP.Addr != "" {
		api := httpapi.NewServer(httpapi.Config{
			Addr:   cfg.HTTP.Addr,
			Source: inst,
			SVG:    cfg.SVGOptions(),
			Logger: a.logger,
		})
		g.Go(func() error {
			defer cancel()
			return api.ListenAndServe(gctx)
		})
	}
	switch {
	case opts.mcp:
		srv := mcp.NewServer(inst, mcp.Options{Builder: cfg.Builder(), SVG: cfg.SVGOptions(), Logger: a.logger})
		g.Go(func() error {
			// The client closing stdio ends the instance too.
			defer cancel()
			if err := srv.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("mcp server: %w", err)
			}
			return nil
		})
	case !opts.quiet:
		g.Go(func() error {
			return printFrames(inst, stdout)
		})
	}
	return g.Wait()
}

// printFrames writes every frame as one JSON line until the instance stops.
func printFrames(inst *daemon.Instance, w io.Writer) error {
	frames, stop := inst.Watch()
	defer stop()

	enc := json.NewEncoder(w)
	var last pathbuilder.Frame
	first := true
	for f := range frames {
		if !first && f == last {
			continue
		}
		first, last = false, f
		if err := enc.Encode(f); err != nil {
			return fmt.Errorf("failed to write frame: %w", err)
		}
	}
	return nil
}

// openIdentities picks where window ids are remembered. A static window
// without --session has a pid-derived key that is never reused, so its id only
// lives in memory.
func openIdentities(cfg *config.Config, opts *runOptions) (session.Provider, error) {
	if opts.static != "" && opts.session == "" {
		return session.NewMemoryProvider(), nil
	}
	return session.NewFileProvider(cfg.Session.Registry)
}

// openSource resolves what window to sample and the session key its id is
// remembered under.
func (a *app) openSource(cfg *config.Config, opts *runOptions) (sampler.Source, string, func(), error) {
	if opts.static != "" {
		rect, err := parseRect(opts.static)
		if err != nil {
			return nil, "", nil, err
		}
		g := sampler.Normalize(rect, sampler.FallbackBounds(cfg.FallbackLayout()))
		key := opts.session
		if key == "" {
			key = fmt.Sprintf("static:%d", os.Getpid())
		}
		return sampler.NewStaticSource(g, true), key, func() {}, nil
	}

	backend, err := platform.Open(opts.display)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to connect to display: %w", err)
	}
	window, err := resolveWindow(backend, opts)
	if err != nil {
		backend.Close()
		return nil, "", nil, err
	}
	key := opts.session
	if key == "" {
		key = fmt.Sprintf("x11:%d", window)
	}
	a.logger.Debug("tracking window", "window", fmt.Sprintf("0x%x", uint32(window)))
	return sampler.NewX11Source(backend, window, cfg.FallbackLayout(), a.logger), key, backend.Close, nil
}

func resolveWindow(backend platform.Backend, opts *runOptions) (platform.WindowID, error) {
	raw := opts.window
	if raw == "" && opts.title == "" {
		raw = os.Getenv("WINDOWID")
	}
	if raw != "" {
		id, err := parseWindowID(raw)
		if err != nil {
			return 0, err
		}
		return id, nil
	}
	if opts.title != "" {
		id, err := backend.FindWindow(opts.title)
		if err != nil {
			return 0, fmt.Errorf("no window titled %q: %w", opts.title, err)
		}
		return id, nil
	}
	id, err := backend.ActiveWindow()
	if err != nil {
		return 0, fmt.Errorf("failed to read active window: %w", err)
	}
	if id == 0 {
		return 0, fmt.Errorf("no active window; pass --window or --title")
	}
	return id, nil
}

func parseWindowID(s string) (platform.WindowID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid window id %q", s)
	}
	return platform.WindowID(v), nil
}

func parseRect(s string) (platform.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return platform.Rect{}, fmt.Errorf("invalid rectangle %q: want x,y,width,height", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return platform.Rect{}, fmt.Errorf("invalid rectangle %q: %w", s, err)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return platform.Rect{}, fmt.Errorf("invalid rectangle %q: width and height must be > 0", s)
	}
	return platform.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}

// newDialer opens the configured transport on every Initialize.
func newDialer(cfg *config.Config) topology.Dialer {
	channel := cfg.Channel
	switch cfg.Transport.Kind {
	case config.TransportMemory:
		hub := replication.NewHub()
		return func(context.Context) (replication.Transport, error) {
			return hub.Join(channel), nil
		}
	case config.TransportRedis:
		redisCfg := cfg.Redis()
		return func(ctx context.Context) (replication.Transport, error) {
			t, err := replication.NewRedisTransport(ctx, redisCfg, channel)
			if err != nil {
				return nil, err
			}
			return t, nil
		}
	default:
		socket := cfg.Transport.Socket
		return func(ctx context.Context) (replication.Transport, error) {
			c, err := ipc.Join(ctx, socket, channel)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
}
