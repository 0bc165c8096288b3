// Package httpapi serves a running window's frame and topology over HTTP,
// with a websocket stream of frames for a browser renderer.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/1broseidon/winmesh/internal/pathbuilder"
	"github.com/1broseidon/winmesh/internal/topology"
)

const (
	writeWait       = 5 * time.Second
	pingPeriod      = 30 * time.Second
	shutdownTimeout = 3 * time.Second
)

// Source is the running window the API reads from.
type Source interface {
	WindowID() string
	Frame() pathbuilder.Frame
	Topology() topology.Topology
	Polygon() pathbuilder.Polygon
	Watch() (<-chan pathbuilder.Frame, func())
	Refresh()
}

// Config configures a Server.
type Config struct {
	Addr   string
	Source Source
	SVG    pathbuilder.SVGOptions
	Logger *slog.Logger
}

// Server is the HTTP surface of one window instance.
type Server struct {
	addr     string
	source   Source
	svg      pathbuilder.SVGOptions
	logger   *slog.Logger
	router   chi.Router
	upgrader websocket.Upgrader
}

// TopologyResponse is the body of GET /topology. Surrounded is true when
// the window's center lies inside the polygon over its peers.
type TopologyResponse struct {
	WindowID   string              `json:"windowId"`
	Windows    topology.Topology   `json:"windows"`
	Polygon    pathbuilder.Polygon `json:"polygon"`
	Surrounded bool                `json:"surrounded"`
}

// NewServer builds the router. It does not listen until ListenAndServe.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		addr:   cfg.Addr,
		source: cfg.Source,
		svg:    cfg.SVG,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Renderers are served from file:// or other local origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Get("/healthz", s.handleHealth)
	r.Get("/topology", s.handleTopology)
	r.Get("/snapshot", s.handleSnapshot)
	r.Post("/refresh", s.handleRefresh)
	r.Get("/frame", s.handleFrame)
	r.Get("/frame.svg", s.handleFrameSVG)
	r.Get("/ws", s.handleWatch)
	s.router = r
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("http api listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "windowId": s.source.WindowID()})
}

func (s *Server) handleTopology(w http.ResponseWriter, _ *http.Request) {
	top := s.source.Topology()
	if top == nil {
		top = topology.Topology{}
	}
	id := s.source.WindowID()
	writeJSON(w, http.StatusOK, TopologyResponse{
		WindowID:   id,
		Windows:    top,
		Polygon:    s.source.Polygon(),
		Surrounded: pathbuilder.Surrounded(top, id),
	})
}

// handleSnapshot returns the topology in the replication wire shape, which
// `winmesh render` reads.
func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.source.Topology().Snapshot())
}

// handleRefresh asks every peer to resend its topology. Answers arrive
// asynchronously on /ws.
func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.source.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

func (s *Server) handleFrame(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.source.Frame())
}

func (s *Server) handleFrameSVG(w http.ResponseWriter, r *http.Request) {
	opts := s.svg
	q := r.URL.Query()
	if v := q.Get("stroke"); v != "" {
		opts.Stroke = v
	}
	if v := q.Get("background"); v != "" {
		opts.Background = v
	}
	if v := q.Get("width"); v != "" {
		width, err := strconv.ParseFloat(v, 64)
		if err != nil || width <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "width must be a positive number"})
			return
		}
		opts.StrokeWidth = width
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	io.WriteString(w, s.source.Frame().SVG(opts))
}

// handleWatch streams every frame change as a JSON text message. Slow
// clients skip intermediate frames.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	frames, cancel := s.source.Watch()
	defer cancel()

	// The read side only exists to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case frame, ok := <-frames:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "window closed"),
					time.Now().Add(writeWait))
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(frame); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
