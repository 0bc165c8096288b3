package sampler

import (
	"context"
	"io"
	"log/slog"

	"github.com/1broseidon/winmesh/internal/geometry"
	"github.com/1broseidon/winmesh/internal/platform"
)

// X11Source samples one window through a platform backend. Sample must not
// be called concurrently.
type X11Source struct {
	backend  platform.Backend
	window   platform.WindowID
	fallback FallbackConfig
	logger   *slog.Logger

	warnedFallback bool
}

var _ Source = (*X11Source)(nil)

// NewX11Source tracks window on backend. Fallback bounds apply while the
// display list is unavailable.
func NewX11Source(backend platform.Backend, window platform.WindowID, fallback FallbackConfig, logger *slog.Logger) *X11Source {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &X11Source{backend: backend, window: window, fallback: fallback, logger: logger}
}

// Window returns the tracked window.
func (s *X11Source) Window() platform.WindowID {
	return s.window
}

// Sample reads the window's client area and the union of all displays.
func (s *X11Source) Sample(ctx context.Context) (geometry.WindowGeometry, error) {
	if err := ctx.Err(); err != nil {
		return geometry.WindowGeometry{}, &SampleError{Op: "x11", Err: err}
	}

	union, ok := s.union()
	bounds, err := s.backend.WindowBounds(s.window)
	if err != nil {
		return geometry.WindowGeometry{}, &SampleError{Op: "window bounds", Err: err}
	}
	if !ok {
		// Without a display list the window position is taken as is.
		union.X, union.Y = 0, 0
	}
	return Normalize(bounds, union), nil
}

func (s *X11Source) union() (platform.Rect, bool) {
	displays, err := s.backend.Displays()
	if err == nil {
		if union, ok := UnionBounds(displays); ok {
			s.warnedFallback = false
			return union, true
		}
	}
	if !s.warnedFallback {
		s.logger.Warn("display list unavailable, using fallback bounds", "error", err)
		s.warnedFallback = true
	}
	return FallbackBounds(s.fallback), false
}

// Focused reports whether the tracked window is the EWMH active window.
func (s *X11Source) Focused() bool {
	active, err := s.backend.ActiveWindow()
	if err != nil {
		return false
	}
	return active == s.window
}
