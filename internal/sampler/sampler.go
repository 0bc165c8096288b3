// Package sampler reads the local window's geometry, normalised to the union
// bounds of every display.
package sampler

import (
	"context"
	"fmt"
	"sync"

	"github.com/1broseidon/winmesh/internal/geometry"
	"github.com/1broseidon/winmesh/internal/platform"
)

// Source is a one-shot geometry and focus reader.
type Source interface {
	Sample(ctx context.Context) (geometry.WindowGeometry, error)
	Focused() bool
}

// SampleError reports a geometry read that failed. Callers keep their last
// good sample and retry on the next tick.
type SampleError struct {
	Op  string
	Err error
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("sample failed: %s: %v", e.Op, e.Err)
}

func (e *SampleError) Unwrap() error {
	return e.Err
}

// Arrangement lays out fallback monitors.
type Arrangement string

const (
	Horizontal Arrangement = "horizontal"
	Vertical   Arrangement = "vertical"
)

// FallbackConfig describes the assumed display layout when none can be read.
type FallbackConfig struct {
	MonitorCount int
	Width        int
	Height       int
	Arrangement  Arrangement
}

// DefaultFallback is three 1920x1080 monitors side by side.
var DefaultFallback = FallbackConfig{MonitorCount: 3, Width: 1920, Height: 1080, Arrangement: Horizontal}

// FallbackBounds returns the union bounds of the assumed layout.
func FallbackBounds(cfg FallbackConfig) platform.Rect {
	count := cfg.MonitorCount
	if count <= 0 {
		count = 1
	}
	if cfg.Arrangement == Vertical {
		return platform.Rect{Width: cfg.Width, Height: cfg.Height * count}
	}
	return platform.Rect{Width: cfg.Width * count, Height: cfg.Height}
}

// UnionBounds is the smallest rectangle covering every display. ok is false
// for an empty list.
func UnionBounds(displays []platform.Display) (bounds platform.Rect, ok bool) {
	if len(displays) == 0 {
		return platform.Rect{}, false
	}

	minX, minY := displays[0].Bounds.X, displays[0].Bounds.Y
	maxX, maxY := minX+displays[0].Bounds.Width, minY+displays[0].Bounds.Height
	for _, d := range displays[1:] {
		minX = min(minX, d.Bounds.X)
		minY = min(minY, d.Bounds.Y)
		maxX = max(maxX, d.Bounds.X+d.Bounds.Width)
		maxY = max(maxY, d.Bounds.Y+d.Bounds.Height)
	}
	return platform.Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, true
}

// Normalize expresses window bounds relative to the union origin.
func Normalize(window, union platform.Rect) geometry.WindowGeometry {
	return geometry.WindowGeometry{
		ScreenX:      window.X - union.X,
		ScreenY:      window.Y - union.Y,
		ScreenWidth:  union.Width,
		ScreenHeight: union.Height,
		WindowWidth:  window.Width,
		WindowHeight: window.Height,
	}
}

// StaticSource returns a settable geometry. It backs headless instances and
// tests.
type StaticSource struct {
	mu      sync.Mutex
	g       geometry.WindowGeometry
	err     error
	focused bool
}

var _ Source = (*StaticSource)(nil)

// NewStaticSource returns a source that always reports g.
func NewStaticSource(g geometry.WindowGeometry, focused bool) *StaticSource {
	return &StaticSource{g: g, focused: focused}
}

// Sample returns the current geometry, or the configured failure.
func (s *StaticSource) Sample(ctx context.Context) (geometry.WindowGeometry, error) {
	if err := ctx.Err(); err != nil {
		return geometry.WindowGeometry{}, &SampleError{Op: "static", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return geometry.WindowGeometry{}, &SampleError{Op: "static", Err: s.err}
	}
	return s.g, nil
}

// Focused reports the configured focus.
func (s *StaticSource) Focused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focused
}

// Set replaces the reported geometry and clears any failure.
func (s *StaticSource) Set(g geometry.WindowGeometry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.g = g
	s.err = nil
}

// SetFocused changes the reported focus.
func (s *StaticSource) SetFocused(focused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focused = focused
}

// Fail makes every following Sample return err until Set is called.
func (s *StaticSource) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
