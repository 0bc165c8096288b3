package sampler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1broseidon/winmesh/internal/geometry"
	"github.com/1broseidon/winmesh/internal/platform"
)

type fakeBackend struct {
	displays    []platform.Display
	displaysErr error
	bounds      map[platform.WindowID]platform.Rect
	active      platform.WindowID
	activeErr   error
}

func (f *fakeBackend) Displays() ([]platform.Display, error) { return f.displays, f.displaysErr }
func (f *fakeBackend) ActiveWindow() (platform.WindowID, error) {
	return f.active, f.activeErr
}
func (f *fakeBackend) WindowBounds(id platform.WindowID) (platform.Rect, error) {
	r, ok := f.bounds[id]
	if !ok {
		return platform.Rect{}, errors.New("bad window")
	}
	return r, nil
}
func (f *fakeBackend) FindWindow(string) (platform.WindowID, error) { return 0, errors.New("not found") }
func (f *fakeBackend) Close()                                      {}

func TestUnionBounds(t *testing.T) {
	_, ok := UnionBounds(nil)
	assert.False(t, ok)

	got, ok := UnionBounds([]platform.Display{
		{ID: 0, Bounds: platform.Rect{X: 0, Y: 0, Width: 1920, Height: 1080}},
		{ID: 1, Bounds: platform.Rect{X: 1920, Y: -200, Width: 2560, Height: 1440}},
		{ID: 2, Bounds: platform.Rect{X: -1280, Y: 0, Width: 1280, Height: 1024}},
	})
	require.True(t, ok)
	assert.Equal(t, platform.Rect{X: -1280, Y: -200, Width: 5760, Height: 1440}, got)
}

func TestFallbackBounds(t *testing.T) {
	assert.Equal(t, platform.Rect{Width: 5760, Height: 1080}, FallbackBounds(DefaultFallback))
	assert.Equal(t, platform.Rect{Width: 1280, Height: 2048}, FallbackBounds(FallbackConfig{MonitorCount: 2, Width: 1280, Height: 1024, Arrangement: Vertical}))
	assert.Equal(t, platform.Rect{Width: 800, Height: 600}, FallbackBounds(FallbackConfig{Width: 800, Height: 600}))
}

func TestX11Source_NormalisesToUnionOrigin(t *testing.T) {
	backend := &fakeBackend{
		displays: []platform.Display{
			{Bounds: platform.Rect{X: -1920, Y: 0, Width: 1920, Height: 1080}},
			{Bounds: platform.Rect{X: 0, Y: 0, Width: 1920, Height: 1080}},
		},
		bounds: map[platform.WindowID]platform.Rect{7: {X: 100, Y: 50, Width: 800, Height: 600}},
		active: 7,
	}
	src := NewX11Source(backend, 7, DefaultFallback, nil)

	g, err := src.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, geometry.WindowGeometry{
		ScreenX: 2020, ScreenY: 50, ScreenWidth: 3840, ScreenHeight: 1080, WindowWidth: 800, WindowHeight: 600,
	}, g)
	assert.True(t, src.Focused())

	backend.active = 8
	assert.False(t, src.Focused())
	backend.activeErr = errors.New("no wm")
	assert.False(t, src.Focused())
}

func TestX11Source_FallbackBounds(t *testing.T) {
	backend := &fakeBackend{
		displaysErr: errors.New("randr missing"),
		bounds:      map[platform.WindowID]platform.Rect{7: {X: 100, Y: 50, Width: 800, Height: 600}},
	}
	g, err := NewX11Source(backend, 7, DefaultFallback, nil).Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, geometry.WindowGeometry{
		ScreenX: 100, ScreenY: 50, ScreenWidth: 5760, ScreenHeight: 1080, WindowWidth: 800, WindowHeight: 600,
	}, g)
}

func TestX11Source_SampleError(t *testing.T) {
	backend := &fakeBackend{bounds: map[platform.WindowID]platform.Rect{}}
	_, err := NewX11Source(backend, 7, DefaultFallback, nil).Sample(context.Background())

	var sampleErr *SampleError
	require.ErrorAs(t, err, &sampleErr)
	assert.Equal(t, "window bounds", sampleErr.Op)
	assert.EqualError(t, err, "sample failed: window bounds: bad window")
}

func TestStaticSource(t *testing.T) {
	g := geometry.WindowGeometry{ScreenWidth: 1920, ScreenHeight: 1080, WindowWidth: 10, WindowHeight: 10}
	src := NewStaticSource(g, false)

	got, err := src.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, g, got)
	assert.False(t, src.Focused())

	boom := errors.New("boom")
	src.Fail(boom)
	_, err = src.Sample(context.Background())
	assert.ErrorIs(t, err, boom)

	g.ScreenX = 5
	src.Set(g)
	src.SetFocused(true)
	got, err = src.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, got.ScreenX)
	assert.True(t, src.Focused())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Sample(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
