package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1broseidon/winmesh/internal/geometry"
	"github.com/1broseidon/winmesh/internal/pathbuilder"
	"github.com/1broseidon/winmesh/internal/topology"
)

type fakeSource struct {
	id        string
	top       topology.Topology
	refreshes int
}

func (f *fakeSource) Refresh() { f.refreshes++ }

func (f *fakeSource) WindowID() string            { return f.id }
func (f *fakeSource) Topology() topology.Topology { return f.top }
func (f *fakeSource) Polygon() pathbuilder.Polygon {
	return pathbuilder.NewBuilder().Polygon(f.top)
}
func (f *fakeSource) Frame() pathbuilder.Frame {
	frame := pathbuilder.NewBuilder().Frame(f.top, f.id)
	frame.Loading = true
	return frame
}

// window builds a 400x300 window centered on (cx, cy).
func window(id string, cx, cy int) topology.Entry {
	return topology.Entry{ID: id, Geometry: geometry.WindowGeometry{
		ScreenX: cx - 200, ScreenY: cy - 150, ScreenWidth: 1920, ScreenHeight: 1080, WindowWidth: 400, WindowHeight: 300,
	}}
}

func newTestServer() *Server {
	return NewServer(&fakeSource{
		id:  "a",
		top: topology.Topology{window("a", 400, 300), window("b", 1200, 300), window("c", 400, 900)},
	}, Options{})
}

func TestGetTopology(t *testing.T) {
	s := newTestServer()
	_, out, err := s.handleGetTopology(context.Background(), nil, GetTopologyInput{})
	require.NoError(t, err)

	assert.Equal(t, "a", out.WindowID)
	assert.Equal(t, 3, out.Count)
	require.Len(t, out.Windows, 3)
	assert.Equal(t, "b", out.Windows[1].ID)
	assert.Equal(t, "M400,300 L1200,300 L400,900 Z", out.Polygon.Path)
	assert.InDelta(t, 240000, out.Polygon.Area, 1e-9)
	assert.False(t, out.Surrounded)
}

func TestGetTopology_Surrounded(t *testing.T) {
	s := NewServer(&fakeSource{
		id:  "d",
		top: topology.Topology{window("a", 400, 300), window("b", 1200, 300), window("c", 400, 900), window("d", 600, 450)},
	}, Options{})
	_, out, err := s.handleGetTopology(context.Background(), nil, GetTopologyInput{})
	require.NoError(t, err)
	assert.True(t, out.Surrounded)
}

func TestRefresh(t *testing.T) {
	src := &fakeSource{id: "a", top: topology.Topology{window("a", 400, 300)}}
	s := NewServer(src, Options{})
	_, out, err := s.handleRefresh(context.Background(), nil, RefreshInput{})
	require.NoError(t, err)
	assert.Equal(t, RefreshOutput{Requested: true, Count: 1}, out)
	assert.Equal(t, 1, src.refreshes)
}

func TestGetTopology_Empty(t *testing.T) {
	s := NewServer(&fakeSource{id: "a"}, Options{})
	_, out, err := s.handleGetTopology(context.Background(), nil, GetTopologyInput{})
	require.NoError(t, err)
	assert.Zero(t, out.Count)
	assert.NotNil(t, out.Windows)
}

func TestGetFrame(t *testing.T) {
	tests := []struct {
		name    string
		input   GetFrameInput
		path    string
		viewBox string
		loading bool
		wantErr string
	}{
		{
			name:    "default is the running window frame",
			input:   GetFrameInput{},
			path:    "M200,150 L200,650 M200,150 L700,150",
			viewBox: "0 0 400 300",
			loading: true,
		},
		{
			name:    "global",
			input:   GetFrameInput{Mode: "global"},
			path:    "M400,300 L1200,300 L400,900 Z",
			viewBox: "0 0 1920 1080",
		},
		{
			name:    "local defaults to own window",
			input:   GetFrameInput{Mode: "local"},
			path:    "M200,150 L200,650 M200,150 L700,150",
			viewBox: "0 0 400 300",
		},
		{
			name:    "window id implies local",
			input:   GetFrameInput{WindowID: "b"},
			viewBox: "0 0 400 300",
		},
		{
			name:    "unknown window",
			input:   GetFrameInput{WindowID: "zzz"},
			wantErr: "not in the topology",
		},
		{
			name:    "window id in global mode",
			input:   GetFrameInput{Mode: "global", WindowID: "b"},
			wantErr: "only valid in local mode",
		},
		{
			name:    "bad mode",
			input:   GetFrameInput{Mode: "sideways"},
			wantErr: "invalid mode",
		},
	}

	s := newTestServer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out, err := s.handleGetFrame(context.Background(), nil, tt.input)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.path != "" {
				assert.Equal(t, tt.path, out.Path)
			}
			assert.Equal(t, tt.viewBox, out.ViewBox)
			assert.Equal(t, 3, out.ScreenCount)
			assert.Equal(t, tt.loading, out.Loading)
			assert.Empty(t, out.SVG)
		})
	}
}

func TestGetFrame_SVG(t *testing.T) {
	s := newTestServer()
	_, out, err := s.handleGetFrame(context.Background(), nil, GetFrameInput{Mode: "global", SVG: true})
	require.NoError(t, err)
	assert.Contains(t, out.SVG, `viewBox="0 0 1920 1080"`)
	assert.Contains(t, out.SVG, `d="M400,300 L1200,300 L400,900 Z"`)
}
