package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1broseidon/winmesh/internal/geometry"
	"github.com/1broseidon/winmesh/internal/pathbuilder"
	"github.com/1broseidon/winmesh/internal/topology"
)

type fakeSource struct {
	mu        sync.Mutex
	top       topology.Topology
	watchers  []chan pathbuilder.Frame
	refreshes int
}

func (f *fakeSource) Refresh() {
	f.mu.Lock()
	f.refreshes++
	f.mu.Unlock()
}

func (f *fakeSource) WindowID() string { return "a" }

func (f *fakeSource) Topology() topology.Topology {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.top
}

func (f *fakeSource) Frame() pathbuilder.Frame {
	return pathbuilder.NewBuilder().Frame(f.Topology(), "")
}

func (f *fakeSource) Polygon() pathbuilder.Polygon {
	return pathbuilder.NewBuilder().Polygon(f.Topology())
}

func (f *fakeSource) Watch() (<-chan pathbuilder.Frame, func()) {
	ch := make(chan pathbuilder.Frame, 1)
	ch <- f.Frame()
	f.mu.Lock()
	f.watchers = append(f.watchers, ch)
	f.mu.Unlock()
	return ch, func() {}
}

func (f *fakeSource) set(top topology.Topology) {
	f.mu.Lock()
	f.top = top
	watchers := f.watchers
	f.mu.Unlock()
	frame := f.Frame()
	for _, ch := range watchers {
		select {
		case <-ch:
		default:
		}
		ch <- frame
	}
}

func (f *fakeSource) closeWatchers() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.watchers {
		close(ch)
	}
	f.watchers = nil
}

func entry(id string, x, y int) topology.Entry {
	return topology.Entry{ID: id, Geometry: geometry.WindowGeometry{
		ScreenX: x, ScreenY: y, ScreenWidth: 1920, ScreenHeight: 1080, WindowWidth: 200, WindowHeight: 100,
	}}
}

func newTestServer(t *testing.T, src Source) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewServer(Config{Source: src}).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeSource{})
	resp, body := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","windowId":"a"}`, string(body))
}

func TestTopology(t *testing.T) {
	src := &fakeSource{top: topology.Topology{entry("a", 0, 0), entry("b", 500, 0)}}
	ts := newTestServer(t, src)

	resp, body := get(t, ts.URL+"/topology")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got TopologyResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "a", got.WindowID)
	assert.Equal(t, []string{"a", "b"}, got.Windows.IDs())
	assert.Equal(t, "M100,50 L600,50 Z", got.Polygon.Path)
}

func TestTopology_Surrounded(t *testing.T) {
	src := &fakeSource{top: topology.Topology{
		entry("a", 500, 200), entry("b", 0, 0), entry("c", 1000, 0), entry("d", 500, 800),
	}}
	ts := newTestServer(t, src)

	_, body := get(t, ts.URL+"/topology")
	var got TopologyResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.True(t, got.Surrounded)
	assert.Equal(t, geometry.Bounds{MinX: 100, MinY: 50, MaxX: 1100, MaxY: 850}, got.Polygon.Bounds)
}

func TestSnapshot(t *testing.T) {
	src := &fakeSource{top: topology.Topology{entry("a", 0, 0), entry("b", 500, 0)}}
	ts := newTestServer(t, src)

	resp, body := get(t, ts.URL+"/snapshot")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{
		"a": {"screenX":0,"screenY":0,"screenWidth":1920,"screenHeight":1080,"windowWidth":200,"windowHeight":100},
		"b": {"screenX":500,"screenY":0,"screenWidth":1920,"screenHeight":1080,"windowWidth":200,"windowHeight":100}
	}`, string(body))

	_, body = get(t, newTestServer(t, &fakeSource{}).URL+"/snapshot")
	assert.JSONEq(t, `{}`, string(body))
}

func TestRefresh(t *testing.T) {
	src := &fakeSource{}
	ts := newTestServer(t, src)

	resp, err := http.Post(ts.URL+"/refresh", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, body := get(t, ts.URL+"/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, string(body))

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, 1, src.refreshes)
}

func TestTopology_EmptyIsArray(t *testing.T) {
	ts := newTestServer(t, &fakeSource{})
	_, body := get(t, ts.URL+"/topology")
	assert.Contains(t, string(body), `"windows":[]`)
}

func TestFrame(t *testing.T) {
	ts := newTestServer(t, &fakeSource{top: topology.Topology{entry("a", 0, 0)}})
	resp, body := get(t, ts.URL+"/frame")
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var f pathbuilder.Frame
	require.NoError(t, json.Unmarshal(body, &f))
	assert.Equal(t, 1, f.ScreenCount)
	assert.Equal(t, "0 0 1920 1080", f.ViewBox)
	assert.Equal(t, "M95,50 A5,5 0 1,1 105,50 A5,5 0 1,1 95,50 Z", f.Path)
}

func TestFrameSVG(t *testing.T) {
	ts := newTestServer(t, &fakeSource{top: topology.Topology{entry("a", 0, 0), entry("b", 500, 0)}})

	resp, body := get(t, ts.URL+"/frame.svg?stroke=red&width=4")
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	svg := string(body)
	assert.True(t, strings.HasPrefix(svg, "<svg"))
	assert.Contains(t, svg, `d="M100,50 L600,50 Z"`)
	assert.Contains(t, svg, `stroke="red"`)
	assert.Contains(t, svg, `stroke-width="4"`)

	resp, _ = get(t, ts.URL+"/frame.svg?width=nope")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, &fakeSource{})
	resp, _ := get(t, ts.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWatchStreamsFrames(t *testing.T) {
	src := &fakeSource{top: topology.Topology{entry("a", 0, 0)}}
	ts := newTestServer(t, src)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var f pathbuilder.Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, 1, f.ScreenCount)

	src.set(topology.Topology{entry("a", 0, 0), entry("b", 500, 0)})
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, 2, f.ScreenCount)

	src.closeWatchers()
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(Config{Source: &fakeSource{}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
