package ipc

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1broseidon/winmesh/internal/replication"
)

// startRelay uses a short directory so the socket path stays under the unix
// socket length limit.
func startRelay(t *testing.T, queueSize int) *Server {
	t.Helper()
	dir, err := os.MkdirTemp("", "wm")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	srv, err := NewServer(ServerConfig{SocketPath: filepath.Join(dir, "r.sock"), QueueSize: queueSize})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

func join(t *testing.T, srv *Server, channel string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Join(ctx, srv.SocketPath(), channel)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func waitMembers(t *testing.T, srv *Server, channel string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return srv.Status().Channels[channel] == n
	}, 2*time.Second, 5*time.Millisecond)
}

func expectLine(t *testing.T, c *Client, want string) {
	t.Helper()
	select {
	case got, ok := <-c.Messages():
		require.True(t, ok, "inbox closed")
		assert.Equal(t, want, string(got))
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case got := <-c.Messages():
		t.Fatalf("unexpected line %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRelay_FansOutWithinChannel(t *testing.T) {
	srv := startRelay(t, 0)
	a := join(t, srv, "sync")
	b := join(t, srv, "sync")
	c := join(t, srv, "sync")
	other := join(t, srv, "elsewhere")
	waitMembers(t, srv, "sync", 3)
	waitMembers(t, srv, "elsewhere", 1)

	require.NoError(t, a.Send(context.Background(), []byte(`{"type":"request-snapshot","source":"a"}`)))

	expectLine(t, b, `{"type":"request-snapshot","source":"a"}`)
	expectLine(t, c, `{"type":"request-snapshot","source":"a"}`)
	expectNothing(t, a)
	expectNothing(t, other)
}

func TestRelay_MemberLeaves(t *testing.T) {
	srv := startRelay(t, 0)
	a := join(t, srv, "sync")
	b := join(t, srv, "sync")
	waitMembers(t, srv, "sync", 2)

	require.NoError(t, b.Close())
	waitMembers(t, srv, "sync", 1)

	require.NoError(t, a.Send(context.Background(), []byte("x")))
	assert.ErrorIs(t, b.Send(context.Background(), []byte("x")), replication.ErrClosed)

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool {
		_, ok := srv.Status().Channels["sync"]
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRelay_RejectsBadRequests(t *testing.T) {
	srv := startRelay(t, 0)

	ctx := context.Background()
	_, err := Join(ctx, srv.SocketPath(), "")
	assert.ErrorContains(t, err, "channel is required")

	conn, err := net.Dial("unix", srv.SocketPath())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("{\"command\":\"TILE\"}\n"))
	require.NoError(t, err)
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"status":"ERROR"`)
	assert.Contains(t, line, "Unknown command: TILE")
}

func TestRelay_Status(t *testing.T) {
	srv := startRelay(t, 0)
	join(t, srv, "sync")
	join(t, srv, "sync")
	waitMembers(t, srv, "sync", 2)

	status, err := Status(context.Background(), srv.SocketPath())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"sync": 2}, status.Channels)
}

func TestRelay_DialWithoutServer(t *testing.T) {
	_, err := Join(context.Background(), filepath.Join(t.TempDir(), "missing.sock"), "sync")
	assert.ErrorContains(t, err, "failed to connect to relay")
}

func TestClient_RejectsMultilinePayload(t *testing.T) {
	srv := startRelay(t, 0)
	a := join(t, srv, "sync")
	assert.Error(t, a.Send(context.Background(), []byte("a\nb")))
}

func TestRelay_CarriesReplicationProtocol(t *testing.T) {
	srv := startRelay(t, 0)
	a := join(t, srv, replication.DefaultChannelName)
	b := join(t, srv, replication.DefaultChannelName)
	waitMembers(t, srv, replication.DefaultChannelName, 2)

	applied := make(chan replication.Snapshot, 1)
	chB := replication.Open(b, replication.Options{
		Source:              "b",
		ReadState:           func() replication.Snapshot { return replication.Snapshot{} },
		ApplyState:          func(_ string, s replication.Snapshot) { applied <- s },
		InitialRequestDelay: time.Hour,
	})
	defer chB.Close()

	msg := replication.NewMessage(replication.KindSnapshot, "a")
	msg.Data = replication.Snapshot{"a": {ScreenWidth: 1920, ScreenHeight: 1080, WindowWidth: 10, WindowHeight: 10}}
	payload, err := replication.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, a.Send(context.Background(), payload))

	select {
	case got := <-applied:
		assert.Equal(t, msg.Data, got)
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot did not cross the relay")
	}
}
