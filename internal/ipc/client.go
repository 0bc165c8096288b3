package ipc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/1broseidon/winmesh/internal/replication"
	"github.com/1broseidon/winmesh/internal/runtimepath"
)

const (
	defaultDialTimeout = 5 * time.Second
	inboxSize          = 256
)

// Client is one member of a relay channel. It implements
// replication.Transport.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	inbox   chan []byte
	done    chan struct{}
	writeMu sync.Mutex

	closeOnce sync.Once
}

var _ replication.Transport = (*Client)(nil)

// resolveSocket falls back to the default socket path.
func resolveSocket(socketPath string) (string, error) {
	if socketPath != "" {
		return socketPath, nil
	}
	return runtimepath.SocketPath()
}

func dial(ctx context.Context, socketPath string) (net.Conn, error) {
	path, err := resolveSocket(socketPath)
	if err != nil {
		return nil, err
	}
	dialer := net.Dialer{Timeout: defaultDialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w (is `winmesh relay` running?)", err)
	}
	return conn, nil
}

// sendRequest writes req and reads the single-line reply
func sendRequest(ctx context.Context, conn net.Conn, reader *bufio.Reader, req *Request) (*Response, error) {
	deadline := time.Now().Add(defaultDialTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)
	defer conn.SetDeadline(time.Time{})

	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	reqData = append(reqData, '\n')
	if _, err := conn.Write(reqData); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Status == statusError {
		return nil, fmt.Errorf("relay error: %s", resp.Error)
	}
	return &resp, nil
}

// Join connects to the relay and joins channel.
func Join(ctx context.Context, socketPath, channel string) (*Client, error) {
	conn, err := dial(ctx, socketPath)
	if err != nil {
		return nil, err
	}

	reader := bufio.NewReader(conn)
	if _, err := sendRequest(ctx, conn, reader, &Request{Command: CommandJoin, Channel: channel}); err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		conn:   conn,
		reader: reader,
		inbox:  make(chan []byte, inboxSize),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.inbox)
	for {
		line, err := c.reader.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			select {
			case c.inbox <- line:
			case <-c.done:
				return
			default:
				// inbox full: lossy by contract
			}
		}
		if err != nil {
			return
		}
	}
}

// Send writes payload as one line.
func (c *Client) Send(ctx context.Context, payload []byte) error {
	select {
	case <-c.done:
		return replication.ErrClosed
	default:
	}
	if bytes.IndexByte(payload, '\n') >= 0 {
		return errors.New("relay payload must not contain a newline")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(defaultDialTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	c.conn.SetWriteDeadline(deadline)

	line := make([]byte, 0, len(payload)+1)
	line = append(append(line, payload...), '\n')
	if _, err := c.conn.Write(line); err != nil {
		return fmt.Errorf("failed to write to relay: %w", err)
	}
	return nil
}

// Messages yields lines from other members.
func (c *Client) Messages() <-chan []byte {
	return c.inbox
}

// Close leaves the channel.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Status asks a running relay for its channel membership.
func Status(ctx context.Context, socketPath string) (*StatusData, error) {
	conn, err := dial(ctx, socketPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	resp, err := sendRequest(ctx, conn, bufio.NewReader(conn), &Request{Command: CommandStatus})
	if err != nil {
		return nil, err
	}

	var status StatusData
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status data: %w", err)
	}
	return &status, nil
}
