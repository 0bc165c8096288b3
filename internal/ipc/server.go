package ipc

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1broseidon/winmesh/internal/runtimepath"
)

const (
	// DefaultQueueSize bounds each member's outbound queue.
	DefaultQueueSize = 256

	writeTimeout = 2 * time.Second
)

// ServerConfig configures a relay Server.
type ServerConfig struct {
	// SocketPath defaults to the runtime directory socket.
	SocketPath string
	QueueSize  int
	Logger     *slog.Logger
}

// Server is a stateless fan-out relay. It never parses what members send
// after JOIN; lines are forwarded verbatim to every other member of the same
// channel and dropped for members whose queue is full.
type Server struct {
	socketPath string
	queueSize  int
	logger     *slog.Logger
	listener   net.Listener
	startTime  time.Time

	mu       sync.Mutex
	channels map[string]map[*member]struct{}
	conns    map[net.Conn]struct{}
	dropped  atomic.Uint64

	shuttingDown bool
	shutdownMu   sync.Mutex
	wg           sync.WaitGroup
}

type member struct {
	conn    net.Conn
	channel string
	out     chan []byte
}

// NewServer creates a relay server. The socket is created by Start.
func NewServer(cfg ServerConfig) (*Server, error) {
	socketPath := cfg.SocketPath
	if socketPath == "" {
		p, err := runtimepath.SocketPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve relay socket path: %w", err)
		}
		socketPath = p
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Server{
		socketPath: socketPath,
		queueSize:  queueSize,
		logger:     logger,
		channels:   make(map[string]map[*member]struct{}),
		conns:      make(map[net.Conn]struct{}),
	}, nil
}

// SocketPath returns the unix socket the server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start begins listening for relay connections
func (s *Server) Start() error {
	// Remove a stale socket left by a previous run
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create relay socket: %w", err)
	}
	s.listener = listener
	s.startTime = time.Now()

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.Info("relay listening", "socket", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.shutdownMu.Lock()
			if s.shuttingDown {
				s.shutdownMu.Unlock()
				return
			}
			s.shutdownMu.Unlock()
			s.logger.Warn("relay accept error", "error", err)
			continue
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	reader := bufio.NewReader(conn)

	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.logger.Debug("relay read error", "error", err)
		return
	}

	req, err := ParseRequest(data)
	if err != nil {
		s.sendResponse(conn, NewErrorResponse(fmt.Sprintf("Invalid request: %v", err)))
		return
	}

	switch req.Command {
	case CommandJoin:
		if req.Channel == "" {
			s.sendResponse(conn, NewErrorResponse("channel is required"))
			return
		}
		s.serveMember(conn, reader, req.Channel)
	case CommandStatus:
		resp, err := NewOKResponse(s.Status())
		if err != nil {
			s.sendResponse(conn, NewErrorResponse(err.Error()))
			return
		}
		s.sendResponse(conn, resp)
	default:
		s.sendResponse(conn, NewErrorResponse(fmt.Sprintf("Unknown command: %s", req.Command)))
	}
}

// serveMember acknowledges the join, then forwards every line the member
// writes until it disconnects.
func (s *Server) serveMember(conn net.Conn, reader *bufio.Reader, channel string) {
	resp, _ := NewOKResponse(nil)
	if !s.sendResponse(conn, resp) {
		return
	}

	m := &member{conn: conn, channel: channel, out: make(chan []byte, s.queueSize)}
	s.join(m)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(m)
	}()

	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			if line[len(line)-1] != '\n' {
				line = append(line, '\n')
			}
			s.broadcast(m, line)
		}
		if err != nil {
			if err != io.EOF {
				s.logger.Debug("relay member read error", "channel", channel, "error", err)
			}
			break
		}
	}

	s.leave(m)
	<-writerDone
}

func (s *Server) writeLoop(m *member) {
	failed := false
	for line := range m.out {
		if failed {
			continue
		}
		m.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := m.conn.Write(line); err != nil {
			s.logger.Debug("relay write error", "channel", m.channel, "error", err)
			failed = true
			// unblocks the member's reader
			m.conn.Close()
		}
	}
}

func (s *Server) join(m *member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.channels[m.channel]
	if !ok {
		members = make(map[*member]struct{})
		s.channels[m.channel] = members
	}
	members[m] = struct{}{}
	s.logger.Debug("relay member joined", "channel", m.channel, "members", len(members))
}

func (s *Server) leave(m *member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if members, ok := s.channels[m.channel]; ok {
		delete(members, m)
		if len(members) == 0 {
			delete(s.channels, m.channel)
		}
	}
	close(m.out)
	s.logger.Debug("relay member left", "channel", m.channel)
}

func (s *Server) broadcast(from *member, line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for m := range s.channels[from.channel] {
		if m == from {
			continue
		}
		select {
		case m.out <- line:
		default:
			s.dropped.Add(1)
		}
	}
}

// Status reports member counts per channel.
func (s *Server) Status() StatusData {
	s.mu.Lock()
	defer s.mu.Unlock()
	channels := make(map[string]int, len(s.channels))
	for name, members := range s.channels {
		channels[name] = len(members)
	}
	return StatusData{
		Channels:      channels,
		Dropped:       s.dropped.Load(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}
}

func (s *Server) sendResponse(conn net.Conn, resp *Response) bool {
	data, err := resp.Marshal()
	if err != nil {
		s.logger.Warn("failed to marshal relay response", "error", err)
		return false
	}
	data = append(data, '\n')
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := conn.Write(data); err != nil {
		s.logger.Debug("failed to send relay response", "error", err)
		return false
	}
	conn.SetWriteDeadline(time.Time{})
	return true
}

// Stop closes the listener and every member connection, then removes the
// socket.
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	if s.shuttingDown {
		s.shutdownMu.Unlock()
		return
	}
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	os.Remove(s.socketPath)
	s.logger.Info("relay stopped")
}
