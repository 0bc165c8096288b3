// Package mcp exposes a running window's topology to MCP clients over stdio.
package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/winmesh/internal/pathbuilder"
	"github.com/1broseidon/winmesh/internal/topology"
)

const (
	ServerName    = "winmesh"
	ServerVersion = "0.1.0"
)

// Source is the running window the tools read from.
type Source interface {
	WindowID() string
	Frame() pathbuilder.Frame
	Topology() topology.Topology
	Polygon() pathbuilder.Polygon
	Refresh()
}

// Server is the MCP server for one window instance.
type Server struct {
	mcpServer *mcpsdk.Server
	source    Source
	builder   *pathbuilder.Builder
	svg       pathbuilder.SVGOptions
	logger    *slog.Logger
}

// Options configures a Server.
type Options struct {
	Builder *pathbuilder.Builder
	SVG     pathbuilder.SVGOptions
	Logger  *slog.Logger
}

// NewServer creates the MCP server. source must not be nil.
func NewServer(source Source, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	builder := opts.Builder
	if builder == nil {
		builder = pathbuilder.NewBuilder()
	}

	s := &Server{
		source:  source,
		builder: builder,
		svg:     opts.SVG,
		logger:  logger,
	}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves on the stdio transport, blocking until ctx is done or the
// client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_topology",
		Description: "List every window currently known to this window's replication channel with its normalized geometry, plus the global polygon over their centers (sorted points, centroid and area).",
	}, s.handleGetTopology)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_frame",
		Description: "Compute the SVG path, viewBox and window count a window draws. Defaults to the running window's own frame; pass mode=global for the closed polygon or mode=local with window_id to draw any window's two rays. Optionally returns the frame as an SVG document.",
	}, s.handleGetFrame)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "refresh",
		Description: "Ask every peer window to resend its geometry. Answers merge asynchronously; call get_topology afterwards to see them.",
	}, s.handleRefresh)
}

func (s *Server) handleGetTopology(_ context.Context, _ *mcpsdk.CallToolRequest, _ GetTopologyInput) (*mcpsdk.CallToolResult, GetTopologyOutput, error) {
	top := s.source.Topology()
	windows := make([]topology.Entry, len(top))
	copy(windows, top)

	id := s.source.WindowID()
	s.logger.Debug("mcp get_topology", "count", len(windows))
	return nil, GetTopologyOutput{
		WindowID:   id,
		Count:      len(windows),
		Windows:    windows,
		Polygon:    s.source.Polygon(),
		Surrounded: pathbuilder.Surrounded(top, id),
	}, nil
}

func (s *Server) handleRefresh(_ context.Context, _ *mcpsdk.CallToolRequest, _ RefreshInput) (*mcpsdk.CallToolResult, RefreshOutput, error) {
	s.source.Refresh()
	count := len(s.source.Topology())
	s.logger.Debug("mcp refresh", "count", count)
	return nil, RefreshOutput{Requested: true, Count: count}, nil
}

func (s *Server) handleGetFrame(_ context.Context, _ *mcpsdk.CallToolRequest, args GetFrameInput) (*mcpsdk.CallToolResult, GetFrameOutput, error) {
	frame, err := s.resolveFrame(args)
	if err != nil {
		return nil, GetFrameOutput{}, err
	}

	out := frameOutput(frame)
	if args.SVG {
		out.SVG = frame.SVG(s.svg)
	}
	s.logger.Debug("mcp get_frame", "mode", args.Mode, "window_id", out.WindowID, "count", out.ScreenCount)
	return nil, out, nil
}

// resolveFrame returns the running window's frame unless the arguments ask
// for a different view of the same topology.
func (s *Server) resolveFrame(args GetFrameInput) (pathbuilder.Frame, error) {
	if args.Mode == "" && args.WindowID == "" {
		return s.source.Frame(), nil
	}

	top := s.source.Topology()
	switch pathbuilder.Mode(args.Mode) {
	case pathbuilder.ModeGlobal:
		if args.WindowID != "" {
			return pathbuilder.Frame{}, fmt.Errorf("window_id is only valid in local mode")
		}
		return s.builder.Frame(top, ""), nil
	case pathbuilder.ModeLocal, "":
		id := args.WindowID
		if id == "" {
			id = s.source.WindowID()
		}
		if top.Index(id) < 0 {
			return pathbuilder.Frame{}, fmt.Errorf("window %q is not in the topology", id)
		}
		return s.builder.Frame(top, id), nil
	default:
		return pathbuilder.Frame{}, fmt.Errorf("invalid mode %q: must be %q or %q", args.Mode, pathbuilder.ModeLocal, pathbuilder.ModeGlobal)
	}
}
