package mcp

import (
	"github.com/1broseidon/winmesh/internal/pathbuilder"
	"github.com/1broseidon/winmesh/internal/topology"
)

// GetTopologyInput is the input for the get_topology tool.
type GetTopologyInput struct{}

// GetTopologyOutput is the output for the get_topology tool. Surrounded is
// true when the running window's center lies inside the polygon over every
// other window.
type GetTopologyOutput struct {
	WindowID   string              `json:"window_id"`
	Count      int                 `json:"count"`
	Windows    []topology.Entry    `json:"windows"`
	Polygon    pathbuilder.Polygon `json:"polygon"`
	Surrounded bool                `json:"surrounded"`
}

// RefreshInput is the input for the refresh tool.
type RefreshInput struct{}

// RefreshOutput is the output for the refresh tool.
type RefreshOutput struct {
	Requested bool `json:"requested"`
	Count     int  `json:"count"`
}

// GetFrameInput is the input for the get_frame tool.
type GetFrameInput struct {
	Mode     string `json:"mode,omitempty" jsonschema:"local draws the two rays of one window, global draws the closed polygon (default: the running window's mode)"`
	WindowID string `json:"window_id,omitempty" jsonschema:"Window to draw in local mode (default: the running window)"`
	SVG      bool   `json:"svg,omitempty" jsonschema:"When true, also return the frame rendered as a standalone SVG document"`
}

// GetFrameOutput is the output for the get_frame tool.
type GetFrameOutput struct {
	Path        string `json:"path"`
	ViewBox     string `json:"view_box"`
	ScreenCount int    `json:"screen_count"`
	WindowID    string `json:"window_id,omitempty"`
	Loading     bool   `json:"loading,omitempty"`
	Error       string `json:"error,omitempty"`
	SVG         string `json:"svg,omitempty"`
}

func frameOutput(f pathbuilder.Frame) GetFrameOutput {
	return GetFrameOutput{
		Path:        f.Path,
		ViewBox:     f.ViewBox,
		ScreenCount: f.ScreenCount,
		WindowID:    f.WindowID,
		Loading:     f.Loading,
		Error:       f.Error,
	}
}
