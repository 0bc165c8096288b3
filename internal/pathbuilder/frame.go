package pathbuilder

import (
	"fmt"
	"html"
	"strings"

	"github.com/1broseidon/winmesh/internal/topology"
)

// Frame is what the presentation layer draws.
type Frame struct {
	Path        string `json:"path"`
	ViewBox     string `json:"viewBox"`
	ScreenCount int    `json:"screenCount"`
	WindowID    string `json:"windowId,omitempty"`
	Loading     bool   `json:"loading,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Frame computes the frame for focal, or the global frame when focal is
// empty.
func (b *Builder) Frame(top topology.Topology, focal string) Frame {
	f := Frame{
		ViewBox:     ViewBox(top, focal).String(),
		ScreenCount: len(top),
		WindowID:    focal,
	}
	if focal != "" {
		f.Path = b.WindowPath(top, focal)
	} else {
		f.Path = b.PolygonPath(top)
	}
	return f
}

// SVGOptions styles a rendered frame.
type SVGOptions struct {
	Stroke      string
	StrokeWidth float64
	Background  string
}

// DefaultSVGOptions draws a white line on black.
var DefaultSVGOptions = SVGOptions{Stroke: "#ffffff", StrokeWidth: 2, Background: "#000000"}

// SVG renders f as a standalone SVG document.
func (f Frame) SVG(opts SVGOptions) string {
	if opts.Stroke == "" {
		opts.Stroke = DefaultSVGOptions.Stroke
	}
	if opts.StrokeWidth <= 0 {
		opts.StrokeWidth = DefaultSVGOptions.StrokeWidth
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="%s">`, html.EscapeString(f.ViewBox))
	b.WriteString("\n")
	if opts.Background != "" {
		fmt.Fprintf(&b, `  <rect width="100%%" height="100%%" fill="%s"/>`, html.EscapeString(opts.Background))
		b.WriteString("\n")
	}
	if f.Path != "" {
		fmt.Fprintf(&b, `  <path d="%s" fill="none" stroke="%s" stroke-width="%g" stroke-linecap="round" stroke-linejoin="round"/>`,
			html.EscapeString(f.Path), html.EscapeString(opts.Stroke), opts.StrokeWidth)
		b.WriteString("\n")
	}
	b.WriteString("</svg>\n")
	return b.String()
}
