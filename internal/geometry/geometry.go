// Package geometry converts between a window's local drawing space and the
// shared global screen space, and builds SVG path strings from points.
//
// Everything here is pure and deterministic. Global coordinates are relative
// to the top-left corner of the union of all known displays; local
// coordinates are relative to a window's own top-left corner.
package geometry

import (
	"fmt"
	"math"
)

// Point is a position in either global or local space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Bounds is the bounding box of a set of points.
type Bounds struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// ViewBox is the visible area of an SVG element.
type ViewBox struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// WindowGeometry is one window's position and size in global space.
//
// ScreenWidth and ScreenHeight are the union bounds of every display known to
// the sampler, not a single monitor. ScreenX/ScreenY may be negative. A window
// may be larger than the reported screen bounds.
type WindowGeometry struct {
	ScreenX      int `json:"screenX"`
	ScreenY      int `json:"screenY"`
	ScreenWidth  int `json:"screenWidth"`
	ScreenHeight int `json:"screenHeight"`
	WindowWidth  int `json:"windowWidth"`
	WindowHeight int `json:"windowHeight"`
}

// Validate rejects negative sizes.
func (g WindowGeometry) Validate() error {
	if g.ScreenWidth < 0 || g.ScreenHeight < 0 {
		return fmt.Errorf("negative screen size %dx%d", g.ScreenWidth, g.ScreenHeight)
	}
	if g.WindowWidth < 0 || g.WindowHeight < 0 {
		return fmt.Errorf("negative window size %dx%d", g.WindowWidth, g.WindowHeight)
	}
	return nil
}

// Diagonal is the length of the window's diagonal.
func (g WindowGeometry) Diagonal() float64 {
	w := float64(g.WindowWidth)
	h := float64(g.WindowHeight)
	return math.Sqrt(w*w + h*h)
}

// GlobalToLocal converts a global point into the window's local space.
func GlobalToLocal(p Point, g WindowGeometry) Point {
	return Point{
		X: p.X - float64(g.ScreenX),
		Y: p.Y - float64(g.ScreenY),
	}
}

// LocalToGlobal converts a point in the window's local space into global space.
func LocalToGlobal(p Point, g WindowGeometry) Point {
	return Point{
		X: p.X + float64(g.ScreenX),
		Y: p.Y + float64(g.ScreenY),
	}
}

// WindowCenter returns the window center in global space, rounded half-up so
// identical geometries always produce identical centers.
func WindowCenter(g WindowGeometry) Point {
	return Point{
		X: roundHalfUp(float64(g.ScreenX) + float64(g.WindowWidth)/2),
		Y: roundHalfUp(float64(g.ScreenY) + float64(g.WindowHeight)/2),
	}
}

// LocalWindowCenter returns WindowCenter expressed in the window's local space.
func LocalWindowCenter(g WindowGeometry) Point {
	return GlobalToLocal(WindowCenter(g), g)
}

// Distance is the Euclidean distance between two points.
func Distance(p1, p2 Point) float64 {
	return math.Hypot(p2.X-p1.X, p2.Y-p1.Y)
}

// Centroid is the arithmetic mean of points, (0,0) for no points.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}

	var sum Point
	for _, p := range points {
		sum.X += p.X
		sum.Y += p.Y
	}
	n := float64(len(points))
	return Point{X: sum.X / n, Y: sum.Y / n}
}

// ViewBoxOf returns a view box covering the window's union screen bounds.
func ViewBoxOf(g WindowGeometry) ViewBox {
	return ViewBox{
		Width:  float64(g.ScreenWidth),
		Height: float64(g.ScreenHeight),
	}
}

// String formats the view box as SVG expects: "x y w h".
func (v ViewBox) String() string {
	return fmt.Sprintf("%s %s %s %s", formatNumber(v.X), formatNumber(v.Y), formatNumber(v.Width), formatNumber(v.Height))
}

func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
