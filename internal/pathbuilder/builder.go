// Package pathbuilder turns a topology into the SVG path a window draws.
//
// Global mode connects every window center into one closed polygon. Local
// mode, used when a focal window is given, draws only two rays from the focal
// window's own center toward its neighbors on that polygon, long enough to
// reach the edge of the focal window.
package pathbuilder

import (
	"math"
	"math/rand/v2"

	"github.com/1broseidon/winmesh/internal/geometry"
	"github.com/1broseidon/winmesh/internal/topology"
)

// Style selects how the global polygon is drawn.
type Style string

const (
	StylePolygon Style = "polygon"
	StyleSmooth  Style = "smooth"
)

// Mode selects between the full polygon and the focal window's two rays.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeGlobal Mode = "global"
)

const (
	DefaultRadius  = 5.0
	DefaultTension = 0.3

	// minRayDistance is the neighbor distance below which the ray direction is
	// undefined and picked at random.
	minRayDistance = 1.0
)

// DefaultViewBox is used when there is nothing to frame.
var DefaultViewBox = geometry.ViewBox{Width: 1920, Height: 1080}

// Builder computes paths. The zero value is usable and draws straight
// polygons with the default circle radius.
type Builder struct {
	Radius  float64
	Style   Style
	Tension float64
	// Rand returns a value in [0, 1). It is only consulted when a neighbor
	// sits on top of the focal window.
	Rand func() float64
}

// NewBuilder returns a Builder with default settings.
func NewBuilder() *Builder {
	return &Builder{Radius: DefaultRadius, Style: StylePolygon, Tension: DefaultTension}
}

func (b *Builder) radius() float64 {
	if b == nil || b.Radius <= 0 {
		return DefaultRadius
	}
	return b.Radius
}

func (b *Builder) random() float64 {
	if b == nil || b.Rand == nil {
		return rand.Float64()
	}
	return b.Rand()
}

// PolygonPath is the global mode path: empty for no windows, a circle for one
// and a closed polygon over the angularly sorted centers otherwise.
func (b *Builder) PolygonPath(top topology.Topology) string {
	switch len(top) {
	case 0:
		return ""
	case 1:
		return geometry.CirclePath(geometry.WindowCenter(top[0].Geometry), b.radius())
	}

	points := geometry.SortPointsForPolygon(top.Centers())
	if b != nil && b.Style == StyleSmooth {
		tension := b.Tension
		if tension <= 0 {
			tension = DefaultTension
		}
		return geometry.SmoothPath(points, tension)
	}
	return geometry.PolygonPath(points)
}

// WindowPath is the local mode path for the window id. A single-window
// topology draws the circle; an id that is not in the topology draws nothing.
func (b *Builder) WindowPath(top topology.Topology, id string) string {
	if len(top) == 1 {
		return geometry.CirclePath(geometry.WindowCenter(top[0].Geometry), b.radius())
	}

	focal, ok := top.Find(id)
	if !ok {
		return ""
	}

	origin := geometry.LocalWindowCenter(focal)
	length := focal.Diagonal()

	var path []byte
	for _, n := range TwoNeighbors(top, id) {
		target := geometry.GlobalToLocal(geometry.WindowCenter(n.Geometry), focal)
		dx := target.X - origin.X
		dy := target.Y - origin.Y
		dist := math.Hypot(dx, dy)

		var end geometry.Point
		if dist < minRayDistance {
			angle := b.random() * 2 * math.Pi
			end = geometry.Point{X: origin.X + math.Cos(angle)*length, Y: origin.Y + math.Sin(angle)*length}
		} else {
			end = geometry.Point{X: origin.X + dx/dist*length, Y: origin.Y + dy/dist*length}
		}

		if len(path) > 0 {
			path = append(path, ' ')
		}
		path = append(path, geometry.RayPath(origin, end)...)
	}
	return string(path)
}

// TwoNeighbors returns the windows before and after id in the cyclic angular
// order of all centers. With two windows the other one is returned once; an
// unknown id yields nil.
func TwoNeighbors(top topology.Topology, id string) topology.Topology {
	if len(top) <= 2 {
		var out topology.Topology
		for _, e := range top {
			if e.ID != id {
				out = append(out, e)
			}
		}
		if len(out) == len(top) {
			return nil
		}
		return out
	}

	order := geometry.SortIndicesForPolygon(top.Centers())
	pos := -1
	for i, idx := range order {
		if top[idx].ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil
	}

	n := len(order)
	prev := order[(pos-1+n)%n]
	next := order[(pos+1)%n]
	return topology.Topology{top[prev], top[next]}
}

// Polygon summarises the global polygon.
type Polygon struct {
	Points []geometry.Point `json:"points"`
	Path   string           `json:"path"`
	Center geometry.Point   `json:"center"`
	Bounds geometry.Bounds  `json:"bounds"`
	Area   float64          `json:"area"`
}

// Polygon returns the sorted centers, the global path, their centroid,
// bounding box and the enclosed area.
func (b *Builder) Polygon(top topology.Topology) Polygon {
	points := geometry.SortPointsForPolygon(top.Centers())
	return Polygon{
		Points: points,
		Path:   b.PolygonPath(top),
		Center: geometry.Centroid(points),
		Bounds: geometry.BoundsOf(points),
		Area:   geometry.PolygonArea(points),
	}
}

// Surrounded reports whether the center of window id lies inside the polygon
// over every other window's center. It needs at least three other windows.
func Surrounded(top topology.Topology, id string) bool {
	g, ok := top.Find(id)
	if !ok || len(top) < 4 {
		return false
	}
	others := make([]geometry.Point, 0, len(top)-1)
	for _, e := range top {
		if e.ID != id {
			others = append(others, geometry.WindowCenter(e.Geometry))
		}
	}
	return geometry.PointInPolygon(geometry.WindowCenter(g), geometry.SortPointsForPolygon(others))
}

// ViewBox frames the focal window's own client area, or the shared screen
// bounds in global mode.
func ViewBox(top topology.Topology, focal string) geometry.ViewBox {
	if len(top) == 0 {
		return DefaultViewBox
	}
	if focal != "" {
		if g, ok := top.Find(focal); ok {
			return geometry.ViewBox{Width: float64(g.WindowWidth), Height: float64(g.WindowHeight)}
		}
	}
	return geometry.ViewBoxOf(top[0].Geometry)
}
