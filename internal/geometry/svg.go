package geometry

import (
	"strconv"
	"strings"
)

// CirclePath draws a closed circle as two half arcs.
func CirclePath(center Point, radius float64) string {
	x, y, r := center.X, center.Y, radius
	var b strings.Builder
	b.WriteString("M")
	writePoint(&b, x-r, y)
	b.WriteString(" A")
	writePoint(&b, r, r)
	b.WriteString(" 0 1,1 ")
	writePoint(&b, x+r, y)
	b.WriteString(" A")
	writePoint(&b, r, r)
	b.WriteString(" 0 1,1 ")
	writePoint(&b, x-r, y)
	b.WriteString(" Z")
	return b.String()
}

// PolygonPath draws a closed polygon through points in the given order.
func PolygonPath(points []Point) string {
	if len(points) == 0 {
		return ""
	}

	var b strings.Builder
	for i, p := range points {
		if i == 0 {
			b.WriteString("M")
		} else {
			b.WriteString(" L")
		}
		writePoint(&b, p.X, p.Y)
	}
	b.WriteString(" Z")
	return b.String()
}

// RayPath draws an open segment from one point to another.
func RayPath(from, to Point) string {
	var b strings.Builder
	b.WriteString("M")
	writePoint(&b, from.X, from.Y)
	b.WriteString(" L")
	writePoint(&b, to.X, to.Y)
	return b.String()
}

// SmoothPath draws a closed cubic Bézier curve through points. Tension scales
// the control point offsets; 0.3 gives gentle curves.
func SmoothPath(points []Point, tension float64) string {
	switch len(points) {
	case 0, 1:
		return ""
	case 2:
		return RayPath(points[0], points[1])
	}

	var b strings.Builder
	b.WriteString("M")
	writePoint(&b, points[0].X, points[0].Y)

	for i := 1; i < len(points); i++ {
		prev := points[i-1]
		curr := points[i]
		next := points[0]
		if i+1 < len(points) {
			next = points[i+1]
		}

		cp1 := Point{X: prev.X + (curr.X-prev.X)*tension, Y: prev.Y + (curr.Y-prev.Y)*tension}
		cp2 := Point{X: curr.X - (next.X-prev.X)*tension, Y: curr.Y - (next.Y-prev.Y)*tension}

		b.WriteString(" C")
		writePoint(&b, cp1.X, cp1.Y)
		b.WriteString(" ")
		writePoint(&b, cp2.X, cp2.Y)
		b.WriteString(" ")
		writePoint(&b, curr.X, curr.Y)
	}
	b.WriteString(" Z")
	return b.String()
}

func writePoint(b *strings.Builder, x, y float64) {
	b.WriteString(formatNumber(x))
	b.WriteByte(',')
	b.WriteString(formatNumber(y))
}

// formatNumber prints the shortest decimal that round-trips, without an
// exponent for the magnitudes screen coordinates reach.
func formatNumber(v float64) string {
	if v == 0 {
		// avoid "-0"
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
