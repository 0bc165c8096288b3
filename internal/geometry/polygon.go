package geometry

import (
	"math"
	"sort"
)

// angleEpsilon is the tolerance under which two polygon angles count as equal.
const angleEpsilon = 1e-10

// SortIndicesForPolygon returns the indices of points in polygon order:
// ascending angle around the centroid, ties broken by input index. Fewer than
// three points keep their input order.
func SortIndicesForPolygon(points []Point) []int {
	indices := make([]int, len(points))
	for i := range indices {
		indices[i] = i
	}
	if len(points) <= 2 {
		return indices
	}

	center := Centroid(points)
	angles := make([]float64, len(points))
	for i, p := range points {
		angles[i] = math.Atan2(p.Y-center.Y, p.X-center.X)
	}

	sort.SliceStable(indices, func(a, b int) bool {
		ia, ib := indices[a], indices[b]
		if math.Abs(angles[ia]-angles[ib]) < angleEpsilon {
			return ia < ib
		}
		return angles[ia] < angles[ib]
	})
	return indices
}

// SortPointsForPolygon orders points clockwise (in screen space) around their
// centroid. The result is stable across calls, including for coincident
// points. Fewer than three points are returned unchanged.
func SortPointsForPolygon(points []Point) []Point {
	if len(points) <= 2 {
		return points
	}

	sorted := make([]Point, 0, len(points))
	for _, i := range SortIndicesForPolygon(points) {
		sorted = append(sorted, points[i])
	}
	return sorted
}

// BoundsOf returns the bounding box of points, zero for no points.
func BoundsOf(points []Point) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}

	b := Bounds{MinX: points[0].X, MinY: points[0].Y, MaxX: points[0].X, MaxY: points[0].Y}
	for _, p := range points[1:] {
		b.MinX = math.Min(b.MinX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b
}

// PolygonArea is the shoelace area of a closed polygon, 0 below three points.
func PolygonArea(points []Point) float64 {
	if len(points) < 3 {
		return 0
	}

	var area float64
	for i := range points {
		j := (i + 1) % len(points)
		area += points[i].X * points[j].Y
		area -= points[j].X * points[i].Y
	}
	return math.Abs(area) / 2
}

// PointInPolygon uses the even-odd rule.
func PointInPolygon(p Point, polygon []Point) bool {
	inside := false
	for i, j := 0, len(polygon)-1; i < len(polygon); j, i = i, i+1 {
		pi, pj := polygon[i], polygon[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) &&
			p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
	}
	return inside
}
