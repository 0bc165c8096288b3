package geometry

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalLocalRoundTrip(t *testing.T) {
	geometries := []WindowGeometry{
		{},
		{ScreenX: 100, ScreenY: 50, ScreenWidth: 1920, ScreenHeight: 1080, WindowWidth: 800, WindowHeight: 600},
		{ScreenX: -1920, ScreenY: -40, ScreenWidth: 5760, ScreenHeight: 1080, WindowWidth: 3000, WindowHeight: 2000},
	}
	points := []Point{{}, {X: 12.5, Y: -3}, {X: 4000, Y: 900}}

	for _, g := range geometries {
		for _, p := range points {
			assert.Equal(t, p, LocalToGlobal(GlobalToLocal(p, g), g))
			assert.Equal(t, p, GlobalToLocal(LocalToGlobal(p, g), g))
		}
	}
}

func TestGlobalToLocal_SubtractsOrigin(t *testing.T) {
	g := WindowGeometry{ScreenX: 100, ScreenY: 200}
	assert.Equal(t, Point{X: 300, Y: 100}, GlobalToLocal(Point{X: 400, Y: 300}, g))
}

func TestWindowCenter(t *testing.T) {
	tests := []struct {
		name string
		g    WindowGeometry
		want Point
	}{
		{"even size", WindowGeometry{ScreenX: 0, ScreenY: 0, WindowWidth: 800, WindowHeight: 600}, Point{X: 400, Y: 300}},
		{"odd size rounds half up", WindowGeometry{ScreenX: 10, ScreenY: 20, WindowWidth: 801, WindowHeight: 601}, Point{X: 411, Y: 321}},
		{"negative origin rounds half up", WindowGeometry{ScreenX: -101, ScreenY: -11, WindowWidth: 1, WindowHeight: 1}, Point{X: -100, Y: -10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WindowCenter(tt.g))
		})
	}
}

func TestWindowCenter_Deterministic(t *testing.T) {
	g := WindowGeometry{ScreenX: 333, ScreenY: 777, WindowWidth: 1025, WindowHeight: 769}
	first := WindowCenter(g)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, WindowCenter(g))
	}
}

func TestLocalWindowCenter(t *testing.T) {
	g := WindowGeometry{ScreenX: 1000, ScreenY: 500, WindowWidth: 800, WindowHeight: 600}
	assert.Equal(t, Point{X: 400, Y: 300}, LocalWindowCenter(g))
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 0.0, Distance(Point{X: 3, Y: 4}, Point{X: 3, Y: 4}))
	assert.Equal(t, 5.0, Distance(Point{}, Point{X: 3, Y: 4}))
	assert.Equal(t, 5.0, Distance(Point{X: 3, Y: 4}, Point{}))
}

func TestCentroid(t *testing.T) {
	assert.Equal(t, Point{}, Centroid(nil))
	assert.Equal(t, Point{X: 800, Y: 500}, Centroid([]Point{{X: 400, Y: 300}, {X: 1200, Y: 300}, {X: 800, Y: 900}}))
}

func TestDiagonal(t *testing.T) {
	assert.Equal(t, 1000.0, WindowGeometry{WindowWidth: 800, WindowHeight: 600}.Diagonal())
}

func TestValidate(t *testing.T) {
	require.NoError(t, WindowGeometry{ScreenX: -5, ScreenY: -5}.Validate())
	require.Error(t, WindowGeometry{WindowWidth: -1}.Validate())
	require.Error(t, WindowGeometry{ScreenHeight: -1}.Validate())
}

func TestViewBoxString(t *testing.T) {
	g := WindowGeometry{ScreenWidth: 5760, ScreenHeight: 1080}
	assert.Equal(t, "0 0 5760 1080", ViewBoxOf(g).String())
	assert.Equal(t, "0 0 12.5 7", ViewBox{Width: 12.5, Height: 7}.String())
}

func TestSortPointsForPolygon_SmallInputsUnchanged(t *testing.T) {
	assert.Empty(t, SortPointsForPolygon(nil))

	one := []Point{{X: 5, Y: 5}}
	assert.Equal(t, one, SortPointsForPolygon(one))

	two := []Point{{X: 10, Y: 0}, {X: 0, Y: 0}}
	assert.Equal(t, two, SortPointsForPolygon(two))
}

func TestSortPointsForPolygon_AngularOrder(t *testing.T) {
	in := []Point{{X: 800, Y: 900}, {X: 1200, Y: 300}, {X: 400, Y: 300}}
	got := SortPointsForPolygon(in)
	assert.Equal(t, []Point{{X: 400, Y: 300}, {X: 1200, Y: 300}, {X: 800, Y: 900}}, got)
}

func TestSortPointsForPolygon_IsPermutation(t *testing.T) {
	in := []Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}, {X: 5, Y: 5}}
	got := SortPointsForPolygon(in)
	require.Len(t, got, len(in))
	assert.ElementsMatch(t, in, got)
}

func TestSortPointsForPolygon_StableWithCoincidentPoints(t *testing.T) {
	in := []Point{
		{X: 100, Y: 100},
		{X: 0, Y: 0},
		{X: 100, Y: 100},
		{X: 50, Y: 200},
		{X: 0, Y: 0},
	}
	first := SortPointsForPolygon(in)
	firstIdx := SortIndicesForPolygon(in)
	for i := 0; i < 20; i++ {
		require.Equal(t, first, SortPointsForPolygon(in))
		require.Equal(t, firstIdx, SortIndicesForPolygon(in))
	}

	// Coincident points keep their relative input order.
	pos := map[int]int{}
	for order, idx := range firstIdx {
		pos[idx] = order
	}
	assert.Less(t, pos[0], pos[2])
	assert.Less(t, pos[1], pos[4])
}

func TestSortPointsForPolygon_DoesNotMutateInput(t *testing.T) {
	in := []Point{{X: 800, Y: 900}, {X: 1200, Y: 300}, {X: 400, Y: 300}}
	orig := append([]Point(nil), in...)
	SortPointsForPolygon(in)
	assert.Equal(t, orig, in)
}

func TestBoundsOf(t *testing.T) {
	assert.Equal(t, Bounds{}, BoundsOf(nil))
	assert.Equal(t, Bounds{MinX: -5, MinY: 0, MaxX: 10, MaxY: 20},
		BoundsOf([]Point{{X: 10, Y: 0}, {X: -5, Y: 20}, {X: 3, Y: 3}}))
}

func TestPolygonArea(t *testing.T) {
	square := []Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	assert.Equal(t, 100.0, PolygonArea(square))
	assert.Equal(t, 0.0, PolygonArea(square[:2]))
}

func TestPointInPolygon(t *testing.T) {
	square := []Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	assert.True(t, PointInPolygon(Point{X: 5, Y: 5}, square))
	assert.False(t, PointInPolygon(Point{X: 15, Y: 5}, square))
	assert.False(t, PointInPolygon(Point{X: 5, Y: 5}, nil))
}

func TestCirclePath(t *testing.T) {
	got := CirclePath(Point{X: 400, Y: 300}, 5)
	assert.Equal(t, "M395,300 A5,5 0 1,1 405,300 A5,5 0 1,1 395,300 Z", got)
	assert.True(t, strings.HasPrefix(got, "M"))
	assert.Equal(t, 2, strings.Count(got, "A"))
}

func TestPolygonPath(t *testing.T) {
	assert.Equal(t, "", PolygonPath(nil))
	assert.Equal(t, "M1,2 L3,4 L5.5,6 Z", PolygonPath([]Point{{X: 1, Y: 2}, {X: 3, Y: 4}, {X: 5.5, Y: 6}}))
}

func TestSmoothPath(t *testing.T) {
	assert.Equal(t, "", SmoothPath([]Point{{X: 1, Y: 1}}, 0.3))
	assert.Equal(t, "M0,0 L10,0", SmoothPath([]Point{{X: 0, Y: 0}, {X: 10, Y: 0}}, 0.3))

	got := SmoothPath([]Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}, 0.5)
	assert.True(t, strings.HasPrefix(got, "M0,0 C"))
	assert.True(t, strings.HasSuffix(got, " Z"))
	assert.Equal(t, 2, strings.Count(got, "C"))
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "400", formatNumber(400))
	assert.Equal(t, "0", formatNumber(math.Copysign(0, -1)))
	assert.Equal(t, "-12.25", formatNumber(-12.25))
	assert.Equal(t, "1000000", formatNumber(1e6))
}
