package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContains_Square(t *testing.T) {
	t.Parallel()

	square := Rect(0, 0, 10, 10)

	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"centre", Pt(5, 5), true},
		{"near corner inside", Pt(0.5, 9.5), true},
		{"right of square", Pt(15, 5), false},
		{"left of square", Pt(-1, 5), false},
		{"above square", Pt(5, -3), false},
		{"below square", Pt(5, 11), false},
		// Boundary policy of the crossing-number rule.
		{"on left edge excluded", Pt(0, 5), false},
		{"on right edge included", Pt(10, 5), true},
		{"on min-y edge excluded", Pt(5, 0), false},
		{"on max-y edge included", Pt(5, 10), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Contains(square, tt.p))
		})
	}
}

func TestContains_SlantedEdgeBoundary(t *testing.T) {
	t.Parallel()

	// Right triangle whose hypotenuse runs from (10,0) to (0,10).
	tri := Polygon{{0, 0}, {10, 0}, {0, 10}}

	// (5,5) sits exactly on the hypotenuse: xinters == x, so the toggle fires.
	assert.True(t, Contains(tri, Pt(5, 5)), "point on non-horizontal edge should count as inside")
	assert.True(t, Contains(tri, Pt(2, 2)))
	assert.False(t, Contains(tri, Pt(5.01, 5)))
	assert.False(t, Contains(tri, Pt(8, 8)))
}

func TestContains_Concave(t *testing.T) {
	t.Parallel()

	// U shape opening upward (towards smaller y).
	u := Polygon{{0, 0}, {3, 0}, {3, 7}, {7, 7}, {7, 0}, {10, 0}, {10, 10}, {0, 10}}

	assert.True(t, Contains(u, Pt(1, 5)), "left arm")
	assert.True(t, Contains(u, Pt(9, 5)), "right arm")
	assert.True(t, Contains(u, Pt(5, 9)), "base")
	assert.False(t, Contains(u, Pt(5, 3)), "notch")
}

func TestContains_WindingIndependent(t *testing.T) {
	t.Parallel()

	cw := Polygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	ccw := Polygon{{0, 10}, {10, 10}, {10, 0}, {0, 0}}

	for _, p := range []Point{Pt(5, 5), Pt(11, 5), Pt(3, 9)} {
		assert.Equal(t, Contains(cw, p), Contains(ccw, p), "point %v", p)
	}
}

func TestContains_Deterministic(t *testing.T) {
	t.Parallel()

	poly := Polygon{{100, 100}, {300, 120}, {280, 400}, {90, 380}}
	p := Pt(200, 250)
	first := Contains(poly, p)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Contains(poly, p))
	}
	assert.True(t, poly.Contains(p))
}

func TestContains_Empty(t *testing.T) {
	t.Parallel()
	assert.False(t, Contains(nil, Pt(0, 0)))
}

func TestPolygonBounds(t *testing.T) {
	t.Parallel()

	min, max := Polygon{{4, 9}, {-2, 3}, {7, 1}}.Bounds()
	assert.Equal(t, Pt(-2, 1), min)
	assert.Equal(t, Pt(7, 9), max)

	min, max = Polygon{}.Bounds()
	assert.Equal(t, Point{}, min)
	assert.Equal(t, Point{}, max)
}

func TestPointDistance(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 5.0, Pt(0, 0).Distance(Pt(3, 4)), 1e-9)
	assert.InDelta(t, 60.0, Pt(0, 0).Distance(Pt(60, 0)), 1e-9)
}
