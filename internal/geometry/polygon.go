// Package geometry holds the planar primitives used to attribute tracked
// positions to zones. Coordinates are image pixels with y growing downward.
package geometry

import "math"

// Point is a position in image pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Distance returns the Euclidean distance between two points.
func (p Point) Distance(other Point) float64 {
	return math.Hypot(p.X-other.X, p.Y-other.Y)
}

// Polygon is an ordered ring of vertices. The closing edge from the last
// vertex back to the first is implicit.
type Polygon []Point

// Contains reports whether p lies inside poly using the crossing-number
// (even-odd) rule with a horizontal ray cast towards +x.
//
// For each edge (p1, p2) the ray toggles the result when
// min(p1.Y, p2.Y) < p.Y <= max(p1.Y, p2.Y) and p.X <= max(p1.X, p2.X), and
// either the edge is vertical or p.X is at or left of the edge's crossing
// x. Horizontal edges never toggle. The net effect on an axis-aligned
// rectangle is that the left and bottom-most-y edges are exclusive while the
// right and largest-y edges are inclusive.
//
// Contains does not check the vertex count; callers pass rings of at least
// three vertices. An empty polygon contains nothing.
func Contains(poly Polygon, p Point) bool {
	n := len(poly)
	if n == 0 {
		return false
	}

	inside := false
	p1 := poly[0]
	for i := 1; i <= n; i++ {
		p2 := poly[i%n]
		if p.Y > math.Min(p1.Y, p2.Y) && p.Y <= math.Max(p1.Y, p2.Y) && p.X <= math.Max(p1.X, p2.X) {
			// p1.Y != p2.Y here: the strict lower bound rules out horizontal edges.
			if p1.X == p2.X {
				inside = !inside
			} else {
				xinters := (p.Y-p1.Y)*(p2.X-p1.X)/(p2.Y-p1.Y) + p1.X
				if p.X <= xinters {
					inside = !inside
				}
			}
		}
		p1 = p2
	}
	return inside
}

// Contains is the method form of the package-level Contains.
func (poly Polygon) Contains(p Point) bool {
	return Contains(poly, p)
}

// Bounds returns the axis-aligned bounding rectangle of the polygon as its
// minimum and maximum corners. Both are the zero Point for an empty polygon.
func (poly Polygon) Bounds() (min, max Point) {
	if len(poly) == 0 {
		return Point{}, Point{}
	}
	min, max = poly[0], poly[0]
	for _, v := range poly[1:] {
		min.X = math.Min(min.X, v.X)
		min.Y = math.Min(min.Y, v.Y)
		max.X = math.Max(max.X, v.X)
		max.Y = math.Max(max.Y, v.Y)
	}
	return min, max
}

// Rect returns the four-vertex polygon of the axis-aligned rectangle with
// the given corners, wound clockwise in image space.
func Rect(x0, y0, x1, y1 float64) Polygon {
	return Polygon{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}
