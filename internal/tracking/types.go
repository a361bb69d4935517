package tracking

import (
	"errors"
	"fmt"
	"math"

	"github.com/oskar-77/OskarTrackSystem33/internal/geometry"
)

// ErrInvalidDetection is returned when a bounding box has a non-positive
// width or height.
var ErrInvalidDetection = errors.New("invalid detection")

// BoundingBox is an axis-aligned detection in image pixel coordinates.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether the box has a positive width and height.
func (b BoundingBox) Valid() bool {
	return b.Width > 0 && b.Height > 0
}

// Centroid returns the centre of the box, truncated toward zero.
func (b BoundingBox) Centroid() Centroid {
	return Centroid{
		X: int(float64(b.X) + float64(b.Width)/2.0),
		Y: int(float64(b.Y) + float64(b.Height)/2.0),
	}
}

// Centroid is the integer pixel centre of a bounding box, used as the
// position proxy for tracking and zone resolution.
type Centroid struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Distance returns the Euclidean distance between two centroids.
func (c Centroid) Distance(other Centroid) float64 {
	return math.Hypot(float64(c.X-other.X), float64(c.Y-other.Y))
}

// Point converts the centroid to a geometry point.
func (c Centroid) Point() geometry.Point {
	return geometry.Point{X: float64(c.X), Y: float64(c.Y)}
}

// Track is a persistent identity for one physical object.
type Track struct {
	ID          int      `json:"id"`
	Centroid    Centroid `json:"centroid"`
	Disappeared int      `json:"disappeared"` // consecutive updates without a match
}

// ValidateDetections returns an error wrapping ErrInvalidDetection for the
// first box with a non-positive dimension.
func ValidateDetections(dets []BoundingBox) error {
	for i, b := range dets {
		if !b.Valid() {
			return fmt.Errorf("detection %d (%dx%d at %d,%d): %w", i, b.Width, b.Height, b.X, b.Y, ErrInvalidDetection)
		}
	}
	return nil
}

// FilterValid returns the valid boxes of dets in their original order.
// Detector adapters use it to drop degenerate boxes before tracking.
func FilterValid(dets []BoundingBox) []BoundingBox {
	out := make([]BoundingBox, 0, len(dets))
	for _, b := range dets {
		if b.Valid() {
			out = append(out, b)
		}
	}
	return out
}
