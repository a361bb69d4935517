// Package zones holds the named polygonal regions that tracked positions are
// attributed to, and an index that resolves a point to its zone.
package zones

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/oskar-77/OskarTrackSystem33/internal/geometry"
)

// ErrInvalidZoneDefinition is returned when a zone cannot be loaded.
var ErrInvalidZoneDefinition = errors.New("invalid zone definition")

// Zone types recognised by the analytics layer. Any string is accepted.
const (
	TypeEntrance    = "entrance"
	TypeExit        = "exit"
	TypeProductArea = "product_area"
	TypeCheckout    = "checkout"
)

// Zone is a named region of the camera image.
type Zone struct {
	ID          int              `json:"id"`
	Name        string           `json:"name"`
	Type        string           `json:"type,omitempty"`
	Description string           `json:"description,omitempty"`
	Polygon     geometry.Polygon `json:"-"`
	Active      bool             `json:"active"`
}

// Validate checks that the zone can be used for point resolution.
func (z Zone) Validate() error {
	if len(z.Polygon) < 3 {
		return fmt.Errorf("zone %d: polygon has %d vertices, need at least 3: %w", z.ID, len(z.Polygon), ErrInvalidZoneDefinition)
	}
	for i, v := range z.Polygon {
		if !finite(v.X) || !finite(v.Y) {
			return fmt.Errorf("zone %d: vertex %d is not finite: %w", z.ID, i, ErrInvalidZoneDefinition)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Index resolves points to zones against an immutable snapshot. Resolve may
// be called concurrently with Load; each call sees either the old or the
// new snapshot in full.
type Index struct {
	snap atomic.Pointer[[]Zone]
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	idx := &Index{}
	empty := []Zone{}
	idx.snap.Store(&empty)
	return idx
}

// Load validates zs and replaces the snapshot. On error the previous
// snapshot stays in effect.
func (idx *Index) Load(zs []Zone) error {
	seen := make(map[int]struct{}, len(zs))
	next := make([]Zone, len(zs))
	for i, z := range zs {
		if err := z.Validate(); err != nil {
			return err
		}
		if _, dup := seen[z.ID]; dup {
			return fmt.Errorf("zone %d: duplicate id: %w", z.ID, ErrInvalidZoneDefinition)
		}
		seen[z.ID] = struct{}{}
		z.Polygon = append(geometry.Polygon(nil), z.Polygon...)
		next[i] = z
	}
	idx.snap.Store(&next)
	return nil
}

// Resolve returns the id of the first zone, in load order, whose polygon
// contains p.
func (idx *Index) Resolve(p geometry.Point) (int, bool) {
	for _, z := range *idx.snap.Load() {
		if z.Polygon.Contains(p) {
			return z.ID, true
		}
	}
	return 0, false
}

// Zones returns a copy of the current snapshot in load order.
func (idx *Index) Zones() []Zone {
	cur := *idx.snap.Load()
	out := make([]Zone, len(cur))
	for i, z := range cur {
		z.Polygon = append(geometry.Polygon(nil), z.Polygon...)
		out[i] = z
	}
	return out
}

// Len returns the number of zones in the current snapshot.
func (idx *Index) Len() int {
	return len(*idx.snap.Load())
}
