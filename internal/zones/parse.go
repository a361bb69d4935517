package zones

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oskar-77/OskarTrackSystem33/internal/geometry"
)

// zoneJSON is the wire form of a zone: coordinates are [x, y] pairs.
type zoneJSON struct {
	ID          int         `json:"id"`
	Name        string      `json:"name"`
	Type        string      `json:"type,omitempty"`
	Description string      `json:"description,omitempty"`
	Coordinates [][]float64 `json:"coordinates"`
	Active      *bool       `json:"active,omitempty"`
}

// ParseVertices converts [[x, y], ...] pairs to a polygon. A vertex that is
// not exactly two numbers is an error.
func ParseVertices(coords [][]float64) (geometry.Polygon, error) {
	poly := make(geometry.Polygon, 0, len(coords))
	for i, c := range coords {
		if len(c) != 2 {
			return nil, fmt.Errorf("vertex %d has %d components: %w", i, len(c), ErrInvalidZoneDefinition)
		}
		poly = append(poly, geometry.Pt(c[0], c[1]))
	}
	return poly, nil
}

// Coordinates returns the polygon as [x, y] pairs.
func (z Zone) Coordinates() [][]float64 {
	out := make([][]float64, len(z.Polygon))
	for i, v := range z.Polygon {
		out[i] = []float64{v.X, v.Y}
	}
	return out
}

// MarshalJSON encodes the polygon as a coordinates array.
func (z Zone) MarshalJSON() ([]byte, error) {
	active := z.Active
	return json.Marshal(zoneJSON{
		ID:          z.ID,
		Name:        z.Name,
		Type:        z.Type,
		Description: z.Description,
		Coordinates: z.Coordinates(),
		Active:      &active,
	})
}

// UnmarshalJSON decodes a zone from its wire form. A missing active flag
// means active.
func (z *Zone) UnmarshalJSON(data []byte) error {
	var raw zoneJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidZoneDefinition, err)
	}
	poly, err := ParseVertices(raw.Coordinates)
	if err != nil {
		return fmt.Errorf("zone %d: %w", raw.ID, err)
	}
	*z = Zone{
		ID:          raw.ID,
		Name:        raw.Name,
		Type:        raw.Type,
		Description: raw.Description,
		Polygon:     poly,
		Active:      raw.Active == nil || *raw.Active,
	}
	return nil
}

// ParseZones decodes a JSON array of zones. It does not validate polygons;
// Index.Load does.
func ParseZones(data []byte) ([]Zone, error) {
	var zs []Zone
	if err := json.Unmarshal(data, &zs); err != nil {
		if errors.Is(err, ErrInvalidZoneDefinition) {
			return nil, fmt.Errorf("parse zones: %w", err)
		}
		return nil, fmt.Errorf("parse zones: %w: %v", ErrInvalidZoneDefinition, err)
	}
	return zs, nil
}
