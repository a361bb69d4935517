package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oskar-77/OskarTrackSystem33/internal/zones"
)

// CreateZone validates z and inserts it. A zero z.ID is assigned by the
// database and written back.
func (db *DB) CreateZone(ctx context.Context, z *zones.Zone) error {
	if err := z.Validate(); err != nil {
		return err
	}
	coords, err := json.Marshal(z.Coordinates())
	if err != nil {
		return err
	}
	now := time.Now().Unix()

	var id interface{}
	if z.ID != 0 {
		id = z.ID
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO zones (id, name, zone_type, description, coordinates, active, created_unix, updated_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, z.Name, z.Type, z.Description, string(coords), z.Active, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert zone: %w", err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	z.ID = int(newID)
	return nil
}

const zoneColumns = `id, name, zone_type, description, coordinates, active`

func scanZone(row interface{ Scan(...interface{}) error }) (zones.Zone, error) {
	var (
		z      zones.Zone
		coords string
	)
	if err := row.Scan(&z.ID, &z.Name, &z.Type, &z.Description, &coords, &z.Active); err != nil {
		return zones.Zone{}, err
	}
	var raw [][]float64
	if err := json.Unmarshal([]byte(coords), &raw); err != nil {
		return zones.Zone{}, fmt.Errorf("zone %d coordinates: %w", z.ID, err)
	}
	poly, err := zones.ParseVertices(raw)
	if err != nil {
		return zones.Zone{}, fmt.Errorf("zone %d: %w", z.ID, err)
	}
	z.Polygon = poly
	return z, nil
}

// ListZones returns zones ordered by id. With activeOnly, inactive zones
// are skipped.
func (db *DB) ListZones(ctx context.Context, activeOnly bool) ([]zones.Zone, error) {
	q := `SELECT ` + zoneColumns + ` FROM zones`
	if activeOnly {
		q += ` WHERE active = 1`
	}
	q += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []zones.Zone{}
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

// GetZone returns the zone with the given id.
func (db *DB) GetZone(ctx context.Context, id int) (zones.Zone, error) {
	row := db.QueryRowContext(ctx, `SELECT `+zoneColumns+` FROM zones WHERE id = ?`, id)
	z, err := scanZone(row)
	if errors.Is(err, sql.ErrNoRows) {
		return zones.Zone{}, fmt.Errorf("zone %d: %w", id, ErrNotFound)
	}
	return z, err
}

// SetZoneActive enables or disables a zone.
func (db *DB) SetZoneActive(ctx context.Context, id int, active bool) error {
	res, err := db.ExecContext(ctx,
		`UPDATE zones SET active = ?, updated_unix = ? WHERE id = ?`,
		active, time.Now().Unix(), id)
	if err != nil {
		return err
	}
	return expectOneRow(res, "zone", id)
}

// DeleteZone removes a zone and its statistics.
func (db *DB) DeleteZone(ctx context.Context, id int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM zones WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := expectOneRow(res, "zone", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM zone_stats WHERE zone_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func expectOneRow(res sql.Result, what string, id interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
	}
	return nil
}
