package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oskar-77/OskarTrackSystem33/internal/analytics"
)

var _ analytics.Store = (*DB)(nil)

// StartVisit inserts an open visit, sets v.ID and counts the visit against
// the customer v.VisitorID, creating the customer on first sight.
func (db *DB) StartVisit(ctx context.Context, v *analytics.Visit) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	entry := v.EntryTime.UnixNano()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO visits (visitor_id, track_id, entry_unix_nanos) VALUES (?, ?, ?)`,
		v.VisitorID, v.TrackID, entry)
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO customers (customer_id, first_seen_unix_nanos, last_seen_unix_nanos, total_visits)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (customer_id) DO UPDATE SET
			total_visits = total_visits + 1,
			first_seen_unix_nanos = MIN(first_seen_unix_nanos, excluded.first_seen_unix_nanos),
			last_seen_unix_nanos = MAX(last_seen_unix_nanos, excluded.last_seen_unix_nanos)`,
		v.VisitorID, entry, entry); err != nil {
		return fmt.Errorf("update customer %s: %w", v.VisitorID, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	v.ID = id
	return nil
}

// EndVisit stores the exit time, duration, zone breakdown and path of v,
// and adds the visit's duration to its customer.
func (db *DB) EndVisit(ctx context.Context, v *analytics.Visit) error {
	if v.ExitTime == nil {
		return fmt.Errorf("visit %d has no exit time", v.ID)
	}
	zonesJSON, err := json.Marshal(nonNil(v.ZonesVisited))
	if err != nil {
		return err
	}
	dwell := v.DwellPerZone
	if dwell == nil {
		dwell = map[int]float64{}
	}
	dwellJSON, err := json.Marshal(dwell)
	if err != nil {
		return err
	}
	pathJSON, err := json.Marshal(nonNil(v.Path))
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	exit := v.ExitTime.UnixNano()
	res, err := tx.ExecContext(ctx, `
		UPDATE visits
		   SET exit_unix_nanos = ?, duration = ?, zones_visited = ?, dwell_time_per_zone = ?, path_data = ?
		 WHERE id = ?`,
		exit, v.Duration, string(zonesJSON), string(dwellJSON), string(pathJSON), v.ID)
	if err != nil {
		return fmt.Errorf("end visit: %w", err)
	}
	if err := expectOneRow(res, "visit", v.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE customers
		   SET last_seen_unix_nanos = MAX(last_seen_unix_nanos, ?),
		       total_time_spent = total_time_spent + ?
		 WHERE customer_id = (SELECT visitor_id FROM visits WHERE id = ?)`,
		exit, v.Duration, v.ID); err != nil {
		return fmt.Errorf("update customer of visit %d: %w", v.ID, err)
	}
	return tx.Commit()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// CloseOrphanedVisits ends the visits a previous process left open. Each
// one ends at its last recorded event, or at its entry when it has none.
// It returns the number of visits closed.
func (db *DB) CloseOrphanedVisits(ctx context.Context) (int, error) {
	open, err := db.ActiveVisits(ctx)
	if err != nil {
		return 0, err
	}
	for i := range open {
		v := &open[i]
		var last sql.NullInt64
		if err := db.QueryRowContext(ctx,
			`SELECT MAX(ts_unix_nanos) FROM tracking_events WHERE visit_id = ?`, v.ID).Scan(&last); err != nil {
			return i, fmt.Errorf("last event of visit %d: %w", v.ID, err)
		}
		exit := v.EntryTime
		if last.Valid && last.Int64 > exit.UnixNano() {
			exit = time.Unix(0, last.Int64).UTC()
		}
		v.ExitTime = &exit
		v.Duration = exit.Sub(v.EntryTime).Seconds()
		if err := db.EndVisit(ctx, v); err != nil {
			return i, err
		}
	}
	return len(open), nil
}

// RecordEvent inserts e and sets e.ID.
func (db *DB) RecordEvent(ctx context.Context, e *analytics.Event) error {
	var zone sql.NullInt64
	if e.ZoneID != nil {
		zone = sql.NullInt64{Int64: int64(*e.ZoneID), Valid: true}
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO tracking_events (visit_id, event_type, ts_unix_nanos, position_x, position_y, zone_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.VisitID, string(e.Type), e.Timestamp.UnixNano(), e.X, e.Y, zone)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// AddZoneVisit counts one more visitor for the zone and folds dwellSeconds
// into its running average.
func (db *DB) AddZoneVisit(ctx context.Context, zoneID int, dwellSeconds float64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO zone_stats (zone_id, total_visitors, average_dwell_time, last_visit_unix)
		VALUES (?, 1, ?, ?)
		ON CONFLICT (zone_id) DO UPDATE SET
			average_dwell_time = (average_dwell_time * total_visitors + excluded.average_dwell_time) / (total_visitors + 1),
			total_visitors = total_visitors + 1,
			last_visit_unix = excluded.last_visit_unix`,
		zoneID, dwellSeconds, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("update zone stats: %w", err)
	}
	return nil
}

const visitColumns = `id, visitor_id, track_id, entry_unix_nanos, exit_unix_nanos, duration, zones_visited, dwell_time_per_zone, path_data`

func scanVisit(row interface{ Scan(...interface{}) error }) (analytics.Visit, error) {
	var (
		v         analytics.Visit
		entry     int64
		exit      sql.NullInt64
		zonesJSON string
		dwellJSON string
		pathJSON  string
	)
	if err := row.Scan(&v.ID, &v.VisitorID, &v.TrackID, &entry, &exit, &v.Duration, &zonesJSON, &dwellJSON, &pathJSON); err != nil {
		return analytics.Visit{}, err
	}
	v.EntryTime = time.Unix(0, entry).UTC()
	if exit.Valid {
		t := time.Unix(0, exit.Int64).UTC()
		v.ExitTime = &t
	}
	if err := json.Unmarshal([]byte(zonesJSON), &v.ZonesVisited); err != nil {
		return analytics.Visit{}, fmt.Errorf("visit %d zones: %w", v.ID, err)
	}
	if err := json.Unmarshal([]byte(dwellJSON), &v.DwellPerZone); err != nil {
		return analytics.Visit{}, fmt.Errorf("visit %d dwell: %w", v.ID, err)
	}
	if err := json.Unmarshal([]byte(pathJSON), &v.Path); err != nil {
		return analytics.Visit{}, fmt.Errorf("visit %d path: %w", v.ID, err)
	}
	return v, nil
}

func (db *DB) queryVisits(ctx context.Context, q string, args ...interface{}) ([]analytics.Visit, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []analytics.Visit{}
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// VisitsBetween returns visits whose entry time is in [start, end), oldest
// first.
func (db *DB) VisitsBetween(ctx context.Context, start, end time.Time) ([]analytics.Visit, error) {
	return db.queryVisits(ctx,
		`SELECT `+visitColumns+` FROM visits WHERE entry_unix_nanos >= ? AND entry_unix_nanos < ? ORDER BY entry_unix_nanos, id`,
		start.UnixNano(), end.UnixNano())
}

// VisitsForCustomer returns the visits recorded under customerID, oldest
// first.
func (db *DB) VisitsForCustomer(ctx context.Context, customerID string) ([]analytics.Visit, error) {
	return db.queryVisits(ctx,
		`SELECT `+visitColumns+` FROM visits WHERE visitor_id = ? ORDER BY entry_unix_nanos, id`, customerID)
}

// ActiveVisits returns visits that have not ended.
func (db *DB) ActiveVisits(ctx context.Context) ([]analytics.Visit, error) {
	return db.queryVisits(ctx,
		`SELECT `+visitColumns+` FROM visits WHERE exit_unix_nanos IS NULL ORDER BY id`)
}

// EventsForVisit returns the events of one visit in insertion order.
func (db *DB) EventsForVisit(ctx context.Context, visitID int64) ([]analytics.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, visit_id, event_type, ts_unix_nanos, position_x, position_y, zone_id
		  FROM tracking_events WHERE visit_id = ? ORDER BY id`, visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []analytics.Event{}
	for rows.Next() {
		var (
			e    analytics.Event
			typ  string
			ts   int64
			x, y sql.NullFloat64
			zone sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.VisitID, &typ, &ts, &x, &y, &zone); err != nil {
			return nil, err
		}
		e.Type = analytics.EventType(typ)
		e.Timestamp = time.Unix(0, ts).UTC()
		e.X, e.Y = x.Float64, y.Float64
		if zone.Valid {
			z := int(zone.Int64)
			e.ZoneID = &z
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
