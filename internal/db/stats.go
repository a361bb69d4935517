package db

import (
	"context"
	"math"
	"time"

	"github.com/oskar-77/OskarTrackSystem33/internal/analytics"
)

// ZoneStats returns the accumulated traffic of every active zone, including
// zones nobody has visited yet.
func (db *DB) ZoneStats(ctx context.Context) ([]analytics.ZoneStat, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT z.id, z.name, z.zone_type,
		       COALESCE(s.total_visitors, 0), COALESCE(s.average_dwell_time, 0)
		  FROM zones z
		  LEFT JOIN zone_stats s ON s.zone_id = z.id
		 WHERE z.active = 1
		 ORDER BY z.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []analytics.ZoneStat{}
	for rows.Next() {
		var s analytics.ZoneStat
		if err := rows.Scan(&s.ZoneID, &s.Name, &s.Type, &s.TotalVisitors, &s.AverageDwellTime); err != nil {
			return nil, err
		}
		s.AverageDwellTime = math.Round(s.AverageDwellTime*100) / 100
		out = append(out, s)
	}
	return out, rows.Err()
}

// DailyStats summarises the visits that started on the day containing day.
func (db *DB) DailyStats(ctx context.Context, day time.Time) (analytics.DailyStats, error) {
	start, end := analytics.DayBounds(day)
	visits, err := db.VisitsBetween(ctx, start, end)
	if err != nil {
		return analytics.DailyStats{}, err
	}
	return analytics.ComputeDailyStats(day, visits), nil
}

// HourlyDistribution counts the visits of the day containing day by entry
// hour in day's location.
func (db *DB) HourlyDistribution(ctx context.Context, day time.Time) (analytics.Hourly, error) {
	start, end := analytics.DayBounds(day)
	visits, err := db.VisitsBetween(ctx, start, end)
	if err != nil {
		return analytics.Hourly{}, err
	}
	return analytics.HourlyDistribution(visits, day.Location()), nil
}

// Summary returns DailyStats for the days ending with the day containing
// now, most recent first.
func (db *DB) Summary(ctx context.Context, now time.Time, days int) ([]analytics.DailyStats, error) {
	out := make([]analytics.DailyStats, 0, days)
	for i := 0; i < days; i++ {
		s, err := db.DailyStats(ctx, now.AddDate(0, 0, -i))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
