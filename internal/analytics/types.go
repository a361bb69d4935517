// Package analytics turns the per-frame output of the tracking pipeline
// into visits, zone enter/exit events and dwell statistics.
package analytics

import (
	"context"
	"time"
)

// EventType classifies a tracking event.
type EventType string

const (
	EventDetection EventType = "detection"
	EventZoneEnter EventType = "zone_enter"
	EventZoneExit  EventType = "zone_exit"
)

// Visit is one continuous presence of a track in the scene.
type Visit struct {
	ID           int64           `json:"id"`
	VisitorID    string          `json:"visitor_id"`
	TrackID      int             `json:"track_id"`
	EntryTime    time.Time       `json:"entry_time"`
	ExitTime     *time.Time      `json:"exit_time,omitempty"`
	Duration     float64         `json:"duration"` // seconds, set on exit
	ZonesVisited []int           `json:"zones_visited"`
	DwellPerZone map[int]float64 `json:"dwell_time_per_zone"`
	Path         []PathPoint     `json:"path_data"`
}

// PathPoint is one sampled position of a visit's track.
type PathPoint struct {
	X    int       `json:"x"`
	Y    int       `json:"y"`
	Time time.Time `json:"t"`
}

// Active reports whether the visit has not ended yet.
func (v *Visit) Active() bool {
	return v.ExitTime == nil
}

// Event is a point-in-time observation attached to a visit.
type Event struct {
	ID        int64     `json:"id"`
	VisitID   int64     `json:"visit_id"`
	Type      EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	X         float64   `json:"position_x"`
	Y         float64   `json:"position_y"`
	ZoneID    *int      `json:"zone_id"`
}

// ZoneStat is the accumulated traffic of one zone.
type ZoneStat struct {
	ZoneID           int     `json:"id"`
	Name             string  `json:"name"`
	Type             string  `json:"zone_type"`
	TotalVisitors    int     `json:"total_visitors"`
	AverageDwellTime float64 `json:"average_dwell_time"`
}

// DailyStats summarises the visits that started on one day.
type DailyStats struct {
	Date              string  `json:"date"`
	TotalVisitors     int     `json:"total_visitors"`
	UniqueVisitors    int     `json:"unique_visitors"`
	ReturningVisitors int     `json:"returning_visitors"`
	AverageDuration   float64 `json:"average_duration"`
}

// Customer aggregates every visit recorded under one visitor id.
type Customer struct {
	CustomerID     string    `json:"customer_id"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	TotalVisits    int       `json:"total_visits"`
	TotalTimeSpent float64   `json:"total_time_spent"` // seconds over ended visits
}

// Store persists visits, events and zone statistics.
type Store interface {
	// StartVisit inserts v, sets v.ID and counts the visit against the
	// customer named by v.VisitorID.
	StartVisit(ctx context.Context, v *Visit) error
	// EndVisit writes the exit time, duration and zone breakdown of v.
	EndVisit(ctx context.Context, v *Visit) error
	// RecordEvent inserts e and sets e.ID.
	RecordEvent(ctx context.Context, e *Event) error
	// AddZoneVisit folds one completed zone stay into the zone's statistics.
	AddZoneVisit(ctx context.Context, zoneID int, dwellSeconds float64) error
}
