package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewVisitorID returns a fresh visitor identifier of the form CUST_XXXXXXXXXXXX.
func NewVisitorID() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "CUST_" + strings.ToUpper(hex[:12])
}

// FormatDuration renders seconds as "45s", "3m 20s" or "2h 5m".
func FormatDuration(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", int(seconds))
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", int(seconds/60), int(math.Mod(seconds, 60)))
	default:
		return fmt.Sprintf("%dh %dm", int(seconds/3600), int(math.Mod(seconds, 3600)/60))
	}
}

// TimeOfDay buckets an hour of the day into morning, afternoon, evening or
// night.
func TimeOfDay(hour int) string {
	switch {
	case hour >= 6 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 21:
		return "evening"
	default:
		return "night"
	}
}

// Hourly is a visit count per hour of day.
type Hourly [24]int

// HourlyDistribution counts visits by the hour of their entry time in loc.
func HourlyDistribution(visits []Visit, loc *time.Location) Hourly {
	var h Hourly
	for _, v := range visits {
		h[v.EntryTime.In(loc).Hour()]++
	}
	return h
}

// PeakHours returns the n busiest hours, busiest first. Ties go to the
// earlier hour.
func PeakHours(h Hourly, n int) []int {
	hours := make([]int, 24)
	for i := range hours {
		hours[i] = i
	}
	sort.SliceStable(hours, func(a, b int) bool {
		return h[hours[a]] > h[hours[b]]
	})
	if n > len(hours) {
		n = len(hours)
	}
	if n < 0 {
		n = 0
	}
	return hours[:n]
}

// DayBounds returns the start of day containing t and the start of the
// following day, in t's location.
func DayBounds(t time.Time) (start, end time.Time) {
	y, m, d := t.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// ComputeDailyStats summarises visits for the day containing day. Visits
// outside that day are ignored.
func ComputeDailyStats(day time.Time, visits []Visit) DailyStats {
	start, end := DayBounds(day)
	stats := DailyStats{Date: start.Format("2006-01-02")}

	visitors := map[string]struct{}{}
	var total float64
	var ended int
	for _, v := range visits {
		if v.EntryTime.Before(start) || !v.EntryTime.Before(end) {
			continue
		}
		stats.TotalVisitors++
		visitors[v.VisitorID] = struct{}{}
		if v.Duration > 0 {
			total += v.Duration
			ended++
		}
	}
	stats.UniqueVisitors = len(visitors)
	stats.ReturningVisitors = stats.TotalVisitors - stats.UniqueVisitors
	if ended > 0 {
		stats.AverageDuration = math.Round(total/float64(ended)*100) / 100
	}
	return stats
}
