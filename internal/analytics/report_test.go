package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0s"},
		{45.9, "45s"},
		{60, "1m 0s"},
		{200, "3m 20s"},
		{3599, "59m 59s"},
		{3600, "1h 0m"},
		{7500, "2h 5m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.seconds), "FormatDuration(%v)", tt.seconds)
	}
}

func TestTimeOfDay(t *testing.T) {
	t.Parallel()

	tests := map[int]string{
		0:  "night",
		5:  "night",
		6:  "morning",
		11: "morning",
		12: "afternoon",
		16: "afternoon",
		17: "evening",
		20: "evening",
		21: "night",
		23: "night",
	}
	for hour, want := range tests {
		assert.Equal(t, want, TimeOfDay(hour), "TimeOfDay(%d)", hour)
	}
}

func TestHourlyAndPeakHours(t *testing.T) {
	t.Parallel()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	at := func(h int) Visit { return Visit{EntryTime: day.Add(time.Duration(h) * time.Hour)} }

	visits := []Visit{at(9), at(14), at(14), at(14), at(18), at(18), at(9)}
	h := HourlyDistribution(visits, time.UTC)

	assert.Equal(t, 2, h[9])
	assert.Equal(t, 3, h[14])
	assert.Equal(t, 2, h[18])
	assert.Equal(t, []int{14, 9, 18}, PeakHours(h, 3))
	assert.Equal(t, []int{14}, PeakHours(h, 1))
	assert.Len(t, PeakHours(h, 100), 24)
	assert.Empty(t, PeakHours(h, -1))
}

func TestPeakHours_AllZero(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []int{0, 1, 2}, PeakHours(Hourly{}, 3))
}

func TestComputeDailyStats(t *testing.T) {
	t.Parallel()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	visits := []Visit{
		{VisitorID: "CUST_A", EntryTime: day.Add(1 * time.Hour), Duration: 10},
		{VisitorID: "CUST_B", EntryTime: day.Add(2 * time.Hour), Duration: 25},
		{VisitorID: "CUST_A", EntryTime: day.Add(3 * time.Hour)},
		{VisitorID: "CUST_C", EntryTime: day.Add(-time.Hour), Duration: 1000},
		{VisitorID: "CUST_D", EntryTime: day.Add(24 * time.Hour), Duration: 1000},
	}

	got := ComputeDailyStats(day.Add(12*time.Hour), visits)
	assert.Equal(t, DailyStats{
		Date:              "2026-03-01",
		TotalVisitors:     3,
		UniqueVisitors:    2,
		ReturningVisitors: 1,
		AverageDuration:   17.5,
	}, got)
}

func TestNewVisitorID(t *testing.T) {
	t.Parallel()
	a, b := NewVisitorID(), NewVisitorID()
	assert.Regexp(t, `^CUST_[0-9A-F]{12}$`, a)
	assert.NotEqual(t, a, b)
}
