package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/oskar-77/OskarTrackSystem33/internal/analytics"
	"github.com/oskar-77/OskarTrackSystem33/internal/httputil"
)

const (
	defaultSummaryDays = 7
	maxSummaryDays     = 366
	peakHourCount      = 3
)

// day parses ?date=YYYY-MM-DD in the server location, defaulting to today.
func (s *Server) day(r *http.Request) (time.Time, error) {
	q := r.URL.Query().Get("date")
	if q == "" {
		return s.clock.Now().In(s.loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02", q, s.loc)
	if err != nil {
		return time.Time{}, httputil.WithStatus(http.StatusBadRequest, fmt.Errorf("invalid date %q, want YYYY-MM-DD", q))
	}
	return t, nil
}

func (s *Server) zoneAnalytics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.ZoneStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, stats)
}

type hourlyResponse struct {
	Date      string           `json:"date"`
	Hourly    analytics.Hourly `json:"hourly"`
	PeakHours []int            `json:"peak_hours"`
	Periods   map[string]int   `json:"periods"`
}

func (s *Server) hourlyAnalytics(w http.ResponseWriter, r *http.Request) {
	day, err := s.day(r)
	if err != nil {
		writeError(w, err)
		return
	}
	hourly, err := s.db.HourlyDistribution(r.Context(), day)
	if err != nil {
		writeError(w, err)
		return
	}
	periods := map[string]int{}
	for hour, n := range hourly {
		periods[analytics.TimeOfDay(hour)] += n
	}
	httputil.WriteJSONOK(w, hourlyResponse{
		Date:      day.Format("2006-01-02"),
		Hourly:    hourly,
		PeakHours: analytics.PeakHours(hourly, peakHourCount),
		Periods:   periods,
	})
}

func (s *Server) dailyAnalytics(w http.ResponseWriter, r *http.Request) {
	day, err := s.day(r)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := s.db.DailyStats(r.Context(), day)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, stats)
}

type summaryResponse struct {
	Days            []analytics.DailyStats `json:"days"`
	TotalVisitors   int                    `json:"total_visitors"`
	ActiveVisits    int                    `json:"active_visits"`
	AverageDuration string                 `json:"average_duration"`
}

// summaryAnalytics reports the last ?days=N days, most recent first.
func (s *Server) summaryAnalytics(w http.ResponseWriter, r *http.Request) {
	days := defaultSummaryDays
	if q := r.URL.Query().Get("days"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > maxSummaryDays {
			httputil.BadRequest(w, fmt.Sprintf("days must be between 1 and %d", maxSummaryDays))
			return
		}
		days = n
	}

	stats, err := s.db.Summary(r.Context(), s.clock.Now().In(s.loc), days)
	if err != nil {
		writeError(w, err)
		return
	}
	active, err := s.db.ActiveVisits(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := summaryResponse{Days: stats, ActiveVisits: len(active)}
	var weighted float64
	var counted int
	for _, d := range stats {
		resp.TotalVisitors += d.TotalVisitors
		if d.AverageDuration > 0 {
			weighted += d.AverageDuration * float64(d.TotalVisitors)
			counted += d.TotalVisitors
		}
	}
	var avg float64
	if counted > 0 {
		avg = weighted / float64(counted)
	}
	resp.AverageDuration = analytics.FormatDuration(avg)
	httputil.WriteJSONOK(w, resp)
}

// listVisits returns the visits that started on ?date=.
func (s *Server) listVisits(w http.ResponseWriter, r *http.Request) {
	day, err := s.day(r)
	if err != nil {
		writeError(w, err)
		return
	}
	start, end := analytics.DayBounds(day)
	visits, err := s.db.VisitsBetween(r.Context(), start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, visits)
}

func (s *Server) visitEvents(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid visit id %q", r.PathValue("id")))
		return
	}
	events, err := s.db.EventsForVisit(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, events)
}
