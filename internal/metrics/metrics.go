// Package metrics exposes tracking pipeline counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oskar-77/OskarTrackSystem33/internal/pipeline"
	"github.com/oskar-77/OskarTrackSystem33/internal/tracking"
)

// Metrics holds the service's collectors on a private registry.
type Metrics struct {
	FramesProcessed  prometheus.Counter
	FrameErrors      prometheus.Counter
	Detections       prometheus.Counter
	TracksRegistered prometheus.Counter
	TracksExpired    prometheus.Counter
	MatchesGated     prometheus.Counter
	ActiveTracks     prometheus.Gauge
	ZoneOccupancy    *prometheus.GaugeVec
	ProcessLatency   prometheus.Histogram

	registry *prometheus.Registry
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oskartrack_frames_processed_total",
			Help: "Frames run through the tracker",
		}),
		FrameErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oskartrack_frame_errors_total",
			Help: "Frames rejected by the detector or tracker",
		}),
		Detections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oskartrack_detections_total",
			Help: "Person boxes fed to the tracker",
		}),
		TracksRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oskartrack_tracks_registered_total",
			Help: "Tracks created",
		}),
		TracksExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oskartrack_tracks_expired_total",
			Help: "Tracks dropped after exceeding the disappearance limit",
		}),
		MatchesGated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oskartrack_matches_gated_total",
			Help: "Nearest track/detection pairs rejected by the distance gate",
		}),
		ActiveTracks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oskartrack_active_tracks",
			Help: "Live tracks after the most recent frame",
		}),
		ZoneOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oskartrack_zone_occupancy",
			Help: "Tracks inside each zone after the most recent frame",
		}, []string{"zone"}),
		ProcessLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oskartrack_process_seconds",
			Help:    "Time spent detecting and tracking one frame",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.FramesProcessed,
		m.FrameErrors,
		m.Detections,
		m.TracksRegistered,
		m.TracksExpired,
		m.MatchesGated,
		m.ActiveTracks,
		m.ZoneOccupancy,
		m.ProcessLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveFrame records one processed frame and the tracker statistics of
// the update that produced it.
func (m *Metrics) ObserveFrame(res *pipeline.FrameResult, stats tracking.UpdateStats) {
	m.FramesProcessed.Inc()
	m.Detections.Add(float64(res.DetectionCount))
	m.TracksRegistered.Add(float64(stats.Registered))
	m.TracksExpired.Add(float64(stats.Expired))
	m.MatchesGated.Add(float64(stats.Gated))
	m.ActiveTracks.Set(float64(res.PersonCount()))

	occupancy := map[int]int{}
	for _, z := range res.ZoneOf {
		if z != nil {
			occupancy[*z]++
		}
	}
	m.ZoneOccupancy.Reset()
	for zone, n := range occupancy {
		m.ZoneOccupancy.WithLabelValues(strconv.Itoa(zone)).Set(float64(n))
	}
}

// ObserveLatency records how long one frame took end to end.
func (m *Metrics) ObserveLatency(d time.Duration) {
	m.ProcessLatency.Observe(d.Seconds())
}

// Sink returns a pipeline.ResultSink that records every frame, reading the
// update statistics from tracker. It clears the occupancy gauges when the
// tracker is reset.
func (m *Metrics) Sink(tracker *tracking.Tracker) pipeline.ResultSink {
	return &frameSink{m: m, tracker: tracker}
}

type frameSink struct {
	m       *Metrics
	tracker *tracking.Tracker
}

func (s *frameSink) OnFrameResult(_ int, res *pipeline.FrameResult) {
	s.m.ObserveFrame(res, s.tracker.LastStats())
}

func (s *frameSink) OnTrackerReset() {
	s.m.ActiveTracks.Set(0)
	s.m.ZoneOccupancy.Reset()
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
