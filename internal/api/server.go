// Package api exposes the tracking pipeline, zone management and visit
// analytics over HTTP.
package api

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/oskar-77/OskarTrackSystem33/internal/db"
	"github.com/oskar-77/OskarTrackSystem33/internal/httputil"
	"github.com/oskar-77/OskarTrackSystem33/internal/metrics"
	"github.com/oskar-77/OskarTrackSystem33/internal/monitoring"
	"github.com/oskar-77/OskarTrackSystem33/internal/pipeline"
	"github.com/oskar-77/OskarTrackSystem33/internal/timeutil"
	"github.com/oskar-77/OskarTrackSystem33/internal/tracking"
	"github.com/oskar-77/OskarTrackSystem33/internal/version"
	"github.com/oskar-77/OskarTrackSystem33/internal/ws"
	"github.com/oskar-77/OskarTrackSystem33/internal/zones"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

var logf = monitoring.Component("api")

// Config wires the server to its collaborators. DB and Pipeline are
// required; the rest may be nil.
type Config struct {
	DB       *db.DB
	Pipeline *pipeline.FramePipeline
	Detector pipeline.Detector
	Metrics  *metrics.Metrics
	Hub      *ws.Hub
	// Location is used to interpret ?date= parameters. Defaults to
	// time.Local.
	Location *time.Location
}

type Server struct {
	db       *db.DB
	detector pipeline.Detector
	metrics  *metrics.Metrics
	hub      *ws.Hub
	loc      *time.Location
	clock    timeutil.Clock

	// mu serialises access to the pipeline and its tracker.
	mu         sync.Mutex
	pipeline   *pipeline.FramePipeline
	frameIndex int
}

func NewServer(cfg Config) *Server {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Server{
		db:       cfg.DB,
		detector: cfg.Detector,
		metrics:  cfg.Metrics,
		hub:      cfg.Hub,
		loc:      loc,
		clock:    timeutil.RealClock{},
		pipeline: cfg.Pipeline,
	}
}

// ReloadZones loads the active zones from the database into the pipeline's
// zone index.
func (s *Server) ReloadZones(ctx context.Context) error {
	zs, err := s.db.ListZones(ctx, true)
	if err != nil {
		return err
	}
	if err := s.pipeline.Index().Load(zs); err != nil {
		return err
	}
	logf("loaded %d active zones", len(zs))
	return nil
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack passes through to the underlying writer so websocket upgrades
// work behind the middleware.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("GET /api/zones", s.listZones)
	mux.HandleFunc("POST /api/zones", s.createZone)
	mux.HandleFunc("GET /api/zones/{id}", s.getZone)
	mux.HandleFunc("PATCH /api/zones/{id}", s.patchZone)
	mux.HandleFunc("DELETE /api/zones/{id}", s.deleteZone)

	mux.HandleFunc("GET /api/tracks", s.listTracks)
	mux.HandleFunc("POST /api/tracks/reset", s.resetTracks)
	mux.HandleFunc("POST /api/process/detections", s.processDetections)
	mux.HandleFunc("POST /api/process/image", s.processImage)

	mux.HandleFunc("GET /api/analytics/zones", s.zoneAnalytics)
	mux.HandleFunc("GET /api/analytics/hourly", s.hourlyAnalytics)
	mux.HandleFunc("GET /api/analytics/daily", s.dailyAnalytics)
	mux.HandleFunc("GET /api/analytics/summary", s.summaryAnalytics)
	mux.HandleFunc("GET /api/visits", s.listVisits)
	mux.HandleFunc("GET /api/visits/{id}/events", s.visitEvents)
	mux.HandleFunc("GET /api/customers", s.listCustomers)
	mux.HandleFunc("GET /api/customers/{id}", s.getCustomer)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	if s.hub != nil {
		mux.Handle("GET /ws", ws.NewHandler(s.hub))
	}
	return mux
}

// statusFor attaches an HTTP status to domain errors.
func statusFor(err error) error {
	switch {
	case errors.Is(err, tracking.ErrInvalidDetection),
		errors.Is(err, zones.ErrInvalidZoneDefinition):
		return httputil.WithStatus(http.StatusBadRequest, err)
	case errors.Is(err, db.ErrNotFound):
		return httputil.WithStatus(http.StatusNotFound, err)
	}
	return err
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, statusFor(err))
}

// healthChecker is implemented by detectors that can report readiness.
type healthChecker interface {
	Health(ctx context.Context) error
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	detector := "disabled"
	if s.detector != nil {
		detector = "ok"
		if hc, ok := s.detector.(healthChecker); ok {
			if err := hc.Health(r.Context()); err != nil {
				detector = "unavailable"
			}
		}
	}

	s.mu.Lock()
	tracks := s.pipeline.Tracker().Len()
	s.mu.Unlock()

	dbStatus := "ok"
	if err := s.db.PingContext(r.Context()); err != nil {
		dbStatus = "unavailable"
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":   "ok",
		"version":  version.Version,
		"database": dbStatus,
		"detector": detector,
		"tracks":   tracks,
		"zones":    s.pipeline.Index().Len(),
	})
}
