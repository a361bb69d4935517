package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/oskar-77/OskarTrackSystem33/internal/framesource"
	"github.com/oskar-77/OskarTrackSystem33/internal/httputil"
	"github.com/oskar-77/OskarTrackSystem33/internal/pipeline"
	"github.com/oskar-77/OskarTrackSystem33/internal/tracking"
)

// maxUploadBytes bounds a single uploaded frame.
const maxUploadBytes = 32 << 20

type frameResponse struct {
	FrameIndex int `json:"frame_index"`
	pipeline.Analysis
}

type trackRow struct {
	ID          int    `json:"id"`
	Position    [2]int `json:"position"`
	ZoneID      *int   `json:"zone_id"`
	Disappeared int    `json:"disappeared"`
}

func (s *Server) listTracks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	tracks := s.pipeline.Tracker().Tracks()
	s.mu.Unlock()

	index := s.pipeline.Index()
	rows := make([]trackRow, 0, len(tracks))
	for _, t := range tracks {
		row := trackRow{ID: t.ID, Position: [2]int{t.Centroid.X, t.Centroid.Y}, Disappeared: t.Disappeared}
		if zid, ok := index.Resolve(t.Centroid.Point()); ok {
			row.ZoneID = &zid
		}
		rows = append(rows, row)
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"person_count": len(rows),
		"tracks":       rows,
	})
}

func (s *Server) resetTracks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.pipeline.Reset()
	s.frameIndex = 0
	next := s.pipeline.Tracker().NextID()
	s.mu.Unlock()
	logf("tracker reset, next track id %d", next)
	w.WriteHeader(http.StatusNoContent)
}

// processDetections feeds pre-computed boxes through the pipeline:
// {"detections": [{"x":..,"y":..,"width":..,"height":..}, ...]}.
func (s *Server) processDetections(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Detections []tracking.BoundingBox `json:"detections"`
	}
	if err := httputil.DecodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.runFrame(func() (*pipeline.FrameResult, error) {
		return s.pipeline.Process(body.Detections)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, resp)
}

// processImage runs the configured detector on an uploaded frame (form
// field "file") and feeds the result through the pipeline.
func (s *Server) processImage(w http.ResponseWriter, r *http.Request) {
	if s.detector == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no detector configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("missing image upload: %v", err))
		return
	}
	defer file.Close()

	img, format, err := framesource.Decode(file)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	logf("decoded %s frame %dx%d", format, img.Bounds().Dx(), img.Bounds().Dy())

	// The detector runs outside the pipeline lock; only the tracker update
	// is serialised.
	start := time.Now()
	dets, err := s.detector.Detect(r.Context(), img)
	if err != nil {
		if s.metrics != nil {
			s.metrics.FrameErrors.Inc()
		}
		err = httputil.WithStatus(http.StatusBadGateway, fmt.Errorf("detect: %w", err))
		logf("%v", err)
		writeError(w, err)
		return
	}

	resp, err := s.runFrameSince(start, func() (*pipeline.FrameResult, error) {
		return s.pipeline.Process(dets)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, resp)
}

// runFrame processes one frame under the pipeline lock, assigns it the next
// frame index and hands the result to the pipeline's sinks.
func (s *Server) runFrame(process func() (*pipeline.FrameResult, error)) (*frameResponse, error) {
	return s.runFrameSince(time.Now(), process)
}

// runFrameSince is runFrame with latency measured from start.
func (s *Server) runFrameSince(start time.Time, process func() (*pipeline.FrameResult, error)) (*frameResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := process()
	if err != nil {
		if s.metrics != nil {
			s.metrics.FrameErrors.Inc()
		}
		if httputil.StatusOf(statusFor(err)) >= http.StatusInternalServerError {
			logf("frame %d: %v", s.frameIndex, err)
		}
		return nil, err
	}

	idx := s.frameIndex
	s.frameIndex++
	s.pipeline.Emit(idx, res)
	if s.metrics != nil {
		s.metrics.ObserveLatency(time.Since(start))
	}
	return &frameResponse{FrameIndex: idx, Analysis: res.Analysis()}, nil
}
