package pipeline

import (
	"sort"

	"github.com/oskar-77/OskarTrackSystem33/internal/tracking"
)

// FrameResult is the outcome of processing one frame.
type FrameResult struct {
	// Tracks holds the centroid of every live track after the update.
	Tracks map[int]tracking.Centroid
	// ZoneOf holds, for every key of Tracks, the containing zone id or nil.
	ZoneOf map[int]*int
	// DetectionCount is the number of boxes fed to the tracker.
	DetectionCount int
}

// PersonCount returns the number of live tracks.
func (r *FrameResult) PersonCount() int {
	return len(r.Tracks)
}

// IDs returns the track ids in ascending order.
func (r *FrameResult) IDs() []int {
	ids := make([]int, 0, len(r.Tracks))
	for id := range r.Tracks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// TrackView is the per-track row of a frame analysis.
type TrackView struct {
	ID       int    `json:"id"`
	Position [2]int `json:"position"`
	ZoneID   *int   `json:"zone_id"`
}

// Analysis is the serialisable summary of a frame.
type Analysis struct {
	PersonCount    int         `json:"person_count"`
	DetectionCount int         `json:"detection_count"`
	Tracks         []TrackView `json:"tracks"`
}

// Analysis flattens the result into rows ordered by track id.
func (r *FrameResult) Analysis() Analysis {
	a := Analysis{
		PersonCount:    r.PersonCount(),
		DetectionCount: r.DetectionCount,
		Tracks:         make([]TrackView, 0, len(r.Tracks)),
	}
	for _, id := range r.IDs() {
		c := r.Tracks[id]
		a.Tracks = append(a.Tracks, TrackView{
			ID:       id,
			Position: [2]int{c.X, c.Y},
			ZoneID:   r.ZoneOf[id],
		})
	}
	return a
}

// ResultSink consumes processed frames.
type ResultSink interface {
	OnFrameResult(frameIndex int, res *FrameResult)
}

// ResetSink is implemented by sinks that keep per-track state. The pipeline
// calls OnTrackerReset after the tracker has dropped every track.
type ResetSink interface {
	OnTrackerReset()
}

// SinkFunc adapts a function to a ResultSink.
type SinkFunc func(frameIndex int, res *FrameResult)

// OnFrameResult calls f.
func (f SinkFunc) OnFrameResult(frameIndex int, res *FrameResult) {
	f(frameIndex, res)
}

// FanOut delivers each result to every non-nil sink in order.
func FanOut(sinks ...ResultSink) ResultSink {
	live := make([]ResultSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return fanOut(live)
}

type fanOut []ResultSink

func (f fanOut) OnFrameResult(frameIndex int, res *FrameResult) {
	for _, s := range f {
		s.OnFrameResult(frameIndex, res)
	}
}

func (f fanOut) OnTrackerReset() {
	for _, s := range f {
		if rs, ok := s.(ResetSink); ok {
			rs.OnTrackerReset()
		}
	}
}
