package pipeline

import (
	"math"
	"sync"
)

// RunSummary accumulates person counts over a run of frames. It is a
// ResultSink and is safe for concurrent use.
type RunSummary struct {
	mu      sync.Mutex
	frames  int
	max     int
	persons int
}

// RunStats is the serialisable result of a RunSummary.
type RunStats struct {
	TotalFrames        int     `json:"total_frames"`
	MaxPersonsDetected int     `json:"max_persons_detected"`
	AveragePersons     float64 `json:"average_persons"`
}

// OnFrameResult implements ResultSink.
func (s *RunSummary) OnFrameResult(_ int, res *FrameResult) {
	s.Add(res.PersonCount())
}

// Add counts one frame with n live tracks.
func (s *RunSummary) Add(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	s.persons += n
	if n > s.max {
		s.max = n
	}
}

// Stats returns the totals so far. The average is rounded to two decimals
// and is zero before the first frame.
func (s *RunSummary) Stats() RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := RunStats{TotalFrames: s.frames, MaxPersonsDetected: s.max}
	if s.frames > 0 {
		st.AveragePersons = math.Round(float64(s.persons)/float64(s.frames)*100) / 100
	}
	return st
}
