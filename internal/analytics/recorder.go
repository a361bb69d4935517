package analytics

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/oskar-77/OskarTrackSystem33/internal/monitoring"
	"github.com/oskar-77/OskarTrackSystem33/internal/pipeline"
	"github.com/oskar-77/OskarTrackSystem33/internal/tracking"
)

var logf = monitoring.Component("analytics")

// maxFinished bounds the in-memory history of ended visits.
const maxFinished = 1024

// maxPathPoints bounds the stored path of one visit. When the path fills
// up every other point is dropped and the sampling interval doubles.
const maxPathPoints = 512

// session is the recorder's bookkeeping for one open visit.
type session struct {
	visit     *Visit
	zone      *int
	zoneSince time.Time

	pathStep int
	pathSkip int
}

func (s *session) addPathPoint(c tracking.Centroid, ts time.Time) {
	if s.pathSkip > 0 {
		s.pathSkip--
		return
	}
	s.visit.Path = append(s.visit.Path, PathPoint{X: c.X, Y: c.Y, Time: ts})
	if len(s.visit.Path) >= maxPathPoints {
		kept := s.visit.Path[:0]
		for i := 0; i < len(s.visit.Path); i += 2 {
			kept = append(kept, s.visit.Path[i])
		}
		s.visit.Path = kept
		s.pathStep *= 2
	}
	s.pathSkip = s.pathStep - 1
}

// Recorder follows track ids across frames and writes visits, zone
// enter/exit events and dwell times to a Store. A track's visit starts on
// the first frame it appears in and ends on the first frame it is missing
// from.
//
// Recorder is safe for concurrent use.
type Recorder struct {
	store     Store
	now       func() time.Time
	frameTime func(frameIndex int) time.Time

	mu       sync.Mutex
	open     map[int]*session
	finished []Visit
	last     time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock sets the time source used by OnFrameResult.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// WithFrameClock stamps frame i at start + i/fps instead of reading the
// clock, so recorded footage yields footage-time durations however fast it
// is processed. A non-positive fps leaves the clock in charge.
func WithFrameClock(start time.Time, fps float64) RecorderOption {
	return func(r *Recorder) {
		if fps <= 0 {
			return
		}
		r.frameTime = func(frameIndex int) time.Time {
			return start.Add(time.Duration(float64(frameIndex) / fps * float64(time.Second)))
		}
	}
}

// NewRecorder returns a recorder writing to store. A nil store keeps
// visits in memory only.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store: store,
		now:   time.Now,
		open:  make(map[int]*session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnFrameResult implements pipeline.ResultSink. Store errors are logged.
func (r *Recorder) OnFrameResult(frameIndex int, res *pipeline.FrameResult) {
	var ts time.Time
	if r.frameTime != nil {
		ts = r.frameTime(frameIndex)
	} else {
		ts = r.now()
	}
	if err := r.Observe(context.Background(), ts, res); err != nil {
		logf("frame %d: %v", frameIndex, err)
	}
}

// OnTrackerReset implements pipeline.ResetSink. The tracks behind the open
// visits are gone, so the visits end now.
func (r *Recorder) OnTrackerReset() {
	if err := r.Flush(context.Background()); err != nil {
		logf("closing visits on tracker reset: %v", err)
	}
}

// Flush ends every open visit at the time of the most recent frame, or at
// the clock's time when the recorder runs on the wall clock.
func (r *Recorder) Flush(ctx context.Context) error {
	if r.frameTime == nil {
		return r.Close(ctx, r.now())
	}
	r.mu.Lock()
	ts := r.last
	r.mu.Unlock()
	return r.Close(ctx, ts)
}

// Observe folds one frame result taken at ts into the open visits.
// Bookkeeping always advances; store failures are joined and returned.
func (r *Recorder) Observe(ctx context.Context, ts time.Time, res *pipeline.FrameResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = ts

	var errs []error
	for _, id := range res.IDs() {
		c := res.Tracks[id]
		s, ok := r.open[id]
		if !ok {
			s = &session{
				visit: &Visit{
					VisitorID:    NewVisitorID(),
					TrackID:      id,
					EntryTime:    ts,
					ZonesVisited: []int{},
					DwellPerZone: map[int]float64{},
					Path:         []PathPoint{},
				},
				pathStep: 1,
			}
			r.open[id] = s
			errs = append(errs, r.startVisit(ctx, s.visit))
			errs = append(errs, r.record(ctx, s.visit, EventDetection, ts, float64(c.X), float64(c.Y), res.ZoneOf[id]))
		}
		s.addPathPoint(c, ts)

		cur := res.ZoneOf[id]
		if sameZone(s.zone, cur) {
			continue
		}
		if s.zone != nil {
			errs = append(errs, r.leaveZone(ctx, s, ts, float64(c.X), float64(c.Y)))
		}
		if cur != nil {
			z := *cur
			s.zone = &z
			s.zoneSince = ts
			if !slices.Contains(s.visit.ZonesVisited, z) {
				s.visit.ZonesVisited = append(s.visit.ZonesVisited, z)
			}
			errs = append(errs, r.record(ctx, s.visit, EventZoneEnter, ts, float64(c.X), float64(c.Y), &z))
		}
	}

	for _, id := range r.openIDs() {
		if _, alive := res.Tracks[id]; !alive {
			errs = append(errs, r.end(ctx, id, ts))
		}
	}
	return errors.Join(errs...)
}

// Close ends every open visit at ts.
func (r *Recorder) Close(ctx context.Context, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, id := range r.openIDs() {
		errs = append(errs, r.end(ctx, id, ts))
	}
	return errors.Join(errs...)
}

// Active returns copies of the open visits ordered by track id.
func (r *Recorder) Active() []Visit {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Visit, 0, len(r.open))
	for _, id := range r.openIDs() {
		out = append(out, copyVisit(r.open[id].visit))
	}
	return out
}

// Finished returns copies of the most recently ended visits, in end order.
func (r *Recorder) Finished() []Visit {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Visit, len(r.finished))
	for i := range r.finished {
		out[i] = copyVisit(&r.finished[i])
	}
	return out
}

func (r *Recorder) end(ctx context.Context, id int, ts time.Time) error {
	s := r.open[id]
	delete(r.open, id)

	var err error
	if s.zone != nil {
		// Position of the exit is unknown once the track is gone.
		err = r.leaveZone(ctx, s, ts, 0, 0)
	}
	exit := ts
	s.visit.ExitTime = &exit
	s.visit.Duration = ts.Sub(s.visit.EntryTime).Seconds()
	r.finished = append(r.finished, *s.visit)
	if len(r.finished) > maxFinished {
		r.finished = slices.Delete(r.finished, 0, len(r.finished)-maxFinished)
	}

	if r.store != nil {
		err = errors.Join(err, r.store.EndVisit(ctx, s.visit))
	}
	return err
}

func (r *Recorder) leaveZone(ctx context.Context, s *session, ts time.Time, x, y float64) error {
	z := *s.zone
	dwell := ts.Sub(s.zoneSince).Seconds()
	s.visit.DwellPerZone[z] += dwell
	s.zone = nil

	err := r.record(ctx, s.visit, EventZoneExit, ts, x, y, &z)
	if r.store != nil {
		err = errors.Join(err, r.store.AddZoneVisit(ctx, z, dwell))
	}
	return err
}

func (r *Recorder) startVisit(ctx context.Context, v *Visit) error {
	if r.store == nil {
		return nil
	}
	return r.store.StartVisit(ctx, v)
}

func (r *Recorder) record(ctx context.Context, v *Visit, typ EventType, ts time.Time, x, y float64, zone *int) error {
	if r.store == nil {
		return nil
	}
	return r.store.RecordEvent(ctx, &Event{
		VisitID:   v.ID,
		Type:      typ,
		Timestamp: ts,
		X:         x,
		Y:         y,
		ZoneID:    zone,
	})
}

func (r *Recorder) openIDs() []int {
	ids := make([]int, 0, len(r.open))
	for id := range r.open {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func sameZone(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyVisit(v *Visit) Visit {
	out := *v
	out.ZonesVisited = slices.Clone(v.ZonesVisited)
	out.DwellPerZone = maps.Clone(v.DwellPerZone)
	out.Path = slices.Clone(v.Path)
	if v.ExitTime != nil {
		t := *v.ExitTime
		out.ExitTime = &t
	}
	return out
}
