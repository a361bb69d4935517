package tracking

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/oskar-77/OskarTrackSystem33/internal/config"
)

// TrackerConfig holds configuration parameters for the tracker.
type TrackerConfig struct {
	// MaxDisappeared is the number of consecutive unmatched updates a track
	// survives. The track is dropped on the update that takes its count
	// above this value.
	MaxDisappeared int
	// MaxMatchDistance gates association: a pair further apart than this
	// (pixels) is never matched.
	MaxMatchDistance float64
}

// DefaultTrackerConfig returns the standalone tracker defaults. The video
// pipeline wires a larger MaxDisappeared from the tuning config.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxDisappeared:   30,
		MaxMatchDistance: 50,
	}
}

// TrackerConfigFromTuning builds a TrackerConfig from a loaded TuningConfig.
func TrackerConfigFromTuning(cfg *config.TuningConfig) TrackerConfig {
	return TrackerConfig{
		MaxDisappeared:   cfg.GetMaxDisappeared(),
		MaxMatchDistance: cfg.GetMaxMatchDistance(),
	}
}

// UpdateStats summarises what the most recent Update did.
type UpdateStats struct {
	Detections int // boxes supplied
	Matched    int // existing tracks refreshed
	Registered int // new tracks created
	Expired    int // tracks dropped
	Gated      int // nearest pairs rejected by MaxMatchDistance
}

// Tracker is a centroid tracker with explicit register/update/deregister
// lifecycle.
type Tracker struct {
	Config TrackerConfig

	tracks map[int]*Track
	// order holds live ids in registration order, which is also ascending
	// id order. Distance-matrix rows follow it.
	order  []int
	nextID int

	lastStats    UpdateStats
	totalCreated int
	totalExpired int
}

// NewTracker creates a new tracker with the specified configuration.
func NewTracker(config TrackerConfig) *Tracker {
	return &Tracker{
		Config: config,
		tracks: make(map[int]*Track),
	}
}

// Register creates a track at c and returns its id.
func (t *Tracker) Register(c Centroid) int {
	id := t.nextID
	t.tracks[id] = &Track{ID: id, Centroid: c}
	t.order = append(t.order, id)
	t.nextID++
	t.totalCreated++
	t.lastStats.Registered++
	return id
}

// Deregister removes the track with the given id. It reports whether the
// track existed.
func (t *Tracker) Deregister(id int) bool {
	if _, ok := t.tracks[id]; !ok {
		return false
	}
	delete(t.tracks, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// Update feeds one frame of detections into the tracker and returns the
// centroid of every track alive afterwards.
//
// If any box is invalid the frame is rejected with an error wrapping
// ErrInvalidDetection and the tracker state is left untouched.
func (t *Tracker) Update(dets []BoundingBox) (map[int]Centroid, error) {
	if err := ValidateDetections(dets); err != nil {
		return nil, err
	}
	t.lastStats = UpdateStats{Detections: len(dets)}

	if len(dets) == 0 {
		for _, id := range append([]int(nil), t.order...) {
			t.markMissed(id)
		}
		return t.centroids(), nil
	}

	inputs := make([]Centroid, len(dets))
	for i, b := range dets {
		inputs[i] = b.Centroid()
	}

	if len(t.order) == 0 {
		for _, c := range inputs {
			t.Register(c)
		}
		return t.centroids(), nil
	}

	t.associate(inputs)
	return t.centroids(), nil
}

// associate runs the greedy row-priority assignment between live tracks and
// the frame's centroids, then ages unmatched tracks and registers unmatched
// centroids.
func (t *Tracker) associate(inputs []Centroid) {
	ids := append([]int(nil), t.order...)
	rows, cols := len(ids), len(inputs)

	dist := mat.NewDense(rows, cols, nil)
	for r, id := range ids {
		tc := t.tracks[id].Centroid
		for c, in := range inputs {
			dist.Set(r, c, tc.Distance(in))
		}
	}

	// Each row only ever considers its nearest column.
	nearest := make([]int, rows)
	rowMin := make([]float64, rows)
	for r := 0; r < rows; r++ {
		row := dist.RawRowView(r)
		nearest[r] = floats.MinIdx(row)
		rowMin[r] = row[nearest[r]]
	}

	// Rows with the most decisive match go first. Equal minima keep
	// registration order.
	priority := make([]int, rows)
	for r := range priority {
		priority[r] = r
	}
	sort.SliceStable(priority, func(a, b int) bool {
		return rowMin[priority[a]] < rowMin[priority[b]]
	})

	usedRows := make([]bool, rows)
	usedCols := make([]bool, cols)
	for _, r := range priority {
		c := nearest[r]
		if usedRows[r] || usedCols[c] {
			continue
		}
		if rowMin[r] > t.Config.MaxMatchDistance {
			t.lastStats.Gated++
			continue
		}

		track := t.tracks[ids[r]]
		track.Centroid = inputs[c]
		track.Disappeared = 0
		usedRows[r] = true
		usedCols[c] = true
		t.lastStats.Matched++
	}

	for r, id := range ids {
		if !usedRows[r] {
			t.markMissed(id)
		}
	}
	for c, in := range inputs {
		if !usedCols[c] {
			t.Register(in)
		}
	}
}

// markMissed ages a track by one update and drops it once the count exceeds
// MaxDisappeared.
func (t *Tracker) markMissed(id int) {
	track, ok := t.tracks[id]
	if !ok {
		return
	}
	track.Disappeared++
	if track.Disappeared > t.Config.MaxDisappeared {
		t.Deregister(id)
		t.totalExpired++
		t.lastStats.Expired++
	}
}

func (t *Tracker) centroids() map[int]Centroid {
	out := make(map[int]Centroid, len(t.tracks))
	for id, track := range t.tracks {
		out[id] = track.Centroid
	}
	return out
}

// Tracks returns a copy of the live tracks ordered by id.
func (t *Tracker) Tracks() []Track {
	out := make([]Track, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.tracks[id])
	}
	return out
}

// Track returns a copy of the track with the given id.
func (t *Tracker) Track(id int) (Track, bool) {
	track, ok := t.tracks[id]
	if !ok {
		return Track{}, false
	}
	return *track, true
}

// Len returns the number of live tracks.
func (t *Tracker) Len() int {
	return len(t.tracks)
}

// NextID returns the id the next registered track will receive.
func (t *Tracker) NextID() int {
	return t.nextID
}

// LastStats returns the statistics of the most recent Update.
func (t *Tracker) LastStats() UpdateStats {
	return t.lastStats
}

// Totals returns the number of tracks created and expired since
// construction or the last Reset.
func (t *Tracker) Totals() (created, expired int) {
	return t.totalCreated, t.totalExpired
}

// Reset drops every track. Id assignment continues from NextID so an id
// is never handed out twice by the same tracker.
func (t *Tracker) Reset() {
	t.tracks = make(map[int]*Track)
	t.order = nil
	t.lastStats = UpdateStats{}
	t.totalCreated = 0
	t.totalExpired = 0
}
