package tracking

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oskar-77/OskarTrackSystem33/internal/config"
)

// boxAt returns a 2x2 box whose centroid is exactly (cx, cy).
func boxAt(cx, cy int) BoundingBox {
	return BoundingBox{X: cx - 1, Y: cy - 1, Width: 2, Height: 2}
}

func mustUpdate(t *testing.T, tr *Tracker, dets ...BoundingBox) map[int]Centroid {
	t.Helper()
	got, err := tr.Update(dets)
	require.NoError(t, err)
	return got
}

func TestBoundingBoxCentroid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		box  BoundingBox
		want Centroid
	}{
		{"even dimensions", BoundingBox{X: 10, Y: 20, Width: 40, Height: 80}, Centroid{30, 60}},
		{"odd dimensions truncate", BoundingBox{X: 0, Y: 0, Width: 5, Height: 7}, Centroid{2, 3}},
		{"negative origin truncates toward zero", BoundingBox{X: -5, Y: -5, Width: 3, Height: 3}, Centroid{-3, -3}},
		{"boxAt helper", boxAt(12, 11), Centroid{12, 11}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.box.Centroid())
		})
	}
}

func TestUpdate_EmptyOnEmptyIsIdempotent(t *testing.T) {
	t.Parallel()
	tr := NewTracker(DefaultTrackerConfig())

	for i := 0; i < 100; i++ {
		got := mustUpdate(t, tr)
		assert.Empty(t, got)
	}
	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, 0, tr.NextID(), "no ids should have been consumed")
}

func TestUpdate_RegistersInInputOrder(t *testing.T) {
	t.Parallel()
	tr := NewTracker(DefaultTrackerConfig())

	got := mustUpdate(t, tr, boxAt(300, 300), boxAt(10, 10), boxAt(150, 40))

	want := map[int]Centroid{0: {300, 300}, 1: {10, 10}, 2: {150, 40}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Update() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, tr.NextID())
}

func TestUpdate_IdentityPersistence(t *testing.T) {
	t.Parallel()
	tr := NewTracker(DefaultTrackerConfig())

	first := mustUpdate(t, tr, boxAt(10, 10))
	require.Equal(t, map[int]Centroid{0: {10, 10}}, first)

	second := mustUpdate(t, tr, boxAt(12, 11))
	assert.Equal(t, map[int]Centroid{0: {12, 11}}, second)

	track, ok := tr.Track(0)
	require.True(t, ok)
	assert.Equal(t, 0, track.Disappeared)
	assert.Equal(t, 1, tr.NextID(), "matched detection must not create a new track")
}

func TestUpdate_ExpiryAfterMaxDisappearedPlusOne(t *testing.T) {
	t.Parallel()

	for _, maxDisappeared := range []int{0, 1, 3, 30} {
		cfg := DefaultTrackerConfig()
		cfg.MaxDisappeared = maxDisappeared
		tr := NewTracker(cfg)
		mustUpdate(t, tr, boxAt(50, 50))

		for i := 1; i <= maxDisappeared; i++ {
			got := mustUpdate(t, tr)
			require.Contains(t, got, 0, "max=%d: track should survive miss %d", maxDisappeared, i)
			track, _ := tr.Track(0)
			require.Equal(t, i, track.Disappeared)
		}

		got := mustUpdate(t, tr)
		assert.NotContains(t, got, 0, "max=%d: track should expire on miss %d", maxDisappeared, maxDisappeared+1)
		assert.Equal(t, 1, tr.LastStats().Expired)
	}
}

func TestUpdate_ExpiryWhileOtherDetectionsPresent(t *testing.T) {
	t.Parallel()
	cfg := DefaultTrackerConfig()
	cfg.MaxDisappeared = 2
	tr := NewTracker(cfg)

	mustUpdate(t, tr, boxAt(0, 0))
	// A far-away detection every frame: track 0 is unmatched, a new track
	// is registered on the first frame and matched afterwards.
	mustUpdate(t, tr, boxAt(400, 400))
	mustUpdate(t, tr, boxAt(400, 400))
	got := mustUpdate(t, tr, boxAt(400, 400))

	assert.Equal(t, map[int]Centroid{1: {400, 400}}, got)
}

func TestUpdate_GreedyTieBreakNeverCrossMatches(t *testing.T) {
	t.Parallel()

	orders := [][]BoundingBox{
		{boxAt(1, 1), boxAt(99, 99)},
		{boxAt(99, 99), boxAt(1, 1)},
	}
	for _, dets := range orders {
		tr := NewTracker(DefaultTrackerConfig())
		mustUpdate(t, tr, boxAt(0, 0), boxAt(100, 100))

		got := mustUpdate(t, tr, dets...)

		assert.Equal(t, map[int]Centroid{0: {1, 1}, 1: {99, 99}}, got)
		assert.Equal(t, 2, tr.LastStats().Matched)
	}
}

func TestUpdate_GateRejection(t *testing.T) {
	t.Parallel()
	tr := NewTracker(DefaultTrackerConfig())
	mustUpdate(t, tr, boxAt(0, 0))

	got := mustUpdate(t, tr, boxAt(60, 0))

	assert.Equal(t, map[int]Centroid{0: {0, 0}, 1: {60, 0}}, got)
	old, ok := tr.Track(0)
	require.True(t, ok)
	assert.Equal(t, 1, old.Disappeared)
	fresh, ok := tr.Track(1)
	require.True(t, ok)
	assert.Equal(t, 0, fresh.Disappeared)
	assert.Equal(t, 1, tr.LastStats().Gated)
}

func TestUpdate_GateIsInclusive(t *testing.T) {
	t.Parallel()
	tr := NewTracker(DefaultTrackerConfig())
	mustUpdate(t, tr, boxAt(0, 0))

	// (30,40) is exactly 50 away.
	got := mustUpdate(t, tr, boxAt(30, 40))

	assert.Equal(t, map[int]Centroid{0: {30, 40}}, got)
}

func TestUpdate_ConfigurableGate(t *testing.T) {
	t.Parallel()
	cfg := DefaultTrackerConfig()
	cfg.MaxMatchDistance = 100
	tr := NewTracker(cfg)
	mustUpdate(t, tr, boxAt(0, 0))

	got := mustUpdate(t, tr, boxAt(60, 0))
	assert.Equal(t, map[int]Centroid{0: {60, 0}}, got)
}

func TestUpdate_RowNotReconsideredForSecondChoice(t *testing.T) {
	t.Parallel()
	tr := NewTracker(DefaultTrackerConfig())
	mustUpdate(t, tr, boxAt(0, 0), boxAt(10, 0))

	// Both tracks are nearest to (9,0). Track 1 (distance 1) wins it; track
	// 0 is not offered (40,0) even though it is within the gate.
	got := mustUpdate(t, tr, boxAt(9, 0), boxAt(40, 0))

	want := map[int]Centroid{0: {0, 0}, 1: {9, 0}, 2: {40, 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Update() mismatch (-want +got):\n%s", diff)
	}
	track0, _ := tr.Track(0)
	assert.Equal(t, 1, track0.Disappeared)

	stats := tr.LastStats()
	assert.Equal(t, UpdateStats{Detections: 2, Matched: 1, Registered: 1}, stats)
}

func TestUpdate_PriorityFollowsRowMinimum(t *testing.T) {
	t.Parallel()
	tr := NewTracker(DefaultTrackerConfig())
	// Track 0 is registered first but track 1 has the closer match, so
	// track 1 is served first and takes the contested detection.
	mustUpdate(t, tr, boxAt(0, 0), boxAt(20, 0))

	got := mustUpdate(t, tr, boxAt(18, 0))

	assert.Equal(t, map[int]Centroid{0: {0, 0}, 1: {18, 0}}, got)
}

func TestUpdate_EqualMinimaKeepRegistrationOrder(t *testing.T) {
	t.Parallel()
	tr := NewTracker(DefaultTrackerConfig())
	mustUpdate(t, tr, boxAt(0, 0), boxAt(20, 0))

	// (10,0) is equidistant; the earlier-registered track claims it.
	got := mustUpdate(t, tr, boxAt(10, 0))

	assert.Equal(t, map[int]Centroid{0: {10, 0}, 1: {20, 0}}, got)
}

func TestUpdate_MoreDetectionsThanTracks(t *testing.T) {
	t.Parallel()
	tr := NewTracker(DefaultTrackerConfig())
	mustUpdate(t, tr, boxAt(100, 100))

	got := mustUpdate(t, tr, boxAt(500, 500), boxAt(102, 100), boxAt(300, 300))

	want := map[int]Centroid{0: {102, 100}, 1: {500, 500}, 2: {300, 300}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Update() mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_IDsNeverReused(t *testing.T) {
	t.Parallel()
	cfg := DefaultTrackerConfig()
	cfg.MaxDisappeared = 0
	tr := NewTracker(cfg)

	mustUpdate(t, tr, boxAt(0, 0))
	mustUpdate(t, tr) // expires track 0
	require.Equal(t, 0, tr.Len())

	got := mustUpdate(t, tr, boxAt(0, 0))
	assert.Equal(t, map[int]Centroid{1: {0, 0}}, got)
}

func TestUpdate_InvalidDetectionLeavesStateUntouched(t *testing.T) {
	t.Parallel()
	tr := NewTracker(DefaultTrackerConfig())
	mustUpdate(t, tr, boxAt(10, 10))
	before := tr.Tracks()

	got, err := tr.Update([]BoundingBox{boxAt(11, 11), {X: 5, Y: 5, Width: 0, Height: 10}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDetection))
	assert.Nil(t, got)

	assert.Equal(t, before, tr.Tracks())
	assert.Equal(t, 1, tr.NextID())

	// The next good frame continues from the untouched state.
	got = mustUpdate(t, tr, boxAt(12, 12))
	assert.Equal(t, map[int]Centroid{0: {12, 12}}, got)
}

func TestUpdate_ResultIsACopy(t *testing.T) {
	t.Parallel()
	tr := NewTracker(DefaultTrackerConfig())
	got := mustUpdate(t, tr, boxAt(10, 10))

	got[0] = Centroid{999, 999}
	delete(got, 0)

	track, ok := tr.Track(0)
	require.True(t, ok)
	assert.Equal(t, Centroid{10, 10}, track.Centroid)
}

func TestRegisterDeregister(t *testing.T) {
	t.Parallel()
	tr := NewTracker(DefaultTrackerConfig())

	a := tr.Register(Centroid{1, 1})
	b := tr.Register(Centroid{2, 2})
	c := tr.Register(Centroid{3, 3})
	assert.Equal(t, []int{0, 1, 2}, []int{a, b, c})

	assert.True(t, tr.Deregister(b))
	assert.False(t, tr.Deregister(b), "second deregister is a no-op")

	ids := []int{}
	for _, track := range tr.Tracks() {
		ids = append(ids, track.ID)
	}
	assert.Equal(t, []int{0, 2}, ids)
}

func TestReset(t *testing.T) {
	t.Parallel()
	tr := NewTracker(DefaultTrackerConfig())
	mustUpdate(t, tr, boxAt(1, 1), boxAt(200, 200))

	tr.Reset()

	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, 2, tr.NextID(), "ids are not reused after a reset")
	created, expired := tr.Totals()
	assert.Zero(t, created)
	assert.Zero(t, expired)

	got := mustUpdate(t, tr, boxAt(500, 500))
	if diff := cmp.Diff(map[int]Centroid{2: {500, 500}}, got); diff != "" {
		t.Errorf("tracks after reset mismatch (-want +got):\n%s", diff)
	}
}

func TestTotals(t *testing.T) {
	t.Parallel()
	cfg := DefaultTrackerConfig()
	cfg.MaxDisappeared = 0
	tr := NewTracker(cfg)

	mustUpdate(t, tr, boxAt(1, 1), boxAt(200, 200))
	mustUpdate(t, tr, boxAt(1, 1))

	created, expired := tr.Totals()
	assert.Equal(t, 2, created)
	assert.Equal(t, 1, expired)
}

func TestTrackerConfigFromTuning(t *testing.T) {
	t.Parallel()

	cfg := TrackerConfigFromTuning(config.DefaultTuningConfig())
	assert.Equal(t, 50, cfg.MaxDisappeared)
	assert.Equal(t, 50.0, cfg.MaxMatchDistance)

	bare := DefaultTrackerConfig()
	assert.Equal(t, 30, bare.MaxDisappeared)
}

func TestFilterValid(t *testing.T) {
	t.Parallel()

	in := []BoundingBox{
		{X: 0, Y: 0, Width: 10, Height: 10},
		{X: 1, Y: 1, Width: -4, Height: 10},
		{X: 2, Y: 2, Width: 10, Height: 0},
		{X: 3, Y: 3, Width: 1, Height: 1},
	}
	got := FilterValid(in)
	assert.Equal(t, []BoundingBox{in[0], in[3]}, got)
	assert.NoError(t, ValidateDetections(got))
	assert.ErrorIs(t, ValidateDetections(in), ErrInvalidDetection)
}
