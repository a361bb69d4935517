package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oskar-77/OskarTrackSystem33/internal/geometry"
	"github.com/oskar-77/OskarTrackSystem33/internal/pipeline"
	"github.com/oskar-77/OskarTrackSystem33/internal/tracking"
	"github.com/oskar-77/OskarTrackSystem33/internal/zones"
)

func TestSink_RecordsFrames(t *testing.T) {
	t.Parallel()
	m := New()

	idx := zones.NewIndex()
	require.NoError(t, idx.Load([]zones.Zone{{ID: 3, Name: "Door", Polygon: geometry.Rect(0, 0, 50, 50)}}))
	tracker := tracking.NewTracker(tracking.DefaultTrackerConfig())
	p := pipeline.New(tracker, idx, pipeline.WithSink(m.Sink(tracker)))

	boxes := []tracking.BoundingBox{
		{X: 10, Y: 10, Width: 4, Height: 4},
		{X: 20, Y: 20, Width: 4, Height: 4},
		{X: 300, Y: 300, Width: 4, Height: 4},
	}
	res, err := p.Process(boxes)
	require.NoError(t, err)
	p.Emit(0, res)

	res, err = p.Process(boxes[:1])
	require.NoError(t, err)
	p.Emit(1, res)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesProcessed))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Detections))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.TracksRegistered))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveTracks))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ZoneOccupancy.WithLabelValues("3")))

	p.Reset()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveTracks))
	assert.Equal(t, 0, testutil.CollectAndCount(m.ZoneOccupancy))
}

func TestObserveFrame_ZoneOccupancyResets(t *testing.T) {
	t.Parallel()
	m := New()
	zone := 7

	m.ObserveFrame(&pipeline.FrameResult{
		Tracks: map[int]tracking.Centroid{0: {}},
		ZoneOf: map[int]*int{0: &zone},
	}, tracking.UpdateStats{})
	assert.Equal(t, 1, testutil.CollectAndCount(m.ZoneOccupancy))

	m.ObserveFrame(&pipeline.FrameResult{}, tracking.UpdateStats{Expired: 1})
	assert.Equal(t, 0, testutil.CollectAndCount(m.ZoneOccupancy))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TracksExpired))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveTracks))
}

func TestHandler(t *testing.T) {
	t.Parallel()
	m := New()
	m.FrameErrors.Inc()
	m.ObserveLatency(5 * time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, "oskartrack_frame_errors_total 1"), text)
	assert.Contains(t, text, "oskartrack_process_seconds_count 1")
	assert.Contains(t, text, "go_goroutines")
}
