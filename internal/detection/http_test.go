package detection

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oskar-77/OskarTrackSystem33/internal/httputil"
	"github.com/oskar-77/OskarTrackSystem33/internal/timeutil"
	"github.com/oskar-77/OskarTrackSystem33/internal/tracking"
)

func newDetectServer(t *testing.T, resp DetectResponse, gotWidth *int, healthCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		healthCalls.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/detect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.FormValue("conf_threshold") != "0.50" {
			http.Error(w, "bad threshold "+r.FormValue("conf_threshold"), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		if hdr.Header.Get("Content-Type") != "image/jpeg" {
			http.Error(w, "not jpeg", http.StatusBadRequest)
			return
		}
		img, err := jpeg.Decode(f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		*gotWidth = img.Bounds().Dx()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPDetector_Detect(t *testing.T) {
	t.Parallel()
	var width int
	var health atomic.Int32
	srv := newDetectServer(t, DetectResponse{
		Detections: []Detection{
			{Class: "person", Confidence: 0.91, BBox: []float32{100, 50, 200, 250}},
			{Class: "person", Confidence: 0.2, BBox: []float32{0, 0, 20, 20}},
			{Class: "chair", Confidence: 0.95, BBox: []float32{0, 0, 20, 20}},
		},
		Count: 3,
	}, &width, &health)

	d := NewHTTPDetector(srv.URL+"/", DefaultOptions())
	got, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 1280, 720)))
	require.NoError(t, err)

	assert.Equal(t, 640, width, "frame should be downscaled before upload")
	assert.Equal(t, []tracking.BoundingBox{{X: 200, Y: 100, Width: 200, Height: 400}}, got)
}

func TestHTTPDetector_SubImageBoxesUseSourceCoordinates(t *testing.T) {
	t.Parallel()
	var width int
	var health atomic.Int32
	srv := newDetectServer(t, DetectResponse{
		Detections: []Detection{{Class: "person", Confidence: 0.8, BBox: []float32{10, 10, 30, 50}}},
	}, &width, &health)

	full := image.NewRGBA(image.Rect(0, 0, 200, 100))
	crop := full.SubImage(image.Rect(50, 20, 150, 100))

	d := NewHTTPDetector(srv.URL, DefaultOptions())
	got, err := d.Detect(context.Background(), crop)
	require.NoError(t, err)

	assert.Equal(t, 100, width)
	assert.Equal(t, []tracking.BoundingBox{{X: 60, Y: 30, Width: 20, Height: 40}}, got)
}

func TestHTTPDetector_ServiceError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	d := NewHTTPDetector(srv.URL, DefaultOptions())
	_, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 10, 10)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestHTTPDetector_HealthIsCached(t *testing.T) {
	t.Parallel()
	var width int
	var health atomic.Int32
	srv := newDetectServer(t, DetectResponse{}, &width, &health)

	d := NewHTTPDetector(srv.URL, DefaultOptions())
	require.NoError(t, d.Health(context.Background()))
	require.NoError(t, d.Health(context.Background()))
	assert.Equal(t, int32(1), health.Load())
}

func TestHTTPDetector_HealthFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	d := NewHTTPDetector(srv.URL, DefaultOptions())
	err := d.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestHTTPDetector_TransportErrorDropsHealthCache(t *testing.T) {
	t.Parallel()
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, "").
		AddErrorResponse(errors.New("connection reset")).
		AddResponse(http.StatusOK, "").
		AddJSONResponse(http.StatusOK, DetectResponse{Detections: []Detection{
			{Class: "person", Confidence: 0.8, BBox: []float32{1, 2, 11, 22}},
		}})

	d := NewHTTPDetector("http://detector", DefaultOptions()).WithClient(mock)
	ctx := context.Background()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))

	require.NoError(t, d.Health(ctx))
	_, err := d.Detect(ctx, img)
	require.ErrorContains(t, err, "connection reset")

	require.NoError(t, d.Health(ctx))
	assert.Equal(t, 3, mock.RequestCount(), "health must be re-checked after a failed request")

	got, err := d.Detect(ctx, img)
	require.NoError(t, err)
	assert.Equal(t, []tracking.BoundingBox{{X: 1, Y: 2, Width: 10, Height: 20}}, got)

	req, body := mock.Request(3)
	require.NotNil(t, req)
	assert.Equal(t, "/detect", req.URL.Path)
	assert.Contains(t, string(body), `name="conf_threshold"`)
	assert.Contains(t, string(body), "0.50")
}

func TestHTTPDetector_HealthCacheExpires(t *testing.T) {
	t.Parallel()
	mock := httputil.NewMockHTTPClient()
	clock := timeutil.NewMockClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	d := NewHTTPDetector("http://detector", DefaultOptions()).WithClient(mock).WithClock(clock)
	ctx := context.Background()

	require.NoError(t, d.Health(ctx))
	clock.Advance(29 * time.Second)
	require.NoError(t, d.Health(ctx))
	assert.Equal(t, 1, mock.RequestCount(), "cached within 30s")

	clock.Advance(2 * time.Second)
	require.NoError(t, d.Health(ctx))
	assert.Equal(t, 2, mock.RequestCount(), "re-checked after 30s")
}
