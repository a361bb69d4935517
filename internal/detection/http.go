package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/oskar-77/OskarTrackSystem33/internal/httputil"
	"github.com/oskar-77/OskarTrackSystem33/internal/timeutil"
	"github.com/oskar-77/OskarTrackSystem33/internal/tracking"
)

// healthCacheTTL is how long a successful health check is trusted.
const healthCacheTTL = 30 * time.Second

// HTTPDetector posts frames to an inference service's /detect endpoint as
// multipart JPEG uploads.
type HTTPDetector struct {
	endpoint string
	opts     Options
	client   httputil.HTTPClient
	clock    timeutil.Clock

	mu          sync.Mutex
	lastHealthy time.Time
}

// NewHTTPDetector creates a detector for the service at endpoint, e.g.
// "http://localhost:8081".
func NewHTTPDetector(endpoint string, opts Options) *HTTPDetector {
	return &HTTPDetector{
		endpoint: strings.TrimRight(endpoint, "/"),
		opts:     opts,
		client:   httputil.NewStandardClient(opts.Timeout),
		clock:    timeutil.RealClock{},
	}
}

// WithClock replaces the clock used for the health cache.
func (d *HTTPDetector) WithClock(c timeutil.Clock) *HTTPDetector {
	d.clock = c
	return d
}

// WithClient replaces the HTTP client used for requests.
func (d *HTTPDetector) WithClient(c httputil.HTTPClient) *HTTPDetector {
	d.client = c
	return d
}

// Health checks the service's /health endpoint. Successes are cached for
// 30 seconds.
func (d *HTTPDetector) Health(ctx context.Context) error {
	d.mu.Lock()
	if !d.lastHealthy.IsZero() && d.clock.Since(d.lastHealthy) < healthCacheTTL {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		d.markUnhealthy()
		return fmt.Errorf("detector health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.markUnhealthy()
		return fmt.Errorf("detector health check returned status %d", resp.StatusCode)
	}
	d.mu.Lock()
	d.lastHealthy = d.clock.Now()
	d.mu.Unlock()
	return nil
}

func (d *HTTPDetector) markUnhealthy() {
	d.mu.Lock()
	d.lastHealthy = time.Time{}
	d.mu.Unlock()
}

// Detect uploads img and returns the person boxes in img's pixel space.
func (d *HTTPDetector) Detect(ctx context.Context, img image.Image) ([]tracking.BoundingBox, error) {
	frame, scale := prepareFrame(img, d.opts.MaxWidth)
	data, err := encodeJPEG(frame, d.opts.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	fw, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	if err := w.WriteField("conf_threshold", fmt.Sprintf("%.2f", d.opts.Confidence)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/detect", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		d.markUnhealthy()
		return nil, fmt.Errorf("detect request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("detection failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result DetectResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode detection response: %w", err)
	}
	return toBoxes(result.Detections, d.opts, scale, img.Bounds().Min), nil
}
