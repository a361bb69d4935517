// Package detection provides person detectors backed by an external
// inference service, reachable over HTTP or gRPC.
package detection

import (
	"bytes"
	"image"
	"image/jpeg"
	"time"

	"golang.org/x/image/draw"

	"github.com/oskar-77/OskarTrackSystem33/internal/config"
	"github.com/oskar-77/OskarTrackSystem33/internal/monitoring"
	"github.com/oskar-77/OskarTrackSystem33/internal/tracking"
)

var logf = monitoring.Component("detection")

// Detection is one object reported by the inference service.
type Detection struct {
	Class      string    `json:"class"`
	ClassID    int       `json:"class_id"`
	Confidence float32   `json:"confidence"`
	BBox       []float32 `json:"bbox"` // [x1, y1, x2, y2]
}

// DetectResponse is the inference service's reply.
type DetectResponse struct {
	Detections      []Detection `json:"detections"`
	Count           int         `json:"count"`
	InferenceTimeMs float32     `json:"inference_time_ms"`
	Device          string      `json:"device,omitempty"`
}

// Options controls how frames are sent and which detections are kept.
type Options struct {
	// Confidence is the threshold a detection must exceed to be kept.
	Confidence float64
	// MaxWidth downscales wider frames before encoding. Zero disables.
	MaxWidth int
	// Class is the detection class kept, e.g. "person".
	Class string
	// Timeout bounds each request.
	Timeout time.Duration
	// JPEGQuality is the encoder quality for uploaded frames.
	JPEGQuality int
}

// DefaultOptions returns the detector defaults.
func DefaultOptions() Options {
	return OptionsFromTuning(config.DefaultTuningConfig())
}

// OptionsFromTuning builds detector Options from a tuning config.
func OptionsFromTuning(cfg *config.TuningConfig) Options {
	return Options{
		Confidence:  cfg.GetDetectorConfidence(),
		MaxWidth:    cfg.GetDetectorMaxWidth(),
		Class:       cfg.GetDetectorClass(),
		Timeout:     cfg.GetDetectorTimeout(),
		JPEGQuality: 85,
	}
}

// prepareFrame downscales img to at most maxWidth pixels wide, keeping the
// aspect ratio. It returns the image to send and the factor that maps its
// coordinates back to img.
func prepareFrame(img image.Image, maxWidth int) (image.Image, float64) {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img, 1
	}
	scale := float64(maxWidth) / float64(b.Dx())
	h := int(float64(b.Dy()) * scale)
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, scale
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// toBoxes keeps detections of the wanted class above the confidence
// threshold and converts their corner boxes to source-image pixels. The
// service sees the frame with its top-left corner at (0,0), so boxes are
// shifted back by origin. Degenerate boxes are dropped.
func toBoxes(dets []Detection, opts Options, scale float64, origin image.Point) []tracking.BoundingBox {
	out := make([]tracking.BoundingBox, 0, len(dets))
	for _, d := range dets {
		if opts.Class != "" && d.Class != opts.Class {
			continue
		}
		if float64(d.Confidence) <= opts.Confidence {
			continue
		}
		if len(d.BBox) != 4 {
			logf("dropping %s detection with %d bbox values", d.Class, len(d.BBox))
			continue
		}
		x1, y1 := float64(d.BBox[0])/scale, float64(d.BBox[1])/scale
		x2, y2 := float64(d.BBox[2])/scale, float64(d.BBox[3])/scale
		out = append(out, tracking.BoundingBox{
			X:      origin.X + int(x1),
			Y:      origin.Y + int(y1),
			Width:  int(x2 - x1),
			Height: int(y2 - y1),
		})
	}
	return tracking.FilterValid(out)
}
