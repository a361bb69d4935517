package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/oskar-77/OskarTrackSystem33/internal/config"
	"github.com/oskar-77/OskarTrackSystem33/internal/tracking"
	"github.com/oskar-77/OskarTrackSystem33/internal/zones"
)

// DefaultStride is the default frame sampling stride.
const DefaultStride = config.DefaultSampleStride

// Detector finds people in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]tracking.BoundingBox, error)
}

// DetectorFunc adapts a function to a Detector.
type DetectorFunc func(ctx context.Context, img image.Image) ([]tracking.BoundingBox, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]tracking.BoundingBox, error) {
	return f(ctx, img)
}

// FrameSource yields decoded frames in order. Next returns io.EOF after the
// last frame.
type FrameSource interface {
	Next(ctx context.Context) (image.Image, error)
}

// FramePipeline runs detections through a tracker and resolves every
// resulting track to a zone.
type FramePipeline struct {
	tracker *tracking.Tracker
	index   *zones.Index
	stride  int
	sink    ResultSink
}

// Option configures a FramePipeline.
type Option func(*FramePipeline)

// WithStride sets the sampling stride used by RunSampled. Values below 1
// are treated as 1.
func WithStride(n int) Option {
	return func(p *FramePipeline) {
		if n < 1 {
			n = 1
		}
		p.stride = n
	}
}

// WithSink sets the sink that receives every processed frame.
func WithSink(s ResultSink) Option {
	return func(p *FramePipeline) { p.sink = s }
}

// OptionsFromTuning returns the options derived from a tuning config.
func OptionsFromTuning(cfg *config.TuningConfig) []Option {
	return []Option{WithStride(cfg.GetSampleStride())}
}

// New creates a pipeline around tracker and index.
func New(tracker *tracking.Tracker, index *zones.Index, opts ...Option) *FramePipeline {
	p := &FramePipeline{
		tracker: tracker,
		index:   index,
		stride:  DefaultStride,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tracker returns the pipeline's tracker.
func (p *FramePipeline) Tracker() *tracking.Tracker { return p.tracker }

// Index returns the pipeline's zone index.
func (p *FramePipeline) Index() *zones.Index { return p.index }

// Stride returns the sampling stride.
func (p *FramePipeline) Stride() int { return p.stride }

// EffectiveOcclusionFrames returns how many raw frames a track can go
// unseen before it expires when driven by RunSampled.
func (p *FramePipeline) EffectiveOcclusionFrames() int {
	return p.tracker.Config.MaxDisappeared * p.stride
}

// Process updates the tracker with one frame of detections and resolves the
// zone of every live track. Invalid detections reject the frame and leave
// the tracker unchanged.
func (p *FramePipeline) Process(dets []tracking.BoundingBox) (*FrameResult, error) {
	tracks, err := p.tracker.Update(dets)
	if err != nil {
		return nil, err
	}

	res := &FrameResult{
		Tracks:         tracks,
		ZoneOf:         make(map[int]*int, len(tracks)),
		DetectionCount: len(dets),
	}
	for id, c := range tracks {
		if zid, ok := p.index.Resolve(c.Point()); ok {
			res.ZoneOf[id] = &zid
		} else {
			res.ZoneOf[id] = nil
		}
	}
	return res, nil
}

// ProcessImage runs det on img and processes the boxes it returns.
func (p *FramePipeline) ProcessImage(ctx context.Context, det Detector, img image.Image) (*FrameResult, error) {
	dets, err := det.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	return p.Process(dets)
}

// RunSampled reads frames from src until io.EOF and processes every frame
// whose index is a multiple of the stride. Skipped frames reach neither
// the detector nor the tracker. handler, if non-nil, and the configured
// sink receive each processed result. It returns the number of frames
// processed.
//
// A detector error or invalid detection aborts the run. Context
// cancellation is checked between frames.
func (p *FramePipeline) RunSampled(ctx context.Context, src FrameSource, det Detector, handler func(frameIndex int, res *FrameResult)) (int, error) {
	diagf("sampled run starting: stride=%d occlusion_frames=%d", p.stride, p.EffectiveOcclusionFrames())

	processed := 0
	for frameIndex := 0; ; frameIndex++ {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		img, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			diagf("sampled run finished: frames=%d processed=%d", frameIndex, processed)
			return processed, nil
		}
		if err != nil {
			opsf("frame %d: read failed: %v", frameIndex, err)
			return processed, fmt.Errorf("read frame %d: %w", frameIndex, err)
		}
		if frameIndex%p.stride != 0 {
			continue
		}

		res, err := p.ProcessImage(ctx, det, img)
		if err != nil {
			opsf("frame %d: %v", frameIndex, err)
			return processed, fmt.Errorf("frame %d: %w", frameIndex, err)
		}
		processed++
		tracef("frame %d: detections=%d tracks=%d", frameIndex, res.DetectionCount, len(res.Tracks))

		if handler != nil {
			handler(frameIndex, res)
		}
		if p.sink != nil {
			p.sink.OnFrameResult(frameIndex, res)
		}
	}
}

// Reset drops every track and tells the sink, if it implements ResetSink.
// Track ids keep counting from where they were.
func (p *FramePipeline) Reset() {
	p.tracker.Reset()
	if rs, ok := p.sink.(ResetSink); ok {
		rs.OnTrackerReset()
	}
	opsf("tracker reset: next id %d", p.tracker.NextID())
}

// Emit hands an externally produced result to the configured sink. The API
// uses it for frames processed through Process directly.
func (p *FramePipeline) Emit(frameIndex int, res *FrameResult) {
	if p.sink != nil {
		p.sink.OnFrameResult(frameIndex, res)
	}
}
