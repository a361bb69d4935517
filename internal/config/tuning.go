package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// Built-in defaults, used by the Get* accessors when a key is absent.
const (
	DefaultMaxDisappeared     = 50
	DefaultMaxMatchDistance   = 50.0
	DefaultSampleStride       = 5
	DefaultFrameRate          = 25.0
	DefaultDetectorConfidence = 0.5
	DefaultDetectorMaxWidth   = 640
	DefaultDetectorTimeout    = 15 * time.Second
	DefaultDetectorClass      = "person"
)

// TuningConfig is the root configuration for the tracking pipeline. Every
// field is optional; absent fields fall back to the defaults above so partial
// files are safe.
type TuningConfig struct {
	// Tracker params
	MaxDisappeared   *int     `json:"max_disappeared,omitempty"`
	MaxMatchDistance *float64 `json:"max_match_distance,omitempty"`

	// Pipeline params. Skipped frames do not age tracks, so the occlusion
	// tolerance in source frames is max_disappeared * sample_stride.
	SampleStride *int `json:"sample_stride,omitempty"`
	// FrameRate is the capture rate of recorded frame directories. Batch
	// runs derive visit timestamps from frame index / frame_rate.
	FrameRate *float64 `json:"frame_rate,omitempty"`

	// Detector params
	DetectorConfidence *float64 `json:"detector_confidence,omitempty"`
	DetectorMaxWidth   *int     `json:"detector_max_width,omitempty"`
	DetectorTimeout    *string  `json:"detector_timeout,omitempty"` // duration string like "15s"
	DetectorClass      *string  `json:"detector_class,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated from
// the built-in defaults.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		MaxDisappeared:     ptrInt(DefaultMaxDisappeared),
		MaxMatchDistance:   ptrFloat64(DefaultMaxMatchDistance),
		SampleStride:       ptrInt(DefaultSampleStride),
		FrameRate:          ptrFloat64(DefaultFrameRate),
		DetectorConfidence: ptrFloat64(DefaultDetectorConfidence),
		DetectorMaxWidth:   ptrInt(DefaultDetectorMaxWidth),
		DetectorTimeout:    ptrString(DefaultDetectorTimeout.String()),
		DetectorClass:      ptrString(DefaultDetectorClass),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file cannot
// be loaded; intended for tests and binaries started from the repository.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.MaxDisappeared != nil && *c.MaxDisappeared < 0 {
		return fmt.Errorf("max_disappeared must be non-negative, got %d", *c.MaxDisappeared)
	}
	if c.MaxMatchDistance != nil && *c.MaxMatchDistance <= 0 {
		return fmt.Errorf("max_match_distance must be positive, got %f", *c.MaxMatchDistance)
	}
	if c.SampleStride != nil && *c.SampleStride < 1 {
		return fmt.Errorf("sample_stride must be at least 1, got %d", *c.SampleStride)
	}
	if c.FrameRate != nil && *c.FrameRate <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %f", *c.FrameRate)
	}
	if c.DetectorConfidence != nil {
		if *c.DetectorConfidence < 0 || *c.DetectorConfidence > 1 {
			return fmt.Errorf("detector_confidence must be between 0 and 1, got %f", *c.DetectorConfidence)
		}
	}
	if c.DetectorMaxWidth != nil && *c.DetectorMaxWidth < 0 {
		return fmt.Errorf("detector_max_width must be non-negative, got %d", *c.DetectorMaxWidth)
	}
	if c.DetectorTimeout != nil && *c.DetectorTimeout != "" {
		if _, err := time.ParseDuration(*c.DetectorTimeout); err != nil {
			return fmt.Errorf("invalid detector_timeout '%s': %w", *c.DetectorTimeout, err)
		}
	}
	return nil
}

// GetMaxDisappeared returns the max_disappeared value or the default.
func (c *TuningConfig) GetMaxDisappeared() int {
	if c.MaxDisappeared == nil {
		return DefaultMaxDisappeared
	}
	return *c.MaxDisappeared
}

// GetMaxMatchDistance returns the max_match_distance value or the default.
func (c *TuningConfig) GetMaxMatchDistance() float64 {
	if c.MaxMatchDistance == nil {
		return DefaultMaxMatchDistance
	}
	return *c.MaxMatchDistance
}

// GetSampleStride returns the sample_stride value or the default.
func (c *TuningConfig) GetSampleStride() int {
	if c.SampleStride == nil {
		return DefaultSampleStride
	}
	return *c.SampleStride
}

// GetEffectiveOcclusionFrames returns how many source frames a track survives
// without a match: max_disappeared sampled frames, each standing in for
// sample_stride source frames.
func (c *TuningConfig) GetEffectiveOcclusionFrames() int {
	return c.GetMaxDisappeared() * c.GetSampleStride()
}

// GetFrameRate returns the frame_rate value or the default.
func (c *TuningConfig) GetFrameRate() float64 {
	if c.FrameRate == nil {
		return DefaultFrameRate
	}
	return *c.FrameRate
}

// GetDetectorConfidence returns the detector_confidence value or the default.
func (c *TuningConfig) GetDetectorConfidence() float64 {
	if c.DetectorConfidence == nil {
		return DefaultDetectorConfidence
	}
	return *c.DetectorConfidence
}

// GetDetectorMaxWidth returns the detector_max_width value or the default.
// Zero disables downscaling.
func (c *TuningConfig) GetDetectorMaxWidth() int {
	if c.DetectorMaxWidth == nil {
		return DefaultDetectorMaxWidth
	}
	return *c.DetectorMaxWidth
}

// GetDetectorTimeout parses and returns the DetectorTimeout as a time.Duration.
func (c *TuningConfig) GetDetectorTimeout() time.Duration {
	if c.DetectorTimeout == nil || *c.DetectorTimeout == "" {
		return DefaultDetectorTimeout
	}
	d, err := time.ParseDuration(*c.DetectorTimeout)
	if err != nil {
		return DefaultDetectorTimeout // default on parse error
	}
	return d
}

// GetDetectorClass returns the detector_class value or the default.
func (c *TuningConfig) GetDetectorClass() string {
	if c.DetectorClass == nil || *c.DetectorClass == "" {
		return DefaultDetectorClass
	}
	return *c.DetectorClass
}
