package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The orientation thresholds and the smoothing window were tuned empirically
// against recorded landmark traces; treat them as configuration, not
// invariants.
type TuningConfig struct {
	// Orientation classifier params
	ProfileMinDepthGap       *float64 `json:"profile_min_depth_gap,omitempty"`
	ProfileMaxLateralGap     *float64 `json:"profile_max_lateral_gap,omitempty"`
	FrontalMaxDepthGap       *float64 `json:"frontal_max_depth_gap,omitempty"`
	FrontalMinLateralGap     *float64 `json:"frontal_min_lateral_gap,omitempty"`
	ShoulderMinVisibility    *float64 `json:"shoulder_min_visibility,omitempty"`
	OrientationConfirmFrames *int     `json:"orientation_confirm_frames,omitempty"`

	// Angle engine params
	LandmarkMinVisibility *float64 `json:"landmark_min_visibility,omitempty"`
	MinSegmentLength      *float64 `json:"min_segment_length,omitempty"`

	// Smoothing params
	SmoothingWindow     *int `json:"smoothing_window,omitempty"`
	SmoothingMinSamples *int `json:"smoothing_min_samples,omitempty"`

	// Worker queue capacities
	NarrationQueueSize *int `json:"narration_queue_size,omitempty"`
	ActuatorQueueSize  *int `json:"actuator_queue_size,omitempty"`

	// Runner params
	FrameInterval *string `json:"frame_interval,omitempty"` // duration string like "33ms"
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
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

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	for name, v := range map[string]*float64{
		"profile_min_depth_gap":   c.ProfileMinDepthGap,
		"profile_max_lateral_gap": c.ProfileMaxLateralGap,
		"frontal_max_depth_gap":   c.FrontalMaxDepthGap,
		"frontal_min_lateral_gap": c.FrontalMinLateralGap,
		"shoulder_min_visibility": c.ShoulderMinVisibility,
		"landmark_min_visibility": c.LandmarkMinVisibility,
	} {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
		}
	}

	if c.SmoothingWindow != nil && *c.SmoothingWindow < 1 {
		return fmt.Errorf("smoothing_window must be positive, got %d", *c.SmoothingWindow)
	}
	if c.SmoothingMinSamples != nil && *c.SmoothingMinSamples < 1 {
		return fmt.Errorf("smoothing_min_samples must be positive, got %d", *c.SmoothingMinSamples)
	}
	if c.OrientationConfirmFrames != nil && *c.OrientationConfirmFrames < 1 {
		return fmt.Errorf("orientation_confirm_frames must be positive, got %d", *c.OrientationConfirmFrames)
	}
	if c.NarrationQueueSize != nil && *c.NarrationQueueSize < 1 {
		return fmt.Errorf("narration_queue_size must be positive, got %d", *c.NarrationQueueSize)
	}
	if c.ActuatorQueueSize != nil && *c.ActuatorQueueSize < 1 {
		return fmt.Errorf("actuator_queue_size must be positive, got %d", *c.ActuatorQueueSize)
	}

	if c.FrameInterval != nil && *c.FrameInterval != "" {
		if _, err := time.ParseDuration(*c.FrameInterval); err != nil {
			return fmt.Errorf("invalid frame_interval '%s': %w", *c.FrameInterval, err)
		}
	}

	return nil
}

// GetProfileMinDepthGap returns the profile_min_depth_gap value or the default.
func (c *TuningConfig) GetProfileMinDepthGap() float64 {
	if c.ProfileMinDepthGap == nil {
		return 0.25
	}
	return *c.ProfileMinDepthGap
}

// GetProfileMaxLateralGap returns the profile_max_lateral_gap value or the default.
func (c *TuningConfig) GetProfileMaxLateralGap() float64 {
	if c.ProfileMaxLateralGap == nil {
		return 0.08
	}
	return *c.ProfileMaxLateralGap
}

// GetFrontalMaxDepthGap returns the frontal_max_depth_gap value or the default.
func (c *TuningConfig) GetFrontalMaxDepthGap() float64 {
	if c.FrontalMaxDepthGap == nil {
		return 0.15
	}
	return *c.FrontalMaxDepthGap
}

// GetFrontalMinLateralGap returns the frontal_min_lateral_gap value or the default.
func (c *TuningConfig) GetFrontalMinLateralGap() float64 {
	if c.FrontalMinLateralGap == nil {
		return 0.14
	}
	return *c.FrontalMinLateralGap
}

// GetShoulderMinVisibility returns the shoulder_min_visibility value or the default.
func (c *TuningConfig) GetShoulderMinVisibility() float64 {
	if c.ShoulderMinVisibility == nil {
		return 0.6
	}
	return *c.ShoulderMinVisibility
}

// GetOrientationConfirmFrames returns the orientation_confirm_frames value or the default.
func (c *TuningConfig) GetOrientationConfirmFrames() int {
	if c.OrientationConfirmFrames == nil {
		return 12
	}
	return *c.OrientationConfirmFrames
}

// GetLandmarkMinVisibility returns the landmark_min_visibility value or the default.
func (c *TuningConfig) GetLandmarkMinVisibility() float64 {
	if c.LandmarkMinVisibility == nil {
		return 0.3
	}
	return *c.LandmarkMinVisibility
}

// GetMinSegmentLength returns the min_segment_length value or the default.
// Segments shorter than this (in normalized image units) are too noisy to
// measure against the fixed reference.
func (c *TuningConfig) GetMinSegmentLength() float64 {
	if c.MinSegmentLength == nil {
		return 0.02
	}
	return *c.MinSegmentLength
}

// GetSmoothingWindow returns the smoothing_window value or the default.
func (c *TuningConfig) GetSmoothingWindow() int {
	if c.SmoothingWindow == nil {
		return 5
	}
	return *c.SmoothingWindow
}

// GetSmoothingMinSamples returns the smoothing_min_samples value or the default.
func (c *TuningConfig) GetSmoothingMinSamples() int {
	if c.SmoothingMinSamples == nil {
		return 3
	}
	return *c.SmoothingMinSamples
}

// GetNarrationQueueSize returns the narration_queue_size value or the default.
func (c *TuningConfig) GetNarrationQueueSize() int {
	if c.NarrationQueueSize == nil {
		return 32
	}
	return *c.NarrationQueueSize
}

// GetActuatorQueueSize returns the actuator_queue_size value or the default.
func (c *TuningConfig) GetActuatorQueueSize() int {
	if c.ActuatorQueueSize == nil {
		return 8
	}
	return *c.ActuatorQueueSize
}

// GetFrameInterval parses and returns the FrameInterval as a time.Duration.
func (c *TuningConfig) GetFrameInterval() time.Duration {
	if c.FrameInterval == nil || *c.FrameInterval == "" {
		return 33 * time.Millisecond // ~30fps
	}
	d, err := time.ParseDuration(*c.FrameInterval)
	if err != nil {
		return 33 * time.Millisecond
	}
	return d
}
