// Package orientation decides which anatomical plane the subject is
// presenting to the camera. The decision gates which angle geometry is valid,
// so it runs on every frame and never fails: missing or low-confidence
// landmarks simply yield Unknown.
package orientation

import (
	"math"

	"github.com/biotrack-data/motion.report/internal/config"
	"github.com/biotrack-data/motion.report/internal/pose"
)

// State is the current belief about the subject's presentation.
type State string

const (
	// Sagittal: subject in profile, flexion/extension geometry applies.
	Sagittal State = "sagittal"
	// Frontal: subject facing the camera, abduction/adduction geometry applies.
	Frontal State = "frontal"
	// Unknown: between planes, or insufficient landmark data.
	Unknown State = "unknown"
)

// Thresholds govern the classification. Values come from tuning config; see
// config/tuning.defaults.json for the empirically tuned defaults.
type Thresholds struct {
	ProfileMinDepthGap   float64 // shoulder z separation above which profile is plausible
	ProfileMaxLateralGap float64 // shoulder x separation below which profile is plausible
	FrontalMaxDepthGap   float64 // shoulder z separation below which frontal is plausible
	FrontalMinLateralGap float64 // shoulder x separation above which frontal is plausible
	MinVisibility        float64 // floor for both shoulder landmarks
}

// ThresholdsFromTuning builds Thresholds from a loaded TuningConfig.
func ThresholdsFromTuning(cfg *config.TuningConfig) Thresholds {
	return Thresholds{
		ProfileMinDepthGap:   cfg.GetProfileMinDepthGap(),
		ProfileMaxLateralGap: cfg.GetProfileMaxLateralGap(),
		FrontalMaxDepthGap:   cfg.GetFrontalMaxDepthGap(),
		FrontalMinLateralGap: cfg.GetFrontalMinLateralGap(),
		MinVisibility:        cfg.GetShoulderMinVisibility(),
	}
}

// Classifier tags frames with an orientation state.
type Classifier struct {
	t Thresholds
}

// NewClassifier creates a classifier with the given thresholds.
func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{t: t}
}

// Classify derives the orientation from the symmetric shoulder pair. In
// profile one shoulder sits well behind the other (large depth gap, small
// lateral gap); facing the camera the shoulders sit side by side (small depth
// gap, large lateral gap). Both comparisons use absolute differences, so the
// verdict is unchanged under left/right mirroring.
func (c *Classifier) Classify(frame pose.Frame) State {
	if !frame.Visible(pose.LeftShoulder, c.t.MinVisibility) ||
		!frame.Visible(pose.RightShoulder, c.t.MinVisibility) {
		return Unknown
	}

	left := frame.Landmarks[pose.LeftShoulder]
	right := frame.Landmarks[pose.RightShoulder]
	depthGap := math.Abs(left.Z - right.Z)
	lateralGap := math.Abs(left.X - right.X)

	switch {
	case depthGap > c.t.ProfileMinDepthGap && lateralGap < c.t.ProfileMaxLateralGap:
		return Sagittal
	case depthGap < c.t.FrontalMaxDepthGap && lateralGap > c.t.FrontalMinLateralGap:
		return Frontal
	default:
		return Unknown
	}
}

// Confirmer tracks agreement between the classifier's per-frame verdicts and
// a required orientation. The session machine holds the Positioning phase
// until the requirement has held for a sustained run of frames, which
// filters out transient false positives from landmark jitter.
type Confirmer struct {
	required State
	need     int
	run      int
}

// NewConfirmer requires need consecutive frames matching required.
func NewConfirmer(required State, need int) *Confirmer {
	if need < 1 {
		need = 1
	}
	return &Confirmer{required: required, need: need}
}

// Observe feeds one frame's verdict and reports whether the requirement is
// now confirmed. A mismatching frame resets the run.
func (c *Confirmer) Observe(s State) bool {
	if s == c.required {
		c.run++
	} else {
		c.run = 0
	}
	return c.Confirmed()
}

// Confirmed reports whether the required orientation has held long enough.
func (c *Confirmer) Confirmed() bool {
	return c.run >= c.need
}

// Reset clears the confirmation run.
func (c *Confirmer) Reset() {
	c.run = 0
}
