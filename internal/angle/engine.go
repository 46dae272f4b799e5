// Package angle converts anatomical landmark triplets into signed joint
// angles measured against a fixed vertical reference. The vertical points
// down the image (anatomical zero: limb hanging at rest reads 0°, overhead
// reads 180°), matching the goniometric convention the exercise bands are
// written in.
package angle

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/biotrack-data/motion.report/internal/config"
	"github.com/biotrack-data/motion.report/internal/exercise"
	"github.com/biotrack-data/motion.report/internal/orientation"
	"github.com/biotrack-data/motion.report/internal/pose"
)

// ErrInsufficientData marks a frame that cannot produce a trustworthy
// measurement: missing or low-confidence landmarks, a degenerate segment, or
// an orientation mismatch. Callers skip statistics for the frame and may
// surface a reposition hint; the error never escalates past the frame.
var ErrInsufficientData = errors.New("insufficient data for angle measurement")

// Vec2 is a 2-D vector in normalized image coordinates (Y grows downward).
type Vec2 struct {
	X, Y float64
}

// Dot returns the dot product.
func (v Vec2) Dot(o Vec2) float64 { return v.X*o.X + v.Y*o.Y }

// Cross returns the scalar 2-D cross product; its sign encodes which side of
// v the vector o falls on.
func (v Vec2) Cross(o Vec2) float64 { return v.X*o.Y - v.Y*o.X }

// Norm returns the vector's length.
func (v Vec2) Norm() float64 { return math.Hypot(v.X, v.Y) }

// verticalReference is the fixed anatomical-zero direction: straight down
// the image, along gravity for an upright subject.
var verticalReference = Vec2{X: 0, Y: 1}

// Sample is one measurement: a signed angle in degrees for one side, under
// the orientation it was computed in. Ephemeral; consumed by the smoother.
type Sample struct {
	Side        exercise.Side
	Degrees     float64 // signed; positive is the exercise's PositiveLabel direction
	Timestamp   time.Time
	Confidence  float64
	Orientation orientation.State
}

// Magnitude returns the unsigned goniometer reading in [0°, 180°].
func (s Sample) Magnitude() float64 { return math.Abs(s.Degrees) }

// Direction returns the display label for the sample's sign.
func (s Sample) Direction(def *exercise.Definition) string {
	if s.Degrees < 0 {
		return def.NegativeLabel
	}
	return def.PositiveLabel
}

// Engine computes per-side samples for an exercise definition.
type Engine struct {
	minVisibility    float64
	minSegmentLength float64
}

// NewEngine creates an engine with explicit floors. Segments shorter than
// minSegmentLength (normalized units) are rejected as degenerate.
func NewEngine(minVisibility, minSegmentLength float64) *Engine {
	return &Engine{minVisibility: minVisibility, minSegmentLength: minSegmentLength}
}

// EngineFromTuning builds an Engine from a loaded TuningConfig.
func EngineFromTuning(cfg *config.TuningConfig) *Engine {
	return NewEngine(cfg.GetLandmarkMinVisibility(), cfg.GetMinSegmentLength())
}

// Compute measures every side the definition configures. A side whose
// landmarks fail the visibility floor is skipped; if the frame's orientation
// does not match the exercise's requirement, or no side is measurable, the
// frame yields ErrInsufficientData.
func (e *Engine) Compute(frame pose.Frame, def *exercise.Definition, state orientation.State) ([]Sample, error) {
	if state != def.RequiredOrientation {
		return nil, fmt.Errorf("%w: orientation %s does not match required %s",
			ErrInsufficientData, state, def.RequiredOrientation)
	}

	var samples []Sample
	for _, side := range def.SideOrder() {
		triplet := def.Sides[side]
		sample, ok := e.computeSide(frame, triplet, side, state)
		if !ok {
			continue
		}
		samples = append(samples, sample)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no measurable side", ErrInsufficientData)
	}
	return samples, nil
}

func (e *Engine) computeSide(frame pose.Frame, t exercise.Triplet, side exercise.Side, state orientation.State) (Sample, bool) {
	for _, idx := range []int{t.Proximal, t.Pivot, t.Distal} {
		if !frame.Visible(idx, e.minVisibility) {
			return Sample{}, false
		}
	}

	pivot := frame.Landmarks[t.Pivot]
	distal := frame.Landmarks[t.Distal]
	moving := Vec2{X: distal.X - pivot.X, Y: distal.Y - pivot.Y}
	if moving.Norm() < e.minSegmentLength {
		return Sample{}, false
	}

	degrees := SignedAngle(verticalReference, moving)

	conf := frame.Landmarks[t.Proximal].Visibility
	for _, idx := range []int{t.Pivot, t.Distal} {
		if v := frame.Landmarks[idx].Visibility; v < conf {
			conf = v
		}
	}

	return Sample{
		Side:        side,
		Degrees:     degrees,
		Timestamp:   frame.Timestamp,
		Confidence:  conf,
		Orientation: state,
	}, true
}

// SignedAngle returns the angle from ref to v in degrees. The magnitude is
// acos of the normalized dot product, always in [0, 180]; the sign comes
// from the 2-D cross product, so it flips exactly when v crosses the
// reference line.
func SignedAngle(ref, v Vec2) float64 {
	refNorm := ref.Norm()
	vNorm := v.Norm()
	if refNorm == 0 || vNorm == 0 {
		return 0
	}

	cos := ref.Dot(v) / (refNorm * vNorm)
	// Clamp: accumulated float error can push the ratio a hair past ±1.
	cos = math.Max(-1, math.Min(1, cos))
	degrees := math.Acos(cos) * 180 / math.Pi

	if ref.Cross(v) < 0 {
		return -degrees
	}
	return degrees
}
