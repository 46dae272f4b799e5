package angle

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biotrack-data/motion.report/internal/exercise"
	"github.com/biotrack-data/motion.report/internal/orientation"
	"github.com/biotrack-data/motion.report/internal/pose"
)

func testEngine() *Engine {
	return NewEngine(0.3, 0.02)
}

// shoulderDef is a single-sided sagittal shoulder exercise: hip, shoulder,
// elbow on the right side.
func shoulderDef() *exercise.Definition {
	return &exercise.Definition{
		ID:                  "shoulder_flexion",
		RequiredOrientation: orientation.Sagittal,
		Sides: map[exercise.Side]exercise.Triplet{
			exercise.Right: {Proximal: pose.RightHip, Pivot: pose.RightShoulder, Distal: pose.RightElbow},
		},
		PositiveLabel: "flexion",
		NegativeLabel: "extension",
	}
}

// frameWithArm places the right hip, shoulder, and elbow; the elbow is set
// relative to the shoulder by (dx, dy) in normalized image coordinates.
func frameWithArm(dx, dy float64) pose.Frame {
	var f pose.Frame
	f.Detected = true
	f.Timestamp = time.Unix(100, 0)
	set := func(idx int, x, y float64) {
		f.Landmarks[idx] = pose.Landmark{X: x, Y: y, Visibility: 0.95}
	}
	set(pose.RightHip, 0.5, 0.6)
	set(pose.RightShoulder, 0.5, 0.4)
	set(pose.RightElbow, 0.5+dx, 0.4+dy)
	return f
}

func TestComputeVerticalReferenceScenarios(t *testing.T) {
	tests := []struct {
		name    string
		dx, dy  float64
		wantMag float64
	}{
		{"arm hanging straight down", 0, 0.2, 0},
		{"arm raised horizontal", 0.2, 0, 90},
		{"arm overhead", 0, -0.2, 180},
		{"arm at forty-five degrees", 0.2, 0.2, 45},
	}
	e := testEngine()
	def := shoulderDef()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples, err := e.Compute(frameWithArm(tt.dx, tt.dy), def, orientation.Sagittal)
			require.NoError(t, err)
			require.Len(t, samples, 1)
			assert.InDelta(t, tt.wantMag, samples[0].Magnitude(), 0.01)
			assert.Equal(t, exercise.Right, samples[0].Side)
		})
	}
}

func TestComputeSignFlipsAcrossReference(t *testing.T) {
	e := testEngine()
	def := shoulderDef()

	forward, err := e.Compute(frameWithArm(0.2, 0.1), def, orientation.Sagittal)
	require.NoError(t, err)
	backward, err := e.Compute(frameWithArm(-0.2, 0.1), def, orientation.Sagittal)
	require.NoError(t, err)

	assert.InDelta(t, forward[0].Magnitude(), backward[0].Magnitude(), 0.01,
		"mirror positions should have equal magnitude")
	assert.True(t, forward[0].Degrees*backward[0].Degrees < 0,
		"sign must flip when the limb crosses the vertical reference: %f vs %f",
		forward[0].Degrees, backward[0].Degrees)

	if forward[0].Degrees > 0 {
		assert.Equal(t, "flexion", forward[0].Direction(def))
		assert.Equal(t, "extension", backward[0].Direction(def))
	} else {
		assert.Equal(t, "extension", forward[0].Direction(def))
		assert.Equal(t, "flexion", backward[0].Direction(def))
	}
}

func TestComputeMagnitudeBounded(t *testing.T) {
	e := testEngine()
	def := shoulderDef()
	for deg := 0.0; deg < 360; deg += 7.3 {
		rad := deg * math.Pi / 180
		samples, err := e.Compute(frameWithArm(0.2*math.Sin(rad), 0.2*math.Cos(rad)), def, orientation.Sagittal)
		require.NoError(t, err)
		mag := samples[0].Magnitude()
		assert.GreaterOrEqual(t, mag, 0.0)
		assert.LessOrEqual(t, mag, 180.0)
	}
}

func TestComputeOrientationMismatch(t *testing.T) {
	e := testEngine()
	_, err := e.Compute(frameWithArm(0, 0.2), shoulderDef(), orientation.Frontal)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = e.Compute(frameWithArm(0, 0.2), shoulderDef(), orientation.Unknown)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestComputeLowVisibilityLandmark(t *testing.T) {
	e := testEngine()
	f := frameWithArm(0, 0.2)
	f.Landmarks[pose.RightElbow].Visibility = 0.1
	_, err := e.Compute(f, shoulderDef(), orientation.Sagittal)
	assert.ErrorIs(t, err, ErrInsufficientData)

	// Proximal anchor gates measurement even though it is not part of the
	// moving vector.
	f = frameWithArm(0, 0.2)
	f.Landmarks[pose.RightHip].Visibility = 0.1
	_, err = e.Compute(f, shoulderDef(), orientation.Sagittal)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestComputeDegenerateSegment(t *testing.T) {
	e := testEngine()
	_, err := e.Compute(frameWithArm(0, 0.005), shoulderDef(), orientation.Sagittal)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestComputeBilateralPartialVisibility(t *testing.T) {
	def := &exercise.Definition{
		ID:                  "shoulder_abduction",
		RequiredOrientation: orientation.Frontal,
		Sides: map[exercise.Side]exercise.Triplet{
			exercise.Left:  {Proximal: pose.LeftHip, Pivot: pose.LeftShoulder, Distal: pose.LeftElbow},
			exercise.Right: {Proximal: pose.RightHip, Pivot: pose.RightShoulder, Distal: pose.RightElbow},
		},
		PositiveLabel: "abduction",
		NegativeLabel: "adduction",
	}

	var f pose.Frame
	f.Detected = true
	set := func(idx int, x, y, vis float64) {
		f.Landmarks[idx] = pose.Landmark{X: x, Y: y, Visibility: vis}
	}
	set(pose.LeftHip, 0.4, 0.6, 0.9)
	set(pose.LeftShoulder, 0.4, 0.4, 0.9)
	set(pose.LeftElbow, 0.2, 0.4, 0.9)
	set(pose.RightHip, 0.6, 0.6, 0.9)
	set(pose.RightShoulder, 0.6, 0.4, 0.9)
	set(pose.RightElbow, 0.8, 0.4, 0.9)

	e := testEngine()
	samples, err := e.Compute(f, def, orientation.Frontal)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, exercise.Left, samples[0].Side)
	assert.Equal(t, exercise.Right, samples[1].Side)
	assert.InDelta(t, 90, samples[0].Magnitude(), 0.01)
	assert.InDelta(t, 90, samples[1].Magnitude(), 0.01)

	// One occluded side still yields the other.
	f.Landmarks[pose.LeftElbow].Visibility = 0.1
	samples, err = e.Compute(f, def, orientation.Frontal)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, exercise.Right, samples[0].Side)
}

func TestSignedAngleClampsRoundingError(t *testing.T) {
	// Nearly antiparallel vectors whose normalized dot product can drift past -1.
	v := Vec2{X: 1e-17, Y: -0.2}
	got := SignedAngle(verticalReference, v)
	assert.False(t, math.IsNaN(got), "acos input must be clamped")
	assert.InDelta(t, 180, math.Abs(got), 0.001)

	assert.Zero(t, SignedAngle(verticalReference, Vec2{}))
}
