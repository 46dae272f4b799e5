// Package rom smooths raw joint-angle samples and tracks the range of
// motion achieved over a measurement window. One Tracker serves one side;
// bilateral exercises run one Tracker per side.
package rom

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/biotrack-data/motion.report/internal/angle"
	"github.com/biotrack-data/motion.report/internal/config"
	"github.com/biotrack-data/motion.report/internal/exercise"
)

// Smoother is a rolling median filter over the most recent window of
// values. Until minSamples values have been seen it passes input through
// unchanged, so early readings appear immediately instead of lagging.
type Smoother struct {
	window     []float64
	size       int
	minSamples int
	seen       int
	next       int
	scratch    []float64
}

// NewSmoother creates a median filter with the given window size. A window
// of 1 or less disables smoothing.
func NewSmoother(size, minSamples int) *Smoother {
	if size < 1 {
		size = 1
	}
	return &Smoother{
		window:     make([]float64, 0, size),
		size:       size,
		minSamples: minSamples,
		scratch:    make([]float64, 0, size),
	}
}

// Push adds a value and returns the smoothed result.
func (s *Smoother) Push(v float64) float64 {
	if len(s.window) < s.size {
		s.window = append(s.window, v)
	} else {
		s.window[s.next] = v
		s.next = (s.next + 1) % s.size
	}
	s.seen++

	if s.seen < s.minSamples || len(s.window) == 1 {
		return v
	}

	s.scratch = append(s.scratch[:0], s.window...)
	sort.Float64s(s.scratch)
	return stat.Quantile(0.5, stat.Empirical, s.scratch, nil)
}

// Reset discards all buffered values.
func (s *Smoother) Reset() {
	s.window = s.window[:0]
	s.seen = 0
	s.next = 0
}

// Stats summarizes one side's progress through a measurement window.
type Stats struct {
	Side        exercise.Side
	MaxDegrees  float64
	MinDegrees  float64
	LastDegrees float64
	Samples     int
	Calibrated  bool
	Offset      float64
	LastUpdate  time.Time
}

// ROM returns the span between the extremes reached so far.
func (st Stats) ROM() float64 {
	if st.Samples == 0 {
		return 0
	}
	return st.MaxDegrees - st.MinDegrees
}

// Tracker accumulates one side's range of motion. A calibration offset,
// captured once at the end of the neutral hold, is subtracted from every
// subsequent sample before smoothing, so the subject's resting pose reads
// zero regardless of how they stand.
type Tracker struct {
	side       exercise.Side
	smoother   *Smoother
	calibrated bool
	offset     float64

	samples    int
	maxDeg     float64
	minDeg     float64
	lastDeg    float64
	lastUpdate time.Time
}

// NewTracker creates a tracker for one side.
func NewTracker(side exercise.Side, cfg *config.TuningConfig) *Tracker {
	return &Tracker{
		side:     side,
		smoother: NewSmoother(cfg.GetSmoothingWindow(), cfg.GetSmoothingMinSamples()),
	}
}

// SetCalibration records the neutral offset. Only the first call takes
// effect; later calls are ignored so a jittery calibration boundary cannot
// re-zero a running measurement.
func (t *Tracker) SetCalibration(offsetDegrees float64) {
	if t.calibrated {
		return
	}
	t.calibrated = true
	t.offset = offsetDegrees
}

// Calibrated reports whether a neutral offset has been captured.
func (t *Tracker) Calibrated() bool { return t.calibrated }

// Observe folds one sample into the running extremes and returns the
// smoothed, calibrated magnitude that was recorded.
func (t *Tracker) Observe(s angle.Sample) float64 {
	deg := math.Abs(s.Degrees - t.offset)
	deg = t.smoother.Push(deg)

	if t.samples == 0 {
		t.maxDeg = deg
		t.minDeg = deg
	} else {
		if deg > t.maxDeg {
			t.maxDeg = deg
		}
		if deg < t.minDeg {
			t.minDeg = deg
		}
	}
	t.samples++
	t.lastDeg = deg
	t.lastUpdate = s.Timestamp
	return deg
}

// Stats returns a copy of the current running values.
func (t *Tracker) Stats() Stats {
	return Stats{
		Side:        t.side,
		MaxDegrees:  t.maxDeg,
		MinDegrees:  t.minDeg,
		LastDegrees: t.lastDeg,
		Samples:     t.samples,
		Calibrated:  t.calibrated,
		Offset:      t.offset,
		LastUpdate:  t.lastUpdate,
	}
}

// ResetExtremes clears extremes, sample count, and the filter window but
// keeps the calibration offset. Used when a measurement window restarts
// without the subject leaving their calibrated stance.
func (t *Tracker) ResetExtremes() {
	t.smoother.Reset()
	t.samples = 0
	t.maxDeg = 0
	t.minDeg = 0
	t.lastDeg = 0
	t.lastUpdate = time.Time{}
}

// Reset clears everything including calibration. Used when a session
// restarts the same exercise from scratch.
func (t *Tracker) Reset() {
	t.ResetExtremes()
	t.calibrated = false
	t.offset = 0
}
