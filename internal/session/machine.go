// Package session runs a measurement session end to end: it holds the
// camera lease, drives frames through the pose detector, orientation
// classifier, angle engine, and ROM trackers, and advances the session
// phase machine. One session owns one capture loop goroutine; everything
// the outside world sees comes from a snapshot read under a short lock.
package session

import (
	"time"

	"github.com/biotrack-data/motion.report/internal/exercise"
)

// Phase is a session lifecycle stage.
type Phase string

const (
	Positioning Phase = "positioning" // waiting for the subject to face the right way
	Calibrating Phase = "calibrating" // neutral hold, capturing the zero offset
	Measuring   Phase = "measuring"   // bounded capture window, tracking extremes
	Finished    Phase = "finished"    // measurement window completed
	Aborted     Phase = "aborted"     // cancelled or failed before finishing
)

// Terminal reports whether the phase is an end state.
func (p Phase) Terminal() bool {
	return p == Finished || p == Aborted
}

// Transition records one phase change.
type Transition struct {
	From Phase
	To   Phase
	At   time.Time
}

// Machine is the pure phase-transition logic, driven by wall-clock time
// and the orientation confirmation signal. It holds no goroutines and no
// locks; the runner owns it and calls it from the capture loop only.
type Machine struct {
	def           *exercise.Definition
	phase         Phase
	startedAt     time.Time
	phaseStart    time.Time
	lowConfidence bool
}

// NewMachine starts a machine in Positioning.
func NewMachine(def *exercise.Definition, now time.Time) *Machine {
	return &Machine{
		def:        def,
		phase:      Positioning,
		startedAt:  now,
		phaseStart: now,
	}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// LowConfidence reports whether positioning timed out before the required
// orientation was confirmed. The session proceeds anyway; the flag is
// carried through the snapshot and the persisted summary.
func (m *Machine) LowConfidence() bool { return m.lowConfidence }

// StartedAt returns when the session began.
func (m *Machine) StartedAt() time.Time { return m.startedAt }

// Elapsed returns the time since the session began.
func (m *Machine) Elapsed(now time.Time) time.Duration {
	return now.Sub(m.startedAt)
}

// PhaseRemaining returns how long the current phase has left, or zero for
// terminal phases and an already-expired window.
func (m *Machine) PhaseRemaining(now time.Time) time.Duration {
	var window time.Duration
	switch m.phase {
	case Positioning:
		window = m.def.PositioningTimeout()
	case Calibrating:
		window = m.def.CalibrationWindow()
	case Measuring:
		window = m.def.MeasurementWindow()
	default:
		return 0
	}
	left := window - now.Sub(m.phaseStart)
	if left < 0 {
		return 0
	}
	return left
}

// Step advances the machine one observation. confirmed is the sustained
// orientation signal; it only matters during Positioning. Returns the
// transition taken, if any.
func (m *Machine) Step(now time.Time, confirmed bool) (Transition, bool) {
	switch m.phase {
	case Positioning:
		if confirmed {
			return m.advance(Calibrating, now), true
		}
		if now.Sub(m.phaseStart) >= m.def.PositioningTimeout() {
			m.lowConfidence = true
			return m.advance(Calibrating, now), true
		}
	case Calibrating:
		if now.Sub(m.phaseStart) >= m.def.CalibrationWindow() {
			return m.advance(Measuring, now), true
		}
	case Measuring:
		if now.Sub(m.phaseStart) >= m.def.MeasurementWindow() {
			return m.advance(Finished, now), true
		}
	}
	return Transition{}, false
}

// Finish ends the session early, keeping what was measured. No-op once
// terminal.
func (m *Machine) Finish(now time.Time) (Transition, bool) {
	if m.phase.Terminal() {
		return Transition{}, false
	}
	return m.advance(Finished, now), true
}

// Abort moves any non-terminal phase to Aborted.
func (m *Machine) Abort(now time.Time) (Transition, bool) {
	if m.phase.Terminal() {
		return Transition{}, false
	}
	return m.advance(Aborted, now), true
}

// RestartMeasuring re-enters Measuring with a fresh window. Only valid
// while already Measuring; calibration and the camera lease are untouched.
func (m *Machine) RestartMeasuring(now time.Time) bool {
	if m.phase != Measuring {
		return false
	}
	m.phaseStart = now
	return true
}

func (m *Machine) advance(to Phase, now time.Time) Transition {
	tr := Transition{From: m.phase, To: to, At: now}
	m.phase = to
	m.phaseStart = now
	return tr
}
