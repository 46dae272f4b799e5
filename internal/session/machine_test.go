package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biotrack-data/motion.report/internal/exercise"
	"github.com/biotrack-data/motion.report/internal/orientation"
	"github.com/biotrack-data/motion.report/internal/pose"
)

func machineDef() *exercise.Definition {
	return &exercise.Definition{
		ID:                  "elbow_flexion",
		Name:                "Elbow Flexion",
		RequiredOrientation: orientation.Sagittal,
		Sides: map[exercise.Side]exercise.Triplet{
			exercise.Right: {Proximal: pose.RightShoulder, Pivot: pose.RightElbow, Distal: pose.RightWrist},
		},
		PositioningTimeoutSeconds: 10,
		CalibrationSeconds:        5,
		MeasurementSeconds:        20,
	}
}

func TestMachineConfirmedOrientationAdvances(t *testing.T) {
	t0 := time.Unix(1000, 0)
	m := NewMachine(machineDef(), t0)
	require.Equal(t, Positioning, m.Phase())

	_, ok := m.Step(t0.Add(time.Second), false)
	assert.False(t, ok, "unconfirmed orientation inside the timeout must not advance")

	tr, ok := m.Step(t0.Add(2*time.Second), true)
	require.True(t, ok)
	assert.Equal(t, Positioning, tr.From)
	assert.Equal(t, Calibrating, tr.To)
	assert.False(t, m.LowConfidence())
}

func TestMachinePositioningTimeoutProceedsLowConfidence(t *testing.T) {
	t0 := time.Unix(1000, 0)
	m := NewMachine(machineDef(), t0)

	tr, ok := m.Step(t0.Add(10*time.Second), false)
	require.True(t, ok, "timeout must proceed rather than abort")
	assert.Equal(t, Calibrating, tr.To)
	assert.True(t, m.LowConfidence())
}

func TestMachineTimedPhases(t *testing.T) {
	t0 := time.Unix(1000, 0)
	m := NewMachine(machineDef(), t0)
	m.Step(t0, true) // into Calibrating at t0

	_, ok := m.Step(t0.Add(4*time.Second), false)
	assert.False(t, ok)
	tr, ok := m.Step(t0.Add(5*time.Second), false)
	require.True(t, ok)
	assert.Equal(t, Measuring, tr.To)

	calEnd := t0.Add(5 * time.Second)
	_, ok = m.Step(calEnd.Add(19*time.Second), false)
	assert.False(t, ok)
	tr, ok = m.Step(calEnd.Add(20*time.Second), false)
	require.True(t, ok)
	assert.Equal(t, Finished, tr.To)
	assert.True(t, m.Phase().Terminal())

	_, ok = m.Step(calEnd.Add(30*time.Second), true)
	assert.False(t, ok, "terminal phases must not transition")
}

func TestMachineAbort(t *testing.T) {
	t0 := time.Unix(1000, 0)
	for _, setup := range []func(*Machine){
		func(m *Machine) {},                   // Positioning
		func(m *Machine) { m.Step(t0, true) }, // Calibrating
		func(m *Machine) {
			m.Step(t0, true)
			m.Step(t0.Add(5*time.Second), false)
		}, // Measuring
	} {
		m := NewMachine(machineDef(), t0)
		setup(m)
		tr, ok := m.Abort(t0.Add(time.Minute))
		require.True(t, ok)
		assert.Equal(t, Aborted, tr.To)

		_, ok = m.Abort(t0.Add(2 * time.Minute))
		assert.False(t, ok, "abort of a terminal session is a no-op")
	}
}

func TestMachineFinishEarly(t *testing.T) {
	t0 := time.Unix(1000, 0)
	m := NewMachine(machineDef(), t0)
	m.Step(t0, true)
	m.Step(t0.Add(5*time.Second), false)
	require.Equal(t, Measuring, m.Phase())

	tr, ok := m.Finish(t0.Add(8 * time.Second))
	require.True(t, ok)
	assert.Equal(t, Finished, tr.To)

	_, ok = m.Finish(t0.Add(9 * time.Second))
	assert.False(t, ok)
}

func TestMachineRestartMeasuring(t *testing.T) {
	t0 := time.Unix(1000, 0)
	m := NewMachine(machineDef(), t0)
	assert.False(t, m.RestartMeasuring(t0), "restart only applies while Measuring")

	m.Step(t0, true)
	m.Step(t0.Add(5*time.Second), false)
	mid := t0.Add(15 * time.Second)
	require.True(t, m.RestartMeasuring(mid))

	// The window restarts from the reset, not from the original entry.
	_, ok := m.Step(mid.Add(19*time.Second), false)
	assert.False(t, ok)
	tr, ok := m.Step(mid.Add(20*time.Second), false)
	require.True(t, ok)
	assert.Equal(t, Finished, tr.To)
}

func TestMachinePhaseRemaining(t *testing.T) {
	t0 := time.Unix(1000, 0)
	m := NewMachine(machineDef(), t0)
	assert.Equal(t, 10*time.Second, m.PhaseRemaining(t0))
	assert.Equal(t, 7*time.Second, m.PhaseRemaining(t0.Add(3*time.Second)))
	assert.Equal(t, time.Duration(0), m.PhaseRemaining(t0.Add(time.Minute)))

	m.Step(t0, true)
	m.Step(t0.Add(5*time.Second), false)
	m.Step(t0.Add(25*time.Second), false)
	require.Equal(t, Finished, m.Phase())
	assert.Equal(t, time.Duration(0), m.PhaseRemaining(t0.Add(26*time.Second)))
}
