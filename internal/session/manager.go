package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/biotrack-data/motion.report/internal/actuator"
	"github.com/biotrack-data/motion.report/internal/camera"
	"github.com/biotrack-data/motion.report/internal/config"
	"github.com/biotrack-data/motion.report/internal/exercise"
	"github.com/biotrack-data/motion.report/internal/narration"
	"github.com/biotrack-data/motion.report/internal/pose"
)

var (
	// ErrSessionRunning means a start was attempted while another session
	// holds the camera. Distinct from camera.ErrDeviceBusy so callers can
	// tell "this service is measuring" from "someone else has the device".
	ErrSessionRunning = errors.New("a session is already running")

	// ErrNoSession means the requested session ID is not the current one.
	ErrNoSession = errors.New("no such session")
)

// Manager owns the lifecycle of at most one live session. Start, Stop,
// Reset, and Snapshot are safe for concurrent use; Stop and Reset are
// idempotent per the polling API contract.
type Manager struct {
	arbiter   *camera.Arbiter
	detector  pose.Detector
	registry  *exercise.Registry
	tuning    *config.TuningConfig
	announcer *narration.Announcer
	mount     *actuator.Driver
	store     Store

	// now is swappable so tests can drive phase timing.
	now func() time.Time

	mu      sync.Mutex
	current *Runner
}

// NewManager wires a manager. announcer, mount, and store may be nil.
func NewManager(arbiter *camera.Arbiter, detector pose.Detector, registry *exercise.Registry,
	tuning *config.TuningConfig, announcer *narration.Announcer, mount *actuator.Driver, store Store) *Manager {
	return &Manager{
		arbiter:   arbiter,
		detector:  detector,
		registry:  registry,
		tuning:    tuning,
		announcer: announcer,
		mount:     mount,
		store:     store,
		now:       time.Now,
	}
}

// StartRequest carries the parameters for a new session.
type StartRequest struct {
	ExerciseID      string  `json:"exercise_id"`
	SubjectHeightCM float64 `json:"subject_height_cm,omitempty"`
}

// Start begins a new session. Fails with ErrSessionRunning if a session is
// live, camera.ErrDeviceBusy if another process holds the device, and
// camera.ErrDeviceUnavailable if the device cannot open.
func (m *Manager) Start(ctx context.Context, req StartRequest) (Snapshot, error) {
	def, err := m.registry.Get(req.ExerciseID)
	if err != nil {
		return Snapshot{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && !m.current.Snapshot().Phase.Terminal() {
		return Snapshot{}, fmt.Errorf("%w: session %s", ErrSessionRunning, m.current.id)
	}

	id := uuid.NewString()
	lease, err := m.arbiter.Acquire("session:"+id, camera.DefaultMode())
	if err != nil {
		return Snapshot{}, err
	}

	r := newRunner(id, def, RunnerDeps{
		Lease:           lease,
		Detector:        m.detector,
		Tuning:          m.tuning,
		Announcer:       m.announcer,
		Mount:           m.mount,
		Store:           m.store,
		SubjectHeightCM: req.SubjectHeightCM,
		Now:             m.now,
	})
	r.start(ctx)
	m.current = r
	return r.Snapshot(), nil
}

// Stop ends the identified session. Stopping a session that already
// finished is a no-op that returns its final snapshot.
func (m *Manager) Stop(id string) (Snapshot, error) {
	r, err := m.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	if r.Snapshot().Phase.Terminal() {
		return r.Snapshot(), nil
	}
	r.Stop()
	return r.Snapshot(), nil
}

// Reset zeroes the identified session's extremes and restarts its
// measurement window. Outside Measuring it is a no-op.
func (m *Manager) Reset(id string) (Snapshot, error) {
	r, err := m.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	r.RequestReset()
	return r.Snapshot(), nil
}

// SnapshotByID returns the identified session's snapshot.
func (m *Manager) SnapshotByID(id string) (Snapshot, error) {
	r, err := m.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return r.Snapshot(), nil
}

// Current returns the live or most recent session's snapshot.
func (m *Manager) Current() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Snapshot{}, false
	}
	return m.current.Snapshot(), true
}

// Shutdown stops any live session and waits for its loop to exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	r := m.current
	m.mu.Unlock()
	if r != nil && !r.Snapshot().Phase.Terminal() {
		r.Stop()
	}
}

func (m *Manager) lookup(id string) (*Runner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.id != id {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	return m.current, nil
}
