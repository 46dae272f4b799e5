package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/biotrack-data/motion.report/internal/actuator"
	"github.com/biotrack-data/motion.report/internal/angle"
	"github.com/biotrack-data/motion.report/internal/camera"
	"github.com/biotrack-data/motion.report/internal/config"
	"github.com/biotrack-data/motion.report/internal/exercise"
	"github.com/biotrack-data/motion.report/internal/narration"
	"github.com/biotrack-data/motion.report/internal/orientation"
	"github.com/biotrack-data/motion.report/internal/pose"
	"github.com/biotrack-data/motion.report/internal/rom"
	"github.com/biotrack-data/motion.report/internal/units"
)

// repositionStreak is how many consecutive unmeasurable frames trigger a
// reposition hint during Measuring.
const repositionStreak = 30

// Runner owns one session's capture loop. The loop goroutine is the only
// writer of the trackers and the machine; every externally visible value
// goes through the snapshot.
type Runner struct {
	id           string
	def          *exercise.Definition
	lease        *camera.Lease
	detector     pose.Detector
	classifier   *orientation.Classifier
	confirmer    *orientation.Confirmer
	engine       *angle.Engine
	trackers     map[exercise.Side]*rom.Tracker
	calSmoothers map[exercise.Side]*rom.Smoother
	display      map[exercise.Side]string
	machine      *Machine
	announcer    *narration.Announcer
	mount        *actuator.Driver
	store        Store

	interval time.Duration
	now      func() time.Time

	subjectHeightCM float64

	mu   sync.Mutex
	snap Snapshot

	resetMu      sync.Mutex
	pendingReset bool

	cancel context.CancelFunc
	done   chan struct{}
}

// RunnerDeps bundles the collaborators a runner needs. Announcer, mount,
// and store may be nil; the runner then skips those side effects.
type RunnerDeps struct {
	Lease     *camera.Lease
	Detector  pose.Detector
	Tuning    *config.TuningConfig
	Announcer *narration.Announcer
	Mount     *actuator.Driver
	Store     Store

	// SubjectHeightCM positions the camera mount. Zero skips the mount
	// command.
	SubjectHeightCM float64

	// Now overrides the clock for tests.
	Now func() time.Time
}

func newRunner(id string, def *exercise.Definition, deps RunnerDeps) *Runner {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	trackers := make(map[exercise.Side]*rom.Tracker, len(def.Sides))
	calSmoothers := make(map[exercise.Side]*rom.Smoother, len(def.Sides))
	for _, side := range def.SideOrder() {
		trackers[side] = rom.NewTracker(side, deps.Tuning)
		calSmoothers[side] = rom.NewSmoother(deps.Tuning.GetSmoothingWindow(), deps.Tuning.GetSmoothingMinSamples())
	}
	r := &Runner{
		id:              id,
		def:             def,
		lease:           deps.Lease,
		detector:        deps.Detector,
		classifier:      orientation.NewClassifier(orientation.ThresholdsFromTuning(deps.Tuning)),
		confirmer:       orientation.NewConfirmer(def.RequiredOrientation, deps.Tuning.GetOrientationConfirmFrames()),
		engine:          angle.EngineFromTuning(deps.Tuning),
		trackers:        trackers,
		calSmoothers:    calSmoothers,
		display:         make(map[exercise.Side]string, len(def.Sides)),
		machine:         NewMachine(def, now()),
		announcer:       deps.Announcer,
		mount:           deps.Mount,
		store:           deps.Store,
		interval:        deps.Tuning.GetFrameInterval(),
		now:             now,
		subjectHeightCM: deps.SubjectHeightCM,
		done:            make(chan struct{}),
	}
	r.publishSnapshot(orientation.Unknown)
	return r
}

// start launches the capture loop.
func (r *Runner) start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.run(ctx)
}

// Snapshot returns the last published state.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// Stop cancels the loop and waits for it to exit. Safe to call more than
// once and after the loop has already finished.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
}

// RequestReset asks the loop to zero extremes and restart the measurement
// window. Applied before the next frame; a no-op outside Measuring.
func (r *Runner) RequestReset() {
	r.resetMu.Lock()
	r.pendingReset = true
	r.resetMu.Unlock()
}

func (r *Runner) takeReset() bool {
	r.resetMu.Lock()
	defer r.resetMu.Unlock()
	was := r.pendingReset
	r.pendingReset = false
	return was
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.done)
	defer r.lease.Release()

	if r.mount != nil && r.subjectHeightCM > 0 {
		r.mount.Enqueue(actuator.HeightCommand(r.subjectHeightCM, r.def.Joint))
	}
	r.announce(narration.KindPhase, fmt.Sprintf("Starting %s. Please face the camera.", r.def.Name))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	insufficient := 0
	lastBand := ""
	lastCal := make(map[exercise.Side]float64)

	for {
		select {
		case <-ctx.Done():
			r.finishEarly("stopped")
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			r.finishEarly("stopped")
			return
		}

		now := r.now()

		if r.takeReset() && r.machine.RestartMeasuring(now) {
			for side, t := range r.trackers {
				t.ResetExtremes()
				delete(r.display, side)
			}
			lastBand = ""
			r.announce(narration.KindPhase, "Measurement restarted.")
		}

		image, err := r.lease.ReadFrame()
		if err != nil {
			reason := "camera error"
			if errors.Is(err, camera.ErrLeaseRevoked) {
				reason = "camera lease revoked"
			}
			log.Printf("session %s: read frame: %v", r.id, err)
			r.abort(now, reason)
			return
		}

		frame, err := r.detector.Detect(image)
		state := orientation.Unknown
		if err != nil {
			log.Printf("session %s: detect: %v", r.id, err)
		} else {
			state = r.classifier.Classify(frame)
		}

		switch r.machine.Phase() {
		case Positioning:
			r.confirmer.Observe(state)
			if tr, ok := r.machine.Step(now, r.confirmer.Confirmed()); ok {
				r.announcePhase(tr)
			}
		case Calibrating:
			if err == nil {
				if samples, cerr := r.engine.Compute(frame, r.def, state); cerr == nil {
					for _, s := range samples {
						lastCal[s.Side] = r.calSmoothers[s.Side].Push(s.Degrees)
					}
				}
			}
			if tr, ok := r.machine.Step(now, false); ok {
				// Calibration expiry: the smoothed angle held at the end of
				// the neutral window becomes each side's zero offset, so one
				// jittery final frame cannot skew the zero.
				for side, deg := range lastCal {
					r.trackers[side].SetCalibration(deg)
				}
				r.announcePhase(tr)
			}
		case Measuring:
			measured := false
			if err == nil {
				if samples, cerr := r.engine.Compute(frame, r.def, state); cerr == nil {
					measured = true
					insufficient = 0
					for _, s := range samples {
						tracker := r.trackers[s.Side]
						smoothed := tracker.Observe(s)
						signed := math.Copysign(smoothed, s.Degrees-tracker.Stats().Offset)
						r.display[s.Side] = units.FormatGoniometer(signed, r.def.PositiveLabel, r.def.NegativeLabel)
					}
					if band := r.def.Bands.Classify(r.bestMax()); band != lastBand {
						if lastBand != "" || band != "limited" {
							r.announce(narration.KindBand, fmt.Sprintf("Range of motion now %s.", band))
						}
						lastBand = band
					}
				}
			}
			if !measured {
				insufficient++
				if insufficient == repositionStreak {
					r.announce(narration.KindReposition, "I can't see the joint clearly. Please adjust your position.")
				}
			}
			if tr, ok := r.machine.Step(now, false); ok {
				r.announcePhase(tr)
				r.publishSnapshot(state)
				r.persist(now)
				return
			}
		}

		r.publishSnapshot(state)
	}
}

// finishEarly handles an external stop: a measuring session with data
// finishes and persists, anything else aborts.
func (r *Runner) finishEarly(reason string) {
	now := r.now()
	if r.machine.Phase() == Measuring && r.totalSamples() > 0 {
		if tr, ok := r.machine.Finish(now); ok {
			r.announcePhase(tr)
		}
		r.publishSnapshot(r.Snapshot().Orientation)
		r.persist(now)
		return
	}
	r.abort(now, reason)
}

func (r *Runner) abort(now time.Time, reason string) {
	if _, ok := r.machine.Abort(now); ok {
		r.announce(narration.KindPhase, "Session aborted: "+reason)
	}
	r.mu.Lock()
	r.snap = r.buildSnapshot(r.snap.Orientation, now)
	r.snap.AbortReason = reason
	r.mu.Unlock()
}

func (r *Runner) persist(now time.Time) {
	if r.store == nil {
		return
	}
	summary := r.summary(now)
	if err := r.store.RecordSession(context.Background(), summary); err != nil {
		log.Printf("session %s: persist summary: %v", r.id, err)
	}
}

func (r *Runner) summary(now time.Time) Summary {
	sides := make(map[exercise.Side]SideSummary, len(r.trackers))
	for side, t := range r.trackers {
		st := t.Stats()
		sides[side] = SideSummary{
			MaxDegrees:    st.MaxDegrees,
			MinDegrees:    st.MinDegrees,
			Samples:       st.Samples,
			OffsetDegrees: st.Offset,
		}
	}
	return Summary{
		SessionID:       r.id,
		ExerciseID:      r.def.ID,
		StartedAt:       r.machine.StartedAt(),
		FinishedAt:      now,
		DurationSeconds: r.machine.Elapsed(now).Seconds(),
		Sides:           sides,
		SampleCount:     r.totalSamples(),
		Classification:  r.classification(),
		LowConfidence:   r.machine.LowConfidence(),
	}
}

// classification scores the session on the best side's peak angle. A
// session with no samples is unknown.
func (r *Runner) classification() string {
	if r.totalSamples() == 0 {
		return "unknown"
	}
	return r.def.Bands.Classify(r.bestMax())
}

func (r *Runner) bestMax() float64 {
	best := 0.0
	for _, t := range r.trackers {
		if st := t.Stats(); st.Samples > 0 && st.MaxDegrees > best {
			best = st.MaxDegrees
		}
	}
	return best
}

func (r *Runner) totalSamples() int {
	n := 0
	for _, t := range r.trackers {
		n += t.Stats().Samples
	}
	return n
}

func (r *Runner) publishSnapshot(state orientation.State) {
	now := r.now()
	r.mu.Lock()
	r.snap = r.buildSnapshot(state, now)
	r.mu.Unlock()
}

func (r *Runner) buildSnapshot(state orientation.State, now time.Time) Snapshot {
	sides := make(map[exercise.Side]SideSnapshot, len(r.trackers))
	total := 0
	for side, t := range r.trackers {
		st := t.Stats()
		sides[side] = SideSnapshot{
			CurrentDegrees: st.LastDegrees,
			MaxDegrees:     st.MaxDegrees,
			MinDegrees:     st.MinDegrees,
			Samples:        st.Samples,
			Display:        r.display[side],
		}
		total += st.Samples
	}
	snap := Snapshot{
		SessionID:             r.id,
		ExerciseID:            r.def.ID,
		Phase:                 r.machine.Phase(),
		Orientation:           state,
		Sides:                 sides,
		SampleCount:           total,
		ElapsedSeconds:        r.machine.Elapsed(now).Seconds(),
		PhaseRemainingSeconds: r.machine.PhaseRemaining(now).Seconds(),
		CameraMode:            r.lease.Granted(),
		LowConfidence:         r.machine.LowConfidence(),
		UpdatedAt:             now,
	}
	if snap.Phase == Finished {
		snap.Classification = r.classification()
	}
	return snap
}

func (r *Runner) announcePhase(tr Transition) {
	var detail string
	switch tr.To {
	case Calibrating:
		detail = "Hold still in your neutral position."
	case Measuring:
		detail = fmt.Sprintf("Begin your %s now.", r.def.Movement)
	case Finished:
		detail = "Measurement complete."
	default:
		return
	}
	r.announceWithPhase(narration.KindPhase, detail, tr.To)
}

func (r *Runner) announce(kind narration.Kind, detail string) {
	r.announceWithPhase(kind, detail, r.machine.Phase())
}

func (r *Runner) announceWithPhase(kind narration.Kind, detail string, phase Phase) {
	if r.announcer == nil {
		return
	}
	r.announcer.Publish(narration.Event{
		Kind:      kind,
		SessionID: r.id,
		Phase:     string(phase),
		Detail:    detail,
		At:        r.now(),
	})
}
