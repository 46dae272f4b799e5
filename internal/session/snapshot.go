package session

import (
	"context"
	"time"

	"github.com/biotrack-data/motion.report/internal/camera"
	"github.com/biotrack-data/motion.report/internal/exercise"
	"github.com/biotrack-data/motion.report/internal/orientation"
)

// SideSnapshot is one side's live measurement state. Display renders the
// current angle the way a clinician reads a goniometer, magnitude plus the
// movement direction label.
type SideSnapshot struct {
	CurrentDegrees float64 `json:"current_degrees"`
	MaxDegrees     float64 `json:"max_degrees"`
	MinDegrees     float64 `json:"min_degrees"`
	Samples        int     `json:"samples"`
	Display        string  `json:"display,omitempty"`
}

// Snapshot is the complete externally visible state of a session. The
// capture loop rebuilds it after every frame and swaps it in under a
// short-held mutex; readers get a copy and never touch live state.
type Snapshot struct {
	SessionID             string                         `json:"session_id"`
	ExerciseID            string                         `json:"exercise_id"`
	Phase                 Phase                          `json:"phase"`
	Orientation           orientation.State              `json:"orientation"`
	Sides                 map[exercise.Side]SideSnapshot `json:"sides"`
	SampleCount           int                            `json:"sample_count"`
	ElapsedSeconds        float64                        `json:"elapsed_seconds"`
	PhaseRemainingSeconds float64                        `json:"phase_remaining_seconds"`
	CameraMode            camera.Mode                    `json:"camera_mode"`
	LowConfidence         bool                           `json:"low_confidence"`
	Classification        string                         `json:"classification,omitempty"`
	AbortReason           string                         `json:"abort_reason,omitempty"`
	UpdatedAt             time.Time                      `json:"updated_at"`
}

// SideSummary is one side's final result.
type SideSummary struct {
	MaxDegrees    float64 `json:"max_degrees"`
	MinDegrees    float64 `json:"min_degrees"`
	Samples       int     `json:"samples"`
	OffsetDegrees float64 `json:"offset_degrees"`
}

// Summary is the durable record of a finished session. Raw per-frame
// samples are never persisted, only these aggregates.
type Summary struct {
	SessionID       string                        `json:"session_id"`
	ExerciseID      string                        `json:"exercise_id"`
	StartedAt       time.Time                     `json:"started_at"`
	FinishedAt      time.Time                     `json:"finished_at"`
	DurationSeconds float64                       `json:"duration_seconds"`
	Sides           map[exercise.Side]SideSummary `json:"sides"`
	SampleCount     int                           `json:"sample_count"`
	Classification  string                        `json:"classification"`
	LowConfidence   bool                          `json:"low_confidence"`
}

// Store persists finished session summaries.
type Store interface {
	RecordSession(ctx context.Context, s Summary) error
}
