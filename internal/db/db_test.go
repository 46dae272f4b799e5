package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/biotrack-data/motion.report/internal/exercise"
	"github.com/biotrack-data/motion.report/internal/session"
	"github.com/biotrack-data/motion.report/internal/testutil"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "motion.db"))
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testSummary(id, exerciseID string, finished time.Time, maxDeg float64) session.Summary {
	return session.Summary{
		SessionID:       id,
		ExerciseID:      exerciseID,
		StartedAt:       finished.Add(-30 * time.Second),
		FinishedAt:      finished,
		DurationSeconds: 30,
		Sides: map[exercise.Side]session.SideSummary{
			exercise.Right: {MaxDegrees: maxDeg, MinDegrees: 2.5, Samples: 240, OffsetDegrees: 4.1},
		},
		SampleCount:    240,
		Classification: "good",
	}
}

func TestRecordSessionRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	finished := time.Date(2026, 3, 10, 15, 4, 5, 0, time.UTC)

	want := testSummary("s-1", "shoulder_flexion", finished, 132.4)
	want.LowConfidence = true
	testutil.AssertNoError(t, db.RecordSession(ctx, want))

	got, err := db.SessionByID(ctx, "s-1")
	testutil.AssertNoError(t, err)
	if got.ExerciseID != "shoulder_flexion" || got.Classification != "good" || !got.LowConfidence {
		t.Errorf("unexpected summary: %+v", got)
	}
	if !got.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, finished)
	}
	side, ok := got.Sides[exercise.Right]
	if !ok {
		t.Fatal("right side missing from stored summary")
	}
	if side.MaxDegrees != 132.4 || side.Samples != 240 || side.OffsetDegrees != 4.1 {
		t.Errorf("unexpected side values: %+v", side)
	}
	if _, ok := got.Sides[exercise.Left]; ok {
		t.Error("left side should be absent for a unilateral session")
	}
}

func TestSessionByIDNotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.SessionByID(context.Background(), "missing")
	testutil.AssertError(t, err)
}

func TestListSessionsNewestFirst(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s := testSummary(
			time.Duration(i).String()+"-id",
			"elbow_flexion",
			base.Add(time.Duration(i)*time.Minute),
			float64(100+i),
		)
		testutil.AssertNoError(t, db.RecordSession(ctx, s))
	}

	got, err := db.ListSessions(ctx, 3)
	testutil.AssertNoError(t, err)
	if len(got) != 3 {
		t.Fatalf("got %d sessions, want 3", len(got))
	}
	if !got[0].FinishedAt.After(got[1].FinishedAt) || !got[1].FinishedAt.After(got[2].FinishedAt) {
		t.Errorf("sessions not newest first: %v %v %v",
			got[0].FinishedAt, got[1].FinishedAt, got[2].FinishedAt)
	}
}

func TestSessionRollup(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	records := []session.Summary{
		testSummary("r-1", "shoulder_flexion", now.Add(-time.Hour), 120),
		testSummary("r-2", "shoulder_flexion", now.Add(-2*time.Hour), 140),
		testSummary("r-3", "knee_flexion", now.Add(-3*time.Hour), 90),
		// Outside the window, must be excluded.
		testSummary("r-4", "knee_flexion", now.AddDate(0, 0, -45), 200),
	}
	for _, r := range records {
		testutil.AssertNoError(t, db.RecordSession(ctx, r))
	}

	rows, err := db.SessionRollup(ctx, 30)
	testutil.AssertNoError(t, err)
	if len(rows) != 2 {
		t.Fatalf("got %d rollup rows, want 2: %+v", len(rows), rows)
	}

	byExercise := map[string]RollupRow{}
	for _, r := range rows {
		byExercise[r.ExerciseID] = r
	}
	sh := byExercise["shoulder_flexion"]
	if sh.Sessions != 2 || sh.BestDegrees != 140 {
		t.Errorf("shoulder rollup: %+v", sh)
	}
	testutil.AssertInDelta(t, sh.AvgMaxDegrees, 130, 0.01)
	kn := byExercise["knee_flexion"]
	if kn.Sessions != 1 || kn.BestDegrees != 90 {
		t.Errorf("knee rollup should exclude the stale session: %+v", kn)
	}
}
