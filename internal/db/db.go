// Package db persists finished session summaries to sqlite. Only
// aggregates are stored; per-frame samples never touch disk.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/biotrack-data/motion.report/internal/exercise"
	"github.com/biotrack-data/motion.report/internal/session"
)

type DB struct {
	*sql.DB
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL keeps the polling API readable while a summary insert is in
	// flight on session finish.
	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;`); err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS rom_sessions (
			session_id         TEXT PRIMARY KEY,
			exercise_id        TEXT NOT NULL,
			started_at         TIMESTAMP NOT NULL,
			finished_at        TIMESTAMP NOT NULL,
			duration_seconds   DOUBLE NOT NULL,
			left_max_degrees   DOUBLE,
			left_min_degrees   DOUBLE,
			left_samples       BIGINT,
			left_offset        DOUBLE,
			right_max_degrees  DOUBLE,
			right_min_degrees  DOUBLE,
			right_samples      BIGINT,
			right_offset       DOUBLE,
			sample_count       BIGINT NOT NULL,
			classification     TEXT NOT NULL,
			low_confidence     INTEGER NOT NULL DEFAULT 0,
			created_at         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// RecordSession stores one finished session summary. Implements the
// session.Store interface.
func (db *DB) RecordSession(ctx context.Context, s session.Summary) error {
	left := sideColumns(s.Sides, exercise.Left)
	right := sideColumns(s.Sides, exercise.Right)

	_, err := db.ExecContext(ctx, `
		INSERT INTO rom_sessions (
			session_id, exercise_id, started_at, finished_at, duration_seconds,
			left_max_degrees, left_min_degrees, left_samples, left_offset,
			right_max_degrees, right_min_degrees, right_samples, right_offset,
			sample_count, classification, low_confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.ExerciseID, s.StartedAt.UTC(), s.FinishedAt.UTC(), s.DurationSeconds,
		left.max, left.min, left.samples, left.offset,
		right.max, right.min, right.samples, right.offset,
		s.SampleCount, s.Classification, s.LowConfidence,
	)
	if err != nil {
		return fmt.Errorf("record session %s: %w", s.SessionID, err)
	}
	return nil
}

type nullableSide struct {
	max, min, offset sql.NullFloat64
	samples          sql.NullInt64
}

func sideColumns(sides map[exercise.Side]session.SideSummary, side exercise.Side) nullableSide {
	s, ok := sides[side]
	if !ok {
		return nullableSide{}
	}
	return nullableSide{
		max:     sql.NullFloat64{Float64: s.MaxDegrees, Valid: true},
		min:     sql.NullFloat64{Float64: s.MinDegrees, Valid: true},
		offset:  sql.NullFloat64{Float64: s.OffsetDegrees, Valid: true},
		samples: sql.NullInt64{Int64: int64(s.Samples), Valid: true},
	}
}

// SessionByID loads one stored summary.
func (db *DB) SessionByID(ctx context.Context, id string) (session.Summary, error) {
	row := db.QueryRowContext(ctx, selectColumns+` FROM rom_sessions WHERE session_id = ?`, id)
	return scanSummary(row)
}

// ListSessions returns the most recently finished sessions, newest first.
func (db *DB) ListSessions(ctx context.Context, limit int) ([]session.Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx,
		selectColumns+` FROM rom_sessions ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.Summary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const selectColumns = `SELECT
	session_id, exercise_id, started_at, finished_at, duration_seconds,
	left_max_degrees, left_min_degrees, left_samples, left_offset,
	right_max_degrees, right_min_degrees, right_samples, right_offset,
	sample_count, classification, low_confidence`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (session.Summary, error) {
	var s session.Summary
	var left, right nullableSide
	err := row.Scan(
		&s.SessionID, &s.ExerciseID, &s.StartedAt, &s.FinishedAt, &s.DurationSeconds,
		&left.max, &left.min, &left.samples, &left.offset,
		&right.max, &right.min, &right.samples, &right.offset,
		&s.SampleCount, &s.Classification, &s.LowConfidence,
	)
	if err != nil {
		return session.Summary{}, err
	}
	s.Sides = make(map[exercise.Side]session.SideSummary)
	if left.samples.Valid {
		s.Sides[exercise.Left] = sideSummary(left)
	}
	if right.samples.Valid {
		s.Sides[exercise.Right] = sideSummary(right)
	}
	s.StartedAt = s.StartedAt.UTC()
	s.FinishedAt = s.FinishedAt.UTC()
	return s, nil
}

func sideSummary(n nullableSide) session.SideSummary {
	return session.SideSummary{
		MaxDegrees:    n.max.Float64,
		MinDegrees:    n.min.Float64,
		Samples:       int(n.samples.Int64),
		OffsetDegrees: n.offset.Float64,
	}
}

// RollupRow is one exercise's aggregate over a reporting window.
type RollupRow struct {
	ExerciseID    string  `json:"exercise_id"`
	Sessions      int     `json:"sessions"`
	AvgMaxDegrees float64 `json:"avg_max_degrees"`
	BestDegrees   float64 `json:"best_degrees"`
	LowConfidence int     `json:"low_confidence"`
}

// SessionRollup aggregates finished sessions per exercise over the last
// N days. The per-session score is the better side's peak angle.
func (db *DB) SessionRollup(ctx context.Context, days int) ([]RollupRow, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := db.QueryContext(ctx, `
		SELECT exercise_id,
			COUNT(*),
			AVG(MAX(IFNULL(left_max_degrees, 0), IFNULL(right_max_degrees, 0))),
			MAX(MAX(IFNULL(left_max_degrees, 0), IFNULL(right_max_degrees, 0))),
			SUM(low_confidence)
		FROM rom_sessions
		WHERE finished_at >= ?
		GROUP BY exercise_id
		ORDER BY exercise_id`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RollupRow
	for rows.Next() {
		var r RollupRow
		if err := rows.Scan(&r.ExerciseID, &r.Sessions, &r.AvgMaxDegrees, &r.BestDegrees, &r.LowConfidence); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://motion.db", db.DB, &tailsql.DBOptions{
		Label: "Motion DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("backup-%d.db", time.Now().Unix())
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("backup failed: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", backupPath))
		http.ServeFile(w, r, backupPath)
	}))
}
