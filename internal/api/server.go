// Package api serves the polling HTTP surface: clients poll session
// snapshots rather than holding a stream, so a lost request costs one
// poll interval and nothing else.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/biotrack-data/motion.report/internal/camera"
	"github.com/biotrack-data/motion.report/internal/db"
	"github.com/biotrack-data/motion.report/internal/exercise"
	"github.com/biotrack-data/motion.report/internal/httputil"
	"github.com/biotrack-data/motion.report/internal/session"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	mgr      *session.Manager
	arbiter  *camera.Arbiter
	registry *exercise.Registry
	db       *db.DB
}

// NewServer wires the serving layer. db may be nil; history endpoints then
// report the store as unavailable.
func NewServer(mgr *session.Manager, arbiter *camera.Arbiter, registry *exercise.Registry, database *db.DB) *Server {
	return &Server{
		mgr:      mgr,
		arbiter:  arbiter,
		registry: registry,
		db:       database,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sessions/current", s.currentSession)
	mux.HandleFunc("POST /api/sessions/start", s.startSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.showSession)
	mux.HandleFunc("POST /api/sessions/{id}/stop", s.stopSession)
	mux.HandleFunc("POST /api/sessions/{id}/reset", s.resetSession)
	mux.HandleFunc("GET /api/sessions", s.listSessions)
	mux.HandleFunc("GET /api/session_stats", s.sessionStats)
	mux.HandleFunc("GET /api/exercises", s.listExercises)
	mux.HandleFunc("GET /api/camera", s.cameraStatus)
	mux.HandleFunc("POST /api/camera/force-release", s.forceRelease)
	return mux
}

// writeDomainError maps the error taxonomy onto HTTP statuses: busy
// surfaces as a conflict the client can retry later, unavailable as a
// service problem, and unknown IDs as not found.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, camera.ErrDeviceBusy), errors.Is(err, session.ErrSessionRunning):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, camera.ErrDeviceUnavailable):
		httputil.ServiceUnavailable(w, err.Error())
	case errors.Is(err, session.ErrNoSession), errors.Is(err, exercise.ErrUnknownExercise):
		httputil.NotFound(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.mgr.Current()
	if !ok {
		httputil.NotFound(w, "no session has been started")
		return
	}
	httputil.WriteJSON(w, snap)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req session.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}
	if req.ExerciseID == "" {
		httputil.BadRequest(w, "exercise_id is required")
		return
	}
	snap, err := s.mgr.Start(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, snap)
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.mgr.SnapshotByID(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, snap)
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.mgr.Stop(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, snap)
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.mgr.Reset(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, snap)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		httputil.ServiceUnavailable(w, "session store not configured")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}
	sessions, err := s.db.ListSessions(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []session.Summary{}
	}
	httputil.WriteJSON(w, sessions)
}

func (s *Server) sessionStats(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		httputil.ServiceUnavailable(w, "session store not configured")
		return
	}
	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "invalid 'days' parameter")
			return
		}
		days = n
	}
	rows, err := s.db.SessionRollup(r.Context(), days)
	if err != nil {
		httputil.InternalServerError(w, "failed to aggregate sessions")
		return
	}
	if rows == nil {
		rows = []db.RollupRow{}
	}
	httputil.WriteJSON(w, rows)
}

func (s *Server) listExercises(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, s.registry.All())
}

func (s *Server) cameraStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, s.arbiter.Status())
}

func (s *Server) forceRelease(w http.ResponseWriter, r *http.Request) {
	released := s.arbiter.ForceRelease()
	httputil.WriteJSON(w, map[string]bool{"released": released})
}
