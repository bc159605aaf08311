package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/trail.report/internal/config"
	"github.com/banshee-data/trail.report/internal/db"
	"github.com/banshee-data/trail.report/internal/httputil"
	"github.com/banshee-data/trail.report/internal/monitoring"
	"github.com/banshee-data/trail.report/internal/tracking"
	"github.com/banshee-data/trail.report/internal/units"
	"github.com/banshee-data/trail.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes the tracking engine, stored sessions and reference routes
// over HTTP.
type Server struct {
	engine *tracking.Engine
	source tracking.LocationSource
	db     *db.DB
	cfg    *config.TrackingConfig
	units  string
}

// NewServer returns a Server. Speeds in summaries are reported in units,
// one of units.ValidUnits; an empty or unknown value means km/h.
func NewServer(engine *tracking.Engine, source tracking.LocationSource, database *db.DB, cfg *config.TrackingConfig, speedUnits string) *Server {
	if cfg == nil {
		cfg = &config.TrackingConfig{}
	}
	if !units.IsValid(speedUnits) {
		speedUnits = units.KMPH
	}
	return &Server{
		engine: engine,
		source: source,
		db:     database,
		cfg:    cfg,
		units:  speedUnits,
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
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tracking", s.showTracking)
	mux.HandleFunc("/api/tracking/", s.handleTrackingAction)
	mux.HandleFunc("/api/location", s.showLastLocation)
	mux.HandleFunc("/api/location/stats", s.showLocationStats)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionByID)
	mux.HandleFunc("/api/routes", s.listRoutes)
	mux.HandleFunc("/api/routes/", s.handleRouteByID)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}

// pathID splits /prefix/{id}/rest into id and rest.
func pathID(path, prefix string) (id, rest string) {
	parts := strings.SplitN(strings.Trim(strings.TrimPrefix(path, prefix), "/"), "/", 2)
	id = parts[0]
	if len(parts) == 2 {
		rest = parts[1]
	}
	return id, rest
}

// writeEngineError maps engine and repository errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tracking.ErrAlreadyTracking), errors.Is(err, tracking.ErrNoActiveSession):
		status = http.StatusConflict
	case errors.Is(err, tracking.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, tracking.ErrLocationDisabled):
		status = http.StatusServiceUnavailable
	case errors.Is(err, tracking.ErrInvalidCoordinate):
		status = http.StatusBadRequest
	case errors.Is(err, tracking.ErrSessionNotFound), errors.Is(err, db.ErrRouteNotFound):
		status = http.StatusNotFound
	case errors.Is(err, tracking.ErrRepositoryFailure):
		monitoring.Logf("api: repository failure: %v", err)
	}
	httputil.WriteJSONError(w, status, err.Error())
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"units":    s.units,
		"tracking": s.cfg,
		"version":  version.Version,
		"git_sha":  version.GitSHA,
	})
}
