package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/trail.report/internal/export"
	"github.com/banshee-data/trail.report/internal/httputil"
	"github.com/banshee-data/trail.report/internal/tracking"
	"github.com/banshee-data/trail.report/internal/units"
	"gonum.org/v1/plot/vg"
)

// SessionListItem is a session without its points.
type SessionListItem struct {
	tracking.Session
	PointCount int `json:"point_count"`
}

// SessionSummary reports a session's statistics in the server's speed
// units.
type SessionSummary struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Units           string  `json:"units"`
	DistanceMeters  float64 `json:"distance_meters"`
	DurationSeconds int64   `json:"duration_seconds"`
	AverageSpeed    float64 `json:"average_speed"`
	MaxSpeed        float64 `json:"max_speed"`
	P50Speed        float64 `json:"p50_speed"`
	P85Speed        float64 `json:"p85_speed"`
	P98Speed        float64 `json:"p98_speed"`
	SpeedSamples    int     `json:"speed_samples"`
	ElevationGain   int     `json:"elevation_gain_meters"`
	ElevationLoss   int     `json:"elevation_loss_meters"`
}

func listItems(sessions []tracking.Session) []SessionListItem {
	items := make([]SessionListItem, 0, len(sessions))
	for _, sess := range sessions {
		n := len(sess.TrackPoints)
		sess.TrackPoints = nil
		items = append(items, SessionListItem{Session: sess, PointCount: n})
	}
	return items
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	var (
		sessions []tracking.Session
		err      error
	)
	if v := r.URL.Query().Get("route_id"); v != "" {
		routeID, convErr := strconv.Atoi(v)
		if convErr != nil {
			httputil.BadRequest(w, "invalid 'route_id' parameter")
			return
		}
		sessions, err = s.db.GetSessionsByRoute(r.Context(), routeID)
	} else {
		sessions, err = s.db.GetAllSessions(r.Context())
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list sessions: %v", err))
		return
	}

	httputil.WriteJSONOK(w, listItems(sessions))
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	id, rest := pathID(r.URL.Path, "/api/sessions/")
	if id == "" {
		httputil.BadRequest(w, "missing session id")
		return
	}

	if rest == "" && r.Method == http.MethodDelete {
		s.deleteSession(w, r, id)
		return
	}
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodDelete)
		return
	}

	sess, err := s.db.GetSessionByID(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	switch rest {
	case "":
		httputil.WriteJSONOK(w, sess)
	case "export":
		s.exportSession(w, r, sess)
	case "summary":
		s.summarizeSession(w, r, sess)
	case "profile.png":
		s.sessionProfilePNG(w, sess)
	case "profile.html":
		s.sessionProfileHTML(w, sess)
	default:
		httputil.NotFound(w, fmt.Sprintf("unknown session resource %q", rest))
	}
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request, id string) {
	if st := s.engine.State(); st.IsTracking() && st.SessionID == id {
		httputil.Conflict(w, "session is being tracked; stop or discard it first")
		return
	}
	if _, err := s.db.GetSessionByID(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	if err := s.db.DeleteSession(r.Context(), id); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) exportSession(w http.ResponseWriter, r *http.Request, sess *tracking.Session) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, sess, format); err != nil {
		if errors.Is(err, export.ErrNotCompleted) {
			httputil.Conflict(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("failed to export session: %v", err))
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(sess, format)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) summarizeSession(w http.ResponseWriter, r *http.Request, sess *tracking.Session) {
	unit := s.units
	if v := r.URL.Query().Get("units"); v != "" {
		if !units.IsValid(v) {
			httputil.BadRequest(w, fmt.Sprintf("invalid 'units' parameter, must be one of: %s", units.GetValidUnitsString()))
			return
		}
		unit = v
	}

	speeds := tracking.SummarizeSpeeds(sess.TrackPoints)
	httputil.WriteJSONOK(w, SessionSummary{
		ID:              sess.ID,
		Name:            export.SessionName(sess),
		Units:           unit,
		DistanceMeters:  sess.DistanceMeters,
		DurationSeconds: sess.DurationSeconds,
		AverageSpeed:    units.ConvertKmh(sess.AverageSpeedKmh, unit),
		MaxSpeed:        units.ConvertKmh(sess.MaxSpeedKmh, unit),
		P50Speed:        units.ConvertKmh(speeds.P50Kmh, unit),
		P85Speed:        units.ConvertKmh(speeds.P85Kmh, unit),
		P98Speed:        units.ConvertKmh(speeds.P98Kmh, unit),
		SpeedSamples:    speeds.Samples,
		ElevationGain:   sess.ElevationGainMeters,
		ElevationLoss:   sess.ElevationLossMeters,
	})
}

func (s *Server) sessionProfilePNG(w http.ResponseWriter, sess *tracking.Session) {
	var buf bytes.Buffer
	if err := export.WriteProfilePNG(&buf, sess, 8*vg.Inch, 3*vg.Inch); err != nil {
		if errors.Is(err, export.ErrNoElevation) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("failed to render profile: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) sessionProfileHTML(w http.ResponseWriter, sess *tracking.Session) {
	var buf bytes.Buffer
	if err := export.WriteProfileHTML(&buf, sess); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render profile: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
