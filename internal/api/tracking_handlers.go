package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/banshee-data/trail.report/internal/httputil"
	"github.com/banshee-data/trail.report/internal/location"
	"github.com/banshee-data/trail.report/internal/tracking"
)

// TrackingStatus is the body of GET /api/tracking.
type TrackingStatus struct {
	State            tracking.State             `json:"state"`
	ElapsedSeconds   int64                      `json:"elapsed_seconds"`
	FilterRejections map[tracking.Rejection]int `json:"filter_rejections,omitempty"`
}

type startRequest struct {
	RouteID *int `json:"route_id"`
}

type stopRequest struct {
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

func (s *Server) trackingStatus() TrackingStatus {
	return TrackingStatus{
		State:            s.engine.State(),
		ElapsedSeconds:   int64(s.engine.Elapsed().Seconds()),
		FilterRejections: s.engine.FilterRejections(),
	}
}

func (s *Server) showTracking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.trackingStatus())
}

// decodeBody reads an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == io.EOF {
		return nil
	}
	return err
}

func (s *Server) handleTrackingAction(w http.ResponseWriter, r *http.Request) {
	action := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/tracking/"), "/")

	if action == "events" {
		s.streamTracking(w, r)
		return
	}
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	var (
		state tracking.State
		err   error
	)
	switch action {
	case "start":
		var req startRequest
		if err := decodeBody(r, &req); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		state, err = s.engine.Start(ctx, req.RouteID)
	case "stop":
		var req stopRequest
		if err := decodeBody(r, &req); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		state, err = s.engine.Stop(ctx, tracking.StopOptions{Name: req.Name, Notes: req.Notes})
	case "pause":
		state, err = s.engine.Pause(ctx)
	case "resume":
		state, err = s.engine.Resume(ctx)
	case "discard":
		state, err = s.engine.Discard(ctx)
	case "fix":
		var fix tracking.LocationFix
		if err := json.NewDecoder(r.Body).Decode(&fix); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid fix: %v", err))
			return
		}
		if rec, ok := s.source.(fixRecorder); ok && tracking.ValidateCoordinate(fix.Latitude, fix.Longitude) == nil {
			rec.Remember(fix)
		}
		if err := s.engine.OnFix(ctx, fix); err != nil {
			writeEngineError(w, err)
			return
		}
		httputil.WriteJSONOK(w, s.trackingStatus())
		return
	default:
		httputil.NotFound(w, fmt.Sprintf("unknown tracking action %q", action))
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteJSONOK(w, state)
}

// streamTracking sends every engine state change as a server-sent event
// until the client disconnects.
func (s *Server) streamTracking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	id, states := s.engine.Watch()
	defer s.engine.Unwatch(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	write := func(st tracking.State) error {
		b, err := json.Marshal(st)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", b); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := write(s.engine.State()); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			if err := write(st); err != nil {
				return
			}
		}
	}
}

func (s *Server) showLastLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.source == nil {
		httputil.NotFound(w, "no location source configured")
		return
	}
	fix, err := s.source.LastKnownLocation(r.Context())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to read location: %v", err))
		return
	}
	if fix == nil {
		httputil.NotFound(w, "no location known yet")
		return
	}
	httputil.WriteJSONOK(w, fix)
}

// fixRecorder is a source that learns positions from the fix endpoint.
type fixRecorder interface {
	Remember(fix tracking.LocationFix)
}

type sentenceCounter interface {
	Stats() location.NMEAStats
}

// showLocationStats reports the NMEA sentence counters of a serial receiver.
func (s *Server) showLocationStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	counter, ok := s.source.(sentenceCounter)
	if !ok {
		httputil.NotFound(w, "location source does not read NMEA")
		return
	}
	httputil.WriteJSONOK(w, counter.Stats())
}
