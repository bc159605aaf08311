package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/trail.report/internal/export"
	"github.com/banshee-data/trail.report/internal/geo"
	"github.com/banshee-data/trail.report/internal/httputil"
	"github.com/banshee-data/trail.report/internal/tracking"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// RouteResponse is a route with its geometry encoded as GeoJSON.
type RouteResponse struct {
	tracking.Route
	Geometry *geojson.Geometry        `json:"geometry"`
	Stats    *geo.SimplificationStats `json:"simplification,omitempty"`
}

func newRouteResponse(r tracking.Route, line orb.LineString, stats *geo.SimplificationStats) RouteResponse {
	return RouteResponse{Route: r, Geometry: geojson.NewGeometry(line), Stats: stats}
}

func (s *Server) listRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	routes, err := s.db.Routes(r.Context())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list routes: %v", err))
		return
	}

	if r.URL.Query().Get("format") == "geojson" {
		w.Header().Set("Content-Type", "application/geo+json")
		if err := export.WriteRoutes(w, routes); err != nil {
			httputil.InternalServerError(w, err.Error())
		}
		return
	}

	out := make([]RouteResponse, 0, len(routes))
	for _, rt := range routes {
		out = append(out, newRouteResponse(rt, rt.Geometry, nil))
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) handleRouteByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	idStr, rest := pathID(r.URL.Path, "/api/routes/")
	if idStr == "simplified" {
		s.listSimplifiedRoutes(w, r)
		return
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid route id %q", idStr))
		return
	}

	route, err := s.db.GetRoute(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	switch rest {
	case "":
		ctxName := r.URL.Query().Get("context")
		if ctxName == "" {
			httputil.WriteJSONOK(w, newRouteResponse(*route, route.Geometry, nil))
			return
		}
		tolerance, err := s.cfg.ToleranceFor(ctxName)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		line, stats := geo.SimplifyWithStats(route.Geometry, tolerance)
		httputil.WriteJSONOK(w, newRouteResponse(*route, line, &stats))
	case "sessions":
		sessions, err := s.db.GetSessionsByRoute(r.Context(), id)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, listItems(sessions))
	default:
		httputil.NotFound(w, fmt.Sprintf("unknown route resource %q", rest))
	}
}

// listSimplifiedRoutes serves every route simplified for the rendering
// context named by ?context= (detail, overview or low_end).
func (s *Server) listSimplifiedRoutes(w http.ResponseWriter, r *http.Request) {
	tolerance, err := s.cfg.ToleranceFor(r.URL.Query().Get("context"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	routes, err := s.db.SimplifiedRoutes(r.Context(), tolerance)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to simplify routes: %v", err))
		return
	}
	out := make([]RouteResponse, 0, len(routes))
	for _, sr := range routes {
		stats := sr.Stats
		out = append(out, newRouteResponse(sr.Route, sr.Simplified, &stats))
	}
	httputil.WriteJSONOK(w, out)
}
