package export

import (
	"fmt"
	"io"

	"github.com/banshee-data/trail.report/internal/tracking"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// SessionFeatureCollection returns the session as a LineString feature
// carrying its statistics, plus start and end point features.
func SessionFeatureCollection(s *tracking.Session) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	path := s.Path()
	line := geojson.NewFeature(path)
	line.ID = s.ID
	line.Properties["name"] = SessionName(s)
	line.Properties["kind"] = "track"
	line.Properties["start_time"] = s.StartTime.UTC()
	if s.EndTime != nil {
		line.Properties["end_time"] = s.EndTime.UTC()
	}
	line.Properties["distance_meters"] = s.DistanceMeters
	line.Properties["duration_seconds"] = s.DurationSeconds
	line.Properties["average_speed_kmh"] = s.AverageSpeedKmh
	line.Properties["max_speed_kmh"] = s.MaxSpeedKmh
	line.Properties["elevation_gain_meters"] = s.ElevationGainMeters
	line.Properties["elevation_loss_meters"] = s.ElevationLossMeters
	if s.RouteID != nil {
		line.Properties["route_id"] = *s.RouteID
	}
	if s.Notes != "" {
		line.Properties["notes"] = s.Notes
	}
	fc.Append(line)

	if len(path) > 0 {
		fc.Append(endpointFeature("start", path[0], s.TrackPoints[0]))
		fc.Append(endpointFeature("end", path[len(path)-1], s.TrackPoints[len(path)-1]))
	}
	return fc
}

func endpointFeature(kind string, p orb.Point, tp tracking.TrackPoint) *geojson.Feature {
	f := geojson.NewFeature(p)
	f.Properties["kind"] = kind
	f.Properties["time"] = pointTime(tp)
	if tp.Altitude != nil {
		f.Properties["altitude"] = *tp.Altitude
	}
	return f
}

// WriteGeoJSON writes the session feature collection.
func WriteGeoJSON(w io.Writer, s *tracking.Session) error {
	return writeFeatureCollection(w, SessionFeatureCollection(s))
}

// RouteFeatureCollection returns routes as LineString features whose
// properties use the same keys db.ImportRoutes reads.
func RouteFeatureCollection(routes []tracking.Route) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range routes {
		f := geojson.NewFeature(r.Geometry)
		f.ID = r.ID
		f.Properties["id"] = r.ID
		f.Properties["number"] = r.Number
		f.Properties["name"] = r.Name
		f.Properties["start_point"] = r.StartPoint
		f.Properties["end_point"] = r.EndPoint
		f.Properties["distance_km"] = r.DistanceKm
		f.Properties["elevation_gain_meters"] = r.ElevationGainMeters
		f.Properties["elevation_loss_meters"] = r.ElevationLossMeters
		f.Properties["max_altitude_meters"] = r.MaxAltitudeMeters
		f.Properties["min_altitude_meters"] = r.MinAltitudeMeters
		f.Properties["asphalt_percentage"] = r.AsphaltPercentage
		f.Properties["difficulty"] = string(r.Difficulty)
		f.Properties["estimated_duration_minutes"] = r.EstimatedDurationMinutes
		f.Properties["description"] = r.Description
		fc.Append(f)
	}
	return fc
}

// WriteRoutes writes routes as a GeoJSON feature collection.
func WriteRoutes(w io.Writer, routes []tracking.Route) error {
	return writeFeatureCollection(w, RouteFeatureCollection(routes))
}

func writeFeatureCollection(w io.Writer, fc *geojson.FeatureCollection) error {
	b, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	_, err = w.Write(b)
	return err
}
