package tracking

import (
	"time"

	"github.com/paulmach/orb"
)

// LocationFix is a single raw reading from a positioning subsystem. Optional
// measurements are nil when the receiver did not report them.
type LocationFix struct {
	Latitude            float64  `json:"latitude"`
	Longitude           float64  `json:"longitude"`
	Altitude            *float64 `json:"altitude,omitempty"`
	HorizontalAccuracyM *float32 `json:"horizontal_accuracy_m,omitempty"`
	SpeedMPS            *float32 `json:"speed_mps,omitempty"`
	BearingDeg          *float32 `json:"bearing_deg,omitempty"`
	TimestampMs         int64    `json:"timestamp_ms"`
}

// TrackPoint is a fix that passed filtering and was persisted as part of a
// session's path.
type TrackPoint struct {
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Altitude    *float64 `json:"altitude,omitempty"`
	TimestampMs int64    `json:"timestamp_ms"`
	SpeedKmh    *float64 `json:"speed_kmh,omitempty"`
}

// Session is one continuous, possibly paused, tracking activity. Statistics
// are only authoritative once IsCompleted is true.
type Session struct {
	ID                  string       `json:"id"`
	RouteID             *int         `json:"route_id,omitempty"`
	StartTime           time.Time    `json:"start_time"`
	EndTime             *time.Time   `json:"end_time,omitempty"`
	DistanceMeters      float64      `json:"distance_meters"`
	DurationSeconds     int64        `json:"duration_seconds"`
	AverageSpeedKmh     float64      `json:"average_speed_kmh"`
	MaxSpeedKmh         float64      `json:"max_speed_kmh"`
	ElevationGainMeters int          `json:"elevation_gain_meters"`
	ElevationLossMeters int          `json:"elevation_loss_meters"`
	IsCompleted         bool         `json:"is_completed"`
	Name                string       `json:"name"`
	Notes               string       `json:"notes"`
	TrackPoints         []TrackPoint `json:"track_points"`
}

// Difficulty grades a reference route.
type Difficulty string

const (
	DifficultyLow    Difficulty = "LOW"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHigh   Difficulty = "HIGH"
)

// Valid reports whether d is one of the known grades.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyLow, DifficultyMedium, DifficultyHigh:
		return true
	}
	return false
}

// Route is a static reference trail. Geometry is an ordered (lon, lat)
// polyline.
type Route struct {
	ID                       int            `json:"id"`
	Number                   int            `json:"number"`
	Name                     string         `json:"name"`
	StartPoint               string         `json:"start_point"`
	EndPoint                 string         `json:"end_point"`
	DistanceKm               float64        `json:"distance_km"`
	ElevationGainMeters      int            `json:"elevation_gain_meters"`
	ElevationLossMeters      int            `json:"elevation_loss_meters"`
	MaxAltitudeMeters        int            `json:"max_altitude_meters"`
	MinAltitudeMeters        int            `json:"min_altitude_meters"`
	AsphaltPercentage        int            `json:"asphalt_percentage"`
	Difficulty               Difficulty     `json:"difficulty"`
	EstimatedDurationMinutes int            `json:"estimated_duration_minutes"`
	Description              string         `json:"description"`
	Geometry                 orb.LineString `json:"-"`
}

// Path returns the session's track points as a (lon, lat) polyline.
func (s *Session) Path() orb.LineString {
	line := make(orb.LineString, len(s.TrackPoints))
	for i, p := range s.TrackPoints {
		line[i] = orb.Point{p.Longitude, p.Latitude}
	}
	return line
}
