package tracking

import (
	"time"

	"github.com/banshee-data/trail.report/internal/config"
	"github.com/banshee-data/trail.report/internal/geo"
	"github.com/banshee-data/trail.report/internal/units"
)

// SpeedConfig controls how point speeds are filled in.
type SpeedConfig struct {
	// Derive fills in a speed from the previous point when the fix has none.
	Derive      bool
	MaxSpeedMPS float64
	MaxGap      time.Duration
}

// SpeedConfigFromTracking builds a SpeedConfig from the tracking config.
func SpeedConfigFromTracking(cfg *config.TrackingConfig) SpeedConfig {
	return SpeedConfig{
		Derive:      cfg.GetDeriveSpeed(),
		MaxSpeedMPS: cfg.GetMaxDerivedSpeedMPS(),
		MaxGap:      cfg.GetMaxDeriveGap(),
	}
}

// deriveSpeedMPS estimates speed between prev and the new position. A gap
// longer than MaxGap counts as standing still; a non-positive interval or an
// implausible result keeps the previous speed.
func deriveSpeedMPS(prev *TrackPoint, lat, lon float64, timestampMs int64, cfg SpeedConfig) *float64 {
	if prev == nil {
		return nil
	}

	var prevMPS *float64
	if prev.SpeedKmh != nil {
		v := *prev.SpeedKmh / units.KmhPerMPS
		prevMPS = &v
	}

	dt := time.Duration(timestampMs-prev.TimestampMs) * time.Millisecond
	if dt <= 0 {
		return prevMPS
	}
	if dt > cfg.MaxGap {
		zero := 0.0
		return &zero
	}

	v := geo.Haversine(prev.Latitude, prev.Longitude, lat, lon) / dt.Seconds()
	if v > cfg.MaxSpeedMPS {
		return prevMPS
	}
	return &v
}

// toTrackPoint converts an accepted fix into the point that is persisted.
// Timestamps are clamped so they never run backwards within a session.
func toTrackPoint(fix LocationFix, prev *TrackPoint, cfg SpeedConfig) TrackPoint {
	ts := fix.TimestampMs
	if prev != nil && ts < prev.TimestampMs {
		ts = prev.TimestampMs
	}

	p := TrackPoint{
		Latitude:    fix.Latitude,
		Longitude:   fix.Longitude,
		TimestampMs: ts,
	}
	if fix.Altitude != nil {
		alt := *fix.Altitude
		p.Altitude = &alt
	}

	switch {
	case fix.SpeedMPS != nil:
		kmh := units.MPSToKmh(float64(*fix.SpeedMPS))
		p.SpeedKmh = &kmh
	case cfg.Derive:
		if mps := deriveSpeedMPS(prev, fix.Latitude, fix.Longitude, ts, cfg); mps != nil {
			kmh := units.MPSToKmh(*mps)
			p.SpeedKmh = &kmh
		}
	}
	return p
}
