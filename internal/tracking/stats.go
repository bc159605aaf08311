package tracking

import (
	"math"
	"sort"

	"github.com/banshee-data/trail.report/internal/geo"
	"gonum.org/v1/gonum/stat"
)

// Stats is the result of aggregating a session's track points.
type Stats struct {
	DistanceMeters      float64 `json:"distance_meters"`
	MaxSpeedKmh         float64 `json:"max_speed_kmh"`
	ElevationGainMeters int     `json:"elevation_gain_meters"`
	ElevationLossMeters int     `json:"elevation_loss_meters"`
}

// AggregateOptions tunes elevation accounting.
type AggregateOptions struct {
	// ElevationDeadBand, when positive, credits an altitude change only once
	// it moves at least this many meters away from the last credited altitude.
	ElevationDeadBand float64
}

// Aggregate computes distance, maximum speed and elevation gain/loss over
// points in order. Fewer than two points yield the zero Stats.
func Aggregate(points []TrackPoint) Stats {
	return AggregateWithOptions(points, AggregateOptions{})
}

// AggregateWithOptions is Aggregate with explicit elevation options.
func AggregateWithOptions(points []TrackPoint, opts AggregateOptions) Stats {
	var s Stats
	if len(points) < 2 {
		return s
	}

	var gain, loss float64
	var ref *float64
	if opts.ElevationDeadBand > 0 {
		ref = points[0].Altitude
	}

	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]

		s.DistanceMeters += geo.Haversine(prev.Latitude, prev.Longitude, cur.Latitude, cur.Longitude)

		if cur.SpeedKmh != nil && *cur.SpeedKmh > s.MaxSpeedKmh {
			s.MaxSpeedKmh = *cur.SpeedKmh
		}

		if opts.ElevationDeadBand > 0 {
			if cur.Altitude == nil {
				continue
			}
			if ref == nil {
				ref = cur.Altitude
				continue
			}
			delta := *cur.Altitude - *ref
			if math.Abs(delta) < opts.ElevationDeadBand {
				continue
			}
			if delta > 0 {
				gain += delta
			} else {
				loss -= delta
			}
			ref = cur.Altitude
			continue
		}

		if prev.Altitude != nil && cur.Altitude != nil {
			delta := *cur.Altitude - *prev.Altitude
			if delta > 0 {
				gain += delta
			} else if delta < 0 {
				loss -= delta
			}
		}
	}

	s.ElevationGainMeters = int(gain)
	s.ElevationLossMeters = int(loss)
	return s
}

// AverageSpeedKmh returns distance over duration in km/h, or 0 for a zero
// duration.
func AverageSpeedKmh(distanceMeters float64, durationSeconds int64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	return (distanceMeters / 1000) / (float64(durationSeconds) / 3600)
}

// SpeedSummary describes the distribution of recorded point speeds.
type SpeedSummary struct {
	Samples int     `json:"samples"`
	P50Kmh  float64 `json:"p50_kmh"`
	P85Kmh  float64 `json:"p85_kmh"`
	P98Kmh  float64 `json:"p98_kmh"`
}

// SummarizeSpeeds returns empirical quantiles over every point that carries
// a speed.
func SummarizeSpeeds(points []TrackPoint) SpeedSummary {
	speeds := make([]float64, 0, len(points))
	for _, p := range points {
		if p.SpeedKmh != nil {
			speeds = append(speeds, *p.SpeedKmh)
		}
	}
	if len(speeds) == 0 {
		return SpeedSummary{}
	}
	sort.Float64s(speeds)

	return SpeedSummary{
		Samples: len(speeds),
		P50Kmh:  stat.Quantile(0.50, stat.Empirical, speeds, nil),
		P85Kmh:  stat.Quantile(0.85, stat.Empirical, speeds, nil),
		P98Kmh:  stat.Quantile(0.98, stat.Empirical, speeds, nil),
	}
}
