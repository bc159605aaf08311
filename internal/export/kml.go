package export

import (
	"fmt"
	"io"

	"github.com/banshee-data/trail.report/internal/tracking"
	"github.com/twpayne/go-kml/v3"
)

func kmlCoordinate(p tracking.TrackPoint) kml.Coordinate {
	c := kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
	if p.Altitude != nil {
		c.Alt = *p.Altitude
	}
	return c
}

// WriteKML writes the session path as a KML line with start and end
// placemarks.
func WriteKML(w io.Writer, s *tracking.Session) error {
	name := SessionName(s)
	elements := []kml.Element{
		kml.Name(name),
		kml.Description(sessionDescription(s)),
	}

	if n := len(s.TrackPoints); n > 0 {
		coords := make([]kml.Coordinate, n)
		for i, p := range s.TrackPoints {
			coords[i] = kmlCoordinate(p)
		}
		elements = append(elements,
			kml.Placemark(
				kml.Name("Start"),
				kml.Point(kml.Coordinates(coords[0])),
			),
			kml.Placemark(
				kml.Name(name),
				kml.LineString(kml.Coordinates(coords...)),
			),
			kml.Placemark(
				kml.Name("End"),
				kml.Point(kml.Coordinates(coords[n-1])),
			),
		)
	}

	doc := kml.KML(kml.Document(elements...))
	if err := doc.WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("failed to write KML: %w", err)
	}
	return nil
}

func sessionDescription(s *tracking.Session) string {
	desc := fmt.Sprintf("%.2f km in %s, average %.1f km/h, max %.1f km/h, +%d m / -%d m",
		s.DistanceMeters/1000, formatDuration(s.DurationSeconds),
		s.AverageSpeedKmh, s.MaxSpeedKmh, s.ElevationGainMeters, s.ElevationLossMeters)
	if s.Notes != "" {
		desc += "\n" + s.Notes
	}
	return desc
}

func formatDuration(seconds int64) string {
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds/60)%60, seconds%60)
}
