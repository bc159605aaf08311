package export

import (
	"fmt"
	"io"

	"github.com/banshee-data/trail.report/internal/tracking"
	"github.com/tkrajina/gpxgo/gpx"
)

const creator = "trail.report"

// ToGPX converts a session into a GPX document with one track and one
// segment holding every point in order.
func ToGPX(s *tracking.Session) *gpx.GPX {
	doc := &gpx.GPX{}
	doc.Creator = creator
	doc.Version = "1.1"
	doc.Name = SessionName(s)
	doc.Description = s.Notes

	segment := gpx.GPXTrackSegment{}
	for _, p := range s.TrackPoints {
		var pt gpx.GPXPoint
		pt.Latitude = p.Latitude
		pt.Longitude = p.Longitude
		pt.Timestamp = pointTime(p)
		if p.Altitude != nil {
			pt.Elevation = *gpx.NewNullableFloat64(*p.Altitude)
		}
		segment.Points = append(segment.Points, pt)
	}

	track := gpx.GPXTrack{}
	track.Name = SessionName(s)
	track.Segments = append(track.Segments, segment)
	doc.Tracks = append(doc.Tracks, track)
	return doc
}

// WriteGPX writes the session as indented GPX 1.1.
func WriteGPX(w io.Writer, s *tracking.Session) error {
	b, err := ToGPX(s).ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return fmt.Errorf("failed to encode GPX: %w", err)
	}
	_, err = w.Write(b)
	return err
}
