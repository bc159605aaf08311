// Package export writes completed tracking sessions in track-log exchange
// formats (GPX, KML, GeoJSON) and renders their elevation and speed
// profiles.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/banshee-data/trail.report/internal/timeutil"
	"github.com/banshee-data/trail.report/internal/tracking"
)

var (
	ErrUnknownFormat = errors.New("unknown export format")
	ErrNotCompleted  = errors.New("session is not completed")
)

// Format names an export encoding.
type Format string

const (
	FormatGPX     Format = "gpx"
	FormatKML     Format = "kml"
	FormatGeoJSON Format = "geojson"
)

// Formats lists the supported encodings.
var Formats = []Format{FormatGPX, FormatKML, FormatGeoJSON}

// ParseFormat accepts a format name, case-insensitively. An empty name means
// GPX.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatGPX:
		return FormatGPX, nil
	case FormatKML:
		return FormatKML, nil
	case FormatGeoJSON, "json":
		return FormatGeoJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

func (f Format) ContentType() string {
	switch f {
	case FormatKML:
		return "application/vnd.google-earth.kml+xml"
	case FormatGeoJSON:
		return "application/geo+json"
	default:
		return "application/gpx+xml"
	}
}

func (f Format) Extension() string {
	return "." + string(f)
}

// Filename suggests a download name such as trail-20260412-0900-1a2b3c4d.gpx.
func Filename(s *tracking.Session, f Format) string {
	id := s.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("trail-%s-%s%s", s.StartTime.UTC().Format("20060102-1504"), id, f.Extension())
}

// Write encodes a completed session in format f.
func Write(w io.Writer, s *tracking.Session, f Format) error {
	if !s.IsCompleted {
		return ErrNotCompleted
	}
	switch f {
	case FormatGPX:
		return WriteGPX(w, s)
	case FormatKML:
		return WriteKML(w, s)
	case FormatGeoJSON:
		return WriteGeoJSON(w, s)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// SessionName is the display name of a session; unnamed sessions are named
// after their start time.
func SessionName(s *tracking.Session) string {
	if s.Name != "" {
		return s.Name
	}
	return "Session " + s.StartTime.UTC().Format("2006-01-02 15:04")
}

func pointTime(p tracking.TrackPoint) time.Time {
	return timeutil.FromUnixMillis(p.TimestampMs).UTC()
}
