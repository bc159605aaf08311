package export

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"time"

	"github.com/banshee-data/trail.report/internal/geo"
	"github.com/banshee-data/trail.report/internal/tracking"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrNoElevation is returned when fewer than two points carry an altitude.
var ErrNoElevation = errors.New("session has no elevation data")

// echartsAssetsHost serves the echarts script for the HTML profile.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// ProfilePoint is one sample along a session: how far and how long into
// the session it was recorded and what the receiver measured there.
type ProfilePoint struct {
	DistanceKm float64       `json:"distance_km"`
	Elapsed    time.Duration `json:"elapsed"`
	Altitude   *float64      `json:"altitude,omitempty"`
	SpeedKmh   *float64      `json:"speed_kmh,omitempty"`
}

// Profile walks the session's points accumulating great-circle distance.
func Profile(s *tracking.Session) []ProfilePoint {
	out := make([]ProfilePoint, len(s.TrackPoints))
	var dist float64
	for i, p := range s.TrackPoints {
		if i > 0 {
			prev := s.TrackPoints[i-1]
			dist += geo.Haversine(prev.Latitude, prev.Longitude, p.Latitude, p.Longitude)
		}
		out[i] = ProfilePoint{
			DistanceKm: dist / 1000,
			Elapsed:    time.Duration(p.TimestampMs-s.TrackPoints[0].TimestampMs) * time.Millisecond,
			Altitude:   p.Altitude,
			SpeedKmh:   p.SpeedKmh,
		}
	}
	return out
}

func elevationXYs(profile []ProfilePoint) plotter.XYs {
	xys := make(plotter.XYs, 0, len(profile))
	for _, p := range profile {
		if p.Altitude != nil {
			xys = append(xys, plotter.XY{X: p.DistanceKm, Y: *p.Altitude})
		}
	}
	return xys
}

// WriteProfilePNG renders the elevation profile as a PNG image of the given
// size in points.
func WriteProfilePNG(w io.Writer, s *tracking.Session, width, height vg.Length) error {
	xys := elevationXYs(Profile(s))
	if len(xys) < 2 {
		return ErrNoElevation
	}

	p := plot.New()
	p.Title.Text = SessionName(s)
	p.X.Label.Text = "Distance (km)"
	p.Y.Label.Text = "Elevation (m)"
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(xys)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 0x1f, G: 0x9e, B: 0x89, A: 0xff}
	line.Width = vg.Points(1.5)
	p.Add(line)

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("failed to render profile: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// WriteProfileHTML renders an interactive elevation and speed chart.
func WriteProfileHTML(w io.Writer, s *tracking.Session) error {
	profile := Profile(s)
	x := make([]string, len(profile))
	elevation := make([]opts.LineData, len(profile))
	speed := make([]opts.LineData, len(profile))
	for i, p := range profile {
		x[i] = fmt.Sprintf("%.2f", p.DistanceKm)
		elevation[i] = opts.LineData{Value: optionalValue(p.Altitude)}
		speed[i] = opts.LineData{Value: optionalValue(p.SpeedKmh)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: SessionName(s), Width: "100%", Height: "480px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: SessionName(s), Subtitle: fmt.Sprintf("%.2f km, %s", s.DistanceMeters/1000, formatDuration(s.DurationSeconds))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "km", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "m"}),
	)
	line.ExtendYAxis(opts.YAxis{Name: "km/h"})
	line.SetXAxis(x).
		AddSeries("Elevation", elevation).
		AddSeries("Speed", speed, charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1}))

	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// optionalValue leaves a gap in the chart for missing measurements.
func optionalValue(v *float64) interface{} {
	if v == nil {
		return "-"
	}
	return *v
}
