package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/trail.report/internal/timeutil"
	"github.com/banshee-data/trail.report/internal/tracking"
	"github.com/tkrajina/gpxgo/gpx"
)

// ErrEmptyRecording is returned for GPX files without any track or route
// points.
var ErrEmptyRecording = errors.New("GPX file has no points")

// defaultReplayGap spaces points that carry no timestamps.
const defaultReplayGap = time.Second

// ReplayOptions controls how a GPX recording is played back.
type ReplayOptions struct {
	// Speed multiplies playback speed; 0 or less plays in real time.
	Speed float64
	// KeepTimestamps delivers the recorded timestamps instead of rebasing
	// them onto the current time. The engine only accepts such fixes when
	// it runs in replay mode, since they are older than the first fix
	// freshness limit.
	KeepTimestamps bool
}

// GPXReplaySource plays back a recorded GPX track as if a receiver were
// producing it live.
type GPXReplaySource struct {
	points []gpx.GPXPoint
	clock  timeutil.Clock
	opts   ReplayOptions
	hub    *hub

	mu       sync.Mutex
	enabled  bool
	position int
}

var _ tracking.LocationSource = (*GPXReplaySource)(nil)

// LoadGPXReplay parses the GPX file at path.
func LoadGPXReplay(path string, clock timeutil.Clock, opts ReplayOptions) (*GPXReplaySource, error) {
	g, err := gpx.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GPX file %s: %w", path, err)
	}
	return NewGPXReplaySource(g, clock, opts)
}

// NewGPXReplaySource plays the track points of g in file order, falling
// back to route points when the file has no tracks.
func NewGPXReplaySource(g *gpx.GPX, clock timeutil.Clock, opts ReplayOptions) (*GPXReplaySource, error) {
	var points []gpx.GPXPoint
	for _, track := range g.Tracks {
		for _, segment := range track.Segments {
			points = append(points, segment.Points...)
		}
	}
	if len(points) == 0 {
		for _, route := range g.Routes {
			points = append(points, route.Points...)
		}
	}
	if len(points) == 0 {
		return nil, ErrEmptyRecording
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &GPXReplaySource{points: points, clock: clock, opts: opts, hub: newHub(), enabled: true}, nil
}

// Len returns the number of points in the recording.
func (s *GPXReplaySource) Len() int { return len(s.points) }

// Position returns how many points have been played.
func (s *GPXReplaySource) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Run plays the recording once. Points are published whether or not anyone
// is subscribed, the way a receiver keeps producing fixes.
func (s *GPXReplaySource) Run(ctx context.Context) error {
	for i, p := range s.points {
		if i > 0 {
			if err := s.wait(ctx, s.gap(s.points[i-1], p)); err != nil {
				return err
			}
		}
		s.hub.publish(s.toFix(p))
		s.mu.Lock()
		s.position = i + 1
		s.mu.Unlock()
	}
	logf("GPX replay finished after %d points", len(s.points))
	return nil
}

func (s *GPXReplaySource) gap(prev, next gpx.GPXPoint) time.Duration {
	d := defaultReplayGap
	if !prev.Timestamp.IsZero() && !next.Timestamp.IsZero() {
		d = next.Timestamp.Sub(prev.Timestamp)
	}
	if s.opts.Speed > 0 {
		d = time.Duration(float64(d) / s.opts.Speed)
	}
	return d
}

func (s *GPXReplaySource) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	ticker := s.clock.NewTicker(d)
	defer ticker.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ticker.C():
		return nil
	}
}

func (s *GPXReplaySource) toFix(p gpx.GPXPoint) *tracking.LocationFix {
	fix := &tracking.LocationFix{
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		TimestampMs: timeutil.UnixMillis(s.clock.Now()),
	}
	if s.opts.KeepTimestamps && !p.Timestamp.IsZero() {
		fix.TimestampMs = timeutil.UnixMillis(p.Timestamp)
	}
	if p.Elevation.NotNull() {
		alt := p.Elevation.Value()
		fix.Altitude = &alt
	}
	if p.HorizontalDilution.NotNull() {
		acc := float32(p.HorizontalDilution.Value() * uereMeters)
		fix.HorizontalAccuracyM = &acc
	}
	return fix
}

// SetEnabled switches the simulated receiver on or off.
func (s *GPXReplaySource) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *GPXReplaySource) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *GPXReplaySource) HasPermission() bool { return true }

func (s *GPXReplaySource) Subscribe(req tracking.LocationRequest) (string, <-chan *tracking.LocationFix, error) {
	return s.hub.subscribe(req)
}

func (s *GPXReplaySource) Unsubscribe(id string) { s.hub.unsubscribe(id) }

func (s *GPXReplaySource) LastKnownLocation(ctx context.Context) (*tracking.LocationFix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.hub.lastKnown(), nil
}

// Close ends all subscriptions.
func (s *GPXReplaySource) Close() { s.hub.close() }
