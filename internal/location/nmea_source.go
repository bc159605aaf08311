package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/trail.report/internal/monitoring"
	"github.com/banshee-data/trail.report/internal/serialmux"
	"github.com/banshee-data/trail.report/internal/timeutil"
	"github.com/banshee-data/trail.report/internal/tracking"
)

var logf = monitoring.Component("location")

// ErrSourceClosed is returned by Subscribe once a source has shut down.
var ErrSourceClosed = errors.New("location source closed")

// NMEAStats counts what the receiver source has seen since it started.
type NMEAStats struct {
	Lines          int64 `json:"lines"`
	Sentences      int64 `json:"sentences"`
	ChecksumErrors int64 `json:"checksum_errors"`
	ParseErrors    int64 `json:"parse_errors"`
	Fixes          int64 `json:"fixes"`
	NoFix          int64 `json:"no_fix"`
}

// NMEASource turns the NMEA 0183 sentences of a GPS receiver attached to a
// serial mux into location fixes.
type NMEASource struct {
	mux   serialmux.SerialMuxInterface
	clock timeutil.Clock
	hub   *hub

	mu     sync.Mutex
	failed bool

	lines, sentences, checksumErrors, parseErrors, fixes, noFix atomic.Int64
}

var _ tracking.LocationSource = (*NMEASource)(nil)

// NewNMEASource creates a source reading mux. Run must be called for fixes
// to flow.
func NewNMEASource(mux serialmux.SerialMuxInterface, clock timeutil.Clock) *NMEASource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &NMEASource{mux: mux, clock: clock, hub: newHub()}
}

// Run subscribes to the mux and publishes a fix for every complete epoch
// until ctx is done or the mux closes its channel. A closed channel means
// the receiver is gone and the source reports itself disabled from then on.
func (s *NMEASource) Run(ctx context.Context) error {
	id, lines := s.mux.Subscribe()
	defer s.mux.Unsubscribe(id)

	asm := newFixAssembler(s.clock)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				s.MarkFailed(errors.New("serial mux closed"))
				return nil
			}
			s.handleLine(asm, line)
		}
	}
}

func (s *NMEASource) handleLine(asm *fixAssembler, line string) {
	s.lines.Add(1)
	sentence, err := ParseSentence(serialmux.CleanLine(line))
	switch {
	case errors.Is(err, ErrNotNMEA):
		return
	case err != nil:
		s.checksumErrors.Add(1)
		return
	}
	s.sentences.Add(1)

	results, err := asm.Add(sentence)
	if err != nil {
		s.parseErrors.Add(1)
		logf("%s sentence: %v", sentence.Type, err)
		return
	}
	for _, r := range results {
		if r.fix == nil {
			s.noFix.Add(1)
		} else {
			s.fixes.Add(1)
		}
		s.hub.publish(r.fix)
	}
}

// MarkFailed records that the receiver can no longer be read, typically
// because the serial monitor returned.
func (s *NMEASource) MarkFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.failed {
		logf("GPS receiver unavailable: %v", err)
	}
	s.failed = true
}

// IsEnabled is false when no receiver is attached or the receiver failed.
func (s *NMEASource) IsEnabled() bool {
	if d, ok := s.mux.(interface{ Disabled() bool }); ok && d.Disabled() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.failed
}

// HasPermission is always true; access to the serial device is settled when
// the port is opened.
func (s *NMEASource) HasPermission() bool { return true }

// Subscribe starts delivering fixes and asks the receiver for the requested
// update rate. Receivers that do not understand the rate command ignore it.
func (s *NMEASource) Subscribe(req tracking.LocationRequest) (string, <-chan *tracking.LocationFix, error) {
	id, ch, err := s.hub.subscribe(req)
	if err != nil {
		return "", nil, err
	}
	if ms := req.UpdateInterval.Milliseconds(); ms > 0 && s.IsEnabled() {
		if err := s.mux.SendCommand(UpdateRateCommand(ms)); err != nil {
			logf("failed to set receiver update rate: %v", err)
		}
	}
	return id, ch, nil
}

func (s *NMEASource) Unsubscribe(id string) { s.hub.unsubscribe(id) }

func (s *NMEASource) LastKnownLocation(ctx context.Context) (*tracking.LocationFix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.hub.lastKnown(), nil
}

// Stats returns the sentence counters.
func (s *NMEASource) Stats() NMEAStats {
	return NMEAStats{
		Lines:          s.lines.Load(),
		Sentences:      s.sentences.Load(),
		ChecksumErrors: s.checksumErrors.Load(),
		ParseErrors:    s.parseErrors.Load(),
		Fixes:          s.fixes.Load(),
		NoFix:          s.noFix.Load(),
	}
}

// Close ends all subscriptions.
func (s *NMEASource) Close() { s.hub.close() }

// UpdateRateCommand is the MediaTek PMTK220 sentence setting the fix
// interval in milliseconds.
func UpdateRateCommand(intervalMs int64) string {
	return FormatSentence(fmt.Sprintf("PMTK220,%d", intervalMs))
}
