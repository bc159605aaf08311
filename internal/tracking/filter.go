package tracking

import (
	"sync"
	"time"

	"github.com/banshee-data/trail.report/internal/config"
	"github.com/banshee-data/trail.report/internal/timeutil"
)

// Rejection names the reason a fix was not accepted. The zero value means the
// fix was accepted.
type Rejection string

const (
	Accepted               Rejection = ""
	RejectStaleFirstFix    Rejection = "stale_first_fix"
	RejectFirstFixAccuracy Rejection = "first_fix_accuracy"
	RejectAccuracy         Rejection = "accuracy"
	RejectDuplicate        Rejection = "duplicate"
)

// FilterConfig holds the thresholds of the fix acceptance policy.
type FilterConfig struct {
	FirstFixMaxAge      time.Duration
	FirstFixMaxAccuracy float64 // meters
	MaxAccuracy         float64 // meters
	// ReplayMode disables the first-fix staleness check, for recorded tracks
	// whose timestamps are in the past.
	ReplayMode bool
}

// DefaultFilterConfig returns the built-in acceptance thresholds.
func DefaultFilterConfig() FilterConfig {
	return FilterConfigFromTracking(&config.TrackingConfig{})
}

// FilterConfigFromTracking builds a FilterConfig from the tracking config.
func FilterConfigFromTracking(cfg *config.TrackingConfig) FilterConfig {
	return FilterConfig{
		FirstFixMaxAge:      cfg.GetFirstFixMaxAge(),
		FirstFixMaxAccuracy: cfg.GetFirstFixMaxAccuracy(),
		MaxAccuracy:         cfg.GetMaxAccuracy(),
		ReplayMode:          cfg.GetReplayMode(),
	}
}

// FixFilter decides whether incoming fixes belong in a session. The first fix
// after a reset must be fresh and precise; later fixes only need to meet the
// looser accuracy gate. A fix at exactly the last accepted coordinate is
// dropped. Rejections are silent: they are counted, never returned as errors.
type FixFilter struct {
	cfg FilterConfig

	mu               sync.Mutex
	hasAcceptedFirst bool
	lastAccepted     *[2]float64
	rejected         map[Rejection]int
}

// NewFixFilter returns a filter in its just-reset state.
func NewFixFilter(cfg FilterConfig) *FixFilter {
	return &FixFilter{cfg: cfg, rejected: make(map[Rejection]int)}
}

// Reset forgets the accepted history so the next fix is treated as the first
// of a session.
func (f *FixFilter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hasAcceptedFirst = false
	f.lastAccepted = nil
	f.rejected = make(map[Rejection]int)
}

// Seed records lat/lon as the last accepted coordinate without leaving the
// first-fix state, so a fix repeating a point stored before a restart is
// dropped as a duplicate.
func (f *FixFilter) Seed(lat, lon float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastAccepted = &[2]float64{lat, lon}
}

// Evaluate applies the policy to fix as of now and records it as the last
// accepted fix when it passes.
func (f *FixFilter) Evaluate(fix LocationFix, now time.Time) Rejection {
	f.mu.Lock()
	defer f.mu.Unlock()

	r := f.evaluate(fix, now)
	if r != Accepted {
		f.rejected[r]++
		return r
	}

	f.hasAcceptedFirst = true
	f.lastAccepted = &[2]float64{fix.Latitude, fix.Longitude}
	return Accepted
}

func (f *FixFilter) evaluate(fix LocationFix, now time.Time) Rejection {
	if !f.hasAcceptedFirst {
		if !f.cfg.ReplayMode {
			age := now.Sub(timeutil.FromUnixMillis(fix.TimestampMs))
			if age > f.cfg.FirstFixMaxAge {
				return RejectStaleFirstFix
			}
		}
		if fix.HorizontalAccuracyM != nil && float64(*fix.HorizontalAccuracyM) > f.cfg.FirstFixMaxAccuracy {
			return RejectFirstFixAccuracy
		}
	} else if fix.HorizontalAccuracyM != nil && float64(*fix.HorizontalAccuracyM) > f.cfg.MaxAccuracy {
		return RejectAccuracy
	}

	if f.lastAccepted != nil && f.lastAccepted[0] == fix.Latitude && f.lastAccepted[1] == fix.Longitude {
		return RejectDuplicate
	}
	return Accepted
}

// Accept is Evaluate reduced to a yes/no answer.
func (f *FixFilter) Accept(fix LocationFix, now time.Time) bool {
	return f.Evaluate(fix, now) == Accepted
}

// Rejected returns the rejection counts since the last reset.
func (f *FixFilter) Rejected() map[Rejection]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[Rejection]int, len(f.rejected))
	for k, v := range f.rejected {
		out[k] = v
	}
	return out
}
