package tracking

import (
	"context"
	"time"

	"github.com/banshee-data/trail.report/internal/config"
)

// LocationRequest describes the cadence a session asks of its location
// source. Sources may treat it as a hint.
type LocationRequest struct {
	UpdateInterval    time.Duration
	FastestInterval   time.Duration
	MinDistanceMeters float64
	Priority          string
}

// LocationRequestFromTracking builds a LocationRequest from the tracking config.
func LocationRequestFromTracking(cfg *config.TrackingConfig) LocationRequest {
	return LocationRequest{
		UpdateInterval:    cfg.GetUpdateInterval(),
		FastestInterval:   cfg.GetFastestInterval(),
		MinDistanceMeters: cfg.GetMinDistance(),
		Priority:          cfg.GetPriority(),
	}
}

// LocationSource is the positioning capability the engine is written
// against. There is one implementation per kind of receiver.
type LocationSource interface {
	// IsEnabled reports whether positioning is switched on.
	IsEnabled() bool
	// HasPermission reports whether this process may read positions.
	HasPermission() bool
	// Subscribe starts delivering fixes on the returned channel. A nil fix
	// means no position is currently available; it does not end the stream.
	Subscribe(req LocationRequest) (string, <-chan *LocationFix, error)
	// Unsubscribe stops delivery to the subscription and closes its channel.
	Unsubscribe(id string)
	// LastKnownLocation returns the most recent fix seen, or nil.
	LastKnownLocation(ctx context.Context) (*LocationFix, error)
}

// SessionRepository is the durable store for sessions and their points.
type SessionRepository interface {
	// CreateSession stores a new session record.
	CreateSession(ctx context.Context, s *Session) error
	// ReplaceSession atomically rewrites a session together with its points.
	ReplaceSession(ctx context.Context, s *Session) error
	// InsertTrackPoint appends one point without touching earlier ones.
	InsertTrackPoint(ctx context.Context, sessionID string, p TrackPoint) error
	// DeleteSession removes a session and all of its points.
	DeleteSession(ctx context.Context, sessionID string) error
	// GetActiveSession returns the non-completed session, or nil when none.
	GetActiveSession(ctx context.Context) (*Session, error)
	GetSessionByID(ctx context.Context, sessionID string) (*Session, error)
	GetAllSessions(ctx context.Context) ([]Session, error)
	GetSessionsByRoute(ctx context.Context, routeID int) ([]Session, error)
}

// PersistedState records which session was being tracked so that a restarted
// process can pick it up again. StartTimeMs marks the start of the current
// running stretch; time before it is in AccumulatedSeconds.
type PersistedState struct {
	IsTracking         bool   `json:"is_tracking"`
	SessionID          string `json:"session_id"`
	StartTimeMs        int64  `json:"start_time_ms"`
	AccumulatedSeconds int64  `json:"accumulated_seconds"`
	RouteID            *int   `json:"route_id,omitempty"`
	Paused             bool   `json:"paused,omitempty"`
}

// ElapsedSeconds returns the tracked duration as of nowMs.
func (p PersistedState) ElapsedSeconds(nowMs int64) int64 {
	if p.Paused || !p.IsTracking {
		return p.AccumulatedSeconds
	}
	return p.AccumulatedSeconds + (nowMs-p.StartTimeMs)/1000
}

// StateStore is a small durable key/value store surviving restarts.
type StateStore interface {
	Load() (PersistedState, error)
	Save(PersistedState) error
	Clear() error
}

// BackgroundInfo identifies the session a background executor keeps alive.
type BackgroundInfo struct {
	SessionID string
	RouteID   *int
	Elapsed   func() time.Duration
}

// BackgroundExecutor is asked to keep the process running while a session is
// active. The engine behaves the same whether or not the request is honored.
type BackgroundExecutor interface {
	Acquire(info BackgroundInfo) error
	Release()
}

// NoopBackground ignores keep-alive requests.
type NoopBackground struct{}

func (NoopBackground) Acquire(BackgroundInfo) error { return nil }
func (NoopBackground) Release()                     {}
