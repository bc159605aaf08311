package tracking

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/trail.report/internal/config"
	"github.com/banshee-data/trail.report/internal/monitoring"
	"github.com/banshee-data/trail.report/internal/timeutil"
	"github.com/google/uuid"
)

var logf = monitoring.Component("tracking")

// EngineConfig wires an Engine to its collaborators. Source, Repository and
// State are required; the rest default to a real clock, a no-op background
// executor and the built-in tracking config.
type EngineConfig struct {
	Source     LocationSource
	Repository SessionRepository
	State      StateStore
	Background BackgroundExecutor
	Clock      timeutil.Clock
	Tracking   *config.TrackingConfig
}

// StopOptions carries the user's annotations for a finished session.
type StopOptions struct {
	// Name replaces the session name when non-empty.
	Name  string
	Notes string
}

// Engine owns the tracking session state machine. Start, Stop, OnFix and the
// pause/resume operations are serialized by a single mutex, so at most one
// session is ever tracking.
type Engine struct {
	source     LocationSource
	repo       SessionRepository
	store      StateStore
	background BackgroundExecutor
	clock      timeutil.Clock

	request   LocationRequest
	speedCfg  SpeedConfig
	statsOpts AggregateOptions

	mu     sync.Mutex
	filter *FixFilter
	state  State
	active *activeSession
	sub    *subscription

	watchMu  sync.Mutex
	watchers map[string]chan State
	feeds    map[string]*completionFeed
}

type activeSession struct {
	id          string
	routeID     *int
	startTime   time.Time
	resumedAt   time.Time
	accumulated time.Duration
	paused      bool
	lastPoint   *TrackPoint
}

func (a *activeSession) elapsed(now time.Time) time.Duration {
	if a.paused {
		return a.accumulated
	}
	return a.accumulated + now.Sub(a.resumedAt)
}

type subscription struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine returns an Idle engine.
func NewEngine(cfg EngineConfig) *Engine {
	tc := cfg.Tracking
	if tc == nil {
		tc = &config.TrackingConfig{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	bg := cfg.Background
	if bg == nil {
		bg = NoopBackground{}
	}

	return &Engine{
		source:     cfg.Source,
		repo:       cfg.Repository,
		store:      cfg.State,
		background: bg,
		clock:      clock,
		request:    LocationRequestFromTracking(tc),
		speedCfg:   SpeedConfigFromTracking(tc),
		statsOpts:  AggregateOptions{ElevationDeadBand: tc.GetElevationDeadBand()},
		filter:     NewFixFilter(FilterConfigFromTracking(tc)),
		state:      State{Status: StatusIdle},
		watchers:   make(map[string]chan State),
		feeds:      make(map[string]*completionFeed),
	}
}

// State returns a snapshot of the engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Elapsed returns the running time credited to the active session, or zero.
func (e *Engine) Elapsed() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return 0
	}
	return e.active.elapsed(e.clock.Now())
}

// FilterRejections returns how many fixes the filter dropped, by reason,
// since the session started or last resumed.
func (e *Engine) FilterRejections() map[Rejection]int {
	return e.filter.Rejected()
}

// Start begins a new session, optionally tied to a reference route.
func (e *Engine) Start(ctx context.Context, routeID *int) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status == StatusTracking {
		return e.state, ErrAlreadyTracking
	}
	if !e.source.HasPermission() {
		e.fail(ErrPermissionDenied)
		return e.state, ErrPermissionDenied
	}
	if !e.source.IsEnabled() {
		e.fail(ErrLocationDisabled)
		return e.state, ErrLocationDisabled
	}

	if err := e.closeOrphans(ctx); err != nil {
		rerr := &RepositoryError{Op: "close orphaned session", Err: err}
		e.fail(fmt.Errorf("failed to start tracking: %w", rerr))
		return e.state, rerr
	}

	now := e.clock.Now()
	session := &Session{
		ID:        uuid.New().String(),
		RouteID:   copyInt(routeID),
		StartTime: now,
	}
	if err := e.repo.CreateSession(ctx, session); err != nil {
		rerr := &RepositoryError{Op: "create session", Err: err}
		e.fail(fmt.Errorf("failed to start tracking: %w", rerr))
		return e.state, rerr
	}

	e.filter.Reset()
	e.active = &activeSession{
		id:        session.ID,
		routeID:   session.RouteID,
		startTime: now,
		resumedAt: now,
	}

	if err := e.subscribe(); err != nil {
		if derr := e.repo.DeleteSession(ctx, session.ID); derr != nil {
			logf("failed to remove session %s after subscribe error: %v", session.ID, derr)
		}
		e.active = nil
		err = fmt.Errorf("failed to start tracking: subscribe to location updates: %w", err)
		e.fail(err)
		return e.state, err
	}

	e.persist()
	e.acquireBackground()

	logf("started session %s", session.ID)
	e.setState(State{Status: StatusTracking, SessionID: session.ID, RouteID: session.RouteID})
	return e.state, nil
}

// OnFix feeds one fix to the active session. Fixes rejected by the filter
// are dropped without error. A repository failure is returned but leaves the
// session tracking.
func (e *Engine) OnFix(ctx context.Context, fix LocationFix) error {
	if err := ValidateCoordinate(fix.Latitude, fix.Longitude); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil || e.active.paused {
		return ErrNoActiveSession
	}
	return e.processFix(ctx, fix)
}

func (e *Engine) processFix(ctx context.Context, fix LocationFix) error {
	a := e.active
	if r := e.filter.Evaluate(fix, e.clock.Now()); r != Accepted {
		return nil
	}

	point := toTrackPoint(fix, a.lastPoint, e.speedCfg)
	a.lastPoint = &point

	current := fix
	e.state.CurrentFix = &current
	e.broadcast(e.state)

	if err := e.repo.InsertTrackPoint(ctx, a.id, point); err != nil {
		logf("failed to persist point for session %s: %v", a.id, err)
		return &RepositoryError{Op: "insert track point", Err: err}
	}
	return nil
}

// Stop completes the active session: it cancels the fix stream, aggregates
// the persisted points and rewrites the session as completed. If the rewrite
// fails the session stays tracking so the caller can retry.
func (e *Engine) Stop(ctx context.Context, opts StopOptions) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status != StatusTracking || e.active == nil {
		return e.state, ErrNoActiveSession
	}

	a := e.active
	e.unsubscribe()

	session, err := e.repo.GetSessionByID(ctx, a.id)
	if err != nil {
		e.restoreAfterFailedStop()
		return e.state, &RepositoryError{Op: "load session", Err: err}
	}

	now := e.clock.Now()
	completed := e.complete(session, now, a.elapsed(now))
	completed.Notes = opts.Notes
	if opts.Name != "" {
		completed.Name = opts.Name
	}

	if err := e.repo.ReplaceSession(ctx, &completed); err != nil {
		logf("failed to stop session %s: %v", a.id, err)
		e.restoreAfterFailedStop()
		return e.state, &RepositoryError{Op: "replace session", Err: err}
	}

	e.active = nil
	e.clearPersisted()
	e.background.Release()

	logf("completed session %s: %.0f m in %d s", completed.ID, completed.DistanceMeters, completed.DurationSeconds)
	e.setState(State{
		Status:    StatusCompleted,
		SessionID: completed.ID,
		RouteID:   completed.RouteID,
		Session:   &completed,
	})
	return e.state, nil
}

// complete returns a completed copy of session with statistics aggregated
// from its points.
func (e *Engine) complete(session *Session, end time.Time, running time.Duration) Session {
	stats := AggregateWithOptions(session.TrackPoints, e.statsOpts)
	duration := int64(running / time.Second)

	completed := *session
	completed.EndTime = &end
	completed.DurationSeconds = duration
	completed.DistanceMeters = stats.DistanceMeters
	completed.MaxSpeedKmh = stats.MaxSpeedKmh
	completed.ElevationGainMeters = stats.ElevationGainMeters
	completed.ElevationLossMeters = stats.ElevationLossMeters
	completed.AverageSpeedKmh = AverageSpeedKmh(stats.DistanceMeters, duration)
	completed.IsCompleted = true
	return completed
}

// closeOrphans completes every stored session left non-completed by a run
// that could not be resumed, so at most one session is ever active. An
// orphan ends at its last point, or at its start when it has none.
// Must be called with e.mu held and no active session.
func (e *Engine) closeOrphans(ctx context.Context) error {
	for {
		orphan, err := e.repo.GetActiveSession(ctx)
		if err != nil {
			return err
		}
		if orphan == nil {
			return nil
		}
		end := orphan.StartTime
		if n := len(orphan.TrackPoints); n > 0 {
			if last := timeutil.FromUnixMillis(orphan.TrackPoints[n-1].TimestampMs); last.After(end) {
				end = last
			}
		}
		completed := e.complete(orphan, end, end.Sub(orphan.StartTime))
		if err := e.repo.ReplaceSession(ctx, &completed); err != nil {
			return err
		}
		e.clearPersisted()
		logf("closed orphaned session %s at %s", completed.ID, end.Format(time.RFC3339))
		e.publishCompleted(&completed)
	}
}

// restoreAfterFailedStop resumes fix delivery so a session whose stop failed
// keeps collecting points.
func (e *Engine) restoreAfterFailedStop() {
	if e.active.paused {
		return
	}
	if err := e.subscribe(); err != nil {
		logf("failed to resubscribe session %s: %v", e.active.id, err)
	}
}

// Pause stops fix delivery and banks the time tracked so far. Pausing a
// paused session is a no-op.
func (e *Engine) Pause(ctx context.Context) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil {
		return e.state, ErrNoActiveSession
	}
	if e.active.paused {
		return e.state, nil
	}

	e.unsubscribe()
	now := e.clock.Now()
	e.active.accumulated += now.Sub(e.active.resumedAt)
	e.active.paused = true
	e.persist()

	s := e.state
	s.Paused = true
	e.setState(s)
	return e.state, nil
}

// Resume restarts fix delivery for a paused session. The filter is reset so
// the first fix after a pause is gated like the first fix of a session.
func (e *Engine) Resume(ctx context.Context) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil {
		return e.state, ErrNoActiveSession
	}
	if !e.active.paused {
		return e.state, nil
	}
	if !e.source.HasPermission() {
		return e.state, ErrPermissionDenied
	}
	if !e.source.IsEnabled() {
		return e.state, ErrLocationDisabled
	}

	e.filter.Reset()
	if err := e.subscribe(); err != nil {
		return e.state, fmt.Errorf("subscribe to location updates: %w", err)
	}
	e.active.resumedAt = e.clock.Now()
	e.active.paused = false
	e.persist()

	s := e.state
	s.Paused = false
	e.setState(s)
	return e.state, nil
}

// Discard abandons the active session and deletes everything recorded for it.
func (e *Engine) Discard(ctx context.Context) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil {
		return e.state, ErrNoActiveSession
	}

	id := e.active.id
	e.unsubscribe()
	if err := e.repo.DeleteSession(ctx, id); err != nil {
		e.restoreAfterFailedStop()
		return e.state, &RepositoryError{Op: "delete session", Err: err}
	}

	e.active = nil
	e.clearPersisted()
	e.background.Release()

	logf("discarded session %s", id)
	e.setState(State{Status: StatusIdle})
	return e.state, nil
}

// ResumeIfActive re-enters Tracking for a session that was active when the
// process last stopped. It prefers the persisted tracking state and falls
// back to the repository's non-completed session. No session record is
// created. Calling it while already tracking returns the current state.
func (e *Engine) ResumeIfActive(ctx context.Context) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status == StatusTracking {
		return e.state, nil
	}

	persisted, err := e.store.Load()
	if err != nil {
		logf("failed to load persisted state: %v", err)
		persisted = PersistedState{}
	}

	var session *Session
	if persisted.IsTracking && persisted.SessionID != "" {
		session, err = e.repo.GetSessionByID(ctx, persisted.SessionID)
		switch {
		case errors.Is(err, ErrSessionNotFound):
			logf("persisted session %s no longer exists", persisted.SessionID)
			e.clearPersisted()
			session = nil
		case err != nil:
			return e.state, &RepositoryError{Op: "load session", Err: err}
		case session.IsCompleted:
			e.clearPersisted()
			session = nil
		}
	}

	if session == nil {
		session, err = e.repo.GetActiveSession(ctx)
		if err != nil {
			return e.state, &RepositoryError{Op: "load active session", Err: err}
		}
		if session == nil {
			return e.state, nil
		}
		persisted = PersistedState{
			IsTracking:  true,
			SessionID:   session.ID,
			StartTimeMs: timeutil.UnixMillis(session.StartTime),
			RouteID:     session.RouteID,
		}
	}

	a := &activeSession{
		id:          session.ID,
		routeID:     session.RouteID,
		startTime:   session.StartTime,
		resumedAt:   timeutil.FromUnixMillis(persisted.StartTimeMs),
		accumulated: time.Duration(persisted.AccumulatedSeconds) * time.Second,
		paused:      persisted.Paused,
	}
	if a.routeID == nil {
		a.routeID = copyInt(persisted.RouteID)
	}
	if n := len(session.TrackPoints); n > 0 {
		last := session.TrackPoints[n-1]
		a.lastPoint = &last
	}

	e.filter.Reset()
	if a.lastPoint != nil {
		e.filter.Seed(a.lastPoint.Latitude, a.lastPoint.Longitude)
	}
	e.active = a
	if !a.paused {
		if err := e.subscribe(); err != nil {
			e.active = nil
			err = fmt.Errorf("resume session %s: subscribe to location updates: %w", session.ID, err)
			e.fail(err)
			return e.state, err
		}
	}

	e.persist()
	e.acquireBackground()

	logf("resumed session %s (%s already tracked)", a.id, a.elapsed(e.clock.Now()).Truncate(time.Second))
	e.setState(State{Status: StatusTracking, SessionID: a.id, RouteID: a.routeID, Paused: a.paused})
	return e.state, nil
}

// subscribe opens a fix subscription and starts the goroutine consuming it.
// Must be called with e.mu held.
func (e *Engine) subscribe() error {
	id, fixes, err := e.source.Subscribe(e.request)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{id: id, ctx: ctx, cancel: cancel}
	e.sub = sub
	go e.consume(sub, fixes)
	return nil
}

// unsubscribe cancels the current subscription. Fixes already in flight are
// discarded by consume once it sees the subscription is no longer current.
// Must be called with e.mu held.
func (e *Engine) unsubscribe() {
	if e.sub == nil {
		return
	}
	e.sub.cancel()
	e.source.Unsubscribe(e.sub.id)
	e.sub = nil
}

func (e *Engine) consume(sub *subscription, fixes <-chan *LocationFix) {
	for {
		select {
		case <-sub.ctx.Done():
			return
		case fix, ok := <-fixes:
			if !ok {
				return
			}
			if fix == nil {
				continue
			}
			e.handleStreamFix(sub, *fix)
		}
	}
}

func (e *Engine) handleStreamFix(sub *subscription, fix LocationFix) {
	if err := ValidateCoordinate(fix.Latitude, fix.Longitude); err != nil {
		logf("dropping fix: %v", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sub != sub || e.active == nil || e.active.paused {
		return
	}
	// Insertion failures are logged in processFix and retried with the next fix.
	_ = e.processFix(sub.ctx, fix)
}

func (e *Engine) persist() {
	a := e.active
	err := e.store.Save(PersistedState{
		IsTracking:         true,
		SessionID:          a.id,
		StartTimeMs:        timeutil.UnixMillis(a.resumedAt),
		AccumulatedSeconds: int64(a.accumulated / time.Second),
		RouteID:            copyInt(a.routeID),
		Paused:             a.paused,
	})
	if err != nil {
		logf("failed to persist tracking state for session %s: %v", a.id, err)
	}
}

func (e *Engine) clearPersisted() {
	if err := e.store.Clear(); err != nil {
		logf("failed to clear tracking state: %v", err)
	}
}

func (e *Engine) acquireBackground() {
	info := BackgroundInfo{
		SessionID: e.active.id,
		RouteID:   copyInt(e.active.routeID),
		Elapsed:   e.Elapsed,
	}
	if err := e.background.Acquire(info); err != nil {
		logf("background execution unavailable: %v", err)
	}
}

func (e *Engine) fail(err error) {
	logf("%v", err)
	e.setState(State{Status: StatusError, Message: err.Error()})
}

// setState replaces the state and notifies watchers. Must be called with
// e.mu held.
func (e *Engine) setState(s State) {
	e.state = s
	e.broadcast(s)
	if s.Status == StatusCompleted && s.Session != nil {
		e.publishCompleted(s.Session)
	}
}

// Watch returns a channel that receives every state change. Slow watchers
// only see the most recent state; use WatchCompleted to see every completed
// session.
func (e *Engine) Watch() (string, <-chan State) {
	id := randomID()
	ch := make(chan State, 1)
	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	e.watchers[id] = ch
	return id, ch
}

// Unwatch removes a watcher and closes its channel.
func (e *Engine) Unwatch(id string) {
	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	if ch, ok := e.watchers[id]; ok {
		close(ch)
		delete(e.watchers, id)
	}
}

func (e *Engine) broadcast(s State) {
	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	for _, ch := range e.watchers {
		select {
		case ch <- s:
		default:
			// replace the stale pending state with the latest one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// randomID generates a random watcher ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
