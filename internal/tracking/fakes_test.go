package tracking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var errStorage = errors.New("disk I/O error")

type fakeSource struct {
	mu           sync.Mutex
	enabled      bool
	permitted    bool
	subscribeErr error
	subs         map[string]chan *LocationFix
	nextID       int
	requests     []LocationRequest
	last         *LocationFix
}

func newFakeSource() *fakeSource {
	return &fakeSource{enabled: true, permitted: true, subs: make(map[string]chan *LocationFix)}
}

func (s *fakeSource) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *fakeSource) HasPermission() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permitted
}

func (s *fakeSource) Subscribe(req LocationRequest) (string, <-chan *LocationFix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribeErr != nil {
		return "", nil, s.subscribeErr
	}
	s.nextID++
	id := fmt.Sprintf("sub-%d", s.nextID)
	ch := make(chan *LocationFix, 16)
	s.subs[id] = ch
	s.requests = append(s.requests, req)
	return id, ch, nil
}

func (s *fakeSource) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *fakeSource) LastKnownLocation(context.Context) (*LocationFix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, nil
}

func (s *fakeSource) emit(fix *LocationFix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fix != nil {
		s.last = fix
	}
	for _, ch := range s.subs {
		select {
		case ch <- fix:
		default:
		}
	}
}

func (s *fakeSource) subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

type fakeRepo struct {
	mu          sync.Mutex
	sessions    map[string]Session
	points      map[string][]TrackPoint
	failCreate  bool
	failInsert  bool
	failReplace bool
	failDelete  bool
	failGet     bool
	inserts     int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sessions: make(map[string]Session), points: make(map[string][]TrackPoint)}
}

func (r *fakeRepo) set(f func(r *fakeRepo)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f(r)
}

func (r *fakeRepo) CreateSession(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate {
		return errStorage
	}
	r.sessions[s.ID] = *s
	return nil
}

func (r *fakeRepo) ReplaceSession(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failReplace {
		return errStorage
	}
	stored := *s
	stored.TrackPoints = nil
	r.sessions[s.ID] = stored
	r.points[s.ID] = append([]TrackPoint(nil), s.TrackPoints...)
	return nil
}

func (r *fakeRepo) InsertTrackPoint(_ context.Context, id string, p TrackPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failInsert {
		return errStorage
	}
	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	r.inserts++
	r.points[id] = append(r.points[id], p)
	return nil
}

func (r *fakeRepo) DeleteSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failDelete {
		return errStorage
	}
	delete(r.sessions, id)
	delete(r.points, id)
	return nil
}

func (r *fakeRepo) withPoints(s Session) *Session {
	s.TrackPoints = append([]TrackPoint(nil), r.points[s.ID]...)
	return &s
}

func (r *fakeRepo) GetActiveSession(context.Context) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if !s.IsCompleted {
			return r.withPoints(s), nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) GetSessionByID(_ context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failGet {
		return nil, errStorage
	}
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return r.withPoints(s), nil
}

func (r *fakeRepo) GetAllSessions(context.Context) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *r.withPoints(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (r *fakeRepo) GetSessionsByRoute(ctx context.Context, routeID int) ([]Session, error) {
	all, _ := r.GetAllSessions(ctx)
	var out []Session
	for _, s := range all {
		if s.RouteID != nil && *s.RouteID == routeID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeRepo) sessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *fakeRepo) pointCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.points[id])
}

type memStateStore struct {
	mu      sync.Mutex
	state   PersistedState
	saves   int
	failAll bool
}

func (m *memStateStore) Load() (PersistedState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return PersistedState{}, errStorage
	}
	return m.state, nil
}

func (m *memStateStore) Save(s PersistedState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errStorage
	}
	m.saves++
	m.state = s
	return nil
}

func (m *memStateStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errStorage
	}
	m.state = PersistedState{}
	return nil
}

func (m *memStateStore) get() PersistedState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func f32(v float32) *float32 { return &v }
func f64(v float64) *float64 { return &v }
func intPtr(v int) *int      { return &v }
