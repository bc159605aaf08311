package location

import (
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/banshee-data/trail.report/internal/geo"
	"github.com/banshee-data/trail.report/internal/tracking"
)

// subscriberBuffer is how many fixes a slow consumer may lag behind before
// fixes are dropped for it.
const subscriberBuffer = 16

type subscriber struct {
	ch   chan *tracking.LocationFix
	req  tracking.LocationRequest
	last *tracking.LocationFix
}

// hub fans fixes out to subscribers, applying each subscriber's fastest
// interval and minimum distance. Sends never block, so Unsubscribe is safe to
// call from any goroutine, including one holding its own locks.
type hub struct {
	mu     sync.Mutex
	subs   map[string]*subscriber
	last   *tracking.LocationFix
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[string]*subscriber)}
}

func (h *hub) subscribe(req tracking.LocationRequest) (string, <-chan *tracking.LocationFix, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", nil, ErrSourceClosed
	}
	id := randomID()
	sub := &subscriber{ch: make(chan *tracking.LocationFix, subscriberBuffer), req: req}
	h.subs[id] = sub
	return id, sub.ch, nil
}

func (h *hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		close(sub.ch)
		delete(h.subs, id)
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// remember records fix as the last known location without delivering it.
func (h *hub) remember(fix tracking.LocationFix) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &fix
}

// publish delivers fix to every subscriber. A nil fix reports that no
// position is available and bypasses the interval and distance gates.
func (h *hub) publish(fix *tracking.LocationFix) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if fix != nil {
		cp := *fix
		h.last = &cp
	}
	for _, sub := range h.subs {
		if fix != nil && !sub.wants(fix) {
			continue
		}
		var out *tracking.LocationFix
		if fix != nil {
			cp := *fix
			out = &cp
			sub.last = out
		}
		select {
		case sub.ch <- out:
		default:
		}
	}
}

func (s *subscriber) wants(fix *tracking.LocationFix) bool {
	if s.last == nil {
		return true
	}
	if fastest := s.req.FastestInterval.Milliseconds(); fastest > 0 && fix.TimestampMs-s.last.TimestampMs < fastest {
		return false
	}
	if s.req.MinDistanceMeters > 0 &&
		geo.Haversine(s.last.Latitude, s.last.Longitude, fix.Latitude, fix.Longitude) < s.req.MinDistanceMeters {
		return false
	}
	return true
}

func (h *hub) lastKnown() *tracking.LocationFix {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return nil
	}
	cp := *h.last
	return &cp
}

// close ends every subscription and refuses new ones.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}

func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
