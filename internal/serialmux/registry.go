package serialmux

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"
)

// subscriberBuffer is the number of lines a slow subscriber may lag behind
// before lines are dropped for it.
const subscriberBuffer = 64

// registry tracks line subscribers. Once closed, new subscribers get an
// already closed channel so readers never block on a dead mux.
type registry struct {
	mu     sync.Mutex
	subs   map[string]chan string
	closed bool
}

func newRegistry() *registry {
	return &registry{subs: make(map[string]chan string)}
}

// randomID returns an 8 byte hex encoded subscriber id.
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (r *registry) add() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		close(ch)
		return id, ch
	}
	r.subs[id] = ch
	return id, ch
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.subs[id]; ok {
		close(ch)
		delete(r.subs, id)
	}
}

// publish hands line to every subscriber with room for it and returns how
// many subscribers missed it.
func (r *registry) publish(line string) (dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- line:
		default:
			dropped++
		}
	}
	return dropped
}

// closeAll closes every subscriber. It reports false if already closed.
func (r *registry) closeAll() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.closed = true
	for id, ch := range r.subs {
		close(ch)
		delete(r.subs, id)
	}
	return true
}

func (r *registry) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
