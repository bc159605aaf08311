package tracking

import "sync"

// completionFeed queues completed sessions for one consumer. Unlike state
// watchers it never drops an entry, however slow the consumer is.
type completionFeed struct {
	mu      sync.Mutex
	pending []*Session
	wake    chan struct{}
	done    chan struct{}
	out     chan *Session
}

func newCompletionFeed() *completionFeed {
	f := &completionFeed{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		out:  make(chan *Session),
	}
	go f.run()
	return f
}

func (f *completionFeed) push(s *Session) {
	f.mu.Lock()
	f.pending = append(f.pending, s)
	f.mu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *completionFeed) next() *Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil
	}
	s := f.pending[0]
	f.pending[0] = nil
	f.pending = f.pending[1:]
	return s
}

func (f *completionFeed) run() {
	defer close(f.out)
	for {
		s := f.next()
		if s == nil {
			select {
			case <-f.wake:
				continue
			case <-f.done:
				return
			}
		}
		select {
		case f.out <- s:
		case <-f.done:
			return
		}
	}
}

// WatchCompleted returns a channel that receives every session the engine
// completes, in order, including orphans closed by Start.
func (e *Engine) WatchCompleted() (string, <-chan *Session) {
	id := randomID()
	f := newCompletionFeed()
	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	e.feeds[id] = f
	return id, f.out
}

// UnwatchCompleted stops a completion feed and closes its channel. Sessions
// not yet received are discarded.
func (e *Engine) UnwatchCompleted(id string) {
	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	if f, ok := e.feeds[id]; ok {
		close(f.done)
		delete(e.feeds, id)
	}
}

func (e *Engine) publishCompleted(s *Session) {
	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	for _, f := range e.feeds {
		c := *s
		f.push(&c)
	}
}
