package tracking

import (
	"sync"
	"time"

	"github.com/banshee-data/trail.report/internal/timeutil"
)

// KeepAlive is a BackgroundExecutor for long-running server processes. While
// a session is held it reports the session's elapsed time on every tick,
// playing the part of a foreground notification.
type KeepAlive struct {
	clock    timeutil.Clock
	interval time.Duration
	logf     func(format string, v ...interface{})

	mu   sync.Mutex
	stop chan struct{}
}

// NewKeepAlive returns a KeepAlive reporting every interval.
func NewKeepAlive(clock timeutil.Clock, interval time.Duration) *KeepAlive {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &KeepAlive{clock: clock, interval: interval}
}

// Acquire starts reporting for info, replacing any session held before.
func (k *KeepAlive) Acquire(info BackgroundInfo) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.stop != nil {
		close(k.stop)
	}
	stop := make(chan struct{})
	k.stop = stop

	ticker := k.clock.NewTicker(k.interval)
	report := k.logf
	if report == nil {
		report = logf
	}
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				elapsed := time.Duration(0)
				if info.Elapsed != nil {
					elapsed = info.Elapsed()
				}
				report("session %s running for %s", info.SessionID, elapsed.Truncate(time.Second))
			}
		}
	}()
	return nil
}

// Held reports whether a session is currently held.
func (k *KeepAlive) Held() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.stop != nil
}

// Release stops reporting. It does not wait for an in-progress report.
func (k *KeepAlive) Release() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.stop != nil {
		close(k.stop)
		k.stop = nil
	}
}
