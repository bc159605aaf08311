package tracking

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/trail.report/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *logRecorder) logf(format string, v ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, v...))
}

func (r *logRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestKeepAlive_ReportsElapsed(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 5, 3, 7, 0, 0, 0, time.UTC))
	rec := &logRecorder{}
	ka := NewKeepAlive(clock, 10*time.Second)
	ka.logf = rec.logf

	require.NoError(t, ka.Acquire(BackgroundInfo{
		SessionID: "s1",
		Elapsed:   func() time.Duration { return 95500 * time.Millisecond },
	}))
	assert.True(t, ka.Held())

	clock.Advance(5 * time.Second)
	clock.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "session s1 running for 1m35s", rec.snapshot()[0])

	ka.Release()
	assert.False(t, ka.Held())
	ka.Release()
}

func TestKeepAlive_AcquireReplaces(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 5, 3, 7, 0, 0, 0, time.UTC))
	rec := &logRecorder{}
	ka := NewKeepAlive(clock, time.Second)
	ka.logf = rec.logf

	require.NoError(t, ka.Acquire(BackgroundInfo{SessionID: "old"}))
	require.NoError(t, ka.Acquire(BackgroundInfo{SessionID: "new"}))
	defer ka.Release()

	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		for _, line := range rec.snapshot() {
			if strings.Contains(line, "session new") {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestNewKeepAlive_Defaults(t *testing.T) {
	ka := NewKeepAlive(nil, 0)
	assert.Equal(t, time.Second, ka.interval)
	assert.IsType(t, timeutil.RealClock{}, ka.clock)
	assert.False(t, ka.Held())
}
