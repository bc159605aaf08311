package location

import (
	"context"
	"sync"

	"github.com/banshee-data/trail.report/internal/tracking"
)

// ChannelSource is a LocationSource fed by Push. With -source=push it is the
// server's source: a client device reports its own positions to the HTTP fix
// endpoint, which hands them to the engine and records them with Remember.
// It also stands in for a receiver in tests.
type ChannelSource struct {
	hub *hub

	mu        sync.Mutex
	enabled   bool
	permitted bool
}

var _ tracking.LocationSource = (*ChannelSource)(nil)

// NewChannelSource returns an enabled, permitted source.
func NewChannelSource() *ChannelSource {
	return &ChannelSource{hub: newHub(), enabled: true, permitted: true}
}

// Push publishes fix to the subscribers. A nil fix reports that no position
// is available.
func (s *ChannelSource) Push(fix *tracking.LocationFix) {
	s.hub.publish(fix)
}

// Remember records fix as the last known location without publishing it.
func (s *ChannelSource) Remember(fix tracking.LocationFix) {
	s.hub.remember(fix)
}

func (s *ChannelSource) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *ChannelSource) SetPermission(permitted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permitted = permitted
}

func (s *ChannelSource) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *ChannelSource) HasPermission() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permitted
}

func (s *ChannelSource) Subscribe(req tracking.LocationRequest) (string, <-chan *tracking.LocationFix, error) {
	return s.hub.subscribe(req)
}

func (s *ChannelSource) Unsubscribe(id string) { s.hub.unsubscribe(id) }

// Subscribers returns the number of open subscriptions.
func (s *ChannelSource) Subscribers() int { return s.hub.count() }

func (s *ChannelSource) LastKnownLocation(ctx context.Context) (*tracking.LocationFix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.hub.lastKnown(), nil
}

// Close ends all subscriptions.
func (s *ChannelSource) Close() { s.hub.close() }
