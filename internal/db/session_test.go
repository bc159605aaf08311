package db

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/trail.report/internal/tracking"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionStart = time.Date(2026, 3, 21, 8, 15, 0, 0, time.UTC)

func f64(v float64) *float64 { return &v }
func intPtr(v int) *int      { return &v }

func newSession(id string, start time.Time, routeID *int) *tracking.Session {
	return &tracking.Session{ID: id, RouteID: routeID, StartTime: start, Name: "Stage " + id}
}

func point(lat, lon float64, ts int64) tracking.TrackPoint {
	return tracking.TrackPoint{Latitude: lat, Longitude: lon, TimestampMs: ts}
}

// sessionCmp compares times as instants, ignoring time.Location.
var sessionCmp = cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })

func TestSession_CreateAndGet(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	s := newSession("a", sessionStart, intPtr(4))
	s.TrackPoints = []tracking.TrackPoint{
		{Latitude: 39.95, Longitude: 3.85, Altitude: f64(12.5), TimestampMs: 1000, SpeedKmh: f64(4.2)},
		point(39.951, 3.851, 2000),
	}
	require.NoError(t, db.CreateSession(ctx, s))

	got, err := db.GetSessionByID(ctx, "a")
	require.NoError(t, err)
	if diff := cmp.Diff(s, got, sessionCmp); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, got.EndTime)
	assert.Nil(t, got.TrackPoints[1].Altitude)

	err = db.CreateSession(ctx, s)
	assert.Error(t, err, "duplicate id")
}

func TestSession_GetUnknown(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)

	_, err := db.GetSessionByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, err, tracking.ErrSessionNotFound)
}

func TestSession_InsertTrackPoint(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateSession(ctx, newSession("a", sessionStart, nil)))
	for i := 0; i < 5; i++ {
		require.NoError(t, db.InsertTrackPoint(ctx, "a", point(39.9+float64(i)*0.001, 4.1, int64(1000*i))))
	}
	// same timestamp keeps insertion order
	require.NoError(t, db.InsertTrackPoint(ctx, "a", point(40.5, 4.1, 4000)))

	points, err := db.GetTrackPoints(ctx, "a")
	require.NoError(t, err)
	require.Len(t, points, 6)
	assert.Equal(t, 39.9, points[0].Latitude)
	assert.Equal(t, 40.5, points[5].Latitude)
	for i := 1; i < len(points); i++ {
		assert.LessOrEqual(t, points[i-1].TimestampMs, points[i].TimestampMs)
	}

	err = db.InsertTrackPoint(ctx, "missing", point(1, 1, 0))
	assert.ErrorIs(t, err, ErrSessionNotFound)

	err = db.InsertTrackPoint(ctx, "a", point(95, 1, 0))
	assert.ErrorIs(t, err, tracking.ErrInvalidCoordinate)
}

func TestSession_ReplaceSession(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateSession(ctx, newSession("a", sessionStart, nil)))
	require.NoError(t, db.InsertTrackPoint(ctx, "a", point(1, 1, 1000)))
	require.NoError(t, db.InsertTrackPoint(ctx, "a", point(1.001, 1, 2000)))

	loaded, err := db.GetSessionByID(ctx, "a")
	require.NoError(t, err)

	end := sessionStart.Add(40 * time.Minute)
	completed := *loaded
	completed.EndTime = &end
	completed.DistanceMeters = 111.2
	completed.DurationSeconds = 2400
	completed.AverageSpeedKmh = 0.1668
	completed.MaxSpeedKmh = 5.5
	completed.ElevationGainMeters = 14
	completed.ElevationLossMeters = 3
	completed.IsCompleted = true
	completed.Notes = "fog at the lighthouse"
	require.NoError(t, db.ReplaceSession(ctx, &completed))

	got, err := db.GetSessionByID(ctx, "a")
	require.NoError(t, err)
	if diff := cmp.Diff(&completed, got, sessionCmp); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}

	// replacing with fewer points rewrites the sequence
	completed.TrackPoints = completed.TrackPoints[:1]
	require.NoError(t, db.ReplaceSession(ctx, &completed))
	points, err := db.GetTrackPoints(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, points, 1)
}

func TestSession_ReplaceIsAtomic(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateSession(ctx, newSession("a", sessionStart, nil)))
	require.NoError(t, db.InsertTrackPoint(ctx, "a", point(1, 1, 1000)))

	bad := newSession("a", sessionStart, nil)
	bad.IsCompleted = true
	bad.TrackPoints = []tracking.TrackPoint{point(1, 1, 1000), point(1, 200, 2000)}
	err := db.ReplaceSession(ctx, bad)
	assert.ErrorIs(t, err, tracking.ErrInvalidCoordinate)

	got, err := db.GetSessionByID(ctx, "a")
	require.NoError(t, err)
	assert.False(t, got.IsCompleted)
	assert.Len(t, got.TrackPoints, 1)
}

func TestSession_ReplaceCreatesMissing(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	s := newSession("fresh", sessionStart, nil)
	s.TrackPoints = []tracking.TrackPoint{point(1, 1, 1)}
	require.NoError(t, db.ReplaceSession(ctx, s))

	n, err := db.CountSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSession_DeleteCascades(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateSession(ctx, newSession("a", sessionStart, nil)))
	require.NoError(t, db.InsertTrackPoint(ctx, "a", point(1, 1, 1000)))
	require.NoError(t, db.DeleteSession(ctx, "a"))
	require.NoError(t, db.DeleteSession(ctx, "a"), "deleting twice is fine")

	var orphans int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM track_points`).Scan(&orphans))
	assert.Zero(t, orphans)

	_, err := db.GetSessionByID(ctx, "a")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSession_Queries(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	active, err := db.GetActiveSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	done := newSession("done", sessionStart.Add(3*time.Hour), intPtr(1))
	done.IsCompleted = true
	for _, s := range []*tracking.Session{
		newSession("old", sessionStart, intPtr(1)),
		newSession("new", sessionStart.Add(time.Hour), intPtr(2)),
		done,
	} {
		require.NoError(t, db.CreateSession(ctx, s))
	}
	require.NoError(t, db.InsertTrackPoint(ctx, "new", point(1, 1, 1)))

	active, err = db.GetActiveSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "new", active.ID)
	assert.Len(t, active.TrackPoints, 1)

	all, err := db.GetAllSessions(ctx)
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, s := range all {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"done", "new", "old"}, ids)

	byRoute, err := db.GetSessionsByRoute(ctx, 1)
	require.NoError(t, err)
	require.Len(t, byRoute, 2)
	assert.Equal(t, "done", byRoute[0].ID)
	assert.NotNil(t, byRoute[0].TrackPoints)

	none, err := db.GetSessionsByRoute(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, none)

	n, err := db.CountSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSession_ConcurrentInserts(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateSession(ctx, newSession("a", sessionStart, nil)))

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if err := db.InsertTrackPoint(ctx, "a", point(1, float64(w*10+i)*0.001, int64(i))); err != nil {
					errs <- fmt.Errorf("worker %d point %d: %w", w, i, err)
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	points, err := db.GetTrackPoints(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, points, 40)
}
