package db

import (
	"context"
	"testing"

	"github.com/banshee-data/trail.report/internal/geo"
	"github.com/banshee-data/trail.report/internal/tracking"
	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoute(number int) *tracking.Route {
	return &tracking.Route{
		Number:                   number,
		Name:                     "Maó - Es Grau",
		StartPoint:               "Maó",
		EndPoint:                 "Es Grau",
		DistanceKm:               10.1,
		ElevationGainMeters:      185,
		ElevationLossMeters:      190,
		MaxAltitudeMeters:        82,
		MinAltitudeMeters:        1,
		AsphaltPercentage:        35,
		Difficulty:               tracking.DifficultyMedium,
		EstimatedDurationMinutes: 195,
		Description:              "Harbour to the natural park.",
		Geometry: orb.LineString{
			{4.2658, 39.8885}, {4.2601, 39.9012}, {4.2555, 39.9240}, {4.2650, 39.9474},
		},
	}
}

func TestRoute_SaveAndGet(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	r := testRoute(1)
	require.NoError(t, db.SaveRoute(ctx, r))
	require.NotZero(t, r.ID)

	got, err := db.GetRoute(ctx, r.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(r, got); diff != "" {
		t.Errorf("route mismatch (-want +got):\n%s", diff)
	}

	r.Name = "Maó - Es Grau (variant)"
	r.Geometry = r.Geometry[:2]
	require.NoError(t, db.SaveRoute(ctx, r))
	got, err = db.GetRoute(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Name, got.Name)
	assert.Len(t, got.Geometry, 2)

	routes, err := db.Routes(ctx)
	require.NoError(t, err)
	assert.Len(t, routes, 1)
}

func TestRoute_Validation(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	bad := testRoute(1)
	bad.Difficulty = "EXTREME"
	assert.Error(t, db.SaveRoute(ctx, bad))

	short := testRoute(2)
	short.Geometry = short.Geometry[:1]
	assert.Error(t, db.SaveRoute(ctx, short))

	outside := testRoute(3)
	outside.Geometry[1] = orb.Point{4.26, 95}
	assert.ErrorIs(t, db.SaveRoute(ctx, outside), tracking.ErrInvalidCoordinate)

	_, err := db.GetRoute(ctx, 42)
	assert.ErrorIs(t, err, ErrRouteNotFound)
}

func TestRoute_OrderedByNumber(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	for _, n := range []int{3, 1, 2} {
		require.NoError(t, db.SaveRoute(ctx, testRoute(n)))
	}
	routes, err := db.Routes(ctx)
	require.NoError(t, err)
	require.Len(t, routes, 3)
	for i, r := range routes {
		assert.Equal(t, i+1, r.Number)
	}
}

func TestSimplifiedRoutes(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	r := testRoute(1)
	// a dense, nearly straight line collapses to its endpoints
	r.Geometry = orb.LineString{}
	for i := 0; i <= 100; i++ {
		r.Geometry = append(r.Geometry, orb.Point{4.0 + float64(i)*0.001, 39.9 + float64(i)*0.001})
	}
	require.NoError(t, db.SaveRoute(ctx, r))

	simplified, err := db.SimplifiedRoutes(ctx, geo.ToleranceOverview)
	require.NoError(t, err)
	require.Len(t, simplified, 1)

	s := simplified[0]
	assert.Len(t, s.Route.Geometry, 101)
	assert.Len(t, s.Simplified, 2)
	assert.Equal(t, 101, s.Stats.OriginalPoints)
	assert.Equal(t, 2, s.Stats.SimplifiedPoints)
	assert.Equal(t, r.Geometry[0], s.Simplified[0])
	assert.Equal(t, r.Geometry[100], s.Simplified[1])
}

func TestImportRoutes(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	fc := geojson.NewFeatureCollection()
	first := geojson.NewFeature(orb.LineString{{4.2658, 39.8885}, {4.2650, 39.9474}})
	first.Properties["number"] = 1
	first.Properties["name"] = "Maó - Es Grau"
	first.Properties["difficulty"] = "HIGH"
	first.Properties["distance_km"] = 10.1
	fc.Append(first)
	fc.Append(geojson.NewFeature(orb.LineString{{4.0, 39.9}, {4.0, 39.901}}))

	n, err := db.ImportRoutes(ctx, fc)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	routes, err := db.Routes(ctx)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, "Maó - Es Grau", routes[0].Name)
	assert.Equal(t, tracking.DifficultyHigh, routes[0].Difficulty)
	assert.Equal(t, 10.1, routes[0].DistanceKm)
	assert.Equal(t, "Route 2", routes[1].Name)
	assert.InDelta(t, 0.111, routes[1].DistanceKm, 0.001, "derived from the geometry")

	bad := geojson.NewFeatureCollection()
	bad.Append(geojson.NewFeature(orb.Point{4, 39}))
	_, err = db.ImportRoutes(ctx, bad)
	assert.Error(t, err)
}
