package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/banshee-data/trail.report/internal/geo"
	"github.com/banshee-data/trail.report/internal/tracking"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrRouteNotFound is returned for unknown route ids.
var ErrRouteNotFound = errors.New("route not found")

const routeColumns = `route_id, number, name, start_point, end_point, distance_km,
	elevation_gain_meters, elevation_loss_meters, max_altitude_meters,
	min_altitude_meters, asphalt_percentage, difficulty,
	estimated_duration_minutes, description, geometry`

// SaveRoute inserts or replaces a reference route. A zero ID is assigned
// by the database and written back to r.
func (db *DB) SaveRoute(ctx context.Context, r *tracking.Route) error {
	if !r.Difficulty.Valid() {
		return fmt.Errorf("route %d: invalid difficulty %q", r.Number, r.Difficulty)
	}
	if len(r.Geometry) < 2 {
		return fmt.Errorf("route %d: geometry needs at least 2 points, got %d", r.Number, len(r.Geometry))
	}
	for _, p := range r.Geometry {
		if err := tracking.ValidateCoordinate(p.Lat(), p.Lon()); err != nil {
			return fmt.Errorf("route %d: %w", r.Number, err)
		}
	}
	geometry, err := geojson.NewGeometry(r.Geometry).MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode route geometry: %w", err)
	}

	var id interface{}
	if r.ID != 0 {
		id = r.ID
	}
	res, err := db.ExecContext(ctx, `INSERT INTO routes (`+routeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(route_id) DO UPDATE SET
			number = excluded.number,
			name = excluded.name,
			start_point = excluded.start_point,
			end_point = excluded.end_point,
			distance_km = excluded.distance_km,
			elevation_gain_meters = excluded.elevation_gain_meters,
			elevation_loss_meters = excluded.elevation_loss_meters,
			max_altitude_meters = excluded.max_altitude_meters,
			min_altitude_meters = excluded.min_altitude_meters,
			asphalt_percentage = excluded.asphalt_percentage,
			difficulty = excluded.difficulty,
			estimated_duration_minutes = excluded.estimated_duration_minutes,
			description = excluded.description,
			geometry = excluded.geometry`,
		id, r.Number, r.Name, r.StartPoint, r.EndPoint, r.DistanceKm,
		r.ElevationGainMeters, r.ElevationLossMeters, r.MaxAltitudeMeters,
		r.MinAltitudeMeters, r.AsphaltPercentage, string(r.Difficulty),
		r.EstimatedDurationMinutes, r.Description, string(geometry),
	)
	if err != nil {
		return fmt.Errorf("failed to save route %d: %w", r.Number, err)
	}
	if r.ID == 0 {
		lastID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get route ID: %w", err)
		}
		r.ID = int(lastID)
	}
	return nil
}

// GetRoute returns a route by id.
func (db *DB) GetRoute(ctx context.Context, id int) (*tracking.Route, error) {
	row := db.QueryRowContext(ctx, `SELECT `+routeColumns+` FROM routes WHERE route_id = ?`, id)
	r, err := scanRoute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("route %d: %w", id, ErrRouteNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query route %d: %w", id, err)
	}
	return r, nil
}

// Routes returns every reference route ordered by route number.
func (db *DB) Routes(ctx context.Context) ([]tracking.Route, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+routeColumns+` FROM routes ORDER BY number`)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	routes := []tracking.Route{}
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		routes = append(routes, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read routes: %w", err)
	}
	return routes, nil
}

// SimplifiedRoute is a route with its geometry reduced for rendering.
type SimplifiedRoute struct {
	Route      tracking.Route          `json:"route"`
	Simplified orb.LineString          `json:"-"`
	Stats      geo.SimplificationStats `json:"stats"`
}

// SimplifiedRoutes returns every route with its geometry simplified at
// tolerance degrees.
func (db *DB) SimplifiedRoutes(ctx context.Context, tolerance float64) ([]SimplifiedRoute, error) {
	routes, err := db.Routes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SimplifiedRoute, 0, len(routes))
	for _, r := range routes {
		line, stats := geo.SimplifyWithStats(r.Geometry, tolerance)
		out = append(out, SimplifiedRoute{Route: r, Simplified: line, Stats: stats})
	}
	return out, nil
}

// ImportRoutes saves every LineString feature of fc as a route. Route
// attributes are read from the feature properties; features without a
// number are numbered by their position in the collection.
func (db *DB) ImportRoutes(ctx context.Context, fc *geojson.FeatureCollection) (int, error) {
	imported := 0
	for i, f := range fc.Features {
		line, ok := f.Geometry.(orb.LineString)
		if !ok {
			return imported, fmt.Errorf("feature %d: expected LineString geometry, got %s", i, f.Geometry.GeoJSONType())
		}
		p := f.Properties
		r := tracking.Route{
			ID:                       p.MustInt("id", 0),
			Number:                   p.MustInt("number", i+1),
			Name:                     p.MustString("name", fmt.Sprintf("Route %d", i+1)),
			StartPoint:               p.MustString("start_point", ""),
			EndPoint:                 p.MustString("end_point", ""),
			DistanceKm:               p.MustFloat64("distance_km", 0),
			ElevationGainMeters:      p.MustInt("elevation_gain_meters", 0),
			ElevationLossMeters:      p.MustInt("elevation_loss_meters", 0),
			MaxAltitudeMeters:        p.MustInt("max_altitude_meters", 0),
			MinAltitudeMeters:        p.MustInt("min_altitude_meters", 0),
			AsphaltPercentage:        p.MustInt("asphalt_percentage", 0),
			Difficulty:               tracking.Difficulty(p.MustString("difficulty", string(tracking.DifficultyLow))),
			EstimatedDurationMinutes: p.MustInt("estimated_duration_minutes", 0),
			Description:              p.MustString("description", ""),
			Geometry:                 line,
		}
		if r.DistanceKm == 0 {
			r.DistanceKm = geo.PathLength(line) / 1000
		}
		if err := db.SaveRoute(ctx, &r); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

func scanRoute(row scanner) (*tracking.Route, error) {
	var (
		r          tracking.Route
		difficulty string
		geometry   string
	)
	err := row.Scan(&r.ID, &r.Number, &r.Name, &r.StartPoint, &r.EndPoint, &r.DistanceKm,
		&r.ElevationGainMeters, &r.ElevationLossMeters, &r.MaxAltitudeMeters,
		&r.MinAltitudeMeters, &r.AsphaltPercentage, &difficulty,
		&r.EstimatedDurationMinutes, &r.Description, &geometry)
	if err != nil {
		return nil, err
	}
	r.Difficulty = tracking.Difficulty(difficulty)

	g, err := geojson.UnmarshalGeometry([]byte(geometry))
	if err != nil {
		return nil, fmt.Errorf("route %d: failed to decode geometry: %w", r.ID, err)
	}
	line, ok := g.Geometry().(orb.LineString)
	if !ok {
		return nil, fmt.Errorf("route %d: expected LineString geometry, got %s", r.ID, g.Geometry().GeoJSONType())
	}
	r.Geometry = line
	return &r, nil
}
