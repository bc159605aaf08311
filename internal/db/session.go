package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/banshee-data/trail.report/internal/timeutil"
	"github.com/banshee-data/trail.report/internal/tracking"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = tracking.ErrSessionNotFound

var _ tracking.SessionRepository = (*DB)(nil)

const sessionColumns = `id, route_id, start_time_ms, end_time_ms, distance_meters,
	duration_seconds, average_speed_kmh, max_speed_kmh, elevation_gain_meters,
	elevation_loss_meters, is_completed, name, notes`

// CreateSession stores a new session together with any points it already
// carries.
func (db *DB) CreateSession(ctx context.Context, s *tracking.Session) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, sessionArgs(s)...)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", s.ID, err)
	}
	if err := insertPoints(ctx, tx, s.ID, s.TrackPoints); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session %s: %w", s.ID, err)
	}
	return nil
}

// ReplaceSession rewrites a session and its full point sequence in one
// transaction. The session row is created if it does not exist.
func (db *DB) ReplaceSession(ctx context.Context, s *tracking.Session) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	args := sessionArgs(s)
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET
			route_id = ?, start_time_ms = ?, end_time_ms = ?, distance_meters = ?,
			duration_seconds = ?, average_speed_kmh = ?, max_speed_kmh = ?,
			elevation_gain_meters = ?, elevation_loss_meters = ?, is_completed = ?,
			name = ?, notes = ?
		WHERE id = ?`, append(args[1:], s.ID)...)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", s.ID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to update session %s: %w", s.ID, err)
	} else if n == 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO sessions (`+sessionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
			return fmt.Errorf("failed to insert session %s: %w", s.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM track_points WHERE session_id = ?`, s.ID); err != nil {
		return fmt.Errorf("failed to clear points for session %s: %w", s.ID, err)
	}
	if err := insertPoints(ctx, tx, s.ID, s.TrackPoints); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session %s: %w", s.ID, err)
	}
	return nil
}

// InsertTrackPoint appends one point to a session. Earlier points are never
// rewritten.
func (db *DB) InsertTrackPoint(ctx context.Context, sessionID string, p tracking.TrackPoint) error {
	if err := tracking.ValidateCoordinate(p.Latitude, p.Longitude); err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `INSERT INTO track_points
			(session_id, latitude, longitude, altitude, timestamp_ms, speed_kmh)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM sessions WHERE id = ?)`,
		sessionID, p.Latitude, p.Longitude, nullFloat(p.Altitude), p.TimestampMs, nullFloat(p.SpeedKmh),
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert track point: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert track point: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	return nil
}

// DeleteSession removes a session and, through the foreign key cascade, all
// of its points. Deleting an unknown session is not an error.
func (db *DB) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

// GetActiveSession returns the most recently started session that has not
// been completed, or nil.
func (db *DB) GetActiveSession(ctx context.Context) (*tracking.Session, error) {
	row := db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE is_completed = 0
		ORDER BY start_time_ms DESC, rowid DESC
		LIMIT 1`)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active session: %w", err)
	}
	if s.TrackPoints, err = db.GetTrackPoints(ctx, s.ID); err != nil {
		return nil, err
	}
	return s, nil
}

// GetSessionByID returns a session with its full point sequence.
func (db *DB) GetSessionByID(ctx context.Context, sessionID string) (*tracking.Session, error) {
	row := db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session %s: %w", sessionID, err)
	}
	if s.TrackPoints, err = db.GetTrackPoints(ctx, s.ID); err != nil {
		return nil, err
	}
	return s, nil
}

// GetAllSessions returns every session, newest first.
func (db *DB) GetAllSessions(ctx context.Context) ([]tracking.Session, error) {
	return db.querySessions(ctx, `SELECT `+sessionColumns+` FROM sessions
		ORDER BY start_time_ms DESC, rowid DESC`)
}

// GetSessionsByRoute returns the sessions recorded against a route, newest
// first.
func (db *DB) GetSessionsByRoute(ctx context.Context, routeID int) ([]tracking.Session, error) {
	return db.querySessions(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE route_id = ?
		ORDER BY start_time_ms DESC, rowid DESC`, routeID)
}

// CountSessions returns the number of stored sessions.
func (db *DB) CountSessions(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

// GetTrackPoints returns a session's points in recording order.
func (db *DB) GetTrackPoints(ctx context.Context, sessionID string) ([]tracking.TrackPoint, error) {
	rows, err := db.QueryContext(ctx, `SELECT latitude, longitude, altitude, timestamp_ms, speed_kmh
		FROM track_points
		WHERE session_id = ?
		ORDER BY timestamp_ms, point_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query track points: %w", err)
	}
	defer rows.Close()

	points := []tracking.TrackPoint{}
	for rows.Next() {
		var (
			p        tracking.TrackPoint
			altitude sql.NullFloat64
			speed    sql.NullFloat64
		)
		if err := rows.Scan(&p.Latitude, &p.Longitude, &altitude, &p.TimestampMs, &speed); err != nil {
			return nil, fmt.Errorf("failed to scan track point: %w", err)
		}
		p.Altitude = floatPtr(altitude)
		p.SpeedKmh = floatPtr(speed)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read track points: %w", err)
	}
	return points, nil
}

func (db *DB) querySessions(ctx context.Context, query string, args ...interface{}) ([]tracking.Session, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	sessions := []tracking.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	rows.Close()

	for i := range sessions {
		if sessions[i].TrackPoints, err = db.GetTrackPoints(ctx, sessions[i].ID); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*tracking.Session, error) {
	var (
		s         tracking.Session
		routeID   sql.NullInt64
		startMs   int64
		endMs     sql.NullInt64
		completed int
	)
	err := row.Scan(&s.ID, &routeID, &startMs, &endMs, &s.DistanceMeters,
		&s.DurationSeconds, &s.AverageSpeedKmh, &s.MaxSpeedKmh, &s.ElevationGainMeters,
		&s.ElevationLossMeters, &completed, &s.Name, &s.Notes)
	if err != nil {
		return nil, err
	}
	if routeID.Valid {
		id := int(routeID.Int64)
		s.RouteID = &id
	}
	s.StartTime = timeutil.FromUnixMillis(startMs)
	if endMs.Valid {
		end := timeutil.FromUnixMillis(endMs.Int64)
		s.EndTime = &end
	}
	s.IsCompleted = completed != 0
	return &s, nil
}

// sessionArgs returns the values for sessionColumns, in order.
func sessionArgs(s *tracking.Session) []interface{} {
	var routeID, endMs interface{}
	if s.RouteID != nil {
		routeID = *s.RouteID
	}
	if s.EndTime != nil {
		endMs = timeutil.UnixMillis(*s.EndTime)
	}
	completed := 0
	if s.IsCompleted {
		completed = 1
	}
	return []interface{}{
		s.ID, routeID, timeutil.UnixMillis(s.StartTime), endMs, s.DistanceMeters,
		s.DurationSeconds, s.AverageSpeedKmh, s.MaxSpeedKmh, s.ElevationGainMeters,
		s.ElevationLossMeters, completed, s.Name, s.Notes,
	}
}

func insertPoints(ctx context.Context, tx *sql.Tx, sessionID string, points []tracking.TrackPoint) error {
	if len(points) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO track_points
		(session_id, latitude, longitude, altitude, timestamp_ms, speed_kmh)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare track point insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range points {
		if err := tracking.ValidateCoordinate(p.Latitude, p.Longitude); err != nil {
			return fmt.Errorf("track point %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, sessionID, p.Latitude, p.Longitude,
			nullFloat(p.Altitude), p.TimestampMs, nullFloat(p.SpeedKmh)); err != nil {
			return fmt.Errorf("failed to insert track point %d: %w", i, err)
		}
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
