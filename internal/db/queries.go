package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"transit-lookup/internal/journey"
	"transit-lookup/internal/schedule"
	"transit-lookup/internal/search"
)

// Standard GTFS has no routes.area; some imports add it. The caller decides
// which expression to use after looking at the table.
const (
	areaColumn = `COALESCE(r.area::text, '')`
	noArea     = `''`
)

const routeRowColumns = `r.route_id,
       COALESCE(r.route_short_name, ''),
       COALESCE(r.route_long_name, ''),
       %s,
       t.direction_id::text,
       COALESCE(t.trip_headsign, ''),
       t.trip_id`

// SearchRoutesByName returns one row per (route, direction) whose short or
// long name contains q.
func SearchRoutesByName(ctx context.Context, db *sql.DB, q string, limit int, withArea bool) ([]search.Row, error) {
	query := `
SELECT DISTINCT ON (r.route_id, t.direction_id)
       ` + fmt.Sprintf(routeRowColumns, areaExpr(withArea)) + `
FROM routes r
JOIN trips t ON t.route_id = r.route_id
WHERE r.route_short_name ILIKE $1 OR r.route_long_name ILIKE $1
ORDER BY r.route_id, t.direction_id, t.trip_id
LIMIT $2`
	rows, err := db.QueryContext(ctx, query, containsPattern(q), limit)
	if err != nil {
		return nil, fmt.Errorf("query routes by name: %w", err)
	}
	return scanRouteRows(rows)
}

// SearchRoutesByStopName returns one row per (route, direction) with a trip
// calling at a stop whose name contains q.
func SearchRoutesByStopName(ctx context.Context, db *sql.DB, q string, limit int, withArea bool) ([]search.Row, error) {
	query := `
SELECT DISTINCT ON (r.route_id, t.direction_id)
       ` + fmt.Sprintf(routeRowColumns, areaExpr(withArea)) + `
FROM routes r
JOIN trips t ON t.route_id = r.route_id
JOIN stop_times st ON st.trip_id = t.trip_id
JOIN stops s ON s.stop_id = st.stop_id
WHERE s.stop_name ILIKE $1
ORDER BY r.route_id, t.direction_id, t.trip_id
LIMIT $2`
	rows, err := db.QueryContext(ctx, query, containsPattern(q), limit)
	if err != nil {
		return nil, fmt.Errorf("query routes by stop name: %w", err)
	}
	return scanRouteRows(rows)
}

func areaExpr(withArea bool) string {
	if withArea {
		return areaColumn
	}
	return noArea
}

func scanRouteRows(rows *sql.Rows) ([]search.Row, error) {
	defer rows.Close()
	var out []search.Row
	for rows.Next() {
		var r search.Row
		var dir sql.NullString
		if err := rows.Scan(&r.RouteID, &r.RouteShortName, &r.RouteLongName, &r.Area, &dir, &r.TripHeadsign, &r.TripID); err != nil {
			return nil, err
		}
		r.DirectionID = parseDirection(dir)
		out = append(out, r)
	}
	return out, rows.Err()
}

// parseDirection accepts both numeric direction_id columns and the enum
// labels some importers create.
func parseDirection(v sql.NullString) search.Direction {
	if !v.Valid {
		return search.DirectionUnknown
	}
	switch strings.ToLower(strings.TrimSpace(v.String)) {
	case "0", "outbound":
		return 0
	case "1", "inbound":
		return 1
	default:
		return search.DirectionUnknown
	}
}

// FetchTimeline returns a trip's stops ordered by stop_sequence, one row per sequence.
func FetchTimeline(ctx context.Context, db *sql.DB, tripID string) ([]journey.StopTime, error) {
	q := `
SELECT DISTINCT ON (st.stop_sequence)
       st.stop_sequence,
       COALESCE(s.stop_name, ''),
       COALESCE(st.arrival_time::text, '')
FROM stop_times st
JOIN stops s ON s.stop_id = st.stop_id
WHERE st.trip_id = $1
ORDER BY st.stop_sequence`
	rows, err := db.QueryContext(ctx, q, tripID)
	if err != nil {
		return nil, fmt.Errorf("query stop_times: %w", err)
	}
	defer rows.Close()

	var sts []journey.StopTime
	for rows.Next() {
		var st journey.StopTime
		if err := rows.Scan(&st.Sequence, &st.StopName, &st.Time); err != nil {
			return nil, err
		}
		sts = append(sts, st)
	}
	return sts, rows.Err()
}

// FetchDirectTrips finds trips calling at a stop matching from and later at
// a stop matching to, earliest boarding first.
func FetchDirectTrips(ctx context.Context, db *sql.DB, from, to string, limit int) ([]journey.Trip, error) {
	q := `
SELECT t.trip_id,
       COALESCE(r.route_short_name, ''),
       COALESCE(t.trip_headsign, ''),
       COALESCE(st1.arrival_time::text, ''),
       COALESCE(st2.arrival_time::text, ''),
       st2.stop_sequence - st1.stop_sequence
FROM trips t
JOIN routes r ON r.route_id = t.route_id
JOIN stop_times st1 ON st1.trip_id = t.trip_id
JOIN stop_times st2 ON st2.trip_id = t.trip_id
JOIN stops s1 ON s1.stop_id = st1.stop_id
JOIN stops s2 ON s2.stop_id = st2.stop_id
WHERE s1.stop_name ILIKE $1
  AND s2.stop_name ILIKE $2
  AND st1.stop_sequence < st2.stop_sequence
ORDER BY st1.arrival_time ASC
LIMIT $3`
	rows, err := db.QueryContext(ctx, q, containsPattern(from), containsPattern(to), limit)
	if err != nil {
		return nil, fmt.Errorf("query direct trips: %w", err)
	}
	defer rows.Close()

	var trips []journey.Trip
	for rows.Next() {
		var t journey.Trip
		if err := rows.Scan(&t.TripID, &t.RouteNumber, &t.TripHeadsign, &t.StartTime, &t.EndTime, &t.StopsInBetween); err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

// FetchScheduleMeta looks up the headway summary of a route by its public number.
func FetchScheduleMeta(ctx context.Context, db *sql.DB, routeNumber string) (schedule.Meta, error) {
	q := `SELECT first_bus, last_bus, frequency_mins FROM route_schedule_meta WHERE route_short_name = $1`
	var m schedule.Meta
	err := db.QueryRowContext(ctx, q, routeNumber).Scan(&m.FirstBus, &m.LastBus, &m.FrequencyMins)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Meta{}, fmt.Errorf("schedule meta for route %q: %w", routeNumber, ErrNotFound)
	}
	if err != nil {
		return schedule.Meta{}, fmt.Errorf("query schedule meta: %w", err)
	}
	return m, nil
}

// UpsertScheduleMeta stores the headway summary of a route.
func UpsertScheduleMeta(ctx context.Context, db *sql.DB, routeNumber string, m schedule.Meta) error {
	if err := m.Validate(); err != nil {
		return err
	}
	q := `
INSERT INTO route_schedule_meta (route_short_name, first_bus, last_bus, frequency_mins)
VALUES ($1, $2, $3, $4)
ON CONFLICT (route_short_name) DO UPDATE
SET first_bus = EXCLUDED.first_bus, last_bus = EXCLUDED.last_bus, frequency_mins = EXCLUDED.frequency_mins`
	if _, err := db.ExecContext(ctx, q, routeNumber, m.FirstBus, m.LastBus, m.FrequencyMins); err != nil {
		return fmt.Errorf("upsert schedule meta: %w", err)
	}
	return nil
}
