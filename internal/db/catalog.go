package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"transit-lookup/internal/journey"
	"transit-lookup/internal/schedule"
	"transit-lookup/internal/search"
)

// QueryObserver receives the duration of each named query.
type QueryObserver interface {
	ObserveQuery(name string, d time.Duration)
}

// Catalog runs the lookup queries against whatever database the pool
// currently points at.
type Catalog struct {
	pool     *Pool
	observer QueryObserver

	mu      sync.Mutex
	hasArea map[*sql.DB]bool
}

func NewCatalog(pool *Pool, observer QueryObserver) *Catalog {
	return &Catalog{pool: pool, observer: observer, hasArea: make(map[*sql.DB]bool)}
}

func (c *Catalog) observe(name string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveQuery(name, time.Since(start))
	}
}

// withArea reports whether routes.area exists in db, asking the database
// once per handle.
func (c *Catalog) withArea(ctx context.Context, db *sql.DB) (bool, error) {
	c.mu.Lock()
	v, ok := c.hasArea[db]
	c.mu.Unlock()
	if ok {
		return v, nil
	}
	cols, err := hasColumns(ctx, db, "public", "routes", "area")
	if err != nil {
		return false, fmt.Errorf("introspect routes columns: %w", err)
	}
	c.mu.Lock()
	// handles replaced by the watcher are dropped
	for k := range c.hasArea {
		if k != db {
			delete(c.hasArea, k)
		}
	}
	c.hasArea[db] = cols["area"]
	c.mu.Unlock()
	return cols["area"], nil
}

func (c *Catalog) RoutesByName(ctx context.Context, q string, limit int) ([]search.Row, error) {
	defer c.observe("routes_by_name", time.Now())
	db := c.pool.Current()
	area, err := c.withArea(ctx, db)
	if err != nil {
		return nil, err
	}
	return SearchRoutesByName(ctx, db, q, limit, area)
}

func (c *Catalog) RoutesByStopName(ctx context.Context, q string, limit int) ([]search.Row, error) {
	defer c.observe("routes_by_stop_name", time.Now())
	db := c.pool.Current()
	area, err := c.withArea(ctx, db)
	if err != nil {
		return nil, err
	}
	return SearchRoutesByStopName(ctx, db, q, limit, area)
}

func (c *Catalog) TripTimeline(ctx context.Context, tripID string) ([]journey.StopTime, error) {
	defer c.observe("trip_timeline", time.Now())
	return FetchTimeline(ctx, c.pool.Current(), tripID)
}

func (c *Catalog) DirectTrips(ctx context.Context, from, to string, limit int) ([]journey.Trip, error) {
	defer c.observe("direct_trips", time.Now())
	return FetchDirectTrips(ctx, c.pool.Current(), from, to, limit)
}

func (c *Catalog) ScheduleMeta(ctx context.Context, routeNumber string) (schedule.Meta, error) {
	defer c.observe("schedule_meta", time.Now())
	return FetchScheduleMeta(ctx, c.pool.Current(), routeNumber)
}

func (c *Catalog) SaveScheduleMeta(ctx context.Context, routeNumber string, m schedule.Meta) error {
	defer c.observe("save_schedule_meta", time.Now())
	return UpsertScheduleMeta(ctx, c.pool.Current(), routeNumber, m)
}

func (c *Catalog) Ping(ctx context.Context) error {
	return Ping(ctx, c.pool.Current())
}
