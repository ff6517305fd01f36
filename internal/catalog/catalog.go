// Package catalog answers route searches, trip details, journey and
// next-bus lookups on top of a route data source.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"transit-lookup/internal/db"
	"transit-lookup/internal/journey"
	"transit-lookup/internal/schedule"
	"transit-lookup/internal/search"
	"transit-lookup/internal/timeutil"
)

var (
	ErrTripNotFound   = errors.New("trip not found")
	ErrNoScheduleMeta = errors.New("no schedule for route")
	ErrMissingStop    = errors.New("both from and to stops are required")
)

// searchTimeout bounds a search shared between callers, since it outlives
// the request that started it.
const searchTimeout = 15 * time.Second

// Source is the route data the catalog reads. *db.Catalog implements it.
// Not-found lookups wrap db.ErrNotFound.
type Source interface {
	RoutesByName(ctx context.Context, q string, limit int) ([]search.Row, error)
	RoutesByStopName(ctx context.Context, q string, limit int) ([]search.Row, error)
	TripTimeline(ctx context.Context, tripID string) ([]journey.StopTime, error)
	DirectTrips(ctx context.Context, from, to string, limit int) ([]journey.Trip, error)
	ScheduleMeta(ctx context.Context, routeNumber string) (schedule.Meta, error)
	SaveScheduleMeta(ctx context.Context, routeNumber string, m schedule.Meta) error
}

type Metrics interface {
	SearchServed(results int)
	BlankSearch()
	SharedSearch()
}

type Options struct {
	DefaultArea  string
	SearchLimit  int
	JourneyLimit int
}

type Service struct {
	src     Source
	opts    Options
	metrics Metrics
	group   singleflight.Group
}

func New(src Source, opts Options, m Metrics) *Service {
	if opts.DefaultArea == "" {
		opts.DefaultArea = search.DefaultArea
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 50
	}
	if opts.JourneyLimit <= 0 {
		opts.JourneyLimit = 20
	}
	return &Service{src: src, opts: opts, metrics: m}
}

// Search returns the directional routes whose name or one of whose stops
// matches q. A blank q returns an empty list without querying the source.
func (s *Service) Search(ctx context.Context, q string) ([]search.Result, error) {
	q = strings.TrimSpace(q)
	if search.Blank(q) {
		if s.metrics != nil {
			s.metrics.BlankSearch()
		}
		return []search.Result{}, nil
	}

	// matching is case-insensitive, so differently cased queries share a call
	ch := s.group.DoChan(strings.ToLower(q), func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), searchTimeout)
		defer cancel()
		return s.search(sctx, q)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		results := slices.Clone(res.Val.([]search.Result))
		if s.metrics != nil {
			if res.Shared {
				s.metrics.SharedSearch()
			}
			s.metrics.SearchServed(len(results))
		}
		return results, nil
	}
}

func (s *Service) search(ctx context.Context, q string) ([]search.Result, error) {
	var byRoute, byStop []search.Row
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.src.RoutesByName(gctx, q, s.opts.SearchLimit)
		if err != nil {
			return fmt.Errorf("search routes by name: %w", err)
		}
		byRoute = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.src.RoutesByStopName(gctx, q, s.opts.SearchLimit)
		if err != nil {
			return fmt.Errorf("search routes by stop name: %w", err)
		}
		byStop = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return search.Merge(s.opts.DefaultArea, byRoute, byStop), nil
}

// StopDetail is one stop of a trip with the minutes to the following stop.
// MinutesToNext is nil on the last stop and when either time is unusable.
type StopDetail struct {
	journey.StopTime
	MinutesToNext *int `json:"minutes_to_next"`
}

// SegmentSummary describes the ride between two named stops.
type SegmentSummary struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Available bool   `json:"available"`
	NumStops  *int   `json:"num_stops"`
	Minutes   *int   `json:"minutes"`
}

type RouteDetails struct {
	TripID  string          `json:"trip_id"`
	Stops   []StopDetail    `json:"stops"`
	Segment *SegmentSummary `json:"segment,omitempty"`
}

// RouteDetails lists a trip's stops in order. When both from and to are
// given it also summarises the ride between them.
func (s *Service) RouteDetails(ctx context.Context, tripID, from, to string) (RouteDetails, error) {
	tripID = strings.TrimSpace(tripID)
	rows, err := s.src.TripTimeline(ctx, tripID)
	if err != nil {
		return RouteDetails{}, fmt.Errorf("trip %q timeline: %w", tripID, err)
	}
	tl := journey.NewTimeline(rows)
	if tl.Len() == 0 {
		return RouteDetails{}, fmt.Errorf("%w: %q", ErrTripNotFound, tripID)
	}

	stops := tl.Stops()
	out := RouteDetails{TripID: tripID, Stops: make([]StopDetail, len(stops))}
	for i, st := range stops {
		out.Stops[i].StopTime = st
	}
	for i, leg := range tl.Legs() {
		out.Stops[i].MinutesToNext = optional(leg.Minutes())
	}

	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from != "" && to != "" {
		seg := tl.Between(from, to)
		out.Segment = &SegmentSummary{
			From:      from,
			To:        to,
			Available: seg.Available(),
			NumStops:  optional(seg.Stops()),
			Minutes:   optional(seg.Minutes()),
		}
	}
	return out, nil
}

// JourneyOption is one direct trip between two stops.
type JourneyOption struct {
	TripID            string `json:"trip_id"`
	RouteNumber       string `json:"route_number"`
	TripHeadsign      string `json:"trip_headsign"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	StopsInBetween    int    `json:"stops_in_between"`
	DurationMinutes   int    `json:"duration_minutes"`
	DurationEstimated bool   `json:"duration_estimated"`
}

// PlanJourney finds direct trips from a stop matching from to a later stop
// matching to, earliest departure first. Trips without a parseable start
// time sort last.
func (s *Service) PlanJourney(ctx context.Context, from, to string) ([]JourneyOption, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" {
		return nil, ErrMissingStop
	}
	trips, err := s.src.DirectTrips(ctx, from, to, s.opts.JourneyLimit)
	if err != nil {
		return nil, fmt.Errorf("direct trips: %w", err)
	}
	slices.SortStableFunc(trips, func(a, b journey.Trip) int {
		am, aok := timeutil.ParseToMinutes(a.StartTime)
		bm, bok := timeutil.ParseToMinutes(b.StartTime)
		switch {
		case aok && bok:
			return am - bm
		case aok:
			return -1
		case bok:
			return 1
		}
		return 0
	})

	out := make([]JourneyOption, 0, len(trips))
	for _, t := range trips {
		d, estimated := t.Duration()
		out = append(out, JourneyOption{
			TripID:            t.TripID,
			RouteNumber:       t.RouteNumber,
			TripHeadsign:      t.TripHeadsign,
			StartTime:         t.StartTime,
			EndTime:           t.EndTime,
			StopsInBetween:    t.StopsInBetween,
			DurationMinutes:   d,
			DurationEstimated: estimated,
		})
	}
	return out, nil
}

// NextBusInfo is the predicted next departure of a route.
type NextBusInfo struct {
	RouteNumber   string        `json:"route_number"`
	Status        string        `json:"status"`
	Kind          schedule.Kind `json:"kind"`
	NextDeparture *string       `json:"next_departure"`
	FrequencyMins int           `json:"frequency_mins"`
}

func (s *Service) NextBus(ctx context.Context, routeNumber string, now time.Time) (NextBusInfo, error) {
	routeNumber = strings.TrimSpace(routeNumber)
	m, err := s.src.ScheduleMeta(ctx, routeNumber)
	if errors.Is(err, db.ErrNotFound) {
		return NextBusInfo{}, fmt.Errorf("%w %q", ErrNoScheduleMeta, routeNumber)
	}
	if err != nil {
		return NextBusInfo{}, err
	}
	st, err := schedule.Predict(m, now)
	if err != nil {
		return NextBusInfo{}, fmt.Errorf("route %q: %w", routeNumber, err)
	}
	info := NextBusInfo{
		RouteNumber:   routeNumber,
		Status:        st.String(),
		Kind:          st.Kind,
		FrequencyMins: m.FrequencyMins,
	}
	if st.Kind == schedule.KindNext {
		info.NextDeparture = &st.Next
	}
	return info, nil
}

// SaveScheduleMeta validates and stores a route's timetable summary.
func (s *Service) SaveScheduleMeta(ctx context.Context, routeNumber string, m schedule.Meta) error {
	routeNumber = strings.TrimSpace(routeNumber)
	if routeNumber == "" {
		return fmt.Errorf("%w: empty route number", schedule.ErrInvalidMeta)
	}
	if err := m.Validate(); err != nil {
		return err
	}
	return s.src.SaveScheduleMeta(ctx, routeNumber, m)
}

func optional(v int, ok bool) *int {
	if !ok {
		return nil
	}
	return &v
}
