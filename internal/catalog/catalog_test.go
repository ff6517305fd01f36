package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-lookup/internal/db"
	"transit-lookup/internal/journey"
	"transit-lookup/internal/schedule"
	"transit-lookup/internal/search"
)

type fakeSource struct {
	byName    []search.Row
	byStop    []search.Row
	searchErr error
	// gate, when set, blocks RoutesByName until closed
	gate     chan struct{}
	searches atomic.Int32

	timelines map[string][]journey.StopTime
	trips     []journey.Trip
	metas     map[string]schedule.Meta
	saved     map[string]schedule.Meta
}

func (f *fakeSource) RoutesByName(ctx context.Context, q string, limit int) ([]search.Row, error) {
	f.searches.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.byName, f.searchErr
}

func (f *fakeSource) RoutesByStopName(context.Context, string, int) ([]search.Row, error) {
	return f.byStop, nil
}

func (f *fakeSource) TripTimeline(_ context.Context, tripID string) ([]journey.StopTime, error) {
	return f.timelines[tripID], nil
}

func (f *fakeSource) DirectTrips(context.Context, string, string, int) ([]journey.Trip, error) {
	return f.trips, nil
}

func (f *fakeSource) ScheduleMeta(_ context.Context, route string) (schedule.Meta, error) {
	m, ok := f.metas[route]
	if !ok {
		return schedule.Meta{}, fmt.Errorf("route %q: %w", route, db.ErrNotFound)
	}
	return m, nil
}

func (f *fakeSource) SaveScheduleMeta(_ context.Context, route string, m schedule.Meta) error {
	if f.saved == nil {
		f.saved = map[string]schedule.Meta{}
	}
	f.saved[route] = m
	return nil
}

type fakeMetrics struct {
	mu            sync.Mutex
	served        []int
	blank, shared int
}

func (m *fakeMetrics) SearchServed(n int) { m.mu.Lock(); m.served = append(m.served, n); m.mu.Unlock() }
func (m *fakeMetrics) BlankSearch()       { m.mu.Lock(); m.blank++; m.mu.Unlock() }
func (m *fakeMetrics) SharedSearch()      { m.mu.Lock(); m.shared++; m.mu.Unlock() }

func TestSearchMergesBothQueries(t *testing.T) {
	src := &fakeSource{
		byName: []search.Row{
			{RouteID: "r1", RouteShortName: "10", DirectionID: 0, TripHeadsign: "Airport", TripID: "t1", Area: "North"},
		},
		byStop: []search.Row{
			{RouteID: "r1", RouteShortName: "10", DirectionID: 0, TripHeadsign: "Ignored", TripID: "t9"},
			{RouteID: "r2", RouteShortName: "22", RouteLongName: "Harbour Loop", DirectionID: 1, TripID: "t2"},
		},
	}
	m := &fakeMetrics{}
	svc := New(src, Options{}, m)

	got, err := svc.Search(context.Background(), "  10 ")
	require.NoError(t, err)
	assert.Equal(t, []search.Result{
		{RouteNumber: "10", RouteID: "r1", Destination: "Airport", Area: "North", ExampleTripID: "t1"},
		{RouteNumber: "22", RouteID: "r2", Destination: "Harbour Loop", Area: search.DefaultArea, ExampleTripID: "t2"},
	}, got)
	assert.Equal(t, []int{2}, m.served)
}

func TestSearchBlankSkipsSource(t *testing.T) {
	src := &fakeSource{}
	m := &fakeMetrics{}
	got, err := New(src, Options{}, m).Search(context.Background(), "   ")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Zero(t, src.searches.Load())
	assert.Equal(t, 1, m.blank)
}

func TestSearchPropagatesSourceError(t *testing.T) {
	src := &fakeSource{searchErr: errors.New("boom")}
	_, err := New(src, Options{}, nil).Search(context.Background(), "10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestConcurrentIdenticalSearchesShareOneQuery(t *testing.T) {
	src := &fakeSource{
		gate:   make(chan struct{}),
		byName: []search.Row{{RouteID: "r1", RouteShortName: "10", TripHeadsign: "Airport", TripID: "t1"}},
	}
	m := &fakeMetrics{}
	svc := New(src, Options{}, m)

	const callers = 3
	var wg sync.WaitGroup
	results := make([][]search.Result, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q := "airport"
			if i == 1 {
				q = "AIRPORT"
			}
			results[i], _ = svc.Search(context.Background(), q)
		}()
	}
	require.Eventually(t, func() bool { return src.searches.Load() == 1 }, time.Second, 5*time.Millisecond)
	// let the other callers join the in-flight search
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.Equal(t, int32(1), src.searches.Load())
	for _, r := range results {
		require.Len(t, r, 1)
		assert.Equal(t, "10", r[0].RouteNumber)
	}
	// every caller of a shared flight sees Shared
	assert.Equal(t, callers, m.shared)
}

func TestSearchReturnsWhenCallerGivesUp(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	defer close(src.gate)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(src, Options{}, nil).Search(ctx, "10")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRouteDetails(t *testing.T) {
	src := &fakeSource{timelines: map[string][]journey.StopTime{
		"t1": {
			{Sequence: 3, StopName: "Harbour", Time: "08:20:00"},
			{Sequence: 1, StopName: "Depot", Time: "08:00:00"},
			{Sequence: 2, StopName: "Market", Time: ""},
			{Sequence: 2, StopName: "Market duplicate", Time: "08:09:00"},
		},
	}}
	svc := New(src, Options{}, nil)

	got, err := svc.RouteDetails(context.Background(), "t1", "Harbour", "Depot")
	require.NoError(t, err)
	require.Len(t, got.Stops, 3)
	assert.Equal(t, []string{"Depot", "Market", "Harbour"},
		[]string{got.Stops[0].StopName, got.Stops[1].StopName, got.Stops[2].StopName})
	assert.Nil(t, got.Stops[0].MinutesToNext, "next stop has no time")
	assert.Nil(t, got.Stops[1].MinutesToNext)
	assert.Nil(t, got.Stops[2].MinutesToNext, "last stop")

	require.NotNil(t, got.Segment)
	assert.True(t, got.Segment.Available)
	require.NotNil(t, got.Segment.NumStops)
	assert.Equal(t, 2, *got.Segment.NumStops)
	require.NotNil(t, got.Segment.Minutes)
	assert.Equal(t, 20, *got.Segment.Minutes)
}

func TestRouteDetailsLegMinutes(t *testing.T) {
	src := &fakeSource{timelines: map[string][]journey.StopTime{
		"t1": {
			{Sequence: 1, StopName: "A", Time: "08:00:00"},
			{Sequence: 2, StopName: "B", Time: "08:07:00"},
		},
	}}
	got, err := New(src, Options{}, nil).RouteDetails(context.Background(), "t1", "A", "")
	require.NoError(t, err)
	require.NotNil(t, got.Stops[0].MinutesToNext)
	assert.Equal(t, 7, *got.Stops[0].MinutesToNext)
	assert.Nil(t, got.Segment, "segment needs both stops")
}

func TestRouteDetailsUnknownStops(t *testing.T) {
	src := &fakeSource{timelines: map[string][]journey.StopTime{
		"t1": {{Sequence: 1, StopName: "A", Time: "08:00:00"}},
	}}
	got, err := New(src, Options{}, nil).RouteDetails(context.Background(), "t1", "A", "Nowhere")
	require.NoError(t, err)
	require.NotNil(t, got.Segment)
	assert.False(t, got.Segment.Available)
	assert.Nil(t, got.Segment.NumStops)
	assert.Nil(t, got.Segment.Minutes)
}

func TestRouteDetailsUnknownTrip(t *testing.T) {
	_, err := New(&fakeSource{}, Options{}, nil).RouteDetails(context.Background(), "nope", "", "")
	assert.ErrorIs(t, err, ErrTripNotFound)
}

func TestPlanJourney(t *testing.T) {
	src := &fakeSource{trips: []journey.Trip{
		{TripID: "late", RouteNumber: "5", StartTime: "10:00:00", EndTime: "10:30:00", StopsInBetween: 6},
		{TripID: "notime", RouteNumber: "7", StartTime: "", EndTime: "", StopsInBetween: 4},
		{TripID: "early", RouteNumber: "5", StartTime: "9:15:00", EndTime: "9:40:00", StopsInBetween: 6},
	}}
	got, err := New(src, Options{}, nil).PlanJourney(context.Background(), "Depot", "Harbour")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "early", got[0].TripID)
	assert.Equal(t, 25, got[0].DurationMinutes)
	assert.False(t, got[0].DurationEstimated)

	assert.Equal(t, "late", got[1].TripID)

	assert.Equal(t, "notime", got[2].TripID)
	assert.Equal(t, 12, got[2].DurationMinutes)
	assert.True(t, got[2].DurationEstimated)
}

func TestPlanJourneyRequiresBothStops(t *testing.T) {
	_, err := New(&fakeSource{}, Options{}, nil).PlanJourney(context.Background(), "Depot", " ")
	assert.ErrorIs(t, err, ErrMissingStop)
}

func TestNextBus(t *testing.T) {
	src := &fakeSource{metas: map[string]schedule.Meta{
		"10": {FirstBus: "06:00", LastBus: "22:00", FrequencyMins: 15},
	}}
	svc := New(src, Options{}, nil)
	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }

	info, err := svc.NextBus(context.Background(), "10", at(6, 0))
	require.NoError(t, err)
	assert.Equal(t, schedule.KindNext, info.Kind)
	require.NotNil(t, info.NextDeparture)
	assert.Equal(t, "06:15", *info.NextDeparture)
	assert.Equal(t, "Next bus at 06:15", info.Status)
	assert.Equal(t, 15, info.FrequencyMins)

	info, err = svc.NextBus(context.Background(), "10", at(5, 0))
	require.NoError(t, err)
	assert.Equal(t, "First bus at 06:00", info.Status)
	assert.Nil(t, info.NextDeparture)

	_, err = svc.NextBus(context.Background(), "99", at(8, 0))
	assert.ErrorIs(t, err, ErrNoScheduleMeta)
}

func TestNextBusInvalidMeta(t *testing.T) {
	src := &fakeSource{metas: map[string]schedule.Meta{
		"10": {FirstBus: "06:00", LastBus: "22:00", FrequencyMins: 0},
	}}
	_, err := New(src, Options{}, nil).NextBus(context.Background(), "10", time.Now())
	assert.ErrorIs(t, err, schedule.ErrInvalidMeta)
}

func TestSaveScheduleMeta(t *testing.T) {
	src := &fakeSource{}
	svc := New(src, Options{}, nil)

	err := svc.SaveScheduleMeta(context.Background(), "10", schedule.Meta{FirstBus: "22:00", LastBus: "06:00", FrequencyMins: 10})
	assert.ErrorIs(t, err, schedule.ErrInvalidMeta)
	assert.Empty(t, src.saved)

	err = svc.SaveScheduleMeta(context.Background(), "", schedule.Meta{FirstBus: "06:00", LastBus: "22:00", FrequencyMins: 10})
	assert.ErrorIs(t, err, schedule.ErrInvalidMeta)

	meta := schedule.Meta{FirstBus: "06:00", LastBus: "22:00", FrequencyMins: 10}
	require.NoError(t, svc.SaveScheduleMeta(context.Background(), " 10 ", meta))
	assert.Equal(t, meta, src.saved["10"])
}
