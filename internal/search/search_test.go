package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeSameKeyFirstWriterWins(t *testing.T) {
	byRoute := []Row{{RouteID: "158", RouteShortName: "158", DirectionID: 0, TripHeadsign: "Downtown", TripID: "trip-a", Area: "North"}}
	byStop := []Row{{RouteID: "158", RouteShortName: "158", DirectionID: 0, TripHeadsign: "Downtown", TripID: "trip-b", Area: "South"}}

	results := Merge("", byRoute, byStop)

	require.Len(t, results, 1)
	assert.Equal(t, "trip-a", results[0].ExampleTripID)
	assert.Equal(t, "North", results[0].Area)
}

func TestMergeDirectionsStaySeparate(t *testing.T) {
	rows := []Row{
		{RouteID: "158", RouteShortName: "158", DirectionID: 0, TripHeadsign: "Downtown", TripID: "t0"},
		{RouteID: "158", RouteShortName: "158", DirectionID: 1, TripHeadsign: "Airport", TripID: "t1"},
	}

	results := Merge("", rows, nil)

	require.Len(t, results, 2)
	assert.Equal(t, "Downtown", results[0].Destination)
	assert.Equal(t, "Airport", results[1].Destination)
}

func TestMergeOrderAcrossCollections(t *testing.T) {
	byRoute := []Row{
		{RouteID: "10", RouteShortName: "10", DirectionID: 0, TripID: "a"},
		{RouteID: "20", RouteShortName: "20", DirectionID: 0, TripID: "b"},
	}
	byStop := []Row{
		{RouteID: "30", RouteShortName: "30", DirectionID: 1, TripID: "c"},
		{RouteID: "10", RouteShortName: "10", DirectionID: 0, TripID: "d"},
		{RouteID: "10", RouteShortName: "10", DirectionID: 1, TripID: "e"},
	}

	results := Merge("", byRoute, byStop)

	var trips []string
	for _, r := range results {
		trips = append(trips, r.ExampleTripID)
	}
	assert.Equal(t, []string{"a", "b", "c", "e"}, trips)
}

func TestMergeUnknownDirectionIsItsOwnKey(t *testing.T) {
	rows := []Row{
		{RouteID: "5", DirectionID: DirectionUnknown, TripID: "x"},
		{RouteID: "5", DirectionID: 0, TripID: "y"},
		{RouteID: "5", DirectionID: DirectionUnknown, TripID: "z"},
	}
	results := Merge("", rows, nil)
	require.Len(t, results, 2)
	assert.Equal(t, "x", results[0].ExampleTripID)
	assert.Equal(t, "y", results[1].ExampleTripID)
}

func TestMergeDestinationAndAreaFallbacks(t *testing.T) {
	rows := []Row{
		{RouteID: "1", RouteShortName: "1", RouteLongName: "Harbour - Hills", DirectionID: 0, TripHeadsign: "", TripID: "t"},
		{RouteID: "2", RouteShortName: "2", RouteLongName: "Ring", DirectionID: 0, TripHeadsign: "  ", Area: "West", TripID: "u"},
	}

	results := Merge("Metro", rows, nil)

	require.Len(t, results, 2)
	assert.Equal(t, "Harbour - Hills", results[0].Destination)
	assert.Equal(t, "Metro", results[0].Area)
	assert.Equal(t, "Ring", results[1].Destination)
	assert.Equal(t, "West", results[1].Area)

	results = Merge("", rows[:1], nil)
	assert.Equal(t, DefaultArea, results[0].Area)
}

func TestMergeEmpty(t *testing.T) {
	results := Merge("", nil, nil)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestMergeDoesNotAliasInput(t *testing.T) {
	rows := []Row{{RouteID: "1", RouteShortName: "1", TripID: "t"}}
	results := Merge("", rows, nil)
	rows[0].TripID = "changed"
	assert.Equal(t, "t", results[0].ExampleTripID)
}

func TestFilter(t *testing.T) {
	results := []Result{
		{RouteNumber: "158", Destination: "Downtown", Area: "Central"},
		{RouteNumber: "42", Destination: "Airport", Area: "North"},
		{RouteNumber: "7", Destination: "Harbour", Area: "Downtown Loop"},
	}

	assert.Len(t, Filter(results, ""), 3)
	assert.Len(t, Filter(results, "down"), 2)
	assert.Len(t, Filter(results, "NORTH"), 1)
	assert.Len(t, Filter(results, "15"), 1)
	assert.Empty(t, Filter(results, "nowhere"))
}

func TestBlank(t *testing.T) {
	assert.True(t, Blank(""))
	assert.True(t, Blank(" \t"))
	assert.False(t, Blank("a"))
}
