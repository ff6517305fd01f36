// Package search merges route-name and stop-name matches into one list of
// directional route results.
package search

import (
	"strconv"
	"strings"
)

const DefaultArea = "Central"

// Direction is a GTFS direction_id. Rows without one use DirectionUnknown.
type Direction int8

const DirectionUnknown Direction = -1

func (d Direction) String() string {
	if d == DirectionUnknown {
		return "none"
	}
	return strconv.Itoa(int(d))
}

// Row is one route+trip row as returned by the data source.
type Row struct {
	RouteID        string
	RouteShortName string
	RouteLongName  string
	Area           string
	DirectionID    Direction
	TripHeadsign   string
	TripID         string
}

// Result is one directional service of a route.
type Result struct {
	RouteNumber   string `json:"route_number"`
	RouteID       string `json:"route_id"`
	Destination   string `json:"destination"`
	Area          string `json:"area"`
	ExampleTripID string `json:"example_trip_id"`
}

type key struct {
	routeID   string
	direction Direction
}

// Merge folds route-name matches, then stop-name matches, into results
// keyed by (route, direction). The first row seen for a key wins and
// results keep first-seen order. defaultArea labels rows without an area.
func Merge(defaultArea string, byRoute, byStop []Row) []Result {
	if defaultArea == "" {
		defaultArea = DefaultArea
	}
	index := make(map[key]int, len(byRoute)+len(byStop))
	results := make([]Result, 0, len(byRoute)+len(byStop))

	for _, rows := range [][]Row{byRoute, byStop} {
		for _, r := range rows {
			k := key{routeID: r.RouteID, direction: r.DirectionID}
			if _, seen := index[k]; seen {
				continue
			}
			index[k] = len(results)
			results = append(results, toResult(r, defaultArea))
		}
	}
	return results
}

func toResult(r Row, defaultArea string) Result {
	dest := r.TripHeadsign
	if strings.TrimSpace(dest) == "" {
		dest = r.RouteLongName
	}
	area := r.Area
	if strings.TrimSpace(area) == "" {
		area = defaultArea
	}
	return Result{
		RouteNumber:   r.RouteShortName,
		RouteID:       r.RouteID,
		Destination:   dest,
		Area:          area,
		ExampleTripID: r.TripID,
	}
}

// Filter keeps results whose route number, destination or area contains q,
// ignoring case. An empty q keeps everything.
func Filter(results []Result, q string) []Result {
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if q == "" ||
			strings.Contains(strings.ToLower(r.RouteNumber), q) ||
			strings.Contains(strings.ToLower(r.Destination), q) ||
			strings.Contains(strings.ToLower(r.Area), q) {
			out = append(out, r)
		}
	}
	return out
}

// Blank reports whether a query has nothing to search for.
func Blank(q string) bool {
	return strings.TrimSpace(q) == ""
}
