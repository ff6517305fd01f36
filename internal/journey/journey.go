// Package journey computes stop counts and travel times along a single
// trip's stop sequence.
package journey

import (
	"iter"
	"slices"

	"transit-lookup/internal/timeutil"
)

const NotFound = -1

// StopTime is one stop of a trip. Time is the GTFS arrival time and may be
// empty when the feed leaves it out.
type StopTime struct {
	Sequence int    `json:"sequence"`
	StopName string `json:"stop_name"`
	Time     string `json:"time"`
}

// Timeline is a trip's stops ordered by sequence with each sequence
// appearing once.
type Timeline struct {
	stops []StopTime
}

// NewTimeline orders rows by sequence and keeps only the first row for each
// sequence number. rows is not modified.
func NewTimeline(rows []StopTime) Timeline {
	stops := slices.Clone(rows)
	slices.SortStableFunc(stops, func(a, b StopTime) int {
		return a.Sequence - b.Sequence
	})
	stops = slices.CompactFunc(stops, func(a, b StopTime) bool {
		return a.Sequence == b.Sequence
	})
	return Timeline{stops: stops}
}

func (t Timeline) Len() int { return len(t.stops) }

// Stops returns a copy of the ordered stops.
func (t Timeline) Stops() []StopTime { return slices.Clone(t.stops) }

// Index returns the position of the first stop named name, or NotFound.
func (t Timeline) Index(name string) int {
	return slices.IndexFunc(t.stops, func(s StopTime) bool {
		return s.StopName == name
	})
}

// Segment summarises the ride between two stops of a timeline.
type Segment struct {
	From      string
	To        string
	NumStops  int
	minutes   int
	available bool
	timed     bool
}

// Available reports whether both stops were found at different positions.
func (s Segment) Available() bool { return s.available }

// Stops returns the number of stops travelled, if the segment is available.
func (s Segment) Stops() (int, bool) {
	if !s.available {
		return 0, false
	}
	return s.NumStops, true
}

// Minutes returns the travel time. It is unavailable when either end has no
// parseable time or the times run backwards.
func (s Segment) Minutes() (int, bool) {
	if !s.available || !s.timed || s.minutes < 0 {
		return 0, false
	}
	return s.minutes, true
}

// Between measures the ride between the first stops named from and to.
// Direction does not matter: the count and duration are always taken from
// the earlier stop to the later one.
func (t Timeline) Between(from, to string) Segment {
	seg := Segment{From: from, To: to}
	i, j := t.Index(from), t.Index(to)
	if i == NotFound || j == NotFound || i == j {
		return seg
	}
	lo, hi := min(i, j), max(i, j)
	seg.available = true
	seg.NumStops = hi - lo
	seg.minutes, seg.timed = timeutil.DiffMinutes(t.stops[lo].Time, t.stops[hi].Time)
	return seg
}

// Leg is the hop from one stop to the next.
type Leg struct {
	From    StopTime
	To      StopTime
	minutes int
	timed   bool
}

// Minutes returns the leg duration, unavailable on missing or disordered times.
func (l Leg) Minutes() (int, bool) {
	if !l.timed || l.minutes < 0 {
		return 0, false
	}
	return l.minutes, true
}

// Legs yields each consecutive pair of stops with its duration. Every call
// starts a fresh traversal.
func (t Timeline) Legs() iter.Seq2[int, Leg] {
	stops := t.stops
	return func(yield func(int, Leg) bool) {
		for i := 0; i+1 < len(stops); i++ {
			m, ok := timeutil.DiffMinutes(stops[i].Time, stops[i+1].Time)
			if !yield(i, Leg{From: stops[i], To: stops[i+1], minutes: m, timed: ok}) {
				return
			}
		}
	}
}

// Trip is a direct ride found by stop names: one trip calling at the
// boarding stop and, later, at the alighting stop.
type Trip struct {
	TripID         string
	RouteNumber    string
	TripHeadsign   string
	StartTime      string
	EndTime        string
	StopsInBetween int
}

// minutesPerStop is the fallback pace used when a trip's times are unusable.
const minutesPerStop = 3

// Duration returns the ride time in minutes. When the stop times cannot be
// used it falls back to minutesPerStop per stop and reports estimated.
func (t Trip) Duration() (minutes int, estimated bool) {
	if d, ok := timeutil.DiffMinutes(t.StartTime, t.EndTime); ok && d >= 0 {
		return d, false
	}
	return max(t.StopsInBetween, 0) * minutesPerStop, true
}
