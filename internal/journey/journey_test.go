package journey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func abc() Timeline {
	return NewTimeline([]StopTime{
		{Sequence: 1, StopName: "A", Time: "08:00:00"},
		{Sequence: 2, StopName: "B", Time: "08:10:00"},
		{Sequence: 3, StopName: "C", Time: "08:25:00"},
	})
}

func TestNewTimelineSortsAndCollapses(t *testing.T) {
	rows := []StopTime{
		{Sequence: 3, StopName: "C"},
		{Sequence: 1, StopName: "A"},
		{Sequence: 2, StopName: "B"},
		{Sequence: 1, StopName: "A-dup"},
	}
	tl := NewTimeline(rows)

	var names []string
	for _, s := range tl.Stops() {
		names = append(names, s.StopName)
	}
	assert.Equal(t, []string{"A", "B", "C"}, names)
	assert.Equal(t, "C", rows[0].StopName, "input must not be reordered")
}

func TestBetweenReverseDirection(t *testing.T) {
	seg := abc().Between("C", "A")

	require.True(t, seg.Available())
	n, ok := seg.Stops()
	require.True(t, ok)
	assert.Equal(t, 2, n)
	m, ok := seg.Minutes()
	require.True(t, ok)
	assert.Equal(t, 25, m)
}

func TestBetweenForward(t *testing.T) {
	seg := abc().Between("A", "B")
	n, _ := seg.Stops()
	m, _ := seg.Minutes()
	assert.Equal(t, 1, n)
	assert.Equal(t, 10, m)
}

func TestBetweenUnavailable(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
	}{
		{"missing from", "Z", "A"},
		{"missing to", "A", "Z"},
		{"same stop", "B", "B"},
		{"both missing", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg := abc().Between(tt.from, tt.to)
			assert.False(t, seg.Available())
			_, ok := seg.Stops()
			assert.False(t, ok)
			_, ok = seg.Minutes()
			assert.False(t, ok)
		})
	}
}

func TestBetweenLoopUsesFirstOccurrence(t *testing.T) {
	tl := NewTimeline([]StopTime{
		{Sequence: 1, StopName: "Depot", Time: "07:00:00"},
		{Sequence: 2, StopName: "Market", Time: "07:05:00"},
		{Sequence: 3, StopName: "Depot", Time: "07:30:00"},
	})
	seg := tl.Between("Market", "Depot")
	n, _ := seg.Stops()
	m, _ := seg.Minutes()
	assert.Equal(t, 1, n)
	assert.Equal(t, 5, m)
}

func TestBetweenUntimedStops(t *testing.T) {
	tl := NewTimeline([]StopTime{
		{Sequence: 1, StopName: "A", Time: "08:00:00"},
		{Sequence: 2, StopName: "B", Time: ""},
		{Sequence: 3, StopName: "C", Time: "07:50:00"},
	})

	seg := tl.Between("A", "B")
	n, ok := seg.Stops()
	assert.True(t, ok)
	assert.Equal(t, 1, n)
	_, ok = seg.Minutes()
	assert.False(t, ok, "missing time is unavailable, not zero")

	seg = tl.Between("A", "C")
	_, ok = seg.Minutes()
	assert.False(t, ok, "backwards times are unavailable, not negative")
}

func TestLegs(t *testing.T) {
	tl := NewTimeline([]StopTime{
		{Sequence: 1, StopName: "A", Time: "23:55:00"},
		{Sequence: 2, StopName: "B", Time: "24:05:00"},
		{Sequence: 3, StopName: "C"},
		{Sequence: 4, StopName: "D", Time: "24:20:00"},
	})

	type got struct {
		from, to string
		minutes  int
		ok       bool
	}
	collect := func() []got {
		var out []got
		for _, leg := range tl.Legs() {
			m, ok := leg.Minutes()
			out = append(out, got{leg.From.StopName, leg.To.StopName, m, ok})
		}
		return out
	}

	want := []got{
		{"A", "B", 10, true},
		{"B", "C", 0, false},
		{"C", "D", 0, false},
	}
	assert.Equal(t, want, collect())
	assert.Equal(t, want, collect(), "traversal restarts on each call")
}

func TestLegsEarlyStop(t *testing.T) {
	count := 0
	for i := range abc().Legs() {
		count++
		if i == 0 {
			break
		}
	}
	assert.Equal(t, 1, count)
}

func TestLegsShortTimelines(t *testing.T) {
	for _, tl := range []Timeline{NewTimeline(nil), NewTimeline([]StopTime{{Sequence: 1, StopName: "A"}})} {
		for range tl.Legs() {
			t.Fatal("no legs expected")
		}
	}
}

func TestTripDuration(t *testing.T) {
	d, est := Trip{StartTime: "08:00:00", EndTime: "08:42:00", StopsInBetween: 5}.Duration()
	assert.Equal(t, 42, d)
	assert.False(t, est)

	d, est = Trip{StartTime: "", EndTime: "08:42:00", StopsInBetween: 5}.Duration()
	assert.Equal(t, 15, d)
	assert.True(t, est)

	d, est = Trip{StartTime: "09:00:00", EndTime: "08:00:00", StopsInBetween: 2}.Duration()
	assert.Equal(t, 6, d)
	assert.True(t, est)
}
