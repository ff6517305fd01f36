// Package timeutil does minute arithmetic on GTFS-style clock strings.
//
// GTFS service-day times may run past 24:00 for trips that finish after
// midnight, so everything here is plain integer arithmetic on minute
// offsets from the start of the service day.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseToMinutes parses "H:MM:SS" or "HH:MM:SS" into minutes since the start
// of the service day. Missing trailing fields default to zero and seconds are
// floored to whole minutes. ok is false when s is empty or a field is not a
// non-negative integer.
func ParseToMinutes(s string) (minutes int, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	// A fourth field stays glued to the seconds and fails to parse.
	parts := strings.SplitN(s, ":", 3)
	var fields [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, false
		}
		fields[i] = n
	}
	return fields[0]*60 + fields[1] + fields[2]/60, true
}

// DiffMinutes returns end minus start in minutes. A negative result is
// returned as-is; it means the inputs were out of order.
func DiffMinutes(start, end string) (int, bool) {
	s, ok := ParseToMinutes(start)
	if !ok {
		return 0, false
	}
	e, ok := ParseToMinutes(end)
	if !ok {
		return 0, false
	}
	return e - s, true
}

// FormatClock renders a minute offset as a wall-clock "HH:MM". Offsets past
// midnight wrap around.
func FormatClock(minutes int) string {
	m := minutes % (24 * 60)
	if m < 0 {
		m += 24 * 60
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// ClockSeconds returns the wall-clock offset of t from its local midnight in seconds.
func ClockSeconds(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}
