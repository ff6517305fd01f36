// Package schedule estimates the next departure of a fixed-headway route.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"transit-lookup/internal/timeutil"
)

var ErrInvalidMeta = errors.New("invalid schedule meta")

// Meta is the static timetable summary of a route.
type Meta struct {
	FirstBus      string `json:"first_bus"` // HH:MM
	LastBus       string `json:"last_bus"`  // HH:MM
	FrequencyMins int    `json:"frequency_mins"`
}

type Kind string

const (
	KindNotStarted Kind = "not_started"
	KindNext       Kind = "next"
	KindEnded      Kind = "ended"
)

// Status is the outcome of a prediction. Next is only set for KindNext.
type Status struct {
	Kind     Kind
	FirstBus string
	Next     string
}

func (s Status) String() string {
	switch s.Kind {
	case KindNotStarted:
		return "First bus at " + s.FirstBus
	case KindNext:
		return "Next bus at " + s.Next
	default:
		return "No more buses today"
	}
}

type window struct {
	first, last, freq int // minutes
}

func (m Meta) window() (window, error) {
	first, ok := timeutil.ParseToMinutes(m.FirstBus)
	if !ok {
		return window{}, fmt.Errorf("%w: first bus %q", ErrInvalidMeta, m.FirstBus)
	}
	last, ok := timeutil.ParseToMinutes(m.LastBus)
	if !ok {
		return window{}, fmt.Errorf("%w: last bus %q", ErrInvalidMeta, m.LastBus)
	}
	if m.FrequencyMins <= 0 {
		return window{}, fmt.Errorf("%w: frequency %d", ErrInvalidMeta, m.FrequencyMins)
	}
	if last < first {
		return window{}, fmt.Errorf("%w: last bus %s before first bus %s", ErrInvalidMeta, m.LastBus, m.FirstBus)
	}
	return window{first: first, last: last, freq: m.FrequencyMins}, nil
}

// Validate reports whether the meta can be used for predictions.
func (m Meta) Validate() error {
	_, err := m.window()
	return err
}

// Predict reports the next departure after now, reading now as local
// wall-clock time on the same day as the meta's first and last bus.
// A bus leaving exactly at now counts as already gone.
func Predict(m Meta, now time.Time) (Status, error) {
	w, err := m.window()
	if err != nil {
		return Status{}, err
	}
	nowSec := timeutil.ClockSeconds(now)
	if nowSec < w.first*60 {
		return Status{Kind: KindNotStarted, FirstBus: m.FirstBus}, nil
	}
	if nowSec > w.last*60 {
		return Status{Kind: KindEnded}, nil
	}

	elapsed := (nowSec - w.first*60) / 60
	passed := elapsed / w.freq
	next := w.first + (passed+1)*w.freq
	if next > w.last {
		return Status{Kind: KindEnded}, nil
	}
	return Status{Kind: KindNext, Next: timeutil.FormatClock(next)}, nil
}
