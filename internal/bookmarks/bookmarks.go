// Package bookmarks keeps each device's favorite and recently viewed routes.
package bookmarks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"transit-lookup/internal/store"
)

var (
	ErrNotFound     = errors.New("bookmark not found")
	ErrInvalidEntry = errors.New("invalid bookmark")
)

// maxAttempts bounds retries of a read-modify-write that lost a race.
const maxAttempts = 5

// Entry is a bookmarked route.
type Entry struct {
	RouteNumber   string `json:"route_number"`
	TripHeadsign  string `json:"trip_headsign"`
	RouteID       string `json:"route_id,omitempty"`
	ExampleTripID string `json:"example_trip_id,omitempty"`
}

func (e Entry) normalize() (Entry, error) {
	e.RouteNumber = strings.TrimSpace(e.RouteNumber)
	e.TripHeadsign = strings.TrimSpace(e.TripHeadsign)
	if e.RouteNumber == "" {
		return Entry{}, fmt.Errorf("%w: route_number is required", ErrInvalidEntry)
	}
	return e, nil
}

type Service struct {
	kv          store.KV
	recentLimit int
}

func New(kv store.KV, recentLimit int) *Service {
	if recentLimit <= 0 {
		recentLimit = 10
	}
	return &Service{kv: kv, recentLimit: recentLimit}
}

func favoritesKey(device string) string { return "favorites." + store.KeyToken(device) }
func recentKey(device string) string    { return "recent." + store.KeyToken(device) }

// Favorites lists a device's favorites in the order they were added.
func (s *Service) Favorites(ctx context.Context, device string) ([]Entry, error) {
	entries, _, err := s.load(ctx, favoritesKey(device))
	return entries, err
}

// AddFavorite appends e unless the route is already a favorite, in which
// case the existing entry is refreshed in place.
func (s *Service) AddFavorite(ctx context.Context, device string, e Entry) ([]Entry, error) {
	e, err := e.normalize()
	if err != nil {
		return nil, err
	}
	return s.modify(ctx, favoritesKey(device), func(list []Entry) ([]Entry, error) {
		if i := indexOf(list, e.RouteNumber); i >= 0 {
			list[i] = e
			return list, nil
		}
		return append(list, e), nil
	})
}

func (s *Service) RemoveFavorite(ctx context.Context, device, routeNumber string) ([]Entry, error) {
	routeNumber = strings.TrimSpace(routeNumber)
	return s.modify(ctx, favoritesKey(device), func(list []Entry) ([]Entry, error) {
		i := indexOf(list, routeNumber)
		if i < 0 {
			return nil, fmt.Errorf("%w: favorite %q", ErrNotFound, routeNumber)
		}
		return slices.Delete(list, i, i+1), nil
	})
}

// Recent lists a device's recently viewed routes, newest first.
func (s *Service) Recent(ctx context.Context, device string) ([]Entry, error) {
	entries, _, err := s.load(ctx, recentKey(device))
	return entries, err
}

// RecordRecent moves e to the front of the recent list, dropping older
// entries past the limit.
func (s *Service) RecordRecent(ctx context.Context, device string, e Entry) ([]Entry, error) {
	e, err := e.normalize()
	if err != nil {
		return nil, err
	}
	return s.modify(ctx, recentKey(device), func(list []Entry) ([]Entry, error) {
		if i := indexOf(list, e.RouteNumber); i >= 0 {
			list = slices.Delete(list, i, i+1)
		}
		list = slices.Insert(list, 0, e)
		if len(list) > s.recentLimit {
			list = list[:s.recentLimit]
		}
		return list, nil
	})
}

func (s *Service) ClearRecent(ctx context.Context, device string) error {
	return s.kv.Delete(ctx, recentKey(device))
}

func (s *Service) load(ctx context.Context, key string) ([]Entry, uint64, error) {
	e, err := s.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return []Entry{}, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	var entries []Entry
	if err := json.Unmarshal(e.Value, &entries); err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", key, err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, e.Revision, nil
}

// modify applies fn to the stored list and writes it back, retrying when
// another writer got there first.
func (s *Service) modify(ctx context.Context, key string, fn func([]Entry) ([]Entry, error)) ([]Entry, error) {
	for range maxAttempts {
		list, rev, err := s.load(ctx, key)
		if err != nil {
			return nil, err
		}
		list, err = fn(list)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(list)
		if err != nil {
			return nil, err
		}
		_, err = s.kv.Update(ctx, key, data, rev)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return list, nil
	}
	return nil, fmt.Errorf("update %s: %w after %d attempts", key, store.ErrConflict, maxAttempts)
}

func indexOf(list []Entry, routeNumber string) int {
	return slices.IndexFunc(list, func(e Entry) bool { return e.RouteNumber == routeNumber })
}

// Filter keeps entries whose route number or headsign contains q, ignoring
// case. An empty q keeps everything.
func Filter(entries []Entry, q string) []Entry {
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if q == "" ||
			strings.Contains(strings.ToLower(e.RouteNumber), q) ||
			strings.Contains(strings.ToLower(e.TripHeadsign), q) {
			out = append(out, e)
		}
	}
	return out
}
