// Package store is the key-value storage behind per-device bookmarks.
package store

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var (
	ErrNotFound = errors.New("key not found")
	// ErrConflict means the key changed since it was read.
	ErrConflict = errors.New("revision conflict")
)

// Entry is a stored value and the revision it was written at.
type Entry struct {
	Value    []byte
	Revision uint64
}

// KV is a key-value store with optimistic concurrency. Update with revision
// 0 creates the key and fails with ErrConflict if it already exists.
type KV interface {
	Get(ctx context.Context, key string) (Entry, error)
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
	Delete(ctx context.Context, key string) error
}

// Metrics observes store traffic. Implementations must tolerate concurrent calls.
type Metrics interface {
	StoreOp(op string, err error)
	NATSSetConnected(connected bool)
}

// KeyToken makes s usable as one key token: NATS keys only allow
// [-/_=.a-zA-Z0-9] and dots separate tokens.
func KeyToken(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '=':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// MemoryKV keeps entries in process memory. It backs tests and deployments
// without NATS.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]Entry
	seq     uint64
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string]Entry)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	e.Value = append([]byte(nil), e.Value...)
	return e, nil
}

func (m *MemoryKV) Update(_ context.Context, key string, value []byte, revision uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.entries[key]
	switch {
	case revision == 0 && ok:
		return 0, ErrConflict
	case revision != 0 && (!ok || cur.Revision != revision):
		return 0, ErrConflict
	}
	m.seq++
	m.entries[key] = Entry{Value: append([]byte(nil), value...), Revision: m.seq}
	return m.seq, nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
