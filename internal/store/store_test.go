package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryKVLifecycle(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	_, err := kv.Get(ctx, "favorites.dev1")
	assert.ErrorIs(t, err, ErrNotFound)

	rev, err := kv.Update(ctx, "favorites.dev1", []byte("a"), 0)
	require.NoError(t, err)

	_, err = kv.Update(ctx, "favorites.dev1", []byte("b"), 0)
	assert.ErrorIs(t, err, ErrConflict, "create must fail on an existing key")

	rev2, err := kv.Update(ctx, "favorites.dev1", []byte("b"), rev)
	require.NoError(t, err)
	assert.Greater(t, rev2, rev)

	_, err = kv.Update(ctx, "favorites.dev1", []byte("c"), rev)
	assert.ErrorIs(t, err, ErrConflict, "stale revision must fail")

	e, err := kv.Get(ctx, "favorites.dev1")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), e.Value)
	assert.Equal(t, rev2, e.Revision)

	require.NoError(t, kv.Delete(ctx, "favorites.dev1"))
	_, err = kv.Get(ctx, "favorites.dev1")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, kv.Delete(ctx, "favorites.dev1"), "deleting a missing key is fine")
}

func TestMemoryKVCopiesValues(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	v := []byte("abc")
	_, err := kv.Update(ctx, "k", v, 0)
	require.NoError(t, err)
	v[0] = 'z'

	e, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(e.Value))
	e.Value[0] = 'y'

	e, _ = kv.Get(ctx, "k")
	assert.Equal(t, "abc", string(e.Value))
}

func TestUpdateOnMissingKeyWithRevisionConflicts(t *testing.T) {
	_, err := NewMemoryKV().Update(context.Background(), "k", nil, 4)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestKeyToken(t *testing.T) {
	assert.Equal(t, "device-42", KeyToken("device-42"))
	assert.Equal(t, "a_b_c_d", KeyToken("a.b c*d"))
	assert.Equal(t, "_", KeyToken("  "))
	assert.Equal(t, "caf_", KeyToken("café"))
}
