package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGet(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "foo", []byte("bar"), 0))
	val, found, err := s.Get(ctx, "foo")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("bar"), val)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()

	_, found, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "temp", []byte("v"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, found, err := s.Get(ctx, "temp")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore_SweeperRemovesExpiredEntries(t *testing.T) {
	s := NewMemoryStore(10 * time.Millisecond)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "temp", []byte("v"), 5*time.Millisecond))
	time.Sleep(50 * time.Millisecond)

	s.mu.RLock()
	_, exists := s.entries["temp"]
	s.mu.RUnlock()
	assert.False(t, exists)
}

func TestMemoryStore_DeleteExistsClear(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte("1"), 0))
	exists, err := s.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.Delete(ctx, "a"))
	exists, err = s.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, s.Clear(ctx))
	exists, err = s.Exists(ctx, "b")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStore_KeysPattern(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "room:1", []byte("x"), 0))
	require.NoError(t, s.Set(ctx, "room:2", []byte("x"), 0))
	require.NoError(t, s.Set(ctx, "call:1", []byte("x"), 0))

	keys, err := s.Keys(ctx, "room:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"room:1", "room:2"}, keys)
}

func TestSetValueGetValue_Typed(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()
	ctx := context.Background()

	type roomSnapshot struct {
		Sid  string
		Name string
	}

	require.NoError(t, SetValue(ctx, s, "room:alpha", roomSnapshot{Sid: "r1", Name: "alpha"}, 0))

	got, found, err := GetValue[roomSnapshot](ctx, s, "room:alpha")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "alpha", got.Name)
}
