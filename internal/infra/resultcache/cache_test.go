package resultcache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate/internal/domain"
)

func TestKey_CanonicalArgs(t *testing.T) {
	a, err := Key("search", map[string]any{"q": "go", "limit": 10, "opts": map[string]any{"b": 1, "a": 2}})
	require.NoError(t, err)
	b, err := Key("search", map[string]any{"opts": map[string]any{"a": 2, "b": 1}, "limit": 10, "q": "go"})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := Key("browse", map[string]any{"q": "go", "limit": 10, "opts": map[string]any{"b": 1, "a": 2}})
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	empty, err := Key("search", nil)
	require.NoError(t, err)
	emptyMap, err := Key("search", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, empty, emptyMap)

	_, err = Key("search", map[string]any{"bad": func() {}})
	require.Error(t, err)
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))
	got, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", got)

	now = now.Add(time.Minute)
	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 0, store.Len())
}

func TestMemoryStore_SweepsOnWrite(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "a", 1, time.Second))
	require.NoError(t, store.Set(ctx, "b", 2, time.Hour))
	now = now.Add(2 * time.Second)
	require.NoError(t, store.Set(ctx, "c", 3, time.Hour))
	require.Equal(t, 2, store.Len())

	require.NoError(t, store.Set(ctx, "skip", 4, 0))
	_, ok, _ := store.Get(ctx, "skip")
	require.False(t, ok)

	require.NoError(t, store.Close())
	require.Equal(t, 0, store.Len())
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TOOLGATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TOOLGATE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	store, err := NewRedisStore(ctx, domain.RedisConfig{Addr: addr, KeyPrefix: "toolgate:test:"})
	require.NoError(t, err)
	defer store.Close()

	key, err := Key("search", map[string]any{"q": t.Name(), "at": time.Now().UnixNano()})
	require.NoError(t, err)

	_, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, key, map[string]any{"hits": 3}, time.Minute))
	got, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, map[string]any{"hits": float64(3)}, got)
}
