package loadercache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/racestrategy-service-go/pkg/utils/cache"
)

func TestLoaderCache(t *testing.T) {
	calls := 0
	loader := func(_ context.Context, key string) (*string, error) {
		calls++
		v := "value-" + key
		return &v, nil
	}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := New(
		WithLoader[string, string](loader),
		WithExpiration[string, string](time.Minute),
		withClock[string, string](func() time.Time { return now }))

	ctx := context.Background()
	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "value-a", *v)
	_, _ = c.Get(ctx, "a")
	assert.Equal(t, 1, calls, "second get served from cache")

	now = now.Add(2 * time.Minute)
	_, _ = c.Get(ctx, "a")
	assert.Equal(t, 2, calls, "expired entry reloaded")

	c.Invalidate(ctx, "a")
	assert.Equal(t, 0, c.Len())
}

func TestLoaderCache_MissWithoutLoader(t *testing.T) {
	c := New[string, int]()
	_, err := c.Get(context.Background(), "x")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestLoaderCache_GetWithDoesNotCacheErrors(t *testing.T) {
	c := New[string, int](WithExpiration[string, int](0))
	boom := errors.New("boom")
	_, err := c.GetWith(context.Background(), "x",
		func(context.Context, string) (*int, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	v := 42
	got, err := c.GetWith(context.Background(), "x",
		func(context.Context, string) (*int, error) { return &v, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, *got)
	c.InvalidateAll(context.Background())
	assert.Equal(t, 0, c.Len())
}
