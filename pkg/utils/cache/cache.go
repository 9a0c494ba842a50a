package cache

import (
	"context"
	"errors"
)

// based on github.com/kittpat1413/go-common/framework/cache/cache.go

var ErrCacheMiss = errors.New("cache miss")

// LoaderFunc produces the value for a key on a cache miss
type LoaderFunc[K comparable, V any] func(ctx context.Context, key K) (*V, error)

type Cache[K comparable, V any] interface {
	Get(ctx context.Context, key K) (*V, error)
	// GetWith is like Get but uses lf instead of the configured loader on a miss
	GetWith(ctx context.Context, key K, lf LoaderFunc[K, V]) (*V, error)
	Invalidate(ctx context.Context, key K)
	InvalidateAll(ctx context.Context)
	Len() int
}
