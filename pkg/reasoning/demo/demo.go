// Package demo provides a caching decorator for the reasoning service.
// In demo mode identical requests are answered from memory so presentations
// do not depend on the remote service.
package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/mpapenbr/racestrategy-service-go/log"
	"github.com/mpapenbr/racestrategy-service-go/pkg/reasoning"
	"github.com/mpapenbr/racestrategy-service-go/pkg/utils/cache"
	"github.com/mpapenbr/racestrategy-service-go/pkg/utils/cache/loadercache"
)

// keyPrefixLen is the number of prompt characters that make up the cache key
const keyPrefixLen = 100

type key struct {
	prefix      string
	temperature string
}

type (
	Option func(*Cached)
	Cached struct {
		next       reasoning.Service
		expiration time.Duration
		cache      cache.Cache[key, string]
		l          *log.Logger
	}
)

// WithExpiration sets the lifetime of cached responses, <= 0 keeps them forever
func WithExpiration(d time.Duration) Option {
	return func(c *Cached) {
		c.expiration = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Cached) {
		c.l = l
	}
}

func New(next reasoning.Service, opts ...Option) *Cached {
	ret := &Cached{
		next: next,
		l:    log.Default().Named("reasoning.demo"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.cache = loadercache.New(
		loadercache.WithExpiration[key, string](ret.expiration),
		loadercache.WithLogger[key, string](ret.l))
	return ret
}

// Generate implements reasoning.Service. Only successful responses are cached.
func (c *Cached) Generate(ctx context.Context, req reasoning.Request) (string, error) {
	k := cacheKey(req)
	hit := true
	v, err := c.cache.GetWith(ctx, k, func(ctx context.Context, _ key) (*string, error) {
		hit = false
		text, err := c.next.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		return &text, nil
	})
	if err != nil {
		return "", err
	}
	if hit {
		c.l.Debug("serving cached response", log.Float64("temperature", req.Temperature))
	}
	return *v, nil
}

// Clear drops all cached responses
func (c *Cached) Clear(ctx context.Context) {
	c.cache.InvalidateAll(ctx)
}

func cacheKey(req reasoning.Request) key {
	p := req.Prompt
	if r := []rune(p); len(r) > keyPrefixLen {
		p = string(r[:keyPrefixLen])
	}
	return key{prefix: p, temperature: fmt.Sprintf("%.2f", req.Temperature)}
}
