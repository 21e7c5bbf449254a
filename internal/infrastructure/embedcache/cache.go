package embedcache

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/legal-code-search/internal/core/ports"
)

const (
	DefaultSize        = 1000
	DefaultCallTimeout = 30 * time.Second
)

// Embedder caches query vectors by exact text and collapses concurrent
// requests for the same text into one backend call. Batch embeds bypass the
// cache.
//
// The shared backend call is detached from the first caller's cancellation so
// later waiters on the same text still get a vector. It is bounded by the
// call timeout instead.
type Embedder struct {
	next        ports.Embedder
	cache       *lru.Cache[string, []float32]
	group       singleflight.Group
	callTimeout time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

type Option func(*Embedder)

// WithCallTimeout bounds each shared backend call. Non-positive values keep
// DefaultCallTimeout.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Embedder) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

func New(next ports.Embedder, size int, opts ...Option) (*Embedder, error) {
	if next == nil {
		return nil, fmt.Errorf("embedcache: next embedder is nil")
	}
	if size <= 0 {
		size = DefaultSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	e := &Embedder{next: next, cache: cache, callTimeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

var _ ports.Embedder = (*Embedder)(nil)

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.next.Embed(ctx, texts)
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := strings.TrimSpace(text)
	if vec, ok := e.cache.Get(key); ok {
		e.hits.Add(1)
		return vec, nil
	}
	e.misses.Add(1)

	ch := e.group.DoChan(key, func() (any, error) {
		if vec, ok := e.cache.Peek(key); ok {
			return vec, nil
		}
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.callTimeout)
		defer cancel()
		vec, err := e.next.EmbedQuery(callCtx, key)
		if err != nil {
			return nil, err
		}
		e.cache.Add(key, vec)
		return vec, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]float32), nil
	}
}

// Stats returns cache hits and misses since construction.
func (e *Embedder) Stats() (hits, misses int64) {
	return e.hits.Load(), e.misses.Load()
}

func (e *Embedder) Len() int {
	return e.cache.Len()
}
