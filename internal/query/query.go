package query

import (
	"context"
	"sync"
)

// Query is one subscriber's handle onto a shared cache entry.
type Query[T any] struct {
	cache *Cache

	mu     sync.Mutex
	key    string
	fetch  Fetcher[T]
	closed bool
}

// Use subscribes to key. The first subscriber starts a fetch; later ones
// share the entry and any fetch already in flight.
func Use[T any](c *Cache, key string, fetch Fetcher[T]) *Query[T] {
	q := &Query[T]{cache: c, key: key, fetch: fetch}
	c.subscribe(key, erase(fetch))
	return q
}

func (q *Query[T]) Key() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.key
}

// State returns the current state of the handle's key.
func (q *Query[T]) State() State[T] {
	st, _ := q.cache.Snapshot(q.Key())
	return typed[T](st)
}

// Wait blocks until no fetch is in flight for the key.
func (q *Query[T]) Wait(ctx context.Context) (State[T], error) {
	st, err := q.cache.wait(ctx, q.Key())
	return typed[T](st), err
}

// Refetch re-runs the fetcher, or joins the fetch already in flight, and
// waits for it to settle. Data from the last success stays visible meanwhile.
func (q *Query[T]) Refetch(ctx context.Context) (State[T], error) {
	q.mu.Lock()
	key, fetch := q.key, q.fetch
	q.mu.Unlock()
	q.cache.refetch(key, erase(fetch))
	return q.Wait(ctx)
}

// Switch moves the handle to another key. The handle never carries data
// across keys: it sees the new key's entry, which is unset if nobody has
// fetched it yet.
func (q *Query[T]) Switch(key string, fetch Fetcher[T]) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	old := q.key
	q.key, q.fetch = key, fetch
	q.mu.Unlock()

	if old == key {
		return
	}
	q.cache.unsubscribe(old)
	q.cache.subscribe(key, erase(fetch))
}

// Close unsubscribes the handle. The entry stays cached unless the cache's
// Retain option lets it go once idle.
func (q *Query[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cache.unsubscribe(q.key)
}

func erase[T any](fetch Fetcher[T]) fetchFunc {
	if fetch == nil {
		return nil
	}
	return func(ctx context.Context) (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}
