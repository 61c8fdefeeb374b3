package query

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/stockpulse-backend/pkg/errors"
	"github.com/angelmondragon/stockpulse-backend/pkg/logger"
)

// Options configure a Cache.
type Options struct {
	Logger  *logger.Logger
	Metrics Recorder
	// StaleTime marks settled entries stale after this long; a new subscriber
	// then triggers a background refetch. Zero disables expiry.
	StaleTime time.Duration
	// FetchTimeout bounds every fetch. Zero means no deadline.
	FetchTimeout time.Duration
	// BaseContext is the parent of every fetch context.
	BaseContext context.Context
	Now         func() time.Time
	// Retain reports whether key stays cached after its last subscriber
	// leaves. Nil retains every key. Entries it rejects are idle once they
	// have no subscribers and no fetch in flight; at most MaxIdle of those
	// are kept, least recently used first out.
	Retain  func(key string) bool
	MaxIdle int
}

type fetchFunc func(ctx context.Context) (any, error)

type call struct {
	generation uint64
	done       chan struct{}
}

type entry struct {
	key         string
	generation  uint64
	status      Status
	data        any
	hasData     bool
	err         error
	updatedAt   time.Time
	fetch       fetchFunc
	inflight    *call
	subscribers int
	lastUsed    uint64
}

// Cache holds one shared entry per key. Every entry mutation happens under mu;
// fetchers run on their own goroutines outside it.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	logg      *logger.Logger
	metrics   Recorder
	staleTime time.Duration
	timeout   time.Duration
	now       func() time.Time
	retain    func(key string) bool
	maxIdle   int
	uses      uint64

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) *Cache {
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	parent := opts.BaseContext
	if parent == nil {
		parent = context.Background()
	}
	maxIdle := opts.MaxIdle
	if maxIdle < 0 {
		maxIdle = 0
	}
	base, cancel := context.WithCancel(parent)
	return &Cache{
		entries:   map[string]*entry{},
		logg:      logg,
		metrics:   opts.Metrics,
		staleTime: opts.StaleTime,
		timeout:   opts.FetchTimeout,
		now:       now,
		retain:    opts.Retain,
		maxIdle:   maxIdle,
		base:      base,
		cancel:    cancel,
	}
}

// Close cancels in-flight fetches and waits for their goroutines to settle.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}

// Keys lists every key that has an entry, sorted.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns the untyped state for key.
func (c *Cache) Snapshot(key string) (State[any], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return State[any]{}, false
	}
	return e.state(), true
}

// Subscribers reports how many open handles watch key.
func (c *Cache) Subscribers(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.subscribers
	}
	return 0
}

// Invalidate starts a new generation for key even if a fetch is in flight.
// The superseded fetch's result is discarded when it settles. It reports
// false when the key has no registered fetcher.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.fetch == nil {
		return false
	}
	c.startLocked(e)
	return true
}

// Refetch refreshes key with its registered fetcher, joining an in-flight
// fetch if there is one, and waits for the result.
func (c *Cache) Refetch(ctx context.Context, key string) (State[any], error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || e.fetch == nil {
		c.mu.Unlock()
		return State[any]{}, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("query %q not found", key))
	}
	c.refetchLocked(e)
	c.mu.Unlock()
	return c.wait(ctx, key)
}

func (c *Cache) subscribe(key string, fetch fetchFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{key: key, status: StatusIdle}
		c.entries[key] = e
	}
	e.subscribers++
	c.uses++
	e.lastUsed = c.uses
	if fetch != nil {
		e.fetch = fetch
	}

	switch {
	case e.inflight != nil:
		c.recordDeduplicated(key)
	case e.fetch == nil:
	case e.status == StatusIdle || c.staleLocked(e):
		c.startLocked(e)
	}
}

func (c *Cache) unsubscribe(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.subscribers == 0 {
		return
	}
	e.subscribers--
	if e.subscribers == 0 {
		c.evictLocked()
	}
}

// evictLocked drops idle entries that Retain rejects once there are more than
// maxIdle of them.
func (c *Cache) evictLocked() {
	if c.retain == nil {
		return
	}
	var idle []*entry
	for key, e := range c.entries {
		if e.subscribers == 0 && e.inflight == nil && !c.retain(key) {
			idle = append(idle, e)
		}
	}
	if len(idle) <= c.maxIdle {
		return
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i].lastUsed < idle[j].lastUsed })
	for _, e := range idle[:len(idle)-c.maxIdle] {
		delete(c.entries, e.key)
		c.logg.Debug(c.logg.WithQueryKey(c.base, e.key), "evicted idle query entry")
	}
}

func (c *Cache) refetch(key string, fetch fetchFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return
	}
	if fetch != nil {
		e.fetch = fetch
	}
	c.refetchLocked(e)
}

func (c *Cache) refetchLocked(e *entry) {
	if e.fetch == nil {
		return
	}
	if e.inflight != nil {
		c.recordDeduplicated(e.key)
		return
	}
	c.startLocked(e)
}

func (c *Cache) staleLocked(e *entry) bool {
	if c.staleTime <= 0 || e.updatedAt.IsZero() {
		return false
	}
	return c.now().Sub(e.updatedAt) >= c.staleTime
}

// startLocked bumps the generation and launches a fetch tagged with it.
func (c *Cache) startLocked(e *entry) {
	e.generation++
	cl := &call{generation: e.generation, done: make(chan struct{})}
	e.inflight = cl
	e.status = StatusLoading

	fetch := e.fetch
	key := e.key
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		value, err := c.run(key, fetch)
		c.settle(key, cl, value, err)
	}()
}

func (c *Cache) run(key string, fetch fetchFunc) (value any, err error) {
	ctx := c.base
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	ctx = c.logg.WithQueryKey(ctx, key)
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("query fetch panicked: %v", r))
		}
	}()
	return fetch(ctx)
}

// settle applies a fetch result only if its generation is still current.
func (c *Cache) settle(key string, cl *call, value any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(cl.done)

	// An evicted and recreated entry restarts its generations, so the call
	// itself must still be the entry's current one.
	e := c.entries[key]
	ctx := c.logg.WithFields(c.base, map[string]any{"query_key": key, "generation": cl.generation})
	if e == nil || e.generation != cl.generation || e.inflight != cl {
		c.recordDiscarded(key)
		c.logg.Debug(ctx, "discarded superseded query result")
		return
	}

	e.inflight = nil
	e.updatedAt = c.now()
	if err != nil {
		e.err = err
		e.status = StatusError
		c.recordFetch(key, "error")
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "query fetch failed")
	} else {
		e.data = value
		e.hasData = true
		e.err = nil
		e.status = StatusSuccess
		c.recordFetch(key, "success")
	}
	if e.subscribers == 0 {
		c.evictLocked()
	}
}

// wait blocks until key has no fetch in flight. A superseded call closes its
// channel early, so the loop re-reads the entry's current call.
func (c *Cache) wait(ctx context.Context, key string) (State[any], error) {
	for {
		c.mu.Lock()
		e, ok := c.entries[key]
		if !ok {
			c.mu.Unlock()
			return State[any]{}, nil
		}
		if e.inflight == nil {
			st := e.state()
			c.mu.Unlock()
			return st, nil
		}
		done := e.inflight.done
		c.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			st, _ := c.Snapshot(key)
			return st, ctx.Err()
		}
	}
}

func (e *entry) state() State[any] {
	return State[any]{
		Data:       e.data,
		HasData:    e.hasData,
		IsLoading:  e.inflight != nil,
		Err:        e.err,
		Status:     e.status,
		Generation: e.generation,
		UpdatedAt:  e.updatedAt,
	}
}

func (c *Cache) recordFetch(key, result string) {
	if c.metrics == nil {
		return
	}
	c.metrics.ObserveFetch(key, result)
}

func (c *Cache) recordDeduplicated(key string) {
	if c.metrics == nil {
		return
	}
	c.metrics.IncDeduplicated(key)
}

func (c *Cache) recordDiscarded(key string) {
	if c.metrics == nil {
		return
	}
	c.metrics.IncDiscarded(key)
}
