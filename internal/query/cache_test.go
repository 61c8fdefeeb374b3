package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/stockpulse-backend/pkg/errors"
)

type result struct {
	value string
	err   error
}

// scripted blocks call i until release(i) is invoked.
type scripted struct {
	mu      sync.Mutex
	calls   int
	gates   []chan result
	started chan int
}

func newScripted(n int) *scripted {
	s := &scripted{started: make(chan int, n)}
	for i := 0; i < n; i++ {
		s.gates = append(s.gates, make(chan result, 1))
	}
	return s
}

func (s *scripted) fetch(ctx context.Context) (string, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()
	s.started <- i
	select {
	case r := <-s.gates[i]:
		return r.value, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *scripted) release(i int, value string, err error) {
	s.gates[i] <- result{value: value, err: err}
}

func (s *scripted) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scripted) awaitStart(t *testing.T, want int) {
	t.Helper()
	select {
	case got := <-s.started:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("fetch %d never started", want)
	}
}

type recorder struct {
	mu        sync.Mutex
	fetches   map[string]int
	dedup     int
	discarded int
}

func newRecorder() *recorder {
	return &recorder{fetches: map[string]int{}}
}

func (r *recorder) ObserveFetch(_ string, res string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches[res]++
}

func (r *recorder) IncDeduplicated(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dedup++
}

func (r *recorder) IncDiscarded(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discarded++
}

func (r *recorder) discards() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.discarded
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestUseLoadsThenSettles(t *testing.T) {
	cache := New(Options{})
	defer cache.Close()
	s := newScripted(1)

	q := Use(cache, "k", s.fetch)
	s.awaitStart(t, 0)
	st := q.State()
	assert.True(t, st.IsLoading)
	assert.Equal(t, StatusLoading, st.Status)
	assert.False(t, st.HasData)
	assert.Equal(t, uint64(1), st.Generation)

	s.release(0, "v1", nil)
	st, err := q.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "v1", st.Data)
	assert.True(t, st.HasData)
	assert.False(t, st.IsLoading)
	assert.NoError(t, st.Err)
	assert.Equal(t, StatusSuccess, st.Status)
	assert.False(t, st.UpdatedAt.IsZero())
}

func TestConcurrentSubscribersShareOneFetch(t *testing.T) {
	rec := newRecorder()
	cache := New(Options{Metrics: rec})
	defer cache.Close()

	var calls atomic.Int32
	gate := make(chan struct{})
	fetch := func(ctx context.Context) ([]int, error) {
		calls.Add(1)
		<-gate
		return []int{342, 285, 253}, nil
	}

	const subscribers = 16
	queries := make([]*Query[[]int], subscribers)
	var wg sync.WaitGroup
	for i := 0; i < subscribers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			queries[i] = Use(cache, "popular-products:3", fetch)
		}(i)
	}
	wg.Wait()
	close(gate)

	for _, q := range queries {
		st, err := q.Wait(waitCtx(t))
		require.NoError(t, err)
		assert.Equal(t, []int{342, 285, 253}, st.Data)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, subscribers-1, rec.dedup)
	assert.Equal(t, subscribers, cache.Subscribers("popular-products:3"))
}

func TestNewerGenerationWinsWhenOlderSettlesLast(t *testing.T) {
	rec := newRecorder()
	cache := New(Options{Metrics: rec})
	s := newScripted(2)

	q := Use(cache, "k", s.fetch)
	s.awaitStart(t, 0)
	require.True(t, cache.Invalidate("k"))
	s.awaitStart(t, 1)

	s.release(1, "new", nil)
	st, err := q.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "new", st.Data)
	assert.Equal(t, uint64(2), st.Generation)

	s.release(0, "old", nil)
	cache.Close()

	st = q.State()
	assert.Equal(t, "new", st.Data)
	assert.Equal(t, uint64(2), st.Generation)
	assert.Equal(t, 1, rec.discards())
}

func TestNewerGenerationWinsWhenOlderSettlesFirst(t *testing.T) {
	rec := newRecorder()
	cache := New(Options{Metrics: rec})
	defer cache.Close()
	s := newScripted(2)

	q := Use(cache, "k", s.fetch)
	s.awaitStart(t, 0)
	require.True(t, cache.Invalidate("k"))
	s.awaitStart(t, 1)

	s.release(0, "old", nil)
	require.Eventually(t, func() bool { return rec.discards() == 1 }, 2*time.Second, 5*time.Millisecond)

	st := q.State()
	assert.True(t, st.IsLoading)
	assert.False(t, st.HasData, "superseded result must not land")

	s.release(1, "new", nil)
	st, err := q.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "new", st.Data)
}

func TestRefetchPreservesDataThroughErrors(t *testing.T) {
	cache := New(Options{})
	defer cache.Close()
	s := newScripted(3)

	q := Use(cache, "k", s.fetch)
	s.awaitStart(t, 0)
	s.release(0, "cached", nil)
	_, err := q.Wait(waitCtx(t))
	require.NoError(t, err)

	done := make(chan State[string], 1)
	go func() {
		st, _ := q.Refetch(context.Background())
		done <- st
	}()
	s.awaitStart(t, 1)
	mid := q.State()
	assert.True(t, mid.IsLoading)
	assert.Equal(t, "cached", mid.Data)

	boom := pkgerrors.New(pkgerrors.CodeMalformed, "record 0 is missing id")
	s.release(1, "", boom)
	st := <-done
	assert.Equal(t, StatusError, st.Status)
	assert.ErrorIs(t, st.Err, boom)
	assert.Equal(t, "cached", st.Data)
	assert.True(t, st.HasData)
	assert.False(t, st.IsLoading)

	go func() {
		st, _ := q.Refetch(context.Background())
		done <- st
	}()
	s.awaitStart(t, 2)
	mid = q.State()
	assert.True(t, mid.IsLoading)
	assert.Equal(t, "cached", mid.Data, "data survives while refetching out of the error state")
	assert.Error(t, mid.Err)

	s.release(2, "fresh", nil)
	st = <-done
	assert.Equal(t, "fresh", st.Data)
	assert.NoError(t, st.Err)
	assert.Equal(t, StatusSuccess, st.Status)
}

func TestErrorWithoutPriorDataLeavesDataUnset(t *testing.T) {
	cache := New(Options{})
	defer cache.Close()
	q := Use(cache, "k", func(context.Context) ([]string, error) {
		return nil, errors.New("nope")
	})
	st, err := q.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.False(t, st.HasData)
	assert.Nil(t, st.Data)
	assert.EqualError(t, st.Err, "nope")
}

func TestConcurrentRefetchJoinsInFlight(t *testing.T) {
	rec := newRecorder()
	cache := New(Options{Metrics: rec})
	defer cache.Close()
	s := newScripted(2)

	q := Use(cache, "k", s.fetch)
	s.awaitStart(t, 0)
	s.release(0, "v1", nil)
	_, err := q.Wait(waitCtx(t))
	require.NoError(t, err)

	results := make(chan State[string], 5)
	for i := 0; i < 5; i++ {
		go func() {
			st, _ := q.Refetch(context.Background())
			results <- st
		}()
	}
	s.awaitStart(t, 1)
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return rec.dedup == 4
	}, 2*time.Second, 5*time.Millisecond)

	s.release(1, "v2", nil)
	for i := 0; i < 5; i++ {
		st := <-results
		assert.Equal(t, "v2", st.Data)
		assert.Equal(t, uint64(2), st.Generation)
	}
	assert.Equal(t, 2, s.callCount())
}

func TestSwitchStartsFromUnsetData(t *testing.T) {
	cache := New(Options{})
	defer cache.Close()
	a := newScripted(1)
	b := newScripted(1)

	q := Use(cache, "popular-products:3", a.fetch)
	a.awaitStart(t, 0)
	a.release(0, "three", nil)
	_, err := q.Wait(waitCtx(t))
	require.NoError(t, err)

	q.Switch("popular-products:5", b.fetch)
	b.awaitStart(t, 0)
	st := q.State()
	assert.Equal(t, "popular-products:5", q.Key())
	assert.False(t, st.HasData)
	assert.Empty(t, st.Data)
	assert.True(t, st.IsLoading)
	assert.Equal(t, 0, cache.Subscribers("popular-products:3"))

	b.release(0, "five", nil)
	st, err = q.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "five", st.Data)

	old, ok := cache.Snapshot("popular-products:3")
	require.True(t, ok)
	assert.Equal(t, "three", old.Data, "previous key stays cached")
}

func TestSwitchToCachedKeyReusesEntry(t *testing.T) {
	cache := New(Options{})
	defer cache.Close()
	calls := 0
	fetch := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}
	q1 := Use(cache, "a", fetch)
	_, err := q1.Wait(waitCtx(t))
	require.NoError(t, err)

	q2 := Use(cache, "b", fetch)
	_, err = q2.Wait(waitCtx(t))
	require.NoError(t, err)

	q2.Switch("a", fetch)
	st := q2.State()
	assert.Equal(t, 1, st.Data)
	assert.False(t, st.IsLoading)
	assert.Equal(t, 2, calls)
}

func TestCacheRefetchAndInvalidateUnknownKey(t *testing.T) {
	cache := New(Options{})
	defer cache.Close()
	_, err := cache.Refetch(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	assert.False(t, cache.Invalidate("missing"))
	_, ok := cache.Snapshot("missing")
	assert.False(t, ok)
}

func TestCacheRefetchUsesRegisteredFetcher(t *testing.T) {
	cache := New(Options{})
	defer cache.Close()
	var calls atomic.Int32
	q := Use(cache, "seasonal-forecast", func(context.Context) (int32, error) {
		return calls.Add(1), nil
	})
	_, err := q.Wait(waitCtx(t))
	require.NoError(t, err)
	q.Close()

	st, err := cache.Refetch(waitCtx(t), "seasonal-forecast")
	require.NoError(t, err)
	assert.Equal(t, int32(2), st.Data)
	assert.Equal(t, []string{"seasonal-forecast"}, cache.Keys())
}

func TestStaleTimeRefetchesOnSubscribe(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	cache := New(Options{StaleTime: time.Minute, Now: clock})
	defer cache.Close()

	var calls atomic.Int32
	fetch := func(context.Context) (int32, error) { return calls.Add(1), nil }

	q := Use(cache, "k", fetch)
	_, err := q.Wait(waitCtx(t))
	require.NoError(t, err)

	fresh := Use(cache, "k", fetch)
	st, err := fresh.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, int32(1), st.Data)

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	stale := Use(cache, "k", fetch)
	st, err = stale.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, int32(2), st.Data)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchPanicBecomesError(t *testing.T) {
	cache := New(Options{})
	defer cache.Close()
	q := Use(cache, "k", func(context.Context) (string, error) {
		panic("exploded")
	})
	st, err := q.Wait(waitCtx(t))
	require.NoError(t, err)
	require.Error(t, st.Err)
	assert.True(t, pkgerrors.HasCode(st.Err, pkgerrors.CodeInternal))
}

func TestFetchTimeoutCancelsFetch(t *testing.T) {
	cache := New(Options{FetchTimeout: 20 * time.Millisecond})
	defer cache.Close()
	q := Use(cache, "k", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	st, err := q.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.ErrorIs(t, st.Err, context.DeadlineExceeded)
}

func TestWaitHonorsCallerContext(t *testing.T) {
	cache := New(Options{})
	defer cache.Close()
	s := newScripted(1)
	q := Use(cache, "k", s.fetch)
	s.awaitStart(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	st, err := q.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, st.IsLoading)
	s.release(0, "late", nil)
}

func TestCloseIsIdempotent(t *testing.T) {
	cache := New(Options{})
	defer cache.Close()
	q := Use(cache, "k", func(context.Context) (int, error) { return 1, nil })
	q.Close()
	q.Close()
	assert.Equal(t, 0, cache.Subscribers("k"))
	q.Switch("other", nil)
	assert.Equal(t, "k", q.Key())
}

func TestIdleEntriesEvictedLeastRecentlyUsedFirst(t *testing.T) {
	cache := New(Options{
		Retain:  func(key string) bool { return key == "keep" },
		MaxIdle: 1,
	})
	defer cache.Close()
	fetch := func(context.Context) (string, error) { return "v", nil }

	for _, key := range []string{"keep", "a", "b", "c"} {
		q := Use(cache, key, fetch)
		_, err := q.Wait(waitCtx(t))
		require.NoError(t, err)
		q.Close()
	}
	assert.Equal(t, []string{"c", "keep"}, cache.Keys())

	// a reader keeps an entry out of the idle set
	held := Use(cache, "c", fetch)
	q := Use(cache, "d", fetch)
	_, err := q.Wait(waitCtx(t))
	require.NoError(t, err)
	q.Close()
	assert.Equal(t, []string{"c", "d", "keep"}, cache.Keys())

	held.Close()
	assert.Equal(t, []string{"d", "keep"}, cache.Keys())
}

func TestInFlightEntryEvictedAfterSettle(t *testing.T) {
	rec := newRecorder()
	cache := New(Options{Metrics: rec, Retain: func(string) bool { return false }})
	defer cache.Close()
	s := newScripted(1)

	q := Use(cache, "products?search=a", s.fetch)
	s.awaitStart(t, 0)
	q.Close()
	assert.Equal(t, []string{"products?search=a"}, cache.Keys(), "fetch still in flight")

	s.release(0, "v", nil)
	require.Eventually(t, func() bool { return len(cache.Keys()) == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, rec.discards(), "the settled result is applied before eviction")
}

func TestRecreatedEntryIgnoresSupersededCall(t *testing.T) {
	rec := newRecorder()
	cache := New(Options{Metrics: rec, Retain: func(string) bool { return false }})
	defer cache.Close()
	s := newScripted(3)

	q := Use(cache, "k", s.fetch)
	s.awaitStart(t, 0)
	require.True(t, cache.Invalidate("k"))
	s.awaitStart(t, 1)
	s.release(1, "second", nil)
	_, err := q.Wait(waitCtx(t))
	require.NoError(t, err)
	q.Close()
	require.Empty(t, cache.Keys())

	again := Use(cache, "k", s.fetch)
	defer again.Close()
	s.awaitStart(t, 2)
	assert.Equal(t, uint64(1), again.State().Generation)

	s.release(0, "first", nil)
	require.Eventually(t, func() bool { return rec.discards() == 1 }, 2*time.Second, 5*time.Millisecond)
	st := again.State()
	assert.True(t, st.IsLoading)
	assert.False(t, st.HasData, "a call from the evicted entry must not land")

	s.release(2, "third", nil)
	st, err = again.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "third", st.Data)
}

func TestNilRetainKeepsEveryEntry(t *testing.T) {
	cache := New(Options{})
	defer cache.Close()
	for _, key := range []string{"a", "b"} {
		q := Use(cache, key, func(context.Context) (int, error) { return 1, nil })
		_, err := q.Wait(waitCtx(t))
		require.NoError(t, err)
		q.Close()
	}
	assert.Equal(t, []string{"a", "b"}, cache.Keys())
	assert.Equal(t, 0, cache.Subscribers("a"))
}
