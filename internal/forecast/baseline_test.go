package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMissing = errors.New("missing")

type fakeKV struct {
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return "", errMissing
	}
	return v, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeKV) BaselineKey(metric string) string {
	return "sp:baseline:" + metric
}

func isMissing(err error) bool { return errors.Is(err, errMissing) }

func TestMemoryBaselineStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryBaselineStore()

	snap, err := store.Load(ctx, RankBySales)
	require.NoError(t, err)
	assert.Nil(t, snap)

	taken := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, Snapshot{TakenAt: taken, Values: map[int]int64{1: 10}, Metric: RankBySales}))

	snap, err = store.Load(ctx, RankBySales)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, taken, snap.TakenAt)
	assert.Equal(t, int64(10), snap.Values[1])

	snap.Values[1] = 99
	again, _ := store.Load(ctx, RankBySales)
	assert.Equal(t, int64(10), again.Values[1])

	other, err := store.Load(ctx, RankByStock)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestRedisBaselineStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	store := NewRedisBaselineStore(kv, 48*time.Hour, isMissing)

	snap, err := store.Load(ctx, RankByStock)
	require.NoError(t, err)
	assert.Nil(t, snap)

	taken := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, Snapshot{TakenAt: taken, Values: map[int]int64{7: 142}, Metric: RankByStock}))
	assert.Equal(t, 48*time.Hour, kv.ttls["sp:baseline:stock"])
	assert.Contains(t, kv.data["sp:baseline:stock"], `"7":142`)

	snap, err = store.Load(ctx, RankByStock)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.True(t, taken.Equal(snap.TakenAt))
	assert.Equal(t, map[int]int64{7: 142}, snap.Values)
	assert.Equal(t, RankByStock, snap.Metric)
}

func TestRedisBaselineStoreErrors(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	kv.getErr = errors.New("connection reset")
	store := NewRedisBaselineStore(kv, time.Hour, isMissing)
	_, err := store.Load(ctx, RankBySales)
	assert.ErrorContains(t, err, "connection reset")

	kv.getErr = nil
	kv.data["sp:baseline:sales"] = "not json"
	_, err = store.Load(ctx, RankBySales)
	assert.ErrorContains(t, err, "decode baseline")
}
