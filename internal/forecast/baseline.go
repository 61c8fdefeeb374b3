package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Snapshot is a recorded set of product metric values used to compute growth.
type Snapshot struct {
	TakenAt time.Time     `json:"takenAt"`
	Values  map[int]int64 `json:"values"`
	Metric  RankingMetric `json:"metric"`
}

// BaselineStore keeps the latest popularity snapshot per ranking metric.
// Load returns a nil snapshot when none has been recorded.
type BaselineStore interface {
	Load(ctx context.Context, metric RankingMetric) (*Snapshot, error)
	Save(ctx context.Context, snapshot Snapshot) error
}

// MemoryBaselineStore keeps snapshots for the life of the process.
type MemoryBaselineStore struct {
	mu        sync.RWMutex
	snapshots map[RankingMetric]Snapshot
}

func NewMemoryBaselineStore() *MemoryBaselineStore {
	return &MemoryBaselineStore{snapshots: map[RankingMetric]Snapshot{}}
}

func (s *MemoryBaselineStore) Load(_ context.Context, metric RankingMetric) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[metric]
	if !ok {
		return nil, nil
	}
	values := make(map[int]int64, len(snap.Values))
	for id, v := range snap.Values {
		values[id] = v
	}
	snap.Values = values
	return &snap, nil
}

func (s *MemoryBaselineStore) Save(_ context.Context, snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.Metric] = snapshot
	return nil
}

// kvStore is the subset of the redis client used for baselines.
type kvStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	BaselineKey(metric string) string
}

// RedisBaselineStore shares snapshots across instances with a TTL so stale
// baselines expire on their own.
type RedisBaselineStore struct {
	client   kvStore
	ttl      time.Duration
	notFound func(error) bool
}

// NewRedisBaselineStore wraps a redis client. notFound reports the client's
// missing-key error.
func NewRedisBaselineStore(client kvStore, ttl time.Duration, notFound func(error) bool) *RedisBaselineStore {
	return &RedisBaselineStore{client: client, ttl: ttl, notFound: notFound}
}

func (s *RedisBaselineStore) Load(ctx context.Context, metric RankingMetric) (*Snapshot, error) {
	raw, err := s.client.Get(ctx, s.client.BaselineKey(string(metric)))
	if err != nil {
		if s.notFound != nil && s.notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load baseline: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("decode baseline: %w", err)
	}
	if snap.Metric == "" {
		snap.Metric = metric
	}
	return &snap, nil
}

func (s *RedisBaselineStore) Save(ctx context.Context, snapshot Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode baseline: %w", err)
	}
	if err := s.client.Set(ctx, s.client.BaselineKey(string(snapshot.Metric)), string(payload), s.ttl); err != nil {
		return fmt.Errorf("save baseline: %w", err)
	}
	return nil
}
