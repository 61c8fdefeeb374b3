package query

import (
	"context"
	"time"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Fetcher produces the value cached under a key. The context is owned by the
// cache, not by any subscriber.
type Fetcher[T any] func(ctx context.Context) (T, error)

// State is a point-in-time view of a cache entry. Data keeps the last
// successful value while a refetch is loading or after it failed; HasData
// tells an unset value apart from a zero one.
type State[T any] struct {
	Data       T
	HasData    bool
	IsLoading  bool
	Err        error
	Status     Status
	Generation uint64
	UpdatedAt  time.Time
}

// Recorder receives fetch lifecycle events. Implemented by metrics.QueryMetrics.
type Recorder interface {
	ObserveFetch(key, result string)
	IncDeduplicated(key string)
	IncDiscarded(key string)
}

func typed[T any](s State[any]) State[T] {
	out := State[T]{
		HasData:    s.HasData,
		IsLoading:  s.IsLoading,
		Err:        s.Err,
		Status:     s.Status,
		Generation: s.Generation,
		UpdatedAt:  s.UpdatedAt,
	}
	if s.HasData {
		if v, ok := s.Data.(T); ok {
			out.Data = v
		}
	}
	return out
}
