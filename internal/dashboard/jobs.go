package dashboard

import (
	"context"

	"github.com/angelmondragon/stockpulse-backend/internal/query"
)

// RefreshJob revalidates one dataset. It satisfies refresh.Job.
type RefreshJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j RefreshJob) Name() string {
	return j.name
}

func (j RefreshJob) Run(ctx context.Context) error {
	return j.run(ctx)
}

// RefreshJobs returns one job per primary dataset: the seasonal forecast and
// the popular products at popularLimit.
func (s *Service) RefreshJobs(popularLimit int) []RefreshJob {
	return []RefreshJob{
		{name: "refresh:" + KeySeasonalForecast, run: func(ctx context.Context) error {
			return revalidate(ctx, s, KeySeasonalForecast, s.seasonalFetcher())
		}},
		{name: "refresh:" + PopularKey(popularLimit), run: func(ctx context.Context) error {
			return revalidate(ctx, s, PopularKey(popularLimit), s.popularFetcher(popularLimit))
		}},
	}
}

// revalidate refetches key, registering it first if nobody has read it yet.
// The first subscription's fetch is joined rather than repeated.
func revalidate[T any](ctx context.Context, s *Service, key string, fetch query.Fetcher[T]) error {
	q := query.Use(s.cache, key, fetch)
	defer q.Close()
	st, err := q.Refetch(ctx)
	if err != nil {
		return err
	}
	return st.Err
}
