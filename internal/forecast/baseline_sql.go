package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// baselineRecord is a row of popularity_baselines.
type baselineRecord struct {
	ID            uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Metric        string    `gorm:"column:metric;not null"`
	TakenAt       time.Time `gorm:"column:taken_at;not null"`
	ProductValues string    `gorm:"column:product_values;type:jsonb;not null"`
}

func (baselineRecord) TableName() string { return "popularity_baselines" }

func (r baselineRecord) snapshot() (Snapshot, error) {
	values := map[int]int64{}
	if err := json.Unmarshal([]byte(r.ProductValues), &values); err != nil {
		return Snapshot{}, fmt.Errorf("decode baseline %d: %w", r.ID, err)
	}
	return Snapshot{TakenAt: r.TakenAt.UTC(), Values: values, Metric: RankingMetric(r.Metric)}, nil
}

// txRunner is the database handle the store needs. Implemented by *db.Client.
type txRunner interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SQLBaselineStore keeps every recorded snapshot so growth can be audited
// over time. Load returns the most recent one. Keep caps the rows retained per
// metric; zero keeps everything.
type SQLBaselineStore struct {
	db   txRunner
	keep int
}

func NewSQLBaselineStore(db txRunner, keep int) *SQLBaselineStore {
	return &SQLBaselineStore{db: db, keep: keep}
}

func (s *SQLBaselineStore) Load(ctx context.Context, metric RankingMetric) (*Snapshot, error) {
	var rec baselineRecord
	err := s.db.DB().WithContext(ctx).
		Where("metric = ?", string(metric)).
		Order("taken_at DESC").Order("id DESC").
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load baseline: %w", err)
	}
	snap, err := rec.snapshot()
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *SQLBaselineStore) Save(ctx context.Context, snapshot Snapshot) error {
	payload, err := json.Marshal(snapshot.Values)
	if err != nil {
		return fmt.Errorf("encode baseline: %w", err)
	}
	rec := baselineRecord{
		Metric:        string(snapshot.Metric),
		TakenAt:       snapshot.TakenAt.UTC(),
		ProductValues: string(payload),
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("save baseline: %w", err)
		}
		if s.keep <= 0 {
			return nil
		}
		err := tx.Exec(`DELETE FROM popularity_baselines
			WHERE metric = ? AND id NOT IN (
				SELECT id FROM popularity_baselines WHERE metric = ?
				ORDER BY taken_at DESC, id DESC LIMIT ?
			)`, rec.Metric, rec.Metric, s.keep).Error
		if err != nil {
			return fmt.Errorf("prune baselines: %w", err)
		}
		return nil
	})
}

// History returns up to limit snapshots for metric, newest first.
func (s *SQLBaselineStore) History(ctx context.Context, metric RankingMetric, limit int) ([]Snapshot, error) {
	q := s.db.DB().WithContext(ctx).
		Where("metric = ?", string(metric)).
		Order("taken_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []baselineRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list baselines: %w", err)
	}
	out := make([]Snapshot, 0, len(recs))
	for _, rec := range recs {
		snap, err := rec.snapshot()
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}
