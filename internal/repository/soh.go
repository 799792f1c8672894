package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/carledger/internal/models"
)

// SohRepository 电池健康度仓库
type SohRepository struct {
	db *DB
}

// NewSohRepository 创建电池健康度仓库
func NewSohRepository(db *DB) *SohRepository {
	return &SohRepository{db: db}
}

// Record 追加一条健康度采样
func (r *SohRepository) Record(ctx context.Context, vin string, date time.Time, level float64) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO battery_soh (date, vin, level) VALUES ($1, $2, $3) ON CONFLICT (vin, level) DO NOTHING`,
		date, vin, level)
	if err != nil {
		return fmt.Errorf("insert battery soh: %w", err)
	}
	return nil
}

// SeriesFor 获取车辆的健康度序列，按日期升序
func (r *SohRepository) SeriesFor(ctx context.Context, vin string) ([]models.SohSample, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT date, vin, level FROM battery_soh WHERE vin = $1 ORDER BY date`, vin)
	if err != nil {
		return nil, fmt.Errorf("list battery soh: %w", err)
	}
	defer rows.Close()

	var series []models.SohSample
	for rows.Next() {
		var s models.SohSample
		if err := rows.Scan(&s.SampledAt, &s.VIN, &s.Level); err != nil {
			return nil, fmt.Errorf("scan battery soh: %w", err)
		}
		series = append(series, s)
	}
	return series, rows.Err()
}

// LatestFor 获取车辆最新的健康度，没有采样时返回 nil
func (r *SohRepository) LatestFor(ctx context.Context, vin string) (*float64, error) {
	var level float64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT level FROM battery_soh WHERE vin = $1 ORDER BY date DESC LIMIT 1`, vin,
	).Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last battery soh: %w", err)
	}
	return &level, nil
}
