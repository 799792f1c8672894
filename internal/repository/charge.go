package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/langchou/carledger/internal/models"
)

// ChargeRepository 充电数据仓库
type ChargeRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewChargeRepository 创建充电仓库
func NewChargeRepository(db *DB, logger *zap.Logger) *ChargeRepository {
	return &ChargeRepository{db: db, logger: logger}
}

const sessionColumns = `start_at, stop_at, vin, start_level, end_level, co2, kw, price, charging_mode, mileage`

// StartOrContinue 记录充电中的采样
// 没有未结束的充电记录时新建一条，然后写入充电曲线点；返回当前充电记录及是否新建
func (r *ChargeRepository) StartOrContinue(ctx context.Context, ev *models.ChargeEvent) (*models.ChargingSession, bool, error) {
	session, err := r.GetOpenOrLast(ctx, ev.VIN)
	if err != nil {
		return nil, false, err
	}

	started := false
	if session == nil || session.Ended() {
		session = &models.ChargingSession{
			StartAt:      ev.At,
			VIN:          ev.VIN,
			StartLevel:   ev.Level,
			ChargingMode: ev.Mode,
			Mileage:      ev.Mileage,
		}
		query := `
			INSERT INTO battery (start_at, vin, start_level, charging_mode, mileage)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (start_at) DO NOTHING
		`
		if _, err := r.db.Pool.Exec(ctx, query, session.StartAt, session.VIN, session.StartLevel, session.ChargingMode, session.Mileage); err != nil {
			return nil, false, fmt.Errorf("insert charging session: %w", err)
		}
		started = true
		r.logger.Info("Started charging session", zap.String("vin", ev.VIN), zap.Time("start_at", session.StartAt))
	}

	point := &models.BatteryCurvePoint{
		SessionStartAt: session.StartAt,
		VIN:            ev.VIN,
		SampledAt:      ev.At,
		Level:          ev.Level,
		RateKw:         ev.RateKw,
		AutonomyKm:     ev.AutonomyKm,
	}
	if err := r.AddCurvePoint(ctx, point); err != nil {
		return nil, started, err
	}
	return session, started, nil
}

// AddCurvePoint 写入充电曲线点，同一电量只保留第一条
func (r *ChargeRepository) AddCurvePoint(ctx context.Context, p *models.BatteryCurvePoint) error {
	query := `
		INSERT INTO battery_curve (start_at, vin, date, level, rate, autonomy)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (start_at, vin, level) DO NOTHING
	`
	if _, err := r.db.Pool.Exec(ctx, query, p.SessionStartAt, p.VIN, p.SampledAt, p.Level, p.RateKw, p.AutonomyKm); err != nil {
		return fmt.Errorf("insert battery curve: %w", err)
	}
	return nil
}

// Close 结束充电记录，stop_at、end_level、co2、kw、price 一次更新
func (r *ChargeRepository) Close(ctx context.Context, s *models.ChargingSession) (UpdateResult, error) {
	if s.StopAt == nil || !s.StopAt.After(s.StartAt) {
		return NotFound, ErrInvalidStop
	}

	query := `
		UPDATE battery SET
			stop_at = $1,
			end_level = $2,
			co2 = $3,
			kw = $4,
			price = $5
		WHERE start_at = $6 AND vin = $7
	`
	tag, err := r.db.Pool.Exec(ctx, query, s.StopAt, s.EndLevel, s.CO2, s.EnergyKwh, s.Price, s.StartAt, s.VIN)
	if err != nil {
		return NotFound, fmt.Errorf("close charging session: %w", err)
	}
	res := updateResult(tag)
	if res == NotFound {
		r.logger.Error("Can't find charging session to close", zap.String("vin", s.VIN), zap.Time("start_at", s.StartAt))
	}
	return res, nil
}

// SetPrice 保存充电费用
func (r *ChargeRepository) SetPrice(ctx context.Context, s *models.ChargingSession) (UpdateResult, error) {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE battery SET price = $1 WHERE start_at = $2 AND vin = $3`, s.Price, s.StartAt, s.VIN)
	if err != nil {
		return NotFound, fmt.Errorf("set charging price: %w", err)
	}
	res := updateResult(tag)
	if res == NotFound {
		r.logger.Error("Can't find charging session to price", zap.String("vin", s.VIN), zap.Time("start_at", s.StartAt))
	}
	return res, nil
}

// GetCurve 获取充电曲线，按采样时间升序
func (r *ChargeRepository) GetCurve(ctx context.Context, startAt, stopAt time.Time, vin string) ([]models.BatteryCurvePoint, error) {
	query := `
		SELECT start_at, vin, date, level, rate, autonomy
		FROM battery_curve
		WHERE start_at = $1 AND date <= $2 AND vin = $3
		ORDER BY date ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, startAt, stopAt, vin)
	if err != nil {
		return nil, fmt.Errorf("list battery curve: %w", err)
	}
	defer rows.Close()

	var curve []models.BatteryCurvePoint
	for rows.Next() {
		var p models.BatteryCurvePoint
		if err := rows.Scan(&p.SessionStartAt, &p.VIN, &p.SampledAt, &p.Level, &p.RateKw, &p.AutonomyKm); err != nil {
			return nil, fmt.Errorf("scan battery curve: %w", err)
		}
		curve = append(curve, p)
	}
	return curve, rows.Err()
}

// GetOpenOrLast 获取车辆最近一次充电记录（可能仍在充电），没有时返回 nil
func (r *ChargeRepository) GetOpenOrLast(ctx context.Context, vin string) (*models.ChargingSession, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM battery WHERE vin = $1 ORDER BY start_at DESC LIMIT 1`, vin)
	return optionalSession(scanSession(row))
}

// GetAt 获取指定开始时间的充电记录，没有时返回 nil
func (r *ChargeRepository) GetAt(ctx context.Context, vin string, startAt time.Time) (*models.ChargingSession, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM battery WHERE vin = $1 AND start_at = $2`, vin, startAt)
	return optionalSession(scanSession(row))
}

// List 获取所有充电记录，按开始时间升序
func (r *ChargeRepository) List(ctx context.Context) ([]*models.ChargingSession, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM battery ORDER BY start_at`)
}

// ListUnpriced 获取还没有费用的充电记录
func (r *ChargeRepository) ListUnpriced(ctx context.Context) ([]*models.ChargingSession, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM battery WHERE price IS NULL ORDER BY start_at`)
}

// PurgeNoise 删除电量几乎没有变化的充电记录
func (r *ChargeRepository) PurgeNoise(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, purgeNoiseSessionsSQL)
	if err != nil {
		return 0, fmt.Errorf("purge noise charging sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ChargeRepository) list(ctx context.Context, query string) ([]*models.ChargingSession, error) {
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list charging sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.ChargingSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func scanSession(row pgx.Row) (*models.ChargingSession, error) {
	s := &models.ChargingSession{}
	err := row.Scan(
		&s.StartAt,
		&s.StopAt,
		&s.VIN,
		&s.StartLevel,
		&s.EndLevel,
		&s.CO2,
		&s.EnergyKwh,
		&s.Price,
		&s.ChargingMode,
		&s.Mileage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan charging session: %w", err)
	}
	return s, nil
}

func optionalSession(s *models.ChargingSession, err error) (*models.ChargingSession, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get charging session: %w", err)
	}
	return s, nil
}
