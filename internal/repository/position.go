package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/langchou/carledger/internal/models"
)

// DefaultAltitudeBatchSize 海拔接口单次最多查询的坐标数
const DefaultAltitudeBatchSize = 100

// TemperatureLookup 根据坐标查询环境温度，失败返回 nil
type TemperatureLookup interface {
	Temperature(ctx context.Context, lat, lon float64) *float64
}

// ElevationLookup 批量查询海拔，结果顺序与请求一致
type ElevationLookup interface {
	Lookup(ctx context.Context, coords []models.Coordinate) ([]models.Elevation, error)
}

// PositionRepository 位置数据仓库
type PositionRepository struct {
	db        *DB
	logger    *zap.Logger
	weather   TemperatureLookup
	elevation ElevationLookup

	batchSize int
	rateLimit time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

// PositionOption 位置仓库配置项
type PositionOption func(*PositionRepository)

// WithWeather 设置温度查询
func WithWeather(w TemperatureLookup) PositionOption {
	return func(r *PositionRepository) {
		r.weather = w
	}
}

// WithElevation 设置海拔查询及限流参数
func WithElevation(e ElevationLookup, batchSize int, rateLimit time.Duration) PositionOption {
	return func(r *PositionRepository) {
		r.elevation = e
		if batchSize > 0 {
			r.batchSize = batchSize
		}
		r.rateLimit = rateLimit
	}
}

// NewPositionRepository 创建位置仓库
func NewPositionRepository(db *DB, logger *zap.Logger, opts ...PositionOption) *PositionRepository {
	r := &PositionRepository{
		db:        db,
		logger:    logger,
		batchSize: DefaultAltitudeBatchSize,
		rateLimit: time.Second,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

const positionColumns = `timestamp, vin, longitude, latitude, mileage, level, level_fuel, altitude, moving, temperature`

// Validate 检查车辆接口返回的明显错误数据
func Validate(pos *models.Position) error {
	if pos.Mileage == 0 {
		return ErrZeroMileage
	}
	return nil
}

// Record 保存位置记录，返回是否为新插入
func (r *PositionRepository) Record(ctx context.Context, pos *models.Position) (bool, error) {
	if err := Validate(pos); err != nil {
		r.logger.Error("Vehicle API returned zero mileage, position rejected",
			zap.String("vin", pos.VIN),
			zap.Time("timestamp", pos.Timestamp))
		return false, nil
	}

	var exists bool
	err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM position WHERE timestamp = $1)`, pos.Timestamp).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check position: %w", err)
	}
	if exists {
		r.logger.Debug("Position already saved", zap.String("vin", pos.VIN), zap.Time("timestamp", pos.Timestamp))
		return false, nil
	}

	if pos.Temperature == nil && r.weather != nil {
		if c, ok := pos.Coordinate(); ok {
			pos.Temperature = r.weather.Temperature(ctx, c.Latitude, c.Longitude)
		}
	}

	// 熄火时接口不返回油量，用最近一次真实值代替
	if pos.FuelLevel != nil && *pos.FuelLevel == 0 {
		last, err := r.lastFuelLevel(ctx, pos.VIN, pos.Timestamp)
		if err != nil {
			return false, err
		}
		pos.FuelLevel = last
		if last != nil {
			r.logger.Info("Fuel level fixed with last real value", zap.String("vin", pos.VIN), zap.Int("level_fuel", *last))
		} else {
			r.logger.Info("Fuel level unfixed", zap.String("vin", pos.VIN))
		}
	}

	query := `
		INSERT INTO position (timestamp, vin, longitude, latitude, mileage, level, level_fuel, altitude, moving, temperature)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.Pool.Exec(ctx, query,
		pos.Timestamp,
		pos.VIN,
		pos.Longitude,
		pos.Latitude,
		pos.Mileage,
		pos.Level,
		pos.FuelLevel,
		pos.Altitude,
		pos.Moving,
		pos.Temperature,
	)
	if err != nil {
		return false, fmt.Errorf("insert position: %w", err)
	}
	r.logger.Info("New position recorded", zap.String("vin", pos.VIN), zap.Time("timestamp", pos.Timestamp))

	if _, err := r.DeduplicateTail(ctx, pos.VIN); err != nil {
		r.logger.Warn("Failed to deduplicate positions", zap.String("vin", pos.VIN), zap.Error(err))
	}
	return true, nil
}

// lastFuelLevel 指定时间之前最近一次真实油量
func (r *PositionRepository) lastFuelLevel(ctx context.Context, vin string, before time.Time) (*int, error) {
	var level int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT level_fuel FROM position WHERE level_fuel > 0 AND vin = $1 AND timestamp < $2 ORDER BY timestamp DESC LIMIT 1`,
		vin, before,
	).Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last fuel level: %w", err)
	}
	return &level, nil
}

// DeduplicateTail 最近三条记录的里程和电量都相同时删除中间一条
func (r *PositionRepository) DeduplicateTail(ctx context.Context, vin string) (bool, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT timestamp, mileage, level FROM position WHERE vin = $1 ORDER BY timestamp DESC LIMIT 3`, vin)
	if err != nil {
		return false, fmt.Errorf("list last positions: %w", err)
	}

	type tail struct {
		timestamp time.Time
		mileage   float64
		level     int
	}
	var last []tail
	for rows.Next() {
		var t tail
		if err := rows.Scan(&t.timestamp, &t.mileage, &t.level); err != nil {
			rows.Close()
			return false, fmt.Errorf("scan position: %w", err)
		}
		last = append(last, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("list last positions: %w", err)
	}

	if len(last) != 3 {
		return false, nil
	}
	if last[0].mileage != last[1].mileage || last[1].mileage != last[2].mileage ||
		last[0].level != last[1].level || last[1].level != last[2].level {
		return false, nil
	}

	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM position WHERE timestamp = $1`, last[1].timestamp); err != nil {
		return false, fmt.Errorf("delete duplicate position: %w", err)
	}
	r.logger.Debug("Deleted duplicate position", zap.String("vin", vin), zap.Time("timestamp", last[1].timestamp))
	return true, nil
}

// BackfillAltitude 为缺少海拔的记录批量补齐海拔，返回更新的行数
// 单次失败即结束本轮，下次调用时继续
func (r *PositionRepository) BackfillAltitude(ctx context.Context) (int64, error) {
	if r.elevation == nil {
		return 0, nil
	}

	var pending int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM position WHERE altitude IS NULL AND longitude IS NOT NULL AND latitude IS NOT NULL`,
	).Scan(&pending)
	if err != nil {
		return 0, fmt.Errorf("count positions without altitude: %w", err)
	}
	if pending > int64(r.batchSize) {
		r.logger.Warn("Many positions without altitude, backfill can take some time", zap.Int64("count", pending))
	}

	var updated int64
	// 接口没有数据的坐标海拔一直为空，本轮不再查询
	var noData []models.Coordinate
	for {
		coords, err := r.missingAltitude(ctx, noData)
		if err != nil {
			return updated, err
		}
		if len(coords) == 0 {
			break
		}

		results, err := r.elevation.Lookup(ctx, coords)
		if err != nil {
			r.logger.Error("Can't get altitude from API", zap.Error(err))
			return updated, fmt.Errorf("lookup elevation: %w", err)
		}
		if len(results) != len(coords) {
			return updated, fmt.Errorf("lookup elevation: got %d results for %d locations", len(results), len(coords))
		}
		for i, res := range results {
			if res.Meters == nil {
				noData = append(noData, coords[i])
			}
		}

		n, err := r.applyAltitude(ctx, coords, results)
		updated += n
		if err != nil {
			return updated, err
		}
		r.logger.Debug("Added altitude to positions", zap.Int("locations", len(coords)), zap.Int64("rows", n))

		if len(coords) < r.batchSize {
			break
		}
		if err := r.sleep(ctx, r.rateLimit); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

func (r *PositionRepository) missingAltitude(ctx context.Context, exclude []models.Coordinate) ([]models.Coordinate, error) {
	lats := make([]float64, 0, len(exclude))
	lons := make([]float64, 0, len(exclude))
	for _, c := range exclude {
		lats = append(lats, c.Latitude)
		lons = append(lons, c.Longitude)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT DISTINCT latitude, longitude FROM position
		WHERE altitude IS NULL AND longitude IS NOT NULL AND latitude IS NOT NULL
		AND (latitude, longitude) NOT IN (SELECT * FROM unnest($2::float8[], $3::float8[]))
		LIMIT $1`, r.batchSize, lats, lons)
	if err != nil {
		return nil, fmt.Errorf("list positions without altitude: %w", err)
	}
	defer rows.Close()

	var coords []models.Coordinate
	for rows.Next() {
		var c models.Coordinate
		if err := rows.Scan(&c.Latitude, &c.Longitude); err != nil {
			return nil, fmt.Errorf("scan coordinate: %w", err)
		}
		coords = append(coords, c)
	}
	return coords, rows.Err()
}

func (r *PositionRepository) applyAltitude(ctx context.Context, coords []models.Coordinate, results []models.Elevation) (int64, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin altitude update: %w", err)
	}

	var n int64
	for i, res := range results {
		if res.Meters == nil {
			continue
		}
		tag, err := tx.Exec(ctx, `UPDATE position SET altitude = $1 WHERE latitude = $2 AND longitude = $3`,
			int(*res.Meters), coords[i].Latitude, coords[i].Longitude)
		if err != nil {
			_ = tx.Rollback(ctx)
			return 0, fmt.Errorf("update altitude: %w", err)
		}
		n += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit altitude update: %w", err)
	}
	return n, nil
}

// ListByVIN 按时间顺序获取车辆的所有位置
func (r *PositionRepository) ListByVIN(ctx context.Context, vin string) ([]*models.Position, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+positionColumns+` FROM position WHERE vin = $1 ORDER BY timestamp`, vin)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// LastTemperature 获取车辆最近一次记录的环境温度
func (r *PositionRepository) LastTemperature(ctx context.Context, vin string) (*float64, error) {
	var temp *float64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT temperature FROM position WHERE vin = $1 ORDER BY timestamp DESC LIMIT 1`, vin,
	).Scan(&temp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last temperature: %w", err)
	}
	return temp, nil
}

// FeatureCollection 导出所有位置为 GeoJSON，缺少坐标的记录跳过
func (r *PositionRepository) FeatureCollection(ctx context.Context) (*geojson.FeatureCollection, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT timestamp, vin, longitude, latitude, mileage, level, level_fuel FROM position ORDER BY timestamp`)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	fc := geojson.NewFeatureCollection()
	for rows.Next() {
		var pos models.Position
		if err := rows.Scan(&pos.Timestamp, &pos.VIN, &pos.Longitude, &pos.Latitude, &pos.Mileage, &pos.Level, &pos.FuelLevel); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		c, ok := pos.Coordinate()
		if !ok {
			continue
		}

		f := geojson.NewFeature(orb.Point{c.Longitude, c.Latitude})
		f.Properties["vin"] = pos.VIN
		f.Properties["date"] = pos.Timestamp.UTC().Format("01/02/06 15:04:05")
		f.Properties["mileage"] = pos.Mileage
		f.Properties["level"] = pos.Level
		f.Properties["level_fuel"] = pos.FuelLevel
		fc.Append(f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	return fc, nil
}

func scanPosition(row pgx.Row) (*models.Position, error) {
	pos := &models.Position{}
	var moving *bool
	err := row.Scan(
		&pos.Timestamp,
		&pos.VIN,
		&pos.Longitude,
		&pos.Latitude,
		&pos.Mileage,
		&pos.Level,
		&pos.FuelLevel,
		&pos.Altitude,
		&moving,
		&pos.Temperature,
	)
	if err != nil {
		return nil, fmt.Errorf("scan position: %w", err)
	}
	pos.Moving = moving != nil && *moving
	return pos, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
