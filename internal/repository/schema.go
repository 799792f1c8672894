package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// SchemaVersion 当前 schema 版本
const SchemaVersion = 2

// column 待补齐的列
type column struct {
	Table string
	Name  string
	Type  string
}

// 旧版本数据库缺少的列，按顺序补齐
var addedColumns = []column{
	{"position", "level_fuel", "INT"},
	{"position", "altitude", "INT"},
	{"battery", "price", "DOUBLE PRECISION"},
	{"battery", "charging_mode", "VARCHAR(32)"},
	{"battery", "mileage", "DOUBLE PRECISION"},
	{"battery_curve", "rate", "INT"},
	{"battery_curve", "autonomy", "INT"},
}

// MigrateResult 迁移结果
type MigrateResult struct {
	Fresh        bool // 新建的数据库
	ColumnsAdded int
}

// migrate 建表并补齐新增列
func (db *DB) migrate(ctx context.Context) (MigrateResult, error) {
	var result MigrateResult

	var exists bool
	if err := db.Pool.QueryRow(ctx, tableExistsSQL, "position").Scan(&exists); err != nil {
		return result, fmt.Errorf("check position table: %w", err)
	}
	result.Fresh = !exists

	// position 建表失败按“已存在”处理
	if _, err := db.Pool.Exec(ctx, createPositionSQL); err != nil {
		db.logger.Warn("Create position table failed, assuming it exists", zap.Error(err))
		result.Fresh = false
	}

	for _, stmt := range []string{createBatterySQL, createBatteryCurveSQL, createBatterySohSQL, createSchemaVersionSQL} {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return result, fmt.Errorf("execute migration: %w", err)
		}
	}

	existing := make(map[string]map[string]bool)
	for _, c := range addedColumns {
		cols, ok := existing[c.Table]
		if !ok {
			var err error
			cols, err = db.columns(ctx, c.Table)
			if err != nil {
				return result, err
			}
			existing[c.Table] = cols
		}
		if cols[c.Name] {
			continue
		}

		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.Table, c.Name, c.Type)
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return result, fmt.Errorf("add column %s.%s: %w", c.Table, c.Name, err)
		}
		cols[c.Name] = true
		result.ColumnsAdded++
		db.logger.Info("Added column", zap.String("table", c.Table), zap.String("column", c.Name))
	}

	if _, err := db.Pool.Exec(ctx, recordSchemaVersionSQL, SchemaVersion); err != nil {
		return result, fmt.Errorf("record schema version: %w", err)
	}

	return result, nil
}

// columns 查询表的现有列
func (db *DB) columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := db.Pool.Query(ctx, tableColumnsSQL, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

const tableExistsSQL = `
SELECT EXISTS (
    SELECT 1 FROM information_schema.tables
    WHERE table_schema = current_schema() AND table_name = $1
)`

const tableColumnsSQL = `
SELECT column_name FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1`

// position 表以 timestamp 为主键，默认只跟踪一辆车
const createPositionSQL = `
CREATE TABLE IF NOT EXISTS position (
    timestamp TIMESTAMP WITH TIME ZONE PRIMARY KEY,
    vin VARCHAR(32),
    longitude DOUBLE PRECISION,
    latitude DOUBLE PRECISION,
    mileage DOUBLE PRECISION,
    level INT,
    level_fuel INT,
    moving BOOLEAN,
    temperature DOUBLE PRECISION,
    altitude INT
);
CREATE INDEX IF NOT EXISTS idx_position_vin_timestamp ON position(vin, timestamp);
`

const createBatterySQL = `
CREATE TABLE IF NOT EXISTS battery (
    start_at TIMESTAMP WITH TIME ZONE PRIMARY KEY,
    stop_at TIMESTAMP WITH TIME ZONE,
    vin VARCHAR(32),
    start_level INT,
    end_level INT,
    co2 INT,
    kw DOUBLE PRECISION,
    price DOUBLE PRECISION,
    charging_mode VARCHAR(32),
    mileage DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS idx_battery_vin ON battery(vin);
`

const createBatteryCurveSQL = `
CREATE TABLE IF NOT EXISTS battery_curve (
    start_at TIMESTAMP WITH TIME ZONE,
    vin VARCHAR(32),
    date TIMESTAMP WITH TIME ZONE,
    level INT,
    rate INT,
    autonomy INT,
    UNIQUE (start_at, vin, level)
);
`

const createBatterySohSQL = `
CREATE TABLE IF NOT EXISTS battery_soh (
    date TIMESTAMP WITH TIME ZONE,
    vin VARCHAR(32),
    level DOUBLE PRECISION,
    UNIQUE (vin, level)
);
`

const createSchemaVersionSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INT PRIMARY KEY,
    applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
`

const recordSchemaVersionSQL = `INSERT INTO schema_version (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`

// 电量几乎没有变化的充电记录视为噪声（插枪抖动、传感器异常）
const purgeNoiseSessionsSQL = `DELETE FROM battery WHERE end_level IS NOT NULL AND end_level <= start_level + 1`
