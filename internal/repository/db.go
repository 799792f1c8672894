package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var (
	// ErrZeroMileage 里程为 0（车辆接口已知缺陷）
	ErrZeroMileage = errors.New("zero mileage")
	// ErrInvalidStop 结束时间不晚于开始时间
	ErrInvalidStop = errors.New("stop_at must be after start_at")
)

// Pool 数据库操作接口，*pgxpool.Pool 和 pgxmock 都满足
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// UpdateResult 更新操作的结果
type UpdateResult int

const (
	NotFound UpdateResult = iota
	Updated
)

func (r UpdateResult) String() string {
	if r == Updated {
		return "updated"
	}
	return "not_found"
}

func updateResult(tag pgconn.CommandTag) UpdateResult {
	if tag.RowsAffected() == 0 {
		return NotFound
	}
	return Updated
}

// InitHook 初始化完成后执行的任务（如海拔回填）
type InitHook func(ctx context.Context) error

// DB 数据库句柄，进程启动时创建一次并显式传给各个仓库
type DB struct {
	Pool   Pool
	logger *zap.Logger
	backup Backuper

	mu          sync.Mutex
	initialized bool
	hooks       []InitHook
}

// Option DB 配置项
type Option func(*DB)

// WithBackup 设置迁移前备份实现
func WithBackup(b Backuper) Option {
	return func(db *DB) {
		db.backup = b
	}
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string, logger *zap.Logger, opts ...Option) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// 单写入者
	config.MaxConns = 4
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewWithPool(pool, logger, opts...), nil
}

// NewWithPool 使用已有连接池创建句柄
func NewWithPool(pool Pool, logger *zap.Logger, opts ...Option) *DB {
	db := &DB{
		Pool:   pool,
		logger: logger,
		backup: LogBackup{Logger: logger},
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// OnInit 注册初始化完成后执行的任务
func (db *DB) OnInit(hook InitHook) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.hooks = append(db.hooks, hook)
}

// Initialized 是否已完成初始化
func (db *DB) Initialized() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.initialized
}

// Init 初始化数据库，可重复调用
// 建表、补齐新增列、必要时备份、清理噪声充电记录，然后执行注册的回填任务
func (db *DB) Init(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.initialized {
		return nil
	}

	result, err := db.migrate(ctx)
	if err != nil {
		return err
	}

	if result.ColumnsAdded > 0 && !result.Fresh {
		if err := db.backup.Backup(ctx); err != nil {
			return fmt.Errorf("backup before migration: %w", err)
		}
	}

	tag, err := db.Pool.Exec(ctx, purgeNoiseSessionsSQL)
	if err != nil {
		return fmt.Errorf("purge noise charging sessions: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		db.logger.Info("Purged noise charging sessions", zap.Int64("count", n))
	}

	for _, hook := range db.hooks {
		if err := hook(ctx); err != nil {
			db.logger.Error("Init hook failed", zap.Error(err))
		}
	}

	db.initialized = true
	db.logger.Info("Database initialized",
		zap.Bool("fresh", result.Fresh),
		zap.Int("columns_added", result.ColumnsAdded),
		zap.Int("schema_version", SchemaVersion))
	return nil
}

// Backuper 迁移前备份
type Backuper interface {
	Backup(ctx context.Context) error
}

// LogBackup 只记录日志的备份实现
type LogBackup struct {
	Logger *zap.Logger
}

// Backup 实现 Backuper
func (b LogBackup) Backup(ctx context.Context) error {
	b.Logger.Info("Schema changed on existing database, backup not configured")
	return nil
}
