package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/langchou/carledger/internal/api/elevation"
	"github.com/langchou/carledger/internal/api/weather"
	"github.com/langchou/carledger/internal/config"
	"github.com/langchou/carledger/internal/pricing"
	"github.com/langchou/carledger/internal/repository"
	"github.com/langchou/carledger/internal/service"
	"github.com/langchou/carledger/internal/trip"
	"github.com/langchou/carledger/pkg/ws"
)

// app 进程内共享的组件
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *repository.DB
	redis  *redis.Client

	positions *repository.PositionRepository
	charges   *repository.ChargeRepository
	soh       *repository.SohRepository
	ledger    *service.LedgerService
	charging  *service.ChargingService
	hub       *ws.Hub
}

// newApp 连接数据库并组装各组件，schema 初始化由调用方执行
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	db, err := repository.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, db: db, hub: ws.NewHub(logger)}

	opts := []repository.PositionOption{
		repository.WithElevation(elevation.NewClient(cfg.ElevationAPIURL, logger), cfg.ElevationBatchSize, cfg.ElevationRateLimit),
	}
	if cfg.WeatherAPIKey != "" {
		var cache *weather.Cache
		if cfg.RedisAddr != "" {
			a.redis = redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			cache = weather.NewCache(a.redis, cfg.WeatherCacheTTL, logger)
		}
		opts = append(opts, repository.WithWeather(weather.NewClient(cfg.WeatherAPIURL, cfg.WeatherAPIKey, cache, logger)))
	} else {
		logger.Info("Weather API key not configured, temperature lookup disabled")
	}

	a.positions = repository.NewPositionRepository(db, logger, opts...)
	a.charges = repository.NewChargeRepository(db, logger)
	a.soh = repository.NewSohRepository(db)

	vehicles := cfg.Vehicles()
	if len(vehicles) == 0 {
		logger.Warn("No vehicle configured (VEHICLE_VINS), trips will be empty")
	}
	model := pricing.NewFlatRate(cfg.ElectricityPriceKwh, cfg.VehicleBatteryKwh)
	a.charging = service.NewChargingService(a.charges, model, cfg.VehicleBatteryKwh, a.hub, logger)
	a.ledger = service.NewLedgerService(a.positions, a.charges, trip.NewReconstructor(cfg.TripStationaryGap, logger), vehicles, a.hub, logger)

	return a, nil
}

// Close 释放连接
func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.db.Close()
}
