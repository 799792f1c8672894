package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/carledger/internal/models"
	"github.com/langchou/carledger/internal/trip"
	"github.com/langchou/carledger/pkg/ws"
)

// LedgerService 位置台账服务
type LedgerService struct {
	positions     PositionStore
	charges       ChargeStore
	reconstructor *trip.Reconstructor
	vehicles      []trip.Vehicle
	hub           Broadcaster
	logger        *zap.Logger
}

// NewLedgerService 创建位置台账服务，hub 可为 nil
func NewLedgerService(positions PositionStore, charges ChargeStore, reconstructor *trip.Reconstructor, vehicles []trip.Vehicle, hub Broadcaster, logger *zap.Logger) *LedgerService {
	if hub == nil {
		hub = nopBroadcaster{}
	}
	return &LedgerService{
		positions:     positions,
		charges:       charges,
		reconstructor: reconstructor,
		vehicles:      vehicles,
		hub:           hub,
		logger:        logger,
	}
}

// RecordPosition 保存位置采样，新插入时推送
func (s *LedgerService) RecordPosition(ctx context.Context, pos *models.Position) (bool, error) {
	inserted, err := s.positions.Record(ctx, pos)
	if err != nil {
		return false, err
	}
	if inserted {
		s.hub.BroadcastMessage(ws.MsgTypePositionRecorded, pos)
	}
	return inserted, nil
}

// Trips 重建所有车辆的行程，充电开始时间作为切分点
func (s *LedgerService) Trips(ctx context.Context) (map[string]*trip.Trips, error) {
	sessions, err := s.charges.List(ctx)
	if err != nil {
		return nil, err
	}
	breakpoints := make(map[string][]time.Time)
	for _, session := range sessions {
		breakpoints[session.VIN] = append(breakpoints[session.VIN], session.StartAt)
	}
	return s.reconstructor.Reconstruct(ctx, s.positions, s.vehicles, breakpoints)
}

// BackfillAltitude 补齐缺失的海拔
func (s *LedgerService) BackfillAltitude(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.positions.BackfillAltitude(ctx)
	if err != nil {
		return n, err
	}
	s.logger.Info("Altitude backfill done", zap.Int64("updated", n), zap.Duration("elapsed", time.Since(start)))
	return n, nil
}

// Vehicles 已配置的车辆
func (s *LedgerService) Vehicles() []trip.Vehicle {
	return s.vehicles
}

// InitData WebSocket 初始化数据
func (s *LedgerService) InitData(ctx context.Context) *ws.InitData {
	data := &ws.InitData{Vehicles: make([]string, 0, len(s.vehicles))}
	last := make(map[string]*models.ChargingSession)
	for _, v := range s.vehicles {
		data.Vehicles = append(data.Vehicles, v.VIN)
		session, err := s.charges.GetOpenOrLast(ctx, v.VIN)
		if err != nil {
			s.logger.Warn("Failed to load last charge", zap.String("vin", v.VIN), zap.Error(err))
			continue
		}
		if session != nil {
			last[v.VIN] = session
		}
	}
	data.LastCharges = last
	return data
}
