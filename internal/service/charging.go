package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/langchou/carledger/internal/models"
	"github.com/langchou/carledger/internal/pricing"
	"github.com/langchou/carledger/internal/repository"
	"github.com/langchou/carledger/internal/state"
	"github.com/langchou/carledger/pkg/ws"
)

// ChargingService 充电记录服务
type ChargingService struct {
	charges    ChargeStore
	model      pricing.Model
	batteryKwh float64
	hub        Broadcaster
	logger     *zap.Logger
}

// NewChargingService 创建充电服务，hub 可为 nil
func NewChargingService(charges ChargeStore, model pricing.Model, batteryKwh float64, hub Broadcaster, logger *zap.Logger) *ChargingService {
	if hub == nil {
		hub = nopBroadcaster{}
	}
	return &ChargingService{
		charges:    charges,
		model:      model,
		batteryKwh: batteryKwh,
		hub:        hub,
		logger:     logger,
	}
}

// RecordEvent 处理车辆上报的充电状态
// 充电中：必要时新建充电记录并追加曲线点；未充电：结束进行中的记录并计费
func (s *ChargingService) RecordEvent(ctx context.Context, ev *models.ChargeEvent) (*models.ChargingSession, error) {
	if ev.InProgress {
		session, started, err := s.charges.StartOrContinue(ctx, ev)
		if err != nil {
			return nil, err
		}
		if started {
			s.hub.BroadcastMessage(ws.MsgTypeChargeUpdated, session)
		}
		return session, nil
	}

	session, err := s.charges.GetOpenOrLast(ctx, ev.VIN)
	if err != nil {
		return nil, err
	}
	if session == nil || session.Ended() {
		return session, nil
	}
	return session, s.close(ctx, session, ev)
}

func (s *ChargingService) close(ctx context.Context, session *models.ChargingSession, ev *models.ChargeEvent) error {
	m := state.NewSessionMachine(session, s.onStateChange)
	if err := m.Trigger(ctx, state.EventClose); err != nil {
		return err
	}

	stopAt := ev.At
	endLevel := ev.Level
	session.StopAt = &stopAt
	session.EndLevel = &endLevel
	session.CO2 = ev.CO2
	session.EnergyKwh = pricing.EnergyKwh(session.StartLevel, endLevel, s.batteryKwh)

	curve, err := s.charges.GetCurve(ctx, session.StartAt, stopAt, session.VIN)
	if err != nil {
		return err
	}
	session.Price = s.model.Price(session, curve)

	res, err := s.charges.Close(ctx, session)
	if err != nil {
		return err
	}
	if res == repository.NotFound {
		return nil
	}
	if session.Price != nil {
		if err := m.Trigger(ctx, state.EventPrice); err != nil {
			return err
		}
	}

	s.hub.BroadcastMessage(ws.MsgTypeChargeUpdated, session)
	return nil
}

// PriceUnpriced 为所有已结束但未计费的充电记录计算费用，返回成功计费的数量
func (s *ChargingService) PriceUnpriced(ctx context.Context) (int, error) {
	sessions, err := s.charges.ListUnpriced(ctx)
	if err != nil {
		return 0, err
	}

	priced := 0
	for _, session := range sessions {
		m := state.NewSessionMachine(session, s.onStateChange)
		if !m.Can(state.EventPrice) {
			s.logger.Debug("Charging session still open, skip pricing",
				zap.String("vin", session.VIN), zap.Time("start_at", session.StartAt))
			continue
		}

		if session.Noise() {
			s.logger.Debug("Noise charging session, skip pricing",
				zap.String("vin", session.VIN), zap.Time("start_at", session.StartAt))
			continue
		}

		curve, err := s.charges.GetCurve(ctx, session.StartAt, *session.StopAt, session.VIN)
		if err != nil {
			return priced, err
		}
		price := s.model.Price(session, curve)
		if price == nil {
			s.logger.Debug("No data to price charging session",
				zap.String("vin", session.VIN), zap.Time("start_at", session.StartAt))
			continue
		}
		session.Price = price

		res, err := s.charges.SetPrice(ctx, session)
		if err != nil {
			return priced, fmt.Errorf("price session %s: %w", session.StartAt, err)
		}
		if res == repository.NotFound {
			continue
		}
		if err := m.Trigger(ctx, state.EventPrice); err != nil {
			return priced, err
		}
		priced++
		s.hub.BroadcastMessage(ws.MsgTypeChargeUpdated, session)
	}

	s.logger.Info("Charging sessions priced", zap.Int("priced", priced), zap.Int("unpriced", len(sessions)))
	return priced, nil
}

func (s *ChargingService) onStateChange(session *models.ChargingSession, from, to string) {
	s.logger.Info("Charging session state changed",
		zap.String("vin", session.VIN),
		zap.Time("start_at", session.StartAt),
		zap.String("from", from),
		zap.String("to", to))
}
