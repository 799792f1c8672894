package service

import (
	"context"
	"time"

	"github.com/langchou/carledger/internal/models"
	"github.com/langchou/carledger/internal/repository"
)

// Broadcaster 推送实时消息（WebSocket Hub）
type Broadcaster interface {
	BroadcastMessage(msgType string, data interface{})
}

// PositionStore 位置存储
type PositionStore interface {
	Record(ctx context.Context, pos *models.Position) (bool, error)
	ListByVIN(ctx context.Context, vin string) ([]*models.Position, error)
	BackfillAltitude(ctx context.Context) (int64, error)
}

// ChargeStore 充电记录存储
type ChargeStore interface {
	StartOrContinue(ctx context.Context, ev *models.ChargeEvent) (*models.ChargingSession, bool, error)
	GetOpenOrLast(ctx context.Context, vin string) (*models.ChargingSession, error)
	GetCurve(ctx context.Context, startAt, stopAt time.Time, vin string) ([]models.BatteryCurvePoint, error)
	Close(ctx context.Context, s *models.ChargingSession) (repository.UpdateResult, error)
	SetPrice(ctx context.Context, s *models.ChargingSession) (repository.UpdateResult, error)
	List(ctx context.Context) ([]*models.ChargingSession, error)
	ListUnpriced(ctx context.Context) ([]*models.ChargingSession, error)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastMessage(string, interface{}) {}
