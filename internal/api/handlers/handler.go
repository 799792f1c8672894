package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/langchou/carledger/internal/models"
	"github.com/langchou/carledger/internal/trip"
	"github.com/langchou/carledger/pkg/ws"
)

// PositionQuery 位置查询
type PositionQuery interface {
	FeatureCollection(ctx context.Context) (*geojson.FeatureCollection, error)
}

// ChargeQuery 充电记录查询
type ChargeQuery interface {
	GetOpenOrLast(ctx context.Context, vin string) (*models.ChargingSession, error)
	GetAt(ctx context.Context, vin string, startAt time.Time) (*models.ChargingSession, error)
	GetCurve(ctx context.Context, startAt, stopAt time.Time, vin string) ([]models.BatteryCurvePoint, error)
	List(ctx context.Context) ([]*models.ChargingSession, error)
	ListUnpriced(ctx context.Context) ([]*models.ChargingSession, error)
}

// SohQuery 电池健康度查询
type SohQuery interface {
	Record(ctx context.Context, vin string, date time.Time, level float64) error
	SeriesFor(ctx context.Context, vin string) ([]models.SohSample, error)
	LatestFor(ctx context.Context, vin string) (*float64, error)
}

// Ledger 位置写入与行程
type Ledger interface {
	RecordPosition(ctx context.Context, pos *models.Position) (bool, error)
	Trips(ctx context.Context) (map[string]*trip.Trips, error)
}

// Charging 充电事件处理
type Charging interface {
	RecordEvent(ctx context.Context, ev *models.ChargeEvent) (*models.ChargingSession, error)
}

// Handler HTTP 处理器
type Handler struct {
	logger    *zap.Logger
	positions PositionQuery
	charges   ChargeQuery
	soh       SohQuery
	ledger    Ledger
	charging  Charging
	wsHub     *ws.Hub
	upgrader  websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	positions PositionQuery,
	charges ChargeQuery,
	soh SohQuery,
	ledger Ledger,
	charging Charging,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:    logger,
		positions: positions,
		charges:   charges,
		soh:       soh,
		ledger:    ledger,
		charging:  charging,
		wsHub:     wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": h.wsHub.ClientCount(),
	})
}
