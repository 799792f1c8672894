package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		// 位置
		api.GET("/positions", h.GetPositions)
		api.POST("/positions", h.RecordPosition)

		// 充电
		api.GET("/charges", h.ListCharges)
		api.GET("/charges/unpriced", h.ListUnpricedCharges)
		api.POST("/charges/events", h.RecordChargeEvent)
		api.GET("/vehicles/:vin/charges/last", h.GetLastCharge)
		api.GET("/vehicles/:vin/charges/:start", h.GetChargeAt)

		// 电池健康度
		api.GET("/vehicles/:vin/soh", h.GetSohSeries)
		api.POST("/vehicles/:vin/soh", h.RecordSoh)
		api.GET("/vehicles/:vin/soh/last", h.GetLastSoh)

		// 行程
		api.GET("/trips", h.ListTrips)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}
