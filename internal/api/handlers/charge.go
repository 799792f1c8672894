package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/carledger/internal/models"
	"github.com/langchou/carledger/internal/repository"
)

// ListCharges 获取所有充电记录
func (h *Handler) ListCharges(c *gin.Context) {
	charges, err := h.charges.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list charges", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list charges"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": charges})
}

// ListUnpricedCharges 获取未计费的充电记录
func (h *Handler) ListUnpricedCharges(c *gin.Context) {
	charges, err := h.charges.ListUnpriced(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list unpriced charges", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list unpriced charges"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": charges})
}

// GetLastCharge 获取车辆最近一次充电
func (h *Handler) GetLastCharge(c *gin.Context) {
	charge, err := h.charges.GetOpenOrLast(c.Request.Context(), c.Param("vin"))
	if err != nil {
		h.logger.Error("Failed to get last charge", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get last charge"})
		return
	}
	if charge == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Charge not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": charge})
}

// GetChargeAt 获取指定开始时间的充电记录及充电曲线
// GET /api/vehicles/:vin/charges/:start (start 为 RFC3339)
func (h *Handler) GetChargeAt(c *gin.Context) {
	startAt, err := time.Parse(time.RFC3339, c.Param("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start time"})
		return
	}

	ctx := c.Request.Context()
	vin := c.Param("vin")
	charge, err := h.charges.GetAt(ctx, vin, startAt)
	if err != nil {
		h.logger.Error("Failed to get charge", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get charge"})
		return
	}
	if charge == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Charge not found"})
		return
	}

	stopAt := time.Now()
	if charge.StopAt != nil {
		stopAt = *charge.StopAt
	}
	curve, err := h.charges.GetCurve(ctx, charge.StartAt, stopAt, vin)
	if err != nil {
		h.logger.Error("Failed to get charge curve", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get charge curve"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  charge,
		"curve": curve,
	})
}

// RecordChargeEvent 处理车辆上报的充电状态
// POST /api/charges/events
func (h *Handler) RecordChargeEvent(c *gin.Context) {
	var ev models.ChargeEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.charging.RecordEvent(c.Request.Context(), &ev)
	if errors.Is(err, repository.ErrInvalidStop) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("Failed to record charge event", zap.String("vin", ev.VIN), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record charge event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}
