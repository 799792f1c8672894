package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecordSohRequest 电池健康度采样
type RecordSohRequest struct {
	Date  time.Time `json:"date" binding:"required"`
	Level float64   `json:"level" binding:"required,gt=0,lte=100"`
}

// RecordSoh 追加电池健康度采样
func (h *Handler) RecordSoh(c *gin.Context) {
	var req RecordSohRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	vin := c.Param("vin")
	if err := h.soh.Record(c.Request.Context(), vin, req.Date, req.Level); err != nil {
		h.logger.Error("Failed to record soh", zap.String("vin", vin), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record soh"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": req})
}

// GetSohSeries 电池健康度序列
func (h *Handler) GetSohSeries(c *gin.Context) {
	series, err := h.soh.SeriesFor(c.Request.Context(), c.Param("vin"))
	if err != nil {
		h.logger.Error("Failed to list soh", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list soh"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": series})
}

// GetLastSoh 最新电池健康度
func (h *Handler) GetLastSoh(c *gin.Context) {
	level, err := h.soh.LatestFor(c.Request.Context(), c.Param("vin"))
	if err != nil {
		h.logger.Error("Failed to get last soh", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get last soh"})
		return
	}
	if level == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No soh sample"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"level": *level}})
}
