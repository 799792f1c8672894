package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/carledger/internal/models"
	"github.com/langchou/carledger/internal/repository"
)

// GetPositions 所有位置 (GeoJSON FeatureCollection)
func (h *Handler) GetPositions(c *gin.Context) {
	fc, err := h.positions.FeatureCollection(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list positions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list positions"})
		return
	}

	c.JSON(http.StatusOK, fc)
}

// RecordPosition 写入位置采样
// POST /api/positions
func (h *Handler) RecordPosition(c *gin.Context) {
	var pos models.Position
	if err := c.ShouldBindJSON(&pos); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := repository.Validate(&pos); errors.Is(err, repository.ErrZeroMileage) {
		h.logger.Warn("Position rejected", zap.String("vin", pos.VIN), zap.Time("timestamp", pos.Timestamp), zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	inserted, err := h.ledger.RecordPosition(c.Request.Context(), &pos)
	if err != nil {
		h.logger.Error("Failed to record position", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record position"})
		return
	}

	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": gin.H{"inserted": inserted}})
}
