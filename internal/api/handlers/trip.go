package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

// ListTrips 重建所有车辆的行程
// GET /api/trips?format=geojson 返回轨迹 FeatureCollection
func (h *Handler) ListTrips(c *gin.Context) {
	trips, err := h.ledger.Trips(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to reconstruct trips", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reconstruct trips"})
		return
	}

	if c.Query("format") == "geojson" {
		fc := geojson.NewFeatureCollection()
		for _, ts := range trips {
			fc.Features = append(fc.Features, ts.FeatureCollection().Features...)
		}
		c.JSON(http.StatusOK, fc)
		return
	}

	data := make(gin.H, len(trips))
	for vin, ts := range trips {
		data[vin] = gin.H{
			"trips":    ts.List(),
			"distance": ts.Distance(),
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}
