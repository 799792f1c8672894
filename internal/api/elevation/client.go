package elevation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/langchou/carledger/internal/models"
)

// DefaultURL 公共海拔服务 (opentopodata, SRTM 30m)
const DefaultURL = "https://api.opentopodata.org/v1/srtm30m"

// MaxLocations 单次请求最多的坐标数
const MaxLocations = 100

// lookupResponse opentopodata 响应
type lookupResponse struct {
	Status  string         `json:"status"`
	Error   string         `json:"error"`
	Results []lookupResult `json:"results"`
}

type lookupResult struct {
	Elevation *float64 `json:"elevation"`
	Location  struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
}

// Client 海拔查询客户端
// 限流由调用方控制（公共服务每秒 1 次）
type Client struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewClient 创建海拔查询客户端
func NewClient(url string, logger *zap.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		httpClient: resty.New().
			SetTimeout(30*time.Second).
			SetHeader("Accept", "application/json"),
		url:    url,
		logger: logger,
	}
}

// Lookup 批量查询海拔，结果与输入坐标一一对应
func (c *Client) Lookup(ctx context.Context, coords []models.Coordinate) ([]models.Elevation, error) {
	if len(coords) == 0 {
		return nil, nil
	}
	if len(coords) > MaxLocations {
		return nil, fmt.Errorf("too many locations: %d > %d", len(coords), MaxLocations)
	}

	var result lookupResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("locations", joinLocations(coords)).
		SetResult(&result).
		SetError(&result).
		Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("call elevation api: %w", err)
	}
	if resp.IsError() || result.Status != "OK" {
		c.logger.Error("Elevation API returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("status", result.Status),
			zap.String("error", result.Error))
		return nil, fmt.Errorf("elevation api error: %s (status: %d)", result.Error, resp.StatusCode())
	}

	elevations := make([]models.Elevation, 0, len(result.Results))
	for _, r := range result.Results {
		elevations = append(elevations, models.Elevation{
			Coordinate: models.Coordinate{Latitude: r.Location.Lat, Longitude: r.Location.Lng},
			Meters:     r.Elevation,
		})
	}

	c.logger.Debug("Elevation lookup done", zap.Int("count", len(elevations)))
	return elevations, nil
}

// joinLocations 拼接 "lat,lon|lat,lon"
func joinLocations(coords []models.Coordinate) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = fmt.Sprintf("%g,%g", c.Latitude, c.Longitude)
	}
	return strings.Join(parts, "|")
}
