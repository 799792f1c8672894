package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultURL OpenWeatherMap 当前天气接口
const DefaultURL = "https://api.openweathermap.org/data/2.5/weather"

type currentResponse struct {
	Main struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
	Message string `json:"message"`
}

// Client 环境温度查询客户端
// 查询失败不影响采样入库，只返回 nil
type Client struct {
	httpClient *resty.Client
	url        string
	apiKey     string
	cache      *Cache
	logger     *zap.Logger
}

// NewClient 创建天气客户端，cache 可为 nil
func NewClient(url, apiKey string, cache *Cache, logger *zap.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		httpClient: resty.New().
			SetTimeout(10*time.Second).
			SetHeader("Accept", "application/json"),
		url:    url,
		apiKey: apiKey,
		cache:  cache,
		logger: logger,
	}
}

// Temperature 查询坐标处的当前温度 (°C)
func (c *Client) Temperature(ctx context.Context, lat, lon float64) *float64 {
	if c.cache != nil {
		if t, ok := c.cache.Get(ctx, lat, lon); ok {
			return &t
		}
	}

	t, err := c.fetch(ctx, lat, lon)
	if err != nil {
		c.logger.Warn("Weather lookup failed", zap.Float64("lat", lat), zap.Float64("lon", lon), zap.Error(err))
		return nil
	}
	if t == nil {
		return nil
	}

	if c.cache != nil {
		c.cache.Set(ctx, lat, lon, *t)
	}
	return t
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) (*float64, error) {
	var result currentResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":   fmt.Sprintf("%g", lat),
			"lon":   fmt.Sprintf("%g", lon),
			"appid": c.apiKey,
			"units": "metric",
		}).
		SetResult(&result).
		SetError(&result).
		Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("call weather api: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("weather api error: %s (status: %d)", result.Message, resp.StatusCode())
	}
	return result.Main.Temp, nil
}
