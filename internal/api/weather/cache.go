package weather

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "carledger:weather:"

// Cache 温度缓存，坐标取两位小数（约 1km）
type Cache struct {
	redisClient *redis.Client
	ttl         time.Duration
	logger      *zap.Logger
}

// NewCache 创建温度缓存
func NewCache(redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{redisClient: redisClient, ttl: ttl, logger: logger}
}

// Key 缓存 key
func Key(lat, lon float64) string {
	return fmt.Sprintf("%s%.2f,%.2f", cacheKeyPrefix, lat, lon)
}

// Get 读取缓存
func (c *Cache) Get(ctx context.Context, lat, lon float64) (float64, bool) {
	val, err := c.redisClient.Get(ctx, Key(lat, lon)).Result()
	if err == redis.Nil {
		return 0, false
	}
	if err != nil {
		c.logger.Warn("Read weather cache failed", zap.Error(err))
		return 0, false
	}
	t, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return t, true
}

// Set 写入缓存
func (c *Cache) Set(ctx context.Context, lat, lon, temperature float64) {
	val := strconv.FormatFloat(temperature, 'f', -1, 64)
	if err := c.redisClient.Set(ctx, Key(lat, lon), val, c.ttl).Err(); err != nil {
		c.logger.Warn("Write weather cache failed", zap.Error(err))
	}
}
