package trip

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/carledger/internal/models"
)

// DefaultStationaryGap 里程不变超过该时长即切分行程
const DefaultStationaryGap = 5 * time.Minute

// PositionSource 按时间升序提供车辆位置
type PositionSource interface {
	ListByVIN(ctx context.Context, vin string) ([]*models.Position, error)
}

// Reconstructor 从位置采样重建行程
type Reconstructor struct {
	logger        *zap.Logger
	StationaryGap time.Duration
}

// NewReconstructor 创建行程重建器
func NewReconstructor(stationaryGap time.Duration, logger *zap.Logger) *Reconstructor {
	if stationaryGap <= 0 {
		stationaryGap = DefaultStationaryGap
	}
	return &Reconstructor{logger: logger, StationaryGap: stationaryGap}
}

// Segment 把采样切分为候选行程
// 相邻采样之间满足任一条件即切分：里程不变且间隔超过 StationaryGap；
// 里程不变且车辆静止；调用方给出的断点落在两次采样之间
func (r *Reconstructor) Segment(positions []*models.Position, breakpoints []time.Time) [][]*models.Position {
	var segments [][]*models.Position
	var current []*models.Position

	for _, p := range positions {
		if len(current) > 0 && r.boundary(current[len(current)-1], p, breakpoints) {
			segments = append(segments, current)
			current = nil
		}
		current = append(current, p)
	}
	if len(current) > 0 {
		segments = append(segments, current)
	}
	return segments
}

func (r *Reconstructor) boundary(prev, cur *models.Position, breakpoints []time.Time) bool {
	if cur.Mileage == prev.Mileage {
		if !cur.Moving || cur.Timestamp.Sub(prev.Timestamp) > r.StationaryGap {
			return true
		}
	}
	for _, b := range breakpoints {
		if b.After(prev.Timestamp) && !b.After(cur.Timestamp) {
			return true
		}
	}
	return false
}

// Build 由候选行程生成有效行程集合，零距离的候选直接丢弃
func (r *Reconstructor) Build(v Vehicle, positions []*models.Position, breakpoints []time.Time) *Trips {
	trips := NewTrips(v, r.logger)
	for _, seg := range r.Segment(positions, breakpoints) {
		t := NewTrip(v, seg)
		if t.Distance <= 0 {
			continue
		}
		trips.CheckAndAppend(t)
	}
	return trips
}

// Reconstruct 重建每辆车的行程，返回 vin -> 行程集合
func (r *Reconstructor) Reconstruct(ctx context.Context, src PositionSource, vehicles []Vehicle, breakpoints map[string][]time.Time) (map[string]*Trips, error) {
	result := make(map[string]*Trips, len(vehicles))
	for _, v := range vehicles {
		positions, err := src.ListByVIN(ctx, v.VIN)
		if err != nil {
			return nil, fmt.Errorf("load positions of %s: %w", v.VIN, err)
		}
		trips := r.Build(v, positions, breakpoints[v.VIN])
		r.logger.Debug("Trips reconstructed",
			zap.String("vin", v.VIN),
			zap.Int("positions", len(positions)),
			zap.Int("trips", trips.Len()))
		result[v.VIN] = trips
	}
	return result, nil
}
