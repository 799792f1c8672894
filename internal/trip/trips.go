package trip

import (
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

// MaxSpeed 平均速度上限 (km/h)，超过视为采样异常
const MaxSpeed = 150

// Trips 一辆车的有效行程，id 从 1 开始连续分配
type Trips struct {
	vehicle Vehicle
	logger  *zap.Logger
	trips   []*Trip
	nextID  int
}

// NewTrips 创建行程集合
func NewTrips(v Vehicle, logger *zap.Logger) *Trips {
	return &Trips{vehicle: v, logger: logger, nextID: 1}
}

// CheckAndAppend 检查候选行程，合理时分配 id 并加入集合
func (ts *Trips) CheckAndAppend(t *Trip) bool {
	if t.ConsumptionElec <= ts.vehicle.MaxElecConsumption &&
		t.ConsumptionFuel <= ts.vehicle.MaxFuelConsumption &&
		t.AverageSpeed < MaxSpeed {
		t.ID = ts.nextID
		ts.nextID++
		ts.trips = append(ts.trips, t)
		return true
	}

	ts.logger.Debug("Trip discarded",
		zap.String("vin", t.VIN),
		zap.Time("start_at", t.StartAt),
		zap.Float64("average_speed", t.AverageSpeed),
		zap.Float64("consumption_elec", t.ConsumptionElec),
		zap.Float64("consumption_fuel", t.ConsumptionFuel))
	return false
}

// List 返回所有有效行程
func (ts *Trips) List() []*Trip {
	return ts.trips
}

// Len 行程数
func (ts *Trips) Len() int {
	return len(ts.trips)
}

// Distance 总里程：最后一个采样与第一个采样的里程差
func (ts *Trips) Distance() float64 {
	if len(ts.trips) == 0 {
		return 0
	}
	first := ts.trips[0].Positions[0]
	lastTrip := ts.trips[len(ts.trips)-1]
	last := lastTrip.Positions[len(lastTrip.Positions)-1]
	return last.Mileage - first.Mileage
}

// FeatureCollection 所有行程轨迹
func (ts *Trips) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, t := range ts.trips {
		fc.Append(t.Feature())
	}
	return fc
}

// AverageSpeed 平均速度，时长为 0 时返回 0
func AverageSpeed(distance, durationHours float64) float64 {
	if durationHours == 0 {
		return 0
	}
	return distance / durationHours
}
