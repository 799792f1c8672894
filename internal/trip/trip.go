package trip

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/langchou/carledger/internal/models"
)

// Vehicle 行程计算用到的车辆参数
type Vehicle struct {
	VIN                string  `json:"vin"`
	BatteryKwh         float64 `json:"battery_kwh"`          // 电池容量
	FuelCapacity       float64 `json:"fuel_capacity"`        // 油箱容量 (L)，纯电车为 0
	MaxElecConsumption float64 `json:"max_elec_consumption"` // kWh/100km
	MaxFuelConsumption float64 `json:"max_fuel_consumption"` // L/100km
}

// Trip 由连续位置采样组成的一次行程
type Trip struct {
	ID              int                `json:"id"`
	VIN             string             `json:"vin"`
	Positions       []*models.Position `json:"-"`
	StartAt         time.Time          `json:"start_at"`
	EndAt           time.Time          `json:"end_at"`
	Distance        float64            `json:"distance"` // km
	DurationMin     float64            `json:"duration_min"`
	ConsumptionElec float64            `json:"consumption_elec"` // kWh/100km
	ConsumptionFuel float64            `json:"consumption_fuel"` // L/100km
	AverageSpeed    float64            `json:"average_speed"`    // km/h
	Start           *models.Coordinate `json:"start,omitempty"`
	End             *models.Coordinate `json:"end,omitempty"`
}

// NewTrip 根据采样计算行程指标，positions 需按时间升序且非空
func NewTrip(v Vehicle, positions []*models.Position) *Trip {
	first, last := positions[0], positions[len(positions)-1]
	t := &Trip{
		VIN:       v.VIN,
		Positions: positions,
		StartAt:   first.Timestamp,
		EndAt:     last.Timestamp,
		Distance:  last.Mileage - first.Mileage,
	}
	duration := t.EndAt.Sub(t.StartAt)
	t.DurationMin = duration.Minutes()
	t.AverageSpeed = AverageSpeed(t.Distance, duration.Hours())

	if t.Distance > 0 {
		used := float64(first.Level-last.Level) * v.BatteryKwh / 100
		t.ConsumptionElec = positive(used * 100 / t.Distance)

		if first.FuelLevel != nil && last.FuelLevel != nil {
			fuel := float64(*first.FuelLevel-*last.FuelLevel) * v.FuelCapacity / 100
			t.ConsumptionFuel = positive(fuel * 100 / t.Distance)
		}
	}

	for _, p := range positions {
		if c, ok := p.Coordinate(); ok {
			if t.Start == nil {
				start := c
				t.Start = &start
			}
			end := c
			t.End = &end
		}
	}
	return t
}

// Feature 行程轨迹 (LineString)
func (t *Trip) Feature() *geojson.Feature {
	line := orb.LineString{}
	for _, p := range t.Positions {
		if c, ok := p.Coordinate(); ok {
			line = append(line, orb.Point{c.Longitude, c.Latitude})
		}
	}

	f := geojson.NewFeature(line)
	f.Properties["id"] = t.ID
	f.Properties["vin"] = t.VIN
	f.Properties["start_at"] = t.StartAt.UTC().Format(time.RFC3339)
	f.Properties["end_at"] = t.EndAt.UTC().Format(time.RFC3339)
	f.Properties["distance"] = t.Distance
	f.Properties["average_speed"] = t.AverageSpeed
	f.Properties["consumption_elec"] = t.ConsumptionElec
	f.Properties["consumption_fuel"] = t.ConsumptionFuel
	return f
}

// 行程中充电或加油会让消耗为负
func positive(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
