package models

import "time"

// ChargingSession 充电记录 (battery 表)
// 生命周期: open (stop_at 为空) -> closed (stop_at 已设置) -> priced (price 已计算)
type ChargingSession struct {
	StartAt      time.Time  `json:"start_at" db:"start_at"`
	StopAt       *time.Time `json:"stop_at,omitempty" db:"stop_at"`
	VIN          string     `json:"vin" db:"vin"`
	StartLevel   int        `json:"start_level" db:"start_level"`
	EndLevel     *int       `json:"end_level,omitempty" db:"end_level"`
	CO2          *int       `json:"co2,omitempty" db:"co2"`     // g/kWh
	EnergyKwh    *float64   `json:"kw,omitempty" db:"kw"`       // 充入电量 (kWh)
	Price        *float64   `json:"price,omitempty" db:"price"` // 费用
	ChargingMode *string    `json:"charging_mode,omitempty" db:"charging_mode"`
	Mileage      *float64   `json:"mileage,omitempty" db:"mileage"` // km
}

// Ended 充电是否已结束
func (s *ChargingSession) Ended() bool {
	return s.StopAt != nil
}

// NeedsPricing 是否还没有计算费用
func (s *ChargingSession) NeedsPricing() bool {
	return s.Price == nil
}

// Noise 电量几乎没有变化的已结束充电 (end_level <= start_level + 1)，初始化时会被清理
func (s *ChargingSession) Noise() bool {
	return s.EndLevel != nil && *s.EndLevel <= s.StartLevel+1
}

// DurationMin 充电时长 (分钟)，未结束时返回 0
func (s *ChargingSession) DurationMin() float64 {
	if s.StopAt == nil {
		return 0
	}
	return s.StopAt.Sub(s.StartAt).Minutes()
}

// BatteryCurvePoint 充电曲线采样点 (battery_curve 表)
type BatteryCurvePoint struct {
	SessionStartAt time.Time `json:"start_at" db:"start_at"`
	VIN            string    `json:"vin" db:"vin"`
	SampledAt      time.Time `json:"date" db:"date"`
	Level          int       `json:"level" db:"level"`
	RateKw         *int      `json:"rate,omitempty" db:"rate"`
	AutonomyKm     *int      `json:"autonomy,omitempty" db:"autonomy"`
}

// ChargeEvent 车辆接口上报的充电状态
type ChargeEvent struct {
	VIN        string    `json:"vin" binding:"required"`
	At         time.Time `json:"at" binding:"required"`
	InProgress bool      `json:"in_progress"`
	Level      int       `json:"level"`
	RateKw     *int      `json:"rate,omitempty"`
	AutonomyKm *int      `json:"autonomy,omitempty"`
	Mode       *string   `json:"charging_mode,omitempty"`
	Mileage    *float64  `json:"mileage,omitempty"`
	CO2        *int      `json:"co2,omitempty"`
}
