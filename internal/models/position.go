package models

import "time"

// Coordinate 经纬度坐标
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Position 位置采样记录
// timestamp 为主键：同一时刻只保存一条记录（默认只跟踪一辆车）
type Position struct {
	Timestamp   time.Time `json:"timestamp" db:"timestamp" binding:"required"`
	VIN         string    `json:"vin" db:"vin" binding:"required"`
	Longitude   *float64  `json:"longitude,omitempty" db:"longitude"`
	Latitude    *float64  `json:"latitude,omitempty" db:"latitude"`
	Mileage     float64   `json:"mileage" db:"mileage"` // km
	Level       int       `json:"level" db:"level"`     // 电量 %
	FuelLevel   *int      `json:"level_fuel,omitempty" db:"level_fuel"`
	Altitude    *int      `json:"altitude,omitempty" db:"altitude"` // 海拔 (米)
	Moving      bool      `json:"moving" db:"moving"`
	Temperature *float64  `json:"temperature,omitempty" db:"temperature"` // 环境温度 (°C)
}

// Coordinate 返回坐标，缺少经度或纬度时返回 false
func (p *Position) Coordinate() (Coordinate, bool) {
	if p.Latitude == nil || p.Longitude == nil {
		return Coordinate{}, false
	}
	return Coordinate{Latitude: *p.Latitude, Longitude: *p.Longitude}, true
}

// Elevation 海拔查询结果
type Elevation struct {
	Coordinate Coordinate `json:"location"`
	Meters     *float64   `json:"elevation"` // 无数据时为空
}
