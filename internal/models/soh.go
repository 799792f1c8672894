package models

import "time"

// SohSample 电池健康度采样 (battery_soh 表)
type SohSample struct {
	SampledAt time.Time `json:"date" db:"date"`
	VIN       string    `json:"vin" db:"vin"`
	Level     float64   `json:"level" db:"level"` // %
}
