package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/langchou/carledger/internal/models"
)

// Model 充电计费模型，无法计算时返回 nil
type Model interface {
	Price(session *models.ChargingSession, curve []models.BatteryCurvePoint) *float64
}

// FlatRate 固定电价
type FlatRate struct {
	PricePerKwh decimal.Decimal
	BatteryKwh  float64 // 电池容量
}

// NewFlatRate 创建固定电价模型
func NewFlatRate(pricePerKwh, batteryKwh float64) FlatRate {
	return FlatRate{PricePerKwh: decimal.NewFromFloat(pricePerKwh), BatteryKwh: batteryKwh}
}

// Price 实现 Model，结果保留两位小数
func (f FlatRate) Price(session *models.ChargingSession, curve []models.BatteryCurvePoint) *float64 {
	energy, ok := f.Energy(session, curve)
	if !ok {
		return nil
	}
	price, _ := energy.Mul(f.PricePerKwh).Round(2).Float64()
	return &price
}

// Energy 充入电量 (kWh)
// 优先使用记录的电量，其次用曲线最后一个点或结束电量按电池容量折算
func (f FlatRate) Energy(session *models.ChargingSession, curve []models.BatteryCurvePoint) (decimal.Decimal, bool) {
	if session.EnergyKwh != nil {
		return decimal.NewFromFloat(*session.EnergyKwh), true
	}

	var endLevel int
	switch {
	case len(curve) > 0:
		endLevel = curve[len(curve)-1].Level
	case session.EndLevel != nil:
		endLevel = *session.EndLevel
	default:
		return decimal.Zero, false
	}

	delta := endLevel - session.StartLevel
	if delta < 0 {
		delta = 0
	}
	energy := decimal.NewFromInt(int64(delta)).
		Mul(decimal.NewFromFloat(f.BatteryKwh)).
		Div(decimal.NewFromInt(100))
	return energy, true
}

// EnergyKwh 按电量差折算充入电量，电池容量未配置时返回 nil
func EnergyKwh(startLevel, endLevel int, batteryKwh float64) *float64 {
	if batteryKwh <= 0 || endLevel <= startLevel {
		return nil
	}
	kwh, _ := decimal.NewFromInt(int64(endLevel - startLevel)).
		Mul(decimal.NewFromFloat(batteryKwh)).
		Div(decimal.NewFromInt(100)).
		Round(3).
		Float64()
	return &kwh
}
