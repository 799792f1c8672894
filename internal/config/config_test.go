package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/carledger/internal/api/elevation"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.ElevationBatchSize)
	assert.Equal(t, time.Second, cfg.ElevationRateLimit)
	assert.Equal(t, 30*time.Minute, cfg.WeatherCacheTTL)
	assert.Equal(t, 70.0, cfg.MaxElecConsumption)
	assert.Equal(t, 30.0, cfg.MaxFuelConsumption)
	assert.Equal(t, 5*time.Minute, cfg.TripStationaryGap)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("VEHICLE_VINS", " VF1 , ,VF2")
	t.Setenv("VEHICLE_BATTERY_KWH", "75.5")
	t.Setenv("ELEVATION_BATCH_SIZE", "50")
	t.Setenv("DEBUG", "true")
	t.Setenv("ELEVATION_RATE_LIMIT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, 50, cfg.ElevationBatchSize)
	assert.Equal(t, time.Second, cfg.ElevationRateLimit)
	assert.Equal(t, []string{"VF1", "VF2"}, cfg.VehicleVINs)

	vehicles := cfg.Vehicles()
	require.Len(t, vehicles, 2)
	assert.Equal(t, "VF2", vehicles[1].VIN)
	assert.Equal(t, 75.5, vehicles[1].BatteryKwh)
}

func TestLoad_ElevationBatchSizeLimit(t *testing.T) {
	for _, v := range []string{"500", "0", "-3"} {
		t.Setenv("ELEVATION_BATCH_SIZE", v)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, elevation.MaxLocations, cfg.ElevationBatchSize, v)
	}
}
