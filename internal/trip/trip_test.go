package trip

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/carledger/internal/models"
)

var (
	testVehicle = Vehicle{
		VIN:                "VR3UHZKXZLT000001",
		BatteryKwh:         50,
		FuelCapacity:       0,
		MaxElecConsumption: 70,
		MaxFuelConsumption: 30,
	}
	t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
)

func pos(at time.Duration, mileage float64, level int, moving bool) *models.Position {
	lat, lon := 48.85+mileage/1000, 2.35
	return &models.Position{
		Timestamp: t0.Add(at),
		VIN:       testVehicle.VIN,
		Latitude:  &lat,
		Longitude: &lon,
		Mileage:   mileage,
		Level:     level,
		Moving:    moving,
	}
}

func TestAverageSpeed(t *testing.T) {
	assert.Equal(t, 0.0, AverageSpeed(10, 0))
	assert.Equal(t, 50.0, AverageSpeed(100, 2))
}

func TestNewTrip(t *testing.T) {
	trip := NewTrip(testVehicle, []*models.Position{
		pos(0, 1000, 80, true),
		pos(30*time.Minute, 1050, 75, true),
		pos(time.Hour, 1100, 70, false),
	})

	assert.Equal(t, 100.0, trip.Distance)
	assert.Equal(t, 60.0, trip.DurationMin)
	assert.Equal(t, 100.0, trip.AverageSpeed)
	assert.Equal(t, 5.0, trip.ConsumptionElec)
	assert.Equal(t, 0.0, trip.ConsumptionFuel)
	require.NotNil(t, trip.Start)
	assert.InDelta(t, 49.85, trip.Start.Latitude, 1e-9)

	f := trip.Feature()
	line, ok := f.Geometry.(orb.LineString)
	require.True(t, ok)
	assert.Len(t, line, 3)
	assert.Equal(t, testVehicle.VIN, f.Properties["vin"])
}

func TestTrips_CheckAndAppend(t *testing.T) {
	trips := NewTrips(testVehicle, zap.NewNop())

	first := NewTrip(testVehicle, []*models.Position{
		pos(0, 1000, 80, true),
		pos(time.Hour, 1100, 70, true),
	})
	require.Equal(t, 100.0, first.AverageSpeed)
	assert.True(t, trips.CheckAndAppend(first))
	assert.Equal(t, 1, first.ID)

	tooFast := NewTrip(testVehicle, []*models.Position{
		pos(2*time.Hour, 1100, 70, true),
		pos(2*time.Hour+30*time.Minute, 1200, 60, true),
	})
	require.Equal(t, 200.0, tooFast.AverageSpeed)
	assert.False(t, trips.CheckAndAppend(tooFast))
	assert.Equal(t, 0, tooFast.ID)

	second := NewTrip(testVehicle, []*models.Position{
		pos(3*time.Hour, 1200, 60, true),
		pos(4*time.Hour, 1250, 55, true),
	})
	assert.True(t, trips.CheckAndAppend(second))
	assert.Equal(t, 2, second.ID)

	assert.Equal(t, 2, trips.Len())
	assert.Equal(t, 250.0, trips.Distance())
	assert.Len(t, trips.FeatureCollection().Features, 2)
}

func TestTrips_CheckAndAppend_Consumption(t *testing.T) {
	trips := NewTrips(testVehicle, zap.NewNop())

	// 10 km 用掉 20% (10 kWh) = 100 kWh/100km
	greedy := NewTrip(testVehicle, []*models.Position{
		pos(0, 1000, 80, true),
		pos(15*time.Minute, 1010, 60, true),
	})
	assert.False(t, trips.CheckAndAppend(greedy))
	assert.Equal(t, 0, trips.Len())
	assert.Equal(t, 0.0, trips.Distance())
}

func TestReconstructor_Segment(t *testing.T) {
	r := NewReconstructor(5*time.Minute, zap.NewNop())

	positions := []*models.Position{
		pos(0, 1000, 80, true),
		pos(10*time.Minute, 1010, 79, true),
		pos(20*time.Minute, 1020, 78, false),
		// 停车
		pos(21*time.Minute, 1020, 78, false),
		pos(2*time.Hour, 1020, 78, true),
		pos(2*time.Hour+10*time.Minute, 1030, 77, true),
		pos(2*time.Hour+20*time.Minute, 1040, 76, true),
	}

	segments := r.Segment(positions, nil)
	require.Len(t, segments, 3)
	assert.Len(t, segments[0], 3)
	assert.Len(t, segments[1], 1)
	assert.Len(t, segments[2], 3)

	breakpoint := t0.Add(2*time.Hour + 15*time.Minute)
	segments = r.Segment(positions, []time.Time{breakpoint})
	require.Len(t, segments, 4)
	assert.Len(t, segments[2], 2)
	assert.Len(t, segments[3], 1)
}

type fakeSource map[string][]*models.Position

func (f fakeSource) ListByVIN(ctx context.Context, vin string) ([]*models.Position, error) {
	positions, ok := f[vin]
	if !ok {
		return nil, errors.New("unknown vin")
	}
	return positions, nil
}

func TestReconstructor_Reconstruct(t *testing.T) {
	r := NewReconstructor(0, zap.NewNop())
	assert.Equal(t, DefaultStationaryGap, r.StationaryGap)

	src := fakeSource{
		testVehicle.VIN: {
			pos(0, 1000, 80, true),
			pos(time.Hour, 1080, 72, false),
			pos(2*time.Hour, 1080, 72, false),
			pos(3*time.Hour, 1080, 72, true),
			pos(4*time.Hour, 1140, 66, false),
		},
	}

	result, err := r.Reconstruct(context.Background(), src, []Vehicle{testVehicle}, nil)
	require.NoError(t, err)

	trips := result[testVehicle.VIN]
	require.NotNil(t, trips)
	require.Equal(t, 2, trips.Len())
	assert.Equal(t, 1, trips.List()[0].ID)
	assert.Equal(t, 80.0, trips.List()[0].Distance)
	assert.Equal(t, 2, trips.List()[1].ID)
	assert.Equal(t, 60.0, trips.List()[1].Distance)

	_, err = r.Reconstruct(context.Background(), src, []Vehicle{{VIN: "missing"}}, nil)
	assert.Error(t, err)
}
