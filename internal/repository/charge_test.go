package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/carledger/internal/models"
)

func newChargeRepo(t *testing.T) (*ChargeRepository, pgxmock.PgxPoolIface) {
	mock := newMock(t)
	return NewChargeRepository(NewWithPool(mock, zap.NewNop()), zap.NewNop()), mock
}

func TestChargeRepository_StartOrContinue_NewSession(t *testing.T) {
	repo, mock := newChargeRepo(t)
	ev := &models.ChargeEvent{
		VIN:        testVIN,
		At:         t0,
		InProgress: true,
		Level:      20,
		RateKw:     intPtr(7),
		Mode:       strPtr("Slow"),
		Mileage:    floatPtr(1000),
	}

	// 上一次充电已结束
	mock.ExpectQuery(`FROM battery WHERE vin = \$1 ORDER BY start_at DESC`).WithArgs(testVIN).
		WillReturnRows(pgxmock.NewRows(batteryCols).
			AddRow(t0.Add(-48*time.Hour), timePtr(t0.Add(-46*time.Hour)), testVIN, 30, intPtr(80), (*int)(nil), (*float64)(nil), floatPtr(6.3), strPtr("Slow"), floatPtr(900.0)))
	mock.ExpectExec(`INSERT INTO battery \(`).
		WithArgs(t0, testVIN, 20, strPtr("Slow"), floatPtr(1000)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO battery_curve`).
		WithArgs(t0, testVIN, t0, 20, intPtr(7), (*int)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	session, started, err := repo.StartOrContinue(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, t0, session.StartAt)
	assert.Equal(t, 20, session.StartLevel)
	assert.False(t, session.Ended())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChargeRepository_StartOrContinue_OpenSession(t *testing.T) {
	repo, mock := newChargeRepo(t)
	at := t0.Add(30 * time.Minute)
	ev := &models.ChargeEvent{VIN: testVIN, At: at, InProgress: true, Level: 35, AutonomyKm: intPtr(120)}

	mock.ExpectQuery(`FROM battery WHERE vin = \$1 ORDER BY start_at DESC`).WithArgs(testVIN).
		WillReturnRows(pgxmock.NewRows(batteryCols).
			AddRow(t0, (*time.Time)(nil), testVIN, 20, (*int)(nil), (*int)(nil), (*float64)(nil), (*float64)(nil), strPtr("Slow"), floatPtr(1000)))
	mock.ExpectExec(`INSERT INTO battery_curve`).
		WithArgs(t0, testVIN, at, 35, (*int)(nil), intPtr(120)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	session, started, err := repo.StartOrContinue(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, t0, session.StartAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChargeRepository_Close(t *testing.T) {
	repo, mock := newChargeRepo(t)
	ctx := context.Background()

	open := &models.ChargingSession{StartAt: t0, VIN: testVIN, StartLevel: 20}
	_, err := repo.Close(ctx, open)
	assert.ErrorIs(t, err, ErrInvalidStop)

	open.StopAt = timePtr(t0.Add(-time.Minute))
	_, err = repo.Close(ctx, open)
	assert.ErrorIs(t, err, ErrInvalidStop)

	closed := &models.ChargingSession{
		StartAt:    t0,
		StopAt:     timePtr(t0.Add(3 * time.Hour)),
		VIN:        testVIN,
		StartLevel: 20,
		EndLevel:   intPtr(80),
		CO2:        intPtr(56),
		EnergyKwh:  floatPtr(30),
		Price:      floatPtr(7.55),
	}
	mock.ExpectExec(`UPDATE battery SET`).
		WithArgs(closed.StopAt, closed.EndLevel, closed.CO2, closed.EnergyKwh, closed.Price, t0, testVIN).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	res, err := repo.Close(ctx, closed)
	require.NoError(t, err)
	assert.Equal(t, Updated, res)

	mock.ExpectExec(`UPDATE battery SET`).
		WithArgs(closed.StopAt, closed.EndLevel, closed.CO2, closed.EnergyKwh, closed.Price, t0, testVIN).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	res, err = repo.Close(ctx, closed)
	require.NoError(t, err)
	assert.Equal(t, NotFound, res)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChargeRepository_SetPrice_NotFound(t *testing.T) {
	repo, mock := newChargeRepo(t)
	s := &models.ChargingSession{StartAt: t0, VIN: testVIN, Price: floatPtr(3.2)}

	mock.ExpectExec(`UPDATE battery SET price = \$1 WHERE start_at = \$2 AND vin = \$3`).
		WithArgs(floatPtr(3.2), t0, testVIN).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	res, err := repo.SetPrice(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, NotFound, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChargeRepository_GetCurve(t *testing.T) {
	repo, mock := newChargeRepo(t)
	stop := t0.Add(time.Hour)

	mock.ExpectQuery(`FROM battery_curve`).WithArgs(t0, stop, testVIN).
		WillReturnRows(pgxmock.NewRows(batteryCurveCols).
			AddRow(t0, testVIN, t0, 20, intPtr(7), (*int)(nil)).
			AddRow(t0, testVIN, t0.Add(30*time.Minute), 35, intPtr(7), intPtr(120)))

	curve, err := repo.GetCurve(context.Background(), t0, stop, testVIN)
	require.NoError(t, err)
	require.Len(t, curve, 2)
	assert.Equal(t, 35, curve[1].Level)
	assert.Equal(t, intPtr(120), curve[1].AutonomyKm)
	assert.Nil(t, curve[0].AutonomyKm)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChargeRepository_ListUnpriced(t *testing.T) {
	repo, mock := newChargeRepo(t)

	mock.ExpectQuery(`FROM battery WHERE price IS NULL`).
		WillReturnRows(pgxmock.NewRows(batteryCols).
			AddRow(t0, timePtr(t0.Add(time.Hour)), testVIN, 20, intPtr(60), (*int)(nil), floatPtr(20.0), (*float64)(nil), (*string)(nil), (*float64)(nil)).
			AddRow(t0.Add(24*time.Hour), (*time.Time)(nil), testVIN, 40, (*int)(nil), (*int)(nil), (*float64)(nil), (*float64)(nil), (*string)(nil), (*float64)(nil)))

	sessions, err := repo.ListUnpriced(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.True(t, sessions[0].Ended())
	assert.True(t, sessions[0].NeedsPricing())
	assert.False(t, sessions[1].Ended())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChargeRepository_GetAt_Missing(t *testing.T) {
	repo, mock := newChargeRepo(t)

	mock.ExpectQuery(`FROM battery WHERE vin = \$1 AND start_at = \$2`).WithArgs(testVIN, t0).
		WillReturnRows(pgxmock.NewRows(batteryCols))

	session, err := repo.GetAt(context.Background(), testVIN, t0)
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChargeRepository_PurgeNoise(t *testing.T) {
	repo, mock := newChargeRepo(t)

	// 50 -> 50 与 50 -> 51 删除，50 -> 52 及未结束的保留，与 ChargingSession.Noise 一致
	for _, s := range []*models.ChargingSession{
		{StartLevel: 50, EndLevel: intPtr(50)},
		{StartLevel: 50, EndLevel: intPtr(51)},
	} {
		assert.True(t, s.Noise())
	}
	for _, s := range []*models.ChargingSession{
		{StartLevel: 50, EndLevel: intPtr(52)},
		{StartLevel: 50},
	} {
		assert.False(t, s.Noise())
	}

	mock.ExpectExec(`DELETE FROM battery WHERE end_level IS NOT NULL AND end_level <= start_level \+ 1`).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := repo.PurgeNoise(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
