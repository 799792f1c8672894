package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/carledger/internal/models"
)

func TestStateOf(t *testing.T) {
	start := time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC)
	stop := start.Add(2 * time.Hour)
	price := 7.5

	assert.Equal(t, StateOpen, StateOf(&models.ChargingSession{StartAt: start}))
	assert.Equal(t, StateClosed, StateOf(&models.ChargingSession{StartAt: start, StopAt: &stop}))
	assert.Equal(t, StatePriced, StateOf(&models.ChargingSession{StartAt: start, StopAt: &stop, Price: &price}))
}

func TestSessionMachine_Lifecycle(t *testing.T) {
	session := &models.ChargingSession{StartAt: time.Now(), VIN: "VF1"}
	var changes []string
	m := NewSessionMachine(session, func(s *models.ChargingSession, from, to string) {
		changes = append(changes, from+"->"+to)
	})
	ctx := context.Background()

	assert.Equal(t, StateOpen, m.Current())
	assert.False(t, m.Can(EventPrice))
	assert.Error(t, m.Trigger(ctx, EventPrice))

	require.NoError(t, m.Trigger(ctx, EventClose))
	assert.Equal(t, StateClosed, m.Current())
	assert.False(t, m.Can(EventClose))

	require.NoError(t, m.Trigger(ctx, EventPrice))
	assert.Equal(t, StatePriced, m.Current())

	// 重新计费
	require.NoError(t, m.Trigger(ctx, EventPrice))
	assert.Equal(t, StatePriced, m.Current())

	assert.Equal(t, []string{"open->closed", "closed->priced"}, changes)
}
