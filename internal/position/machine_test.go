package position

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-quant/upbit-engine/pkg/types"
)

func TestEntryLifecycle(t *testing.T) {
	m := New("u1", "KRW-BTC", "trend_following")
	require.NoError(t, m.Enter(decimal.NewFromInt(100), decimal.NewFromInt(1), time.Now()))
	assert.Equal(t, types.PositionEntering, m.Position().Status)

	require.NoError(t, m.ConfirmActive())
	assert.Equal(t, types.PositionActive, m.Position().Status)

	require.NoError(t, m.BeginExit())
	assert.Equal(t, types.PositionExiting, m.Position().Status)

	require.NoError(t, m.Close(decimal.NewFromInt(5), types.ExitTakeProfit, time.Now()))
	assert.Equal(t, types.PositionClosed, m.Position().Status)
	assert.False(t, m.Position().FinalExitTime.IsZero())
}

func TestStagedReentryAveragesPrice(t *testing.T) {
	m := New("u1", "KRW-BTC", "trend_following")
	require.NoError(t, m.Enter(decimal.NewFromInt(100), decimal.NewFromInt(1), time.Now()))
	require.NoError(t, m.ConfirmActive())
	require.NoError(t, m.Enter(decimal.NewFromInt(200), decimal.NewFromInt(1), time.Now()))

	assert.True(t, m.Position().AvgEntryPrice.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, 2, m.Position().EntryPhase)
}

func TestCannotEnterPastPhaseThree(t *testing.T) {
	m := New("u1", "KRW-BTC", "trend_following")
	require.NoError(t, m.Enter(decimal.NewFromInt(100), decimal.NewFromInt(1), time.Now()))
	require.NoError(t, m.ConfirmActive())
	require.NoError(t, m.Enter(decimal.NewFromInt(100), decimal.NewFromInt(1), time.Now()))
	require.NoError(t, m.Enter(decimal.NewFromInt(100), decimal.NewFromInt(1), time.Now()))

	err := m.Enter(decimal.NewFromInt(100), decimal.NewFromInt(1), time.Now())
	assert.Error(t, err)
}

func TestExitTriggerOrderHardStopWins(t *testing.T) {
	m := New("u1", "KRW-BTC", "trend_following")
	require.NoError(t, m.Enter(decimal.NewFromInt(100), decimal.NewFromInt(1), time.Now()))
	require.NoError(t, m.ConfirmActive())
	m.Position().StopLossPrice = decimal.NewFromInt(95)
	m.Position().TrailingArmed = true
	m.Position().TrailingStop = decimal.NewFromInt(98)

	trigger := m.EvaluateExitTriggers(decimal.NewFromInt(90), true, true)
	assert.Equal(t, TriggerHardStop, trigger)
}

func TestExitTriggerTrailingBeforeStrategySell(t *testing.T) {
	m := New("u1", "KRW-BTC", "trend_following")
	require.NoError(t, m.Enter(decimal.NewFromInt(100), decimal.NewFromInt(1), time.Now()))
	require.NoError(t, m.ConfirmActive())
	m.Position().StopLossPrice = decimal.NewFromInt(80)
	m.Position().TrailingArmed = true
	m.Position().TrailingStop = decimal.NewFromInt(98)

	trigger := m.EvaluateExitTriggers(decimal.NewFromInt(97), true, true)
	assert.Equal(t, TriggerTrailingStop, trigger)
}

func TestUpdateHighestArmsTrailingPastThreshold(t *testing.T) {
	m := New("u1", "KRW-BTC", "trend_following")
	require.NoError(t, m.Enter(decimal.NewFromInt(100), decimal.NewFromInt(1), time.Now()))
	require.NoError(t, m.ConfirmActive())

	m.UpdateHighest(decimal.NewFromInt(101), decimal.NewFromFloat(0.02))
	assert.False(t, m.Position().TrailingArmed)

	m.UpdateHighest(decimal.NewFromInt(103), decimal.NewFromFloat(0.02))
	assert.True(t, m.Position().TrailingArmed)
}

func TestEmergencyCloseForceClosesFromAnyNonClosedState(t *testing.T) {
	m := New("u1", "KRW-BTC", "trend_following")
	require.NoError(t, m.Enter(decimal.NewFromInt(100), decimal.NewFromInt(1), time.Now()))

	require.NoError(t, m.EmergencyClose(decimal.NewFromInt(-3), time.Now()))
	assert.Equal(t, types.PositionClosed, m.Position().Status)
	assert.Equal(t, types.ExitEmergencyClose, m.Position().ExitReason)
	assert.True(t, m.Position().RealizedPnL.Equal(decimal.NewFromInt(-3)))
	assert.False(t, m.Position().FinalExitTime.IsZero())
}

func TestEmergencyCloseRejectsAlreadyClosed(t *testing.T) {
	m := New("u1", "KRW-BTC", "trend_following")
	require.NoError(t, m.Enter(decimal.NewFromInt(100), decimal.NewFromInt(1), time.Now()))
	require.NoError(t, m.ConfirmActive())
	require.NoError(t, m.BeginExit())
	require.NoError(t, m.Close(decimal.Zero, types.ExitTakeProfit, time.Now()))

	err := m.EmergencyClose(decimal.NewFromInt(1), time.Now())
	assert.Error(t, err)
}
