package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tradecore/internal/models"
)

func TestIsStopLossHit(t *testing.T) {
	// Long: triggers at or below stop
	assert.True(t, IsStopLossHit(100, 95, 95))
	assert.True(t, IsStopLossHit(100, 94, 95))
	assert.False(t, IsStopLossHit(100, 96, 95))

	// Short: triggers at or above stop
	assert.True(t, IsStopLossHit(-100, 105, 105))
	assert.True(t, IsStopLossHit(-100, 106, 105))
	assert.False(t, IsStopLossHit(-100, 104, 105))

	// Flat position or unset stop never triggers
	assert.False(t, IsStopLossHit(0, 90, 95))
	assert.False(t, IsStopLossHit(100, 90, 0))
}

func TestIsTargetHit(t *testing.T) {
	assert.True(t, IsTargetHit(100, 110, 110))
	assert.False(t, IsTargetHit(100, 109, 110))

	assert.True(t, IsTargetHit(-100, 90, 90))
	assert.False(t, IsTargetHit(-100, 91, 90))

	assert.False(t, IsTargetHit(0, 110, 110))
	assert.False(t, IsTargetHit(100, 110, 0))
}

func TestMarginUtilization(t *testing.T) {
	assert.Equal(t, 0.5, MarginUtilization(-5000, 10000))
	assert.Equal(t, 0.0, MarginUtilization(5000, 10000))
	assert.Equal(t, 0.0, MarginUtilization(-5000, 0))
	assert.Equal(t, 0.0, MarginUtilization(-5000, -100))
}

func TestPickAutoCloseCandidates(t *testing.T) {
	thresholds := Thresholds{WarnUtilization: 0.7, AutoCloseUtilization: 0.9}

	positions := []models.Position{
		{ID: 1, Quantity: 100, UnrealizedPnL: -6000},
		{ID: 2, Quantity: 50, UnrealizedPnL: -3500},
		{ID: 3, Quantity: 10, UnrealizedPnL: 200},
	}

	// 9300 loss on 10000 funds: past auto-close
	decision := PickAutoCloseCandidates(positions, 10000, thresholds, 10)
	assert.True(t, decision.ShouldWarn)
	assert.True(t, decision.ShouldAutoClose)
	assert.Len(t, decision.PositionsToClose, 2)
	// Worst loser first
	assert.Equal(t, uint(1), decision.PositionsToClose[0].ID)
	assert.Equal(t, uint(2), decision.PositionsToClose[1].ID)
}

func TestPickAutoCloseWarnOnly(t *testing.T) {
	thresholds := Thresholds{WarnUtilization: 0.7, AutoCloseUtilization: 0.9}

	positions := []models.Position{
		{ID: 1, Quantity: 100, UnrealizedPnL: -7500},
	}

	decision := PickAutoCloseCandidates(positions, 10000, thresholds, 10)
	assert.True(t, decision.ShouldWarn)
	assert.False(t, decision.ShouldAutoClose)
	assert.Empty(t, decision.PositionsToClose)
}

func TestPickAutoCloseCap(t *testing.T) {
	thresholds := Thresholds{WarnUtilization: 0.1, AutoCloseUtilization: 0.2}

	positions := []models.Position{
		{ID: 1, Quantity: 10, UnrealizedPnL: -1000},
		{ID: 2, Quantity: 10, UnrealizedPnL: -2000},
		{ID: 3, Quantity: 10, UnrealizedPnL: -3000},
	}

	decision := PickAutoCloseCandidates(positions, 10000, thresholds, 2)
	assert.True(t, decision.ShouldAutoClose)
	assert.Len(t, decision.PositionsToClose, 2)
	assert.Equal(t, uint(3), decision.PositionsToClose[0].ID)
}
