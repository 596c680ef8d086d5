package risk

import (
	"sort"

	"github.com/tradecore/internal/models"
)

// Thresholds configures the loss-utilization levels that trigger a warning
// and a forced square-off.
type Thresholds struct {
	WarnUtilization      float64
	AutoCloseUtilization float64
}

// Decision is the advisory output of an auto-close evaluation. Candidates are
// expected to be closed by issuing orders through the execution service, never
// by mutating positions directly.
type Decision struct {
	Utilization      float64
	ShouldWarn       bool
	ShouldAutoClose  bool
	PositionsToClose []models.Position
}

// IsStopLossHit reports whether a position's stop loss has triggered.
// Long: price at or below stop. Short: price at or above stop.
func IsStopLossHit(quantity int64, currentPrice, stopLoss float64) bool {
	if quantity == 0 || stopLoss <= 0 {
		return false
	}
	if quantity > 0 {
		return currentPrice <= stopLoss
	}
	return currentPrice >= stopLoss
}

// IsTargetHit reports whether a position's target has triggered.
// Long: price at or above target. Short: price at or below target.
func IsTargetHit(quantity int64, currentPrice, target float64) bool {
	if quantity == 0 || target <= 0 {
		return false
	}
	if quantity > 0 {
		return currentPrice >= target
	}
	return currentPrice <= target
}

// MarginUtilization returns how much of total funds the aggregate unrealized
// loss has consumed. Profits count as zero loss; zero or negative funds return
// zero to avoid division errors.
func MarginUtilization(totalUnrealizedPnL, totalFunds float64) float64 {
	if totalFunds <= 0 {
		return 0
	}
	loss := -totalUnrealizedPnL
	if loss < 0 {
		loss = 0
	}
	return loss / totalFunds
}

// PickAutoCloseCandidates evaluates an account's positions against the
// configured thresholds. Candidates are the open losing positions sorted
// worst-P&L-first, capped at maxToClose when positive.
func PickAutoCloseCandidates(positions []models.Position, totalFunds float64, t Thresholds, maxToClose int) Decision {
	var totalUnrealized float64
	for _, p := range positions {
		totalUnrealized += p.UnrealizedPnL
	}

	utilization := MarginUtilization(totalUnrealized, totalFunds)
	decision := Decision{
		Utilization:     utilization,
		ShouldWarn:      utilization >= t.WarnUtilization,
		ShouldAutoClose: utilization >= t.AutoCloseUtilization,
	}
	if !decision.ShouldAutoClose {
		return decision
	}

	losing := make([]models.Position, 0, len(positions))
	for _, p := range positions {
		if p.IsOpen() && p.UnrealizedPnL < 0 {
			losing = append(losing, p)
		}
	}
	sort.Slice(losing, func(i, j int) bool {
		return losing[i].UnrealizedPnL < losing[j].UnrealizedPnL
	})
	if maxToClose > 0 && len(losing) > maxToClose {
		losing = losing[:maxToClose]
	}
	decision.PositionsToClose = losing
	return decision
}
