package sizing

import (
	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// KellyEstimator derives an optimal capital fraction from the rolling
// trade-outcome window. It holds no state of its own; the window is
// passed in on every call so the risk manager stays the single owner
// of trade history.
type KellyEstimator struct {
	minTrades     int
	floorFraction float64
	maxFraction   float64
}

// NewKellyEstimator creates a Kelly estimator. With fewer than
// minTrades settled trades the estimator returns floorFraction, a
// conservative configured default.
func NewKellyEstimator(minTrades int, floorFraction, maxFraction float64) *KellyEstimator {
	return &KellyEstimator{
		minTrades:     minTrades,
		floorFraction: floorFraction,
		maxFraction:   maxFraction,
	}
}

// Estimate computes the Kelly fraction f = W - (1-W)/R from the win
// rate W and the payoff ratio R of the supplied history. The result is
// clamped to [floorFraction, maxFraction]: a negative or tiny Kelly
// collapses to the floor rather than suppressing trades outright.
func (k *KellyEstimator) Estimate(history []types.TradeRecord) float64 {
	if len(history) < k.minTrades {
		return k.floorFraction
	}

	var wins, losses int
	var winSum, lossSum float64
	for _, t := range history {
		if t.IsWin() {
			wins++
			winSum += t.NetPnL
		} else {
			losses++
			lossSum += -t.NetPnL
		}
	}

	// All wins or all losses give no usable payoff ratio.
	if wins == 0 {
		return k.floorFraction
	}
	if losses == 0 || lossSum <= 0 {
		return k.maxFraction
	}

	winRate := float64(wins) / float64(len(history))
	avgWin := winSum / float64(wins)
	avgLoss := lossSum / float64(losses)
	payoffRatio := avgWin / avgLoss

	fraction := winRate - (1-winRate)/payoffRatio

	if fraction < k.floorFraction {
		return k.floorFraction
	}
	if fraction > k.maxFraction {
		return k.maxFraction
	}
	return fraction
}
