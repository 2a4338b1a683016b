package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradebot-labs/risk-engine/pkg/types"
)

func tradesWithPnL(pnls ...float64) []types.TradeRecord {
	trades := make([]types.TradeRecord, len(pnls))
	for i, pnl := range pnls {
		trades[i] = types.TradeRecord{NetPnL: pnl}
	}
	return trades
}

func TestKellyEstimate_InsufficientHistoryUsesFloor(t *testing.T) {
	estimator := NewKellyEstimator(10, 0.01, 0.25)

	assert.Equal(t, 0.01, estimator.Estimate(nil))
	assert.Equal(t, 0.01, estimator.Estimate(tradesWithPnL(50, -20, 30)))
}

func TestKellyEstimate_KnownDistribution(t *testing.T) {
	estimator := NewKellyEstimator(4, 0.01, 0.25)

	// 3 wins of 100, 1 loss of 100: W=0.75, R=1.0, f = 0.75 - 0.25 = 0.5,
	// capped at max fraction.
	trades := tradesWithPnL(100, 100, 100, -100)
	assert.Equal(t, 0.25, estimator.Estimate(trades))

	// 2 wins of 50, 2 losses of 100: W=0.5, R=0.5, f = 0.5 - 1.0 < 0,
	// floored.
	trades = tradesWithPnL(50, 50, -100, -100)
	assert.Equal(t, 0.01, estimator.Estimate(trades))

	// 3 wins of 120, 2 losses of 60: W=0.6, R=2.0, f = 0.6 - 0.2 = 0.4,
	// capped.
	trades = tradesWithPnL(120, 120, 120, -60, -60)
	assert.Equal(t, 0.25, estimator.Estimate(trades))
}

func TestKellyEstimate_ModerateEdge(t *testing.T) {
	estimator := NewKellyEstimator(4, 0.01, 0.25)

	// 2 wins of 60, 2 losses of 50: W=0.5, R=1.2,
	// f = 0.5 - 0.5/1.2 = 0.0833...
	trades := tradesWithPnL(60, 60, -50, -50)
	assert.InDelta(t, 0.5-0.5/1.2, estimator.Estimate(trades), 1e-9)
}

func TestKellyEstimate_DegenerateHistories(t *testing.T) {
	estimator := NewKellyEstimator(3, 0.01, 0.25)

	// All losses: no payoff ratio, fall back to the floor.
	assert.Equal(t, 0.01, estimator.Estimate(tradesWithPnL(-10, -10, -10)))

	// All wins: cap rather than an unbounded fraction.
	assert.Equal(t, 0.25, estimator.Estimate(tradesWithPnL(10, 10, 10)))
}

func TestDynamicEstimate_ConfidenceScaling(t *testing.T) {
	sizer := NewDynamicSizer(0.02, 0.25)

	// Confidence 0.5 reproduces the base fraction.
	assert.InDelta(t, 0.02, sizer.Estimate(0.5, nil), 1e-12)
	assert.InDelta(t, 0.03, sizer.Estimate(1.0, nil), 1e-12)
	assert.InDelta(t, 0.01, sizer.Estimate(0.0, nil), 1e-12)
}

func TestDynamicEstimate_VolatilityShrinksSize(t *testing.T) {
	sizer := NewDynamicSizer(0.02, 0.25)

	calm := 0.005
	wild := 0.05
	base := sizer.Estimate(0.8, nil)

	assert.Less(t, sizer.Estimate(0.8, &calm), base)
	assert.Less(t, sizer.Estimate(0.8, &wild), sizer.Estimate(0.8, &calm))
}

func TestDynamicEstimate_CappedAtMaxFraction(t *testing.T) {
	sizer := NewDynamicSizer(0.2, 0.25)

	assert.Equal(t, 0.25, sizer.Estimate(1.0, nil))
}
