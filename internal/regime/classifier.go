package regime

import "github.com/tradebot-labs/risk-engine/pkg/types"

// Default ATR-ratio boundaries between volatility regimes. The ratio
// is ATR divided by price, so 0.005 is half a percent of price per
// candle.
const (
	DefaultTightThreshold    = 0.002
	DefaultTrendingThreshold = 0.008
)

// Classifier maps the ATR ratio onto the coarse volatility regime used
// to scale protective-order distances. It is the fallback for signals
// that do not carry an explicit regime.
type Classifier struct {
	tightThreshold    float64
	trendingThreshold float64
}

// NewClassifier creates a classifier with the default boundaries.
func NewClassifier() *Classifier {
	return &Classifier{
		tightThreshold:    DefaultTightThreshold,
		trendingThreshold: DefaultTrendingThreshold,
	}
}

// NewClassifierWithThresholds creates a classifier with custom
// boundaries. tight must be below trending.
func NewClassifierWithThresholds(tight, trending float64) *Classifier {
	if tight >= trending {
		return NewClassifier()
	}
	return &Classifier{tightThreshold: tight, trendingThreshold: trending}
}

// Classify returns the regime for an ATR ratio. A nil ratio classifies
// as the normal range, the neutral multiplier.
func (c *Classifier) Classify(atrRatio *float64) types.Regime {
	if atrRatio == nil {
		return types.RegimeNormalRange
	}
	switch {
	case *atrRatio < c.tightThreshold:
		return types.RegimeTightRange
	case *atrRatio > c.trendingThreshold:
		return types.RegimeTrending
	default:
		return types.RegimeNormalRange
	}
}
