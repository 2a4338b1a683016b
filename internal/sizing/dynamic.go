package sizing

// DynamicSizer scales a base capital fraction by signal confidence and
// current volatility, independent of trade history. Volatility enters
// inversely: a wide ATR shrinks the fraction.
type DynamicSizer struct {
	baseFraction float64
	maxFraction  float64
}

// NewDynamicSizer creates a dynamic sizer around baseFraction.
func NewDynamicSizer(baseFraction, maxFraction float64) *DynamicSizer {
	return &DynamicSizer{
		baseFraction: baseFraction,
		maxFraction:  maxFraction,
	}
}

// Estimate returns the confidence- and volatility-scaled fraction.
// atrRatio is ATR divided by price; nil means the market data layer
// had insufficient history, in which case only the confidence scaling
// applies. Confidence 0.5 reproduces the base fraction.
func (d *DynamicSizer) Estimate(confidence float64, atrRatio *float64) float64 {
	fraction := d.baseFraction * (0.5 + confidence)

	if atrRatio != nil && *atrRatio > 0 {
		fraction *= 1.0 / (1.0 + *atrRatio*10)
	}

	if fraction > d.maxFraction {
		fraction = d.maxFraction
	}
	return fraction
}
