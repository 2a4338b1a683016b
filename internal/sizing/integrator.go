package sizing

import (
	"fmt"
	"math"

	"github.com/tradebot-labs/risk-engine/internal/config"
	"github.com/tradebot-labs/risk-engine/internal/errors"
	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// Weights is the fixed blend across the three estimators.
type Weights struct {
	Kelly   float64
	Dynamic float64
	Cap     float64
}

// Estimate is the full sizing breakdown for one trade opportunity.
type Estimate struct {
	KellyFraction      float64
	DynamicFraction    float64
	BalanceCapFraction float64
	Weights            Weights

	// IntegratedFraction is the weighted sum, after clamping to the
	// per-trade balance-ratio cap.
	IntegratedFraction float64

	// NotionalQuote is IntegratedFraction applied to the available
	// balance, in quote currency.
	NotionalQuote float64

	// Quantity is the base-currency amount after lot rounding. Never
	// below the exchange minimum lot.
	Quantity float64
}

// HistoryEstimator produces a capital fraction from settled trade
// history.
type HistoryEstimator interface {
	Estimate(history []types.TradeRecord) float64
}

// VolatilityEstimator produces a capital fraction from confidence and
// current volatility, independent of history.
type VolatilityEstimator interface {
	Estimate(confidence float64, atrRatio *float64) float64
}

// Integrator combines the Kelly estimator, the dynamic sizer and the
// static balance-ratio cap into one final size via a fixed weighted
// average. A weighted blend is used instead of min-of-three: a minimum
// lets any single conservative estimator silently dominate the others.
// Pure computation; the integrator owns no persistent state.
type Integrator struct {
	kelly   HistoryEstimator
	dynamic VolatilityEstimator
	cfg     config.SizingConfig
	weights Weights
}

// NewIntegrator builds the integrator from validated configuration.
func NewIntegrator(cfg config.SizingConfig) *Integrator {
	return NewIntegratorWith(
		NewKellyEstimator(cfg.KellyMinTrades, cfg.KellyFloorFraction, cfg.MaxFraction),
		NewDynamicSizer(cfg.DynamicBaseFraction, cfg.MaxFraction),
		cfg,
	)
}

// NewIntegratorWith builds the integrator around explicit estimators.
func NewIntegratorWith(kelly HistoryEstimator, dynamic VolatilityEstimator, cfg config.SizingConfig) *Integrator {
	return &Integrator{
		kelly:   kelly,
		dynamic: dynamic,
		cfg:     cfg,
		weights: Weights{Kelly: cfg.KellyWeight, Dynamic: cfg.DynamicWeight, Cap: cfg.CapWeight},
	}
}

// Compute produces the sizing estimate for one opportunity.
// refPrice converts the quote notional into base units; atrRatio may
// be nil when volatility history is insufficient.
func (i *Integrator) Compute(confidence float64, history []types.TradeRecord, availableBalance float64, atrRatio *float64, refPrice float64) (*Estimate, error) {
	if confidence < 0 || confidence > 1 || math.IsNaN(confidence) {
		return nil, errors.NewInvalidInput("sizing", "compute", fmt.Sprintf("confidence must be in [0,1], got %v", confidence))
	}
	if availableBalance <= 0 {
		return nil, errors.NewInvalidInput("sizing", "compute", fmt.Sprintf("available balance must be positive, got %.2f", availableBalance))
	}
	if refPrice <= 0 {
		return nil, errors.NewInvalidInput("sizing", "compute", fmt.Sprintf("reference price must be positive, got %.2f", refPrice))
	}

	kellyFraction := i.kelly.Estimate(history)
	dynamicFraction := i.dynamic.Estimate(confidence, atrRatio)
	capFraction := i.cfg.MaxRatioFor(confidence)

	integrated := i.weights.Kelly*kellyFraction +
		i.weights.Dynamic*dynamicFraction +
		i.weights.Cap*capFraction

	// The blend can exceed the tier cap when the cap estimator is the
	// smallest input; the cap stays the hard ceiling.
	if integrated > capFraction {
		integrated = capFraction
	}

	notional := integrated * availableBalance

	quantity := i.roundToLotStep(notional / refPrice)
	if quantity < i.cfg.MinLotSize {
		// Prefer the minimum tradeable lot over rejecting the trade:
		// a strict below-minimum rejection suppresses nearly all
		// trades on small balances.
		quantity = i.cfg.MinLotSize
	}

	return &Estimate{
		KellyFraction:      kellyFraction,
		DynamicFraction:    dynamicFraction,
		BalanceCapFraction: capFraction,
		Weights:            i.weights,
		IntegratedFraction: integrated,
		NotionalQuote:      notional,
		Quantity:           quantity,
	}, nil
}

// roundToLotStep floors the quantity to the exchange lot increment.
func (i *Integrator) roundToLotStep(quantity float64) float64 {
	steps := math.Floor(quantity / i.cfg.LotStep)
	return steps * i.cfg.LotStep
}
