package pnl

import (
	"github.com/tradebot-labs/risk-engine/internal/config"
	"github.com/tradebot-labs/risk-engine/internal/exchange"
	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// Calculator is the only component permitted to apply a fee rate to a
// price-times-amount figure. Planning code estimates fees through the
// read-only helper on this same type; no other component computes or
// deducts a fee. (Independently re-deducted fees at multiple call
// sites are how a 0.24% intended round-trip cost becomes 0.60%.)
type Calculator struct {
	makerRate float64
	takerRate float64
}

// Breakdown is the exact fee decomposition of one settled trade.
type Breakdown struct {
	GrossPnL float64
	EntryFee float64
	ExitFee  float64
	NetPnL   float64
}

// NewCalculator creates the fee calculator. The maker rate may be
// negative on rebate venues.
func NewCalculator(fees config.FeesConfig) *Calculator {
	return &Calculator{
		makerRate: fees.MakerFeeRate,
		takerRate: fees.TakerFeeRate,
	}
}

// RateFor returns the fee rate for how a leg actually filled.
func (c *Calculator) RateFor(kind exchange.FillKind) float64 {
	if kind == exchange.FillMaker {
		return c.makerRate
	}
	return c.takerRate
}

// EstimateFee is the read-only planning helper: the fee a leg of the
// given notional would incur. Calling it never affects settlement.
func (c *Calculator) EstimateFee(price, amount float64, kind exchange.FillKind) float64 {
	return price * amount * c.RateFor(kind)
}

// EstimateRoundTripFee estimates entry plus exit cost for pre-trade
// planning, assuming both legs fill at the reference price.
func (c *Calculator) EstimateRoundTripFee(price, amount float64, entryKind, exitKind exchange.FillKind) float64 {
	return c.EstimateFee(price, amount, entryKind) + c.EstimateFee(price, amount, exitKind)
}

// Finalize combines gross PnL and both leg fees exactly once. The fee
// rate of each leg follows how that leg actually filled; entry and
// exit may use different rates. A negative fee (rebate) adds value.
func (c *Calculator) Finalize(entryPrice, exitPrice, amount float64, side types.TradeSide, entryFill, exitFill exchange.FillKind) Breakdown {
	gross := (exitPrice - entryPrice) * amount
	if side == types.SideShort {
		gross = -gross
	}

	entryFee := entryPrice * amount * c.RateFor(entryFill)
	exitFee := exitPrice * amount * c.RateFor(exitFill)

	return Breakdown{
		GrossPnL: gross,
		EntryFee: entryFee,
		ExitFee:  exitFee,
		NetPnL:   gross - entryFee - exitFee,
	}
}
