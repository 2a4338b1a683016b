package types

import "time"

// SignalAction is the directional instruction produced by the strategy layer.
type SignalAction string

const (
	ActionBuy  SignalAction = "Buy"
	ActionSell SignalAction = "Sell"
	ActionHold SignalAction = "Hold"
)

// TradeSignal is the strategy layer's output for one trading cycle.
// It is immutable and consumed exactly once per cycle.
type TradeSignal struct {
	Action     SignalAction
	Confidence float64 // [0, 1]

	// ATR values are nil when the market data layer has insufficient
	// history; callers must handle the missing case explicitly instead
	// of comparing against a silent zero.
	ATRCurrent *float64
	ATRRatio   *float64

	// TrendStrength is an independent trend measure (ADX-like, 0-100)
	// used by the drawdown manager's skip-cooldown exception.
	TrendStrength float64

	Timestamp time.Time
}

// Regime is a coarse market-volatility classification used to scale
// protective-order distances.
type Regime string

const (
	RegimeTightRange  Regime = "tight_range"
	RegimeNormalRange Regime = "normal_range"
	RegimeTrending    Regime = "trending"
)

// OrderBookSnapshot is the minimal top-of-book view the risk manager
// receives for pre-trade checks and maker pricing.
type OrderBookSnapshot struct {
	BestBid   float64
	BestAsk   float64
	BidVolume float64
	AskVolume float64
	Timestamp time.Time
}

// MidPrice returns the top-of-book midpoint.
func (ob OrderBookSnapshot) MidPrice() float64 {
	return (ob.BestBid + ob.BestAsk) / 2
}

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitManual     ExitReason = "manual"
)

// TradeSide is the direction of an opened position.
type TradeSide string

const (
	SideLong  TradeSide = "long"
	SideShort TradeSide = "short"
)

// TradeRecord is the persisted outcome of one round trip. It is created
// at entry, completed at exit and read-only once closed. Closed records
// feed the Kelly estimator's rolling window and the drawdown manager.
type TradeRecord struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	Side       TradeSide  `json:"side"`
	Amount     float64    `json:"amount"`
	EntryPrice float64    `json:"entry_price"`
	EntryFee   float64    `json:"entry_fee"`
	ExitPrice  float64    `json:"exit_price"`
	ExitFee    float64    `json:"exit_fee"`
	NetPnL     float64    `json:"net_pnl"`
	ExitReason ExitReason `json:"exit_reason"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   time.Time  `json:"closed_at"`
}

// IsWin reports whether the trade settled with a positive net PnL.
func (t TradeRecord) IsWin() bool {
	return t.NetPnL > 0
}
