package exchange

import (
	"context"
	"time"

	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// OrderSide is the venue-facing side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "Buy"
	OrderSideSell OrderSide = "Sell"
)

// Opposite returns the closing side for a position opened on s.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// SideFor maps a trade side to the entry order side.
func SideFor(side types.TradeSide) OrderSide {
	if side == types.SideShort {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderKind selects the venue order type for an intent.
type OrderKind string

const (
	// KindPostOnlyLimit is a maker-only limit order; the venue rejects
	// it instead of crossing the book.
	KindPostOnlyLimit OrderKind = "post_only_limit"

	// KindMarket is an immediate taker order.
	KindMarket OrderKind = "market"

	// KindStopLimit is a stop order that becomes a limit order at
	// trigger, never a market order.
	KindStopLimit OrderKind = "stop_limit"

	// KindNativeTakeProfit is the venue's native take-profit order
	// type, used when maker TP placement fails.
	KindNativeTakeProfit OrderKind = "native_take_profit"
)

// FillKind records how a leg actually filled; it selects the fee rate
// applied at settlement.
type FillKind string

const (
	FillMaker FillKind = "maker"
	FillTaker FillKind = "taker"
)

// OrderIntent is one short-lived order placement attempt.
type OrderIntent struct {
	LinkID         string
	Side           OrderSide
	Amount         float64
	ReferencePrice float64
	Kind           OrderKind

	// LimitPrice applies to limit kinds; TriggerPrice to stop kinds.
	LimitPrice   float64
	TriggerPrice float64

	SlippageBufferRatio float64
	ReduceOnly          bool
}

// OrderStatus is the venue's view of a placed order.
type OrderStatus string

const (
	StatusNew             OrderStatus = "New"
	StatusPartiallyFilled OrderStatus = "PartiallyFilled"
	StatusFilled          OrderStatus = "Filled"
	StatusCancelled       OrderStatus = "Cancelled"
	StatusRejected        OrderStatus = "Rejected"
	StatusUntriggered     OrderStatus = "Untriggered"

	// StatusTriggered is a conditional order whose trigger fired; it is
	// live as a limit order from here.
	StatusTriggered OrderStatus = "Triggered"

	// StatusDeactivated is the venue's terminal state for a cancelled
	// conditional order.
	StatusDeactivated OrderStatus = "Deactivated"
)

// Terminal reports whether the status can no longer change.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected || s == StatusDeactivated
}

// Order is the venue acknowledgement for a placed or queried order.
type Order struct {
	OrderID   string
	LinkID    string
	Status    OrderStatus
	AvgPrice  float64
	FilledQty float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderOutcome summarizes one entry or protective placement after the
// execution state machine finishes with it. Exactly one of
// {maker filled, taker fallback filled, abandoned} holds.
type OrderOutcome struct {
	OrderID        string
	Filled         bool
	FallbackUsed   bool
	FillPrice      float64
	FilledQty      float64
	FillKind       FillKind
	FeeRateApplied float64
}

// Client is the abstract exchange surface the engine calls. Wire-level
// protocol details live behind implementations of this interface.
type Client interface {
	// PlaceOrder submits an intent and returns the acknowledgement.
	PlaceOrder(ctx context.Context, intent OrderIntent) (*Order, error)

	// GetOrder returns the current status of an order by venue ID.
	GetOrder(ctx context.Context, orderID string) (*Order, error)

	// CancelOrder cancels an order and confirms the cancellation.
	// It returns true only once the venue acknowledges the order is
	// no longer live.
	CancelOrder(ctx context.Context, orderID string) (bool, error)

	// GetBalance returns the tradable quote-currency balance.
	GetBalance(ctx context.Context) (float64, error)

	// GetOrderBook returns the current top-of-book snapshot.
	GetOrderBook(ctx context.Context) (types.OrderBookSnapshot, error)
}
