package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tradebot-labs/risk-engine/internal/config"
	engerr "github.com/tradebot-labs/risk-engine/internal/errors"
	"github.com/tradebot-labs/risk-engine/internal/exchange"
	"github.com/tradebot-labs/risk-engine/internal/logger"
	"github.com/tradebot-labs/risk-engine/internal/pnl"
	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// EntryState is the phase of one entry attempt. Transitions are strictly
// forward; a finished attempt is either Filled or Abandoned, never both.
type EntryState string

const (
	StateIdle          EntryState = "idle"
	StateMakerPending  EntryState = "maker_pending"
	StateMakerTimedOut EntryState = "maker_timed_out"
	StateTakerFallback EntryState = "taker_fallback"
	StateFilled        EntryState = "filled"
	StateAbandoned     EntryState = "abandoned"
)

// EntryExecutor runs the maker-first entry flow: a post-only limit at
// the passive side of the book, a bounded fill-poll, a confirmed cancel,
// then an optional market fallback. At most one live entry order exists
// at any instant.
type EntryExecutor struct {
	client exchange.Client
	fees   *pnl.Calculator
	cfg    config.ExecutionConfig
	log    *logger.Logger

	// sleep is replaceable in tests to run the poll loop without
	// real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEntryExecutor creates the entry executor.
func NewEntryExecutor(client exchange.Client, fees *pnl.Calculator, cfg config.ExecutionConfig, log *logger.Logger) *EntryExecutor {
	return &EntryExecutor{
		client: client,
		fees:   fees,
		cfg:    cfg,
		log:    log,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// makerPrice returns the passive price for the side: joining the bid
// when buying, the ask when selling. Never crosses the spread.
func makerPrice(side exchange.OrderSide, book types.OrderBookSnapshot) float64 {
	if side == exchange.OrderSideBuy {
		return book.BestBid
	}
	return book.BestAsk
}

// Execute places an entry of the given size and returns how it filled.
// The returned outcome is exclusive: maker fill, taker fallback fill,
// or abandoned with Filled=false. An error accompanies only abandoned
// or failed attempts.
func (e *EntryExecutor) Execute(ctx context.Context, side types.TradeSide, amount float64, book types.OrderBookSnapshot) (*exchange.OrderOutcome, error) {
	if amount <= 0 {
		return nil, engerr.NewInvalidInput("execution", "entry", "non-positive order amount")
	}
	if book.BestBid <= 0 || book.BestAsk <= 0 || book.BestAsk < book.BestBid {
		return nil, engerr.NewInvalidInput("execution", "entry", "order book snapshot is unusable")
	}

	orderSide := exchange.SideFor(side)
	limitPrice := makerPrice(orderSide, book)

	e.transition(StateIdle, StateMakerPending, fmt.Sprintf("post-only %s %.8f @ %.2f", orderSide, amount, limitPrice))

	maker, err := e.client.PlaceOrder(ctx, exchange.OrderIntent{
		LinkID:         uuid.NewString(),
		Side:           orderSide,
		Amount:         amount,
		ReferencePrice: book.MidPrice(),
		Kind:           exchange.KindPostOnlyLimit,
		LimitPrice:     limitPrice,
	})
	if err != nil {
		// Post-only placement that the venue refused (it would have
		// crossed) behaves like an immediate timeout: straight to
		// fallback, no order to cancel.
		if engerr.CategoryOf(err) == engerr.CategoryInvalidInput {
			e.transition(StateMakerPending, StateMakerTimedOut, "post-only rejected by venue")
			return e.fallback(ctx, orderSide, amount, book, err)
		}
		return nil, fmt.Errorf("place maker entry: %w", err)
	}

	filled, final, err := e.awaitMakerFill(ctx, maker.OrderID)
	if err != nil {
		// The cycle deadline expired with the post-only order still
		// live. It must not stay resting into the next cycle; reconcile
		// it now, and keep any fill the reconciliation uncovers.
		if out := e.reconcileAtDeadline(maker.OrderID); out != nil {
			return out, nil
		}
		return nil, err
	}
	if filled {
		e.transition(StateMakerPending, StateFilled, fmt.Sprintf("maker filled %.8f @ %.2f", final.FilledQty, final.AvgPrice))
		return e.outcome(final, exchange.FillMaker, false), nil
	}

	e.transition(StateMakerPending, StateMakerTimedOut, "maker fill window elapsed")

	// Cancel and confirm before any fallback. The order may fill while
	// the cancel is in flight; only the post-cancel status decides.
	confirmed, err := e.client.CancelOrder(ctx, maker.OrderID)
	if err != nil {
		return nil, fmt.Errorf("cancel maker entry %s: %w", maker.OrderID, err)
	}
	if !confirmed {
		return nil, engerr.New(engerr.CategoryTransientExchange, "execution", "entry",
			fmt.Sprintf("cancel of order %s unconfirmed, refusing fallback", maker.OrderID))
	}

	final, err = e.client.GetOrder(ctx, maker.OrderID)
	if err != nil {
		return nil, fmt.Errorf("query maker entry %s after cancel: %w", maker.OrderID, err)
	}
	if final.Status == exchange.StatusFilled {
		// Won the race against the cancel.
		e.transition(StateMakerTimedOut, StateFilled, fmt.Sprintf("maker filled during cancel %.8f @ %.2f", final.FilledQty, final.AvgPrice))
		return e.outcome(final, exchange.FillMaker, false), nil
	}

	remaining := amount - final.FilledQty
	if final.FilledQty > 0 && remaining > 0 {
		// Partial maker fill survives; only the remainder goes taker.
		e.log.Order("Maker entry %s partially filled %.8f of %.8f before cancel", maker.OrderID, final.FilledQty, amount)
		out, err := e.fallback(ctx, orderSide, remaining, book, nil)
		if err != nil {
			return nil, err
		}
		return e.blend(final, out), nil
	}

	return e.fallback(ctx, orderSide, amount, book, nil)
}

// reconcileTimeout bounds the fresh context used to clean up an entry
// order abandoned by an expired cycle deadline.
const reconcileTimeout = 10 * time.Second

// reconcileAtDeadline cancels and confirms an entry order left live at
// the cycle deadline, on a short context of its own. When the order
// turns out to have filled (fully or partially) it returns the maker
// outcome so the caller can protect the position; otherwise nil, and
// the deadline error stands.
func (e *EntryExecutor) reconcileAtDeadline(orderID string) *exchange.OrderOutcome {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()

	confirmed, err := e.client.CancelOrder(ctx, orderID)
	if err != nil {
		e.log.Critical("Entry order %s left unreconciled at cycle deadline: %v", orderID, err)
		return nil
	}
	if !confirmed {
		e.log.Critical("Entry order %s cancellation unconfirmed at cycle deadline", orderID)
		return nil
	}

	final, err := e.client.GetOrder(ctx, orderID)
	if err != nil {
		e.log.Critical("Entry order %s status unknown after deadline cancel: %v", orderID, err)
		return nil
	}
	if final.FilledQty > 0 {
		e.transition(StateMakerPending, StateFilled, fmt.Sprintf("maker filled %.8f @ %.2f at cycle deadline", final.FilledQty, final.AvgPrice))
		return e.outcome(final, exchange.FillMaker, false)
	}
	e.transition(StateMakerPending, StateAbandoned, "cancelled at cycle deadline")
	return nil
}

// awaitMakerFill polls the order until it fills, terminates, or the
// retry budget runs out. Returns (filled, latest order, error).
func (e *EntryExecutor) awaitMakerFill(ctx context.Context, orderID string) (bool, *exchange.Order, error) {
	var last *exchange.Order
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		if err := e.sleep(ctx, e.cfg.RetryInterval.Std()); err != nil {
			return false, nil, err
		}

		order, err := e.client.GetOrder(ctx, orderID)
		if err != nil {
			if engerr.IsTransient(err) {
				continue
			}
			return false, nil, fmt.Errorf("poll maker entry %s: %w", orderID, err)
		}
		last = order

		switch order.Status {
		case exchange.StatusFilled:
			return true, order, nil
		case exchange.StatusCancelled, exchange.StatusRejected:
			return false, order, nil
		}
	}
	return false, last, nil
}

// fallback places the market leg, or abandons the attempt when
// fallback is disabled. placementErr, when set, is the maker-side
// error that forced the fallback.
func (e *EntryExecutor) fallback(ctx context.Context, side exchange.OrderSide, amount float64, book types.OrderBookSnapshot, placementErr error) (*exchange.OrderOutcome, error) {
	if !e.cfg.FallbackToTaker {
		e.transition(StateMakerTimedOut, StateAbandoned, "taker fallback disabled")
		return &exchange.OrderOutcome{Filled: false}, engerr.New(engerr.CategoryTransientExchange, "execution", "entry",
			"maker entry did not fill and taker fallback is disabled")
	}

	e.transition(StateMakerTimedOut, StateTakerFallback, fmt.Sprintf("market %s %.8f", side, amount))

	order, err := e.client.PlaceOrder(ctx, exchange.OrderIntent{
		LinkID:         uuid.NewString(),
		Side:           side,
		Amount:         amount,
		ReferencePrice: book.MidPrice(),
		Kind:           exchange.KindMarket,
	})
	if err != nil {
		e.transition(StateTakerFallback, StateAbandoned, "market fallback failed")
		if placementErr != nil {
			return &exchange.OrderOutcome{Filled: false}, fmt.Errorf("taker fallback after maker rejection (%v): %w", placementErr, err)
		}
		return &exchange.OrderOutcome{Filled: false}, fmt.Errorf("taker fallback: %w", err)
	}

	// Market orders fill synchronously on the venues we target, but the
	// acknowledgement may lag. Confirm before reporting.
	if order.Status != exchange.StatusFilled {
		order, err = e.client.GetOrder(ctx, order.OrderID)
		if err != nil {
			return nil, fmt.Errorf("confirm taker fill %s: %w", order.OrderID, err)
		}
		if order.Status != exchange.StatusFilled {
			e.transition(StateTakerFallback, StateAbandoned, "market order did not fill")
			return &exchange.OrderOutcome{Filled: false}, engerr.New(engerr.CategoryTransientExchange, "execution", "entry",
				fmt.Sprintf("market order %s not filled (status %s)", order.OrderID, order.Status))
		}
	}

	e.transition(StateTakerFallback, StateFilled, fmt.Sprintf("taker filled %.8f @ %.2f", order.FilledQty, order.AvgPrice))
	return e.outcome(order, exchange.FillTaker, true), nil
}

func (e *EntryExecutor) outcome(order *exchange.Order, kind exchange.FillKind, fallbackUsed bool) *exchange.OrderOutcome {
	return &exchange.OrderOutcome{
		OrderID:        order.OrderID,
		Filled:         true,
		FallbackUsed:   fallbackUsed,
		FillPrice:      order.AvgPrice,
		FilledQty:      order.FilledQty,
		FillKind:       kind,
		FeeRateApplied: e.fees.RateFor(kind),
	}
}

// blend combines a partial maker fill with its taker remainder into one
// outcome. The taker rate applies to the whole: planning must never
// assume a cheaper blend than what could actually occur.
func (e *EntryExecutor) blend(makerLeg *exchange.Order, taker *exchange.OrderOutcome) *exchange.OrderOutcome {
	total := makerLeg.FilledQty + taker.FilledQty
	price := taker.FillPrice
	if total > 0 {
		price = (makerLeg.AvgPrice*makerLeg.FilledQty + taker.FillPrice*taker.FilledQty) / total
	}
	return &exchange.OrderOutcome{
		OrderID:        taker.OrderID,
		Filled:         true,
		FallbackUsed:   true,
		FillPrice:      price,
		FilledQty:      total,
		FillKind:       exchange.FillTaker,
		FeeRateApplied: e.fees.RateFor(exchange.FillTaker),
	}
}

func (e *EntryExecutor) transition(from, to EntryState, detail string) {
	e.log.Order("Entry %s -> %s: %s", from, to, detail)
}
