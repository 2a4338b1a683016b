package bot

import (
	"context"
	"time"

	engerr "github.com/tradebot-labs/risk-engine/internal/errors"
	"github.com/tradebot-labs/risk-engine/internal/exchange"
	"github.com/tradebot-labs/risk-engine/internal/execution"
	"github.com/tradebot-labs/risk-engine/internal/monitoring"
	"github.com/tradebot-labs/risk-engine/internal/risk"
	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// CycleInput is one strategy-layer tick: the signal, the book it was
// computed against, and the regime classification for stop scaling.
type CycleInput struct {
	Signal types.TradeSignal
	Book   types.OrderBookSnapshot
	Regime types.Regime
}

// exitPollInterval bounds how often the engine re-queries protective
// orders while a position is open.
const exitPollInterval = 5 * time.Second

// RunCycle executes one full trade lifecycle under the cycle deadline:
// fresh balance, risk evaluation, maker-first entry, protection, then
// a watch loop until the position closes. Rejections and skipped
// cycles return quietly; anything touching an open position does not.
func (e *Engine) RunCycle(parent context.Context, input CycleInput) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Critical("Cycle panic recovered: %v", r)
			monitoring.RecordError(string(engerr.CategoryInternal))
		}
	}()

	ctx, cancel := context.WithTimeout(parent, e.cfg.Execution.CycleTimeout.Std())
	defer cancel()

	symbol := e.cfg.Exchange.Symbol

	// Balance is fetched fresh every cycle; a cached balance after a
	// losing streak is how oversized positions happen.
	balance, err := e.client.GetBalance(ctx)
	if err != nil {
		e.log.LogError("balance refresh", err)
		e.health.ReportError("balance refresh failed")
		monitoring.RecordError(string(engerr.CategoryOf(err)))
		return
	}
	monitoring.UpdateBalance(symbol, balance)

	decision := e.risk.EvaluateTradeOpportunity(input.Signal, balance, input.Book)
	monitoring.RecordDecision(symbol, decision.Approved, string(decision.Reason))

	dd := e.risk.DrawdownState()
	paused := dd.State == risk.BreakerPaused
	monitoring.UpdateDrawdown(symbol, dd.CumulativeDrawdown, paused)
	e.health.SetBreakerPaused(paused)

	if !decision.Approved {
		e.log.Decision("Rejected [%s]: %s", decision.Reason, decision.Detail)
		e.health.MarkCycle(input.Book.MidPrice())
		return
	}

	if input.Signal.ATRCurrent == nil || *input.Signal.ATRCurrent <= 0 {
		// An entry that cannot be protected is not placed at all.
		e.log.Decision("Approved size %.8f but ATR unusable, skipping entry", decision.Size.Quantity)
		e.health.MarkCycle(input.Book.MidPrice())
		return
	}
	atr := *input.Signal.ATRCurrent

	entryOut, err := e.entry.Execute(ctx, decision.Side, decision.Size.Quantity, input.Book)
	if err != nil || !entryOut.Filled {
		if err != nil {
			e.log.LogError("entry execution", err)
			monitoring.RecordError(string(engerr.CategoryOf(err)))
		}
		monitoring.RecordOrder(symbol, "entry", "unfilled")
		e.health.MarkCycle(input.Book.MidPrice())
		return
	}
	if entryOut.FallbackUsed {
		monitoring.RecordTakerFallback(symbol)
	}
	monitoring.RecordOrder(symbol, "entry", string(entryOut.FillKind))
	e.risk.RecordEntry(decision.Side, entryOut.FilledQty)

	record := e.reporter.OpenTrade(decision.Side, entryOut.FilledQty, *entryOut, time.Now())
	e.log.Order("Position opened: %s %.8f @ %.2f (%s)", decision.Side, record.Amount, record.EntryPrice, entryOut.FillKind)

	protection, err := e.stops.Protect(ctx, decision.Side, record.Amount, entryOut.FillPrice, atr, input.Regime)
	if err != nil {
		if protection == nil {
			// Filled entry with no stop-loss, whatever the failure
			// category. The position is left for manual intervention
			// rather than auto-closed at an arbitrary price.
			e.log.Critical("Position remains unprotected, manual intervention required: %v", err)
			monitoring.RecordProtectionFailure(symbol, "stop_loss")
			e.health.ReportError("unprotected position")
			return
		}
		// Stop-loss is live; only the take-profit is missing.
		monitoring.RecordProtectionFailure(symbol, "take_profit")
	}

	settled, ok := e.watchExit(parent, record, entryOut.FillKind, protection)
	if !ok {
		return
	}

	exitBalance, err := e.client.GetBalance(parent)
	if err != nil {
		// Settlement must still reach the risk layer; approximate the
		// realized balance from the recorded PnL.
		e.log.LogError("post-exit balance refresh", err)
		exitBalance = balance + settled.NetPnL
	}
	e.risk.RecordSettlement(settled, exitBalance)

	e.sessionPnL += settled.NetPnL
	monitoring.UpdateSessionPnL(symbol, e.sessionPnL)
	monitoring.UpdateBalance(symbol, exitBalance)
	e.log.Order("Position closed [%s]: net PnL %.2f (session %.2f)", settled.ExitReason, settled.NetPnL, e.sessionPnL)
	e.health.MarkCycle(settled.ExitPrice)
}

// watchExit polls the protective pair until one fills, then cancels
// the survivor with confirmation and finalizes the trade. Returns
// ok=false when the watch was interrupted before an exit.
func (e *Engine) watchExit(ctx context.Context, record types.TradeRecord, entryFill exchange.FillKind, protection *execution.ProtectionResult) (types.TradeRecord, bool) {
	ticker := time.NewTicker(e.exitPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Warning("Exit watch interrupted with position open, protective orders remain live")
			return types.TradeRecord{}, false
		case <-e.stopChan:
			e.log.Warning("Shutdown with position open, protective orders remain live")
			return types.TradeRecord{}, false
		case <-ticker.C:
		}

		if protection.TPOrderID != "" {
			if order := e.queryOrder(ctx, protection.TPOrderID); order != nil && order.Status == exchange.StatusFilled {
				e.cancelSurvivor(ctx, protection.SLOrderID)
				kind := exchange.FillMaker
				if protection.NativeTPUsed {
					kind = exchange.FillTaker
				}
				return e.finalize(record, order, entryFill, kind, types.ExitTakeProfit)
			}
		}

		if order := e.queryOrder(ctx, protection.SLOrderID); order != nil && order.Status == exchange.StatusFilled {
			e.cancelSurvivor(ctx, protection.TPOrderID)
			return e.finalize(record, order, entryFill, exchange.FillTaker, types.ExitStopLoss)
		}
	}
}

func (e *Engine) queryOrder(ctx context.Context, orderID string) *exchange.Order {
	if orderID == "" {
		return nil
	}
	order, err := e.client.GetOrder(ctx, orderID)
	if err != nil {
		if !engerr.IsTransient(err) {
			e.log.LogError("protective order poll", err)
		}
		return nil
	}
	return order
}

func (e *Engine) cancelSurvivor(ctx context.Context, orderID string) {
	if orderID == "" {
		return
	}
	confirmed, err := e.client.CancelOrder(ctx, orderID)
	if err != nil {
		e.log.LogError("cancel surviving protective order", err)
		return
	}
	if !confirmed {
		e.log.Warning("Surviving protective order %s cancellation unconfirmed", orderID)
	}
}

func (e *Engine) finalize(record types.TradeRecord, exitOrder *exchange.Order, entryFill, exitFill exchange.FillKind, reason types.ExitReason) (types.TradeRecord, bool) {
	out := exchange.OrderOutcome{
		OrderID:   exitOrder.OrderID,
		Filled:    true,
		FillPrice: exitOrder.AvgPrice,
		FilledQty: exitOrder.FilledQty,
		FillKind:  exitFill,
	}
	settled, err := e.reporter.FinalizeTrade(record, out, entryFill, reason, time.Now())
	if err != nil {
		// The settlement stands even when persistence lags; the journal
		// error is surfaced, not swallowed.
		e.log.LogError("journal append", err)
		e.health.ReportError("journal append failed")
	}
	monitoring.RecordOrder(e.cfg.Exchange.Symbol, "exit", string(exitFill))
	return settled, true
}
