package pnl

import (
	"time"

	"github.com/google/uuid"

	"github.com/tradebot-labs/risk-engine/internal/exchange"
	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// Journal persists settled trades append-only.
type Journal interface {
	Append(record types.TradeRecord) error
}

// Reporter owns the TradeRecord lifecycle: created at entry, completed
// exactly once at exit, persisted, then read-only. It is the single
// settlement surface the rest of the engine talks to.
type Reporter struct {
	calc    *Calculator
	journal Journal
	symbol  string

	session []types.TradeRecord
}

// NewReporter wires the reporter around the fee calculator and the
// trade journal.
func NewReporter(calc *Calculator, journal Journal, symbol string) *Reporter {
	return &Reporter{calc: calc, journal: journal, symbol: symbol}
}

// Calculator exposes the read-only fee estimation surface for
// planning code.
func (r *Reporter) Calculator() *Calculator {
	return r.calc
}

// OpenTrade creates the record for a filled entry. The entry fee is
// computed here, once, from the actual fill.
func (r *Reporter) OpenTrade(side types.TradeSide, amount float64, entry exchange.OrderOutcome, openedAt time.Time) types.TradeRecord {
	return types.TradeRecord{
		ID:         uuid.NewString(),
		Symbol:     r.symbol,
		Side:       side,
		Amount:     amount,
		EntryPrice: entry.FillPrice,
		EntryFee:   r.calc.EstimateFee(entry.FillPrice, amount, entry.FillKind),
		OpenedAt:   openedAt,
	}
}

// FinalizeTrade completes an open record from the exit fill, persists
// it and returns the settled copy. This is the only place net PnL is
// computed.
func (r *Reporter) FinalizeTrade(record types.TradeRecord, exit exchange.OrderOutcome, entryFill exchange.FillKind, reason types.ExitReason, closedAt time.Time) (types.TradeRecord, error) {
	breakdown := r.calc.Finalize(record.EntryPrice, exit.FillPrice, record.Amount, record.Side, entryFill, exit.FillKind)

	record.ExitPrice = exit.FillPrice
	record.EntryFee = breakdown.EntryFee
	record.ExitFee = breakdown.ExitFee
	record.NetPnL = breakdown.NetPnL
	record.ExitReason = reason
	record.ClosedAt = closedAt

	if err := r.journal.Append(record); err != nil {
		return record, err
	}
	r.session = append(r.session, record)
	return record, nil
}

// SessionTrades returns the trades settled during this session, in
// settlement order.
func (r *Reporter) SessionTrades() []types.TradeRecord {
	out := make([]types.TradeRecord, len(r.session))
	copy(out, r.session)
	return out
}
