package reporting

import (
	"math"
	"time"

	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// SessionSummary aggregates a set of settled trades into the figures
// the console and file reporters print.
type SessionSummary struct {
	Symbol string

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64

	GrossPnL  float64
	TotalFees float64
	NetPnL    float64

	ProfitFactor float64
	AvgWin       float64
	AvgLoss      float64
	LargestWin   float64
	LargestLoss  float64

	TakeProfitExits int
	StopLossExits   int

	FirstOpened time.Time
	LastClosed  time.Time
}

// Summarize computes the session summary from settled trades. An empty
// slice produces a zero summary with no division artifacts.
func Summarize(symbol string, trades []types.TradeRecord) SessionSummary {
	s := SessionSummary{Symbol: symbol, TotalTrades: len(trades)}
	if len(trades) == 0 {
		return s
	}

	var grossWins, grossLosses float64
	s.FirstOpened = trades[0].OpenedAt
	s.LastClosed = trades[0].ClosedAt

	for _, t := range trades {
		gross := t.NetPnL + t.EntryFee + t.ExitFee
		s.GrossPnL += gross
		s.TotalFees += t.EntryFee + t.ExitFee
		s.NetPnL += t.NetPnL

		if t.IsWin() {
			s.WinningTrades++
			grossWins += t.NetPnL
			if t.NetPnL > s.LargestWin {
				s.LargestWin = t.NetPnL
			}
		} else {
			s.LosingTrades++
			grossLosses += -t.NetPnL
			if t.NetPnL < s.LargestLoss {
				s.LargestLoss = t.NetPnL
			}
		}

		switch t.ExitReason {
		case types.ExitTakeProfit:
			s.TakeProfitExits++
		case types.ExitStopLoss:
			s.StopLossExits++
		}

		if t.OpenedAt.Before(s.FirstOpened) {
			s.FirstOpened = t.OpenedAt
		}
		if t.ClosedAt.After(s.LastClosed) {
			s.LastClosed = t.ClosedAt
		}
	}

	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
	if s.WinningTrades > 0 {
		s.AvgWin = grossWins / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AvgLoss = -grossLosses / float64(s.LosingTrades)
	}
	if grossLosses > 0 {
		s.ProfitFactor = grossWins / grossLosses
	} else if grossWins > 0 {
		s.ProfitFactor = math.Inf(1)
	}
	return s
}
