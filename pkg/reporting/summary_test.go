package reporting

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradebot-labs/risk-engine/pkg/types"
)

func sessionTrades() []types.TradeRecord {
	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	return []types.TradeRecord{
		{
			ID: "w1", Symbol: "BTCUSDT", Side: types.SideLong, Amount: 0.1,
			EntryPrice: 50000, ExitPrice: 50500,
			EntryFee: -1.0, ExitFee: -1.01, NetPnL: 52.01,
			ExitReason: types.ExitTakeProfit,
			OpenedAt:   base, ClosedAt: base.Add(time.Hour),
		},
		{
			ID: "l1", Symbol: "BTCUSDT", Side: types.SideLong, Amount: 0.1,
			EntryPrice: 50500, ExitPrice: 50100,
			EntryFee: 6.06, ExitFee: 6.01, NetPnL: -52.07,
			ExitReason: types.ExitStopLoss,
			OpenedAt:   base.Add(2 * time.Hour), ClosedAt: base.Add(3 * time.Hour),
		},
		{
			ID: "w2", Symbol: "BTCUSDT", Side: types.SideShort, Amount: 0.05,
			EntryPrice: 50100, ExitPrice: 49600,
			EntryFee: -0.5, ExitFee: -0.49, NetPnL: 25.99,
			ExitReason: types.ExitTakeProfit,
			OpenedAt:   base.Add(4 * time.Hour), ClosedAt: base.Add(5 * time.Hour),
		},
	}
}

func TestSummarize_AggregatesSession(t *testing.T) {
	s := Summarize("BTCUSDT", sessionTrades())

	assert.Equal(t, 3, s.TotalTrades)
	assert.Equal(t, 2, s.WinningTrades)
	assert.Equal(t, 1, s.LosingTrades)
	assert.InDelta(t, 2.0/3.0, s.WinRate, 1e-9)

	assert.InDelta(t, 52.01-52.07+25.99, s.NetPnL, 1e-9)
	assert.InDelta(t, (-1.0-1.01)+(6.06+6.01)+(-0.5-0.49), s.TotalFees, 1e-9)
	// Gross is net plus fees per trade.
	assert.InDelta(t, s.NetPnL+s.TotalFees, s.GrossPnL, 1e-9)

	assert.InDelta(t, (52.01+25.99)/52.07, s.ProfitFactor, 1e-9)
	assert.InDelta(t, (52.01+25.99)/2, s.AvgWin, 1e-9)
	assert.InDelta(t, -52.07, s.AvgLoss, 1e-9)
	assert.InDelta(t, 52.01, s.LargestWin, 1e-9)
	assert.InDelta(t, -52.07, s.LargestLoss, 1e-9)

	assert.Equal(t, 2, s.TakeProfitExits)
	assert.Equal(t, 1, s.StopLossExits)
}

func TestSummarize_EmptySession(t *testing.T) {
	s := Summarize("BTCUSDT", nil)
	assert.Equal(t, 0, s.TotalTrades)
	assert.Zero(t, s.WinRate)
	assert.Zero(t, s.ProfitFactor)
}

func TestSummarize_NoLossesGivesInfiniteProfitFactor(t *testing.T) {
	trades := sessionTrades()[:1]
	s := Summarize("BTCUSDT", trades)
	assert.True(t, math.IsInf(s.ProfitFactor, 1))
}

func TestReporter_WritesEnabledFormats(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))

	r := NewReporter(ReportingConfig{CSVEnabled: true, JSONEnabled: true})
	require.NoError(t, r.ReportSession("BTCUSDT", sessionTrades()))

	day := time.Now().Format("2006-01-02")
	outDir := filepath.Join(dir, "results", "BTCUSDT_"+day)

	_, err := os.Stat(filepath.Join(outDir, "trades.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(outDir, "session.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(outDir, "trades.xlsx"))
	assert.True(t, os.IsNotExist(err))
}
