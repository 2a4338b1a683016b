package reporting

import (
	"fmt"
	"math"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// ConsoleReporter renders session results as terminal tables.
type ConsoleReporter struct{}

// NewConsoleReporter creates a new console reporter
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{}
}

// PrintSummary renders the session summary table.
func (r *ConsoleReporter) PrintSummary(s SessionSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("SESSION RESULTS: %s", s.Symbol)
	t.SetStyle(table.StyleRounded)

	profitFactor := fmt.Sprintf("%.2f", s.ProfitFactor)
	if math.IsInf(s.ProfitFactor, 1) {
		profitFactor = "∞"
	}

	t.AppendRows([]table.Row{
		{"💰 Net PnL", fmt.Sprintf("$%.2f", s.NetPnL)},
		{"📈 Gross PnL", fmt.Sprintf("$%.2f", s.GrossPnL)},
		{"💸 Total Fees", fmt.Sprintf("$%.2f", s.TotalFees)},
		{"💹 Profit Factor", profitFactor},
	})

	t.AppendSeparator()

	t.AppendRows([]table.Row{
		{"🔄 Total Trades", s.TotalTrades},
		{"✅ Winning", fmt.Sprintf("%d (%.1f%%)", s.WinningTrades, s.WinRate*100)},
		{"❌ Losing", s.LosingTrades},
		{"🎯 TP Exits", s.TakeProfitExits},
		{"🛑 SL Exits", s.StopLossExits},
	})

	t.AppendSeparator()

	t.AppendRows([]table.Row{
		{"📊 Avg Win", fmt.Sprintf("$%.2f", s.AvgWin)},
		{"📊 Avg Loss", fmt.Sprintf("$%.2f", s.AvgLoss)},
		{"📊 Largest Win", fmt.Sprintf("$%.2f", s.LargestWin)},
		{"📊 Largest Loss", fmt.Sprintf("$%.2f", s.LargestLoss)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, WidthMax: 35, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}

// PrintTrades renders the per-trade table, most recent last.
func (r *ConsoleReporter) PrintTrades(trades []types.TradeRecord) {
	if len(trades) == 0 {
		fmt.Println("No trades settled this session.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("SETTLED TRADES")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Closed", "Side", "Amount", "Entry", "Exit", "Fees", "Net PnL", "Reason"})

	for _, tr := range trades {
		t.AppendRow(table.Row{
			tr.ClosedAt.Format("01-02 15:04"),
			tr.Side,
			fmt.Sprintf("%.6f", tr.Amount),
			fmt.Sprintf("%.2f", tr.EntryPrice),
			fmt.Sprintf("%.2f", tr.ExitPrice),
			fmt.Sprintf("%.4f", tr.EntryFee+tr.ExitFee),
			fmt.Sprintf("%.2f", tr.NetPnL),
			tr.ExitReason,
		})
	}

	t.Render()
	fmt.Println()
}

// Package-level convenience function
func OutputConsole(symbol string, trades []types.TradeRecord) {
	reporter := NewConsoleReporter()
	reporter.PrintSummary(Summarize(symbol, trades))
	reporter.PrintTrades(trades)
}
