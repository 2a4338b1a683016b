package reporting

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// CSVReporter writes settled trades to a CSV file.
type CSVReporter struct{}

// NewCSVReporter creates a new CSV reporter
func NewCSVReporter() *CSVReporter {
	return &CSVReporter{}
}

// WriteTradesCSV writes settled trades to path. An .xlsx path delegates
// to the Excel writer.
func (r *CSVReporter) WriteTradesCSV(symbol string, trades []types.TradeRecord, path string) error {
	// Ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return NewExcelReporter().WriteSessionXLSX(symbol, trades, path)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{
		"ID",
		"Opened_At",
		"Closed_At",
		"Side",
		"Amount",
		"Entry_Price",
		"Exit_Price",
		"Entry_Fee",
		"Exit_Fee",
		"Net_PnL",
		"Exit_Reason",
		"Win_Loss",
	}); err != nil {
		return err
	}

	for _, t := range trades {
		winLoss := "LOSS"
		if t.IsWin() {
			winLoss = "WIN"
		}
		record := []string{
			t.ID,
			t.OpenedAt.Format("2006-01-02 15:04:05"),
			t.ClosedAt.Format("2006-01-02 15:04:05"),
			string(t.Side),
			strconv.FormatFloat(t.Amount, 'f', 8, 64),
			strconv.FormatFloat(t.EntryPrice, 'f', 2, 64),
			strconv.FormatFloat(t.ExitPrice, 'f', 2, 64),
			strconv.FormatFloat(t.EntryFee, 'f', 6, 64),
			strconv.FormatFloat(t.ExitFee, 'f', 6, 64),
			strconv.FormatFloat(t.NetPnL, 'f', 2, 64),
			string(t.ExitReason),
			winLoss,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// Package-level convenience function
func WriteTradesCSV(symbol string, trades []types.TradeRecord, path string) error {
	return NewCSVReporter().WriteTradesCSV(symbol, trades, path)
}
