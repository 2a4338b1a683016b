package reporting

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// ExcelReporter writes session results to an xlsx workbook.
type ExcelReporter struct{}

// NewExcelReporter creates a new Excel reporter
func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

// ExcelStyles holds the style IDs shared across sheets.
type ExcelStyles struct {
	HeaderStyle   int
	CurrencyStyle int
	PercentStyle  int
	NumberStyle   int
}

// WriteSessionXLSX writes the trades and summary sheets to path.
func (r *ExcelReporter) WriteSessionXLSX(symbol string, trades []types.TradeRecord, path string) error {
	// Ensure directory exists before creating file
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const tradesSheet = "Trades"
	const summarySheet = "Summary"

	fx.SetSheetName(fx.GetSheetName(0), tradesSheet)
	fx.NewSheet(summarySheet)

	styles, err := r.createExcelStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writeTradesSheet(fx, tradesSheet, trades, styles); err != nil {
		return err
	}
	if err := r.writeSummarySheet(fx, summarySheet, Summarize(symbol, trades), styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

// createExcelStyles creates the shared workbook styles.
func (r *ExcelReporter) createExcelStyles(fx *excelize.File) (ExcelStyles, error) {
	var styles ExcelStyles
	var err error

	// Header style - Dark blue background with white text
	styles.HeaderStyle, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F4F4F"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	// Currency style (right aligned, $ format)
	styles.CurrencyStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt: 7,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "E0E0E0", Style: 1},
			{Type: "right", Color: "E0E0E0", Style: 1},
			{Type: "bottom", Color: "E0E0E0", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	// Percentage style (right aligned, % format)
	styles.PercentStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt: 9,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
	})
	if err != nil {
		return styles, err
	}

	// Plain number style
	styles.NumberStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt: 2,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
	})
	return styles, err
}

func (r *ExcelReporter) writeTradesSheet(fx *excelize.File, sheet string, trades []types.TradeRecord, styles ExcelStyles) error {
	headers := []string{"Opened", "Closed", "Side", "Amount", "Entry Price", "Exit Price", "Entry Fee", "Exit Fee", "Net PnL", "Exit Reason"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	headerRange, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := fx.SetCellStyle(sheet, "A1", headerRange, styles.HeaderStyle); err != nil {
		return err
	}

	for row, t := range trades {
		values := []interface{}{
			t.OpenedAt.Format("2006-01-02 15:04:05"),
			t.ClosedAt.Format("2006-01-02 15:04:05"),
			string(t.Side),
			t.Amount,
			t.EntryPrice,
			t.ExitPrice,
			t.EntryFee,
			t.ExitFee,
			t.NetPnL,
			string(t.ExitReason),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := fx.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	if len(trades) > 0 {
		first, _ := excelize.CoordinatesToCellName(5, 2)
		last, _ := excelize.CoordinatesToCellName(9, len(trades)+1)
		if err := fx.SetCellStyle(sheet, first, last, styles.CurrencyStyle); err != nil {
			return err
		}
	}
	return fx.SetColWidth(sheet, "A", "J", 16)
}

func (r *ExcelReporter) writeSummarySheet(fx *excelize.File, sheet string, s SessionSummary, styles ExcelStyles) error {
	profitFactor := interface{}(s.ProfitFactor)
	if math.IsInf(s.ProfitFactor, 1) {
		profitFactor = "inf"
	}

	rows := []struct {
		label string
		value interface{}
	}{
		{"Symbol", s.Symbol},
		{"Total Trades", s.TotalTrades},
		{"Winning Trades", s.WinningTrades},
		{"Losing Trades", s.LosingTrades},
		{"Win Rate", s.WinRate},
		{"Gross PnL", s.GrossPnL},
		{"Total Fees", s.TotalFees},
		{"Net PnL", s.NetPnL},
		{"Profit Factor", profitFactor},
		{"Avg Win", s.AvgWin},
		{"Avg Loss", s.AvgLoss},
		{"Largest Win", s.LargestWin},
		{"Largest Loss", s.LargestLoss},
		{"Take-Profit Exits", s.TakeProfitExits},
		{"Stop-Loss Exits", s.StopLossExits},
	}

	for i, row := range rows {
		labelCell, _ := excelize.CoordinatesToCellName(1, i+1)
		valueCell, _ := excelize.CoordinatesToCellName(2, i+1)
		if err := fx.SetCellValue(sheet, labelCell, row.label); err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, valueCell, row.value); err != nil {
			return err
		}
	}

	if err := fx.SetCellStyle(sheet, "B5", "B5", styles.PercentStyle); err != nil {
		return err
	}
	if err := fx.SetCellStyle(sheet, "B6", "B13", styles.CurrencyStyle); err != nil {
		return err
	}
	return fx.SetColWidth(sheet, "A", "B", 20)
}
