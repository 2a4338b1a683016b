package reporting

import (
	"path/filepath"
	"time"

	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// ReportingConfig selects which outputs a session export produces.
type ReportingConfig struct {
	EnableConsole bool
	CSVEnabled    bool
	ExcelEnabled  bool
	JSONEnabled   bool
}

// Reporter bundles every output format behind one surface.
type Reporter struct {
	console *ConsoleReporter
	csv     *CSVReporter
	excel   *ExcelReporter
	json    *JSONReporter
	paths   *PathManager
	config  ReportingConfig
}

// NewReporter creates a reporter with all formats wired.
func NewReporter(config ReportingConfig) *Reporter {
	return &Reporter{
		console: NewConsoleReporter(),
		csv:     NewCSVReporter(),
		excel:   NewExcelReporter(),
		json:    NewJSONReporter(),
		paths:   NewPathManager(),
		config:  config,
	}
}

// ReportSession writes the session's trades to every enabled output.
// The first file error aborts remaining file outputs.
func (r *Reporter) ReportSession(symbol string, trades []types.TradeRecord) error {
	if r.config.EnableConsole {
		r.console.PrintSummary(Summarize(symbol, trades))
		r.console.PrintTrades(trades)
	}

	outputDir := r.paths.SessionOutputDir(symbol, time.Now())

	if r.config.CSVEnabled {
		if err := r.csv.WriteTradesCSV(symbol, trades, filepath.Join(outputDir, "trades.csv")); err != nil {
			return err
		}
	}
	if r.config.ExcelEnabled {
		if err := r.excel.WriteSessionXLSX(symbol, trades, filepath.Join(outputDir, "trades.xlsx")); err != nil {
			return err
		}
	}
	if r.config.JSONEnabled {
		if err := r.json.WriteSessionJSON(symbol, trades, filepath.Join(outputDir, "session.json")); err != nil {
			return err
		}
	}
	return nil
}
