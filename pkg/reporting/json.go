package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// SessionReport is the JSON shape of a full session export.
type SessionReport struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Summary     SessionSummary      `json:"summary"`
	Trades      []types.TradeRecord `json:"trades"`
}

// JSONReporter writes session reports as indented JSON.
type JSONReporter struct{}

// NewJSONReporter creates a new JSON reporter
func NewJSONReporter() *JSONReporter {
	return &JSONReporter{}
}

// FormatSession formats the session report as JSON bytes.
func (r *JSONReporter) FormatSession(symbol string, trades []types.TradeRecord) ([]byte, error) {
	report := SessionReport{
		GeneratedAt: time.Now().UTC(),
		Summary:     Summarize(symbol, trades),
		Trades:      trades,
	}
	return json.MarshalIndent(report, "", "  ")
}

// WriteSessionJSON writes the session report to path.
func (r *JSONReporter) WriteSessionJSON(symbol string, trades []types.TradeRecord, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	data, err := r.FormatSession(symbol, trades)
	if err != nil {
		return fmt.Errorf("marshal session report: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Package-level convenience function
func WriteSessionJSON(symbol string, trades []types.TradeRecord, path string) error {
	return NewJSONReporter().WriteSessionJSON(symbol, trades, path)
}
