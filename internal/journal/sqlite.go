package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tradebot-labs/risk-engine/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	timestamp DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	amount REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	entry_fee REAL NOT NULL,
	exit_fee REAL NOT NULL,
	net_pnl REAL NOT NULL,
	exit_reason TEXT NOT NULL,
	opened_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp);
`

// SQLiteJournal is the append-only trade-history store. Settled trades
// are inserted once and never updated; the recent window is read back
// at startup to seed the Kelly estimator.
type SQLiteJournal struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the journal database.
func OpenSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open trade journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create trade journal schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// Append inserts one settled trade.
func (j *SQLiteJournal) Append(t types.TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(id, timestamp, symbol, side, amount, entry_price, exit_price, entry_fee, exit_fee, net_pnl, exit_reason, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ClosedAt, t.Symbol, string(t.Side), t.Amount, t.EntryPrice,
		t.ExitPrice, t.EntryFee, t.ExitFee, t.NetPnL, string(t.ExitReason), t.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("append trade %s: %w", t.ID, err)
	}
	return nil
}

// RecentTrades returns up to limit most recent settled trades in
// chronological order, the sliding window the Kelly estimator reads.
func (j *SQLiteJournal) RecentTrades(limit int) ([]types.TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT id, timestamp, symbol, side, amount, entry_price, exit_price, entry_fee, exit_fee, net_pnl, exit_reason, opened_at
		FROM trades ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent trades: %w", err)
	}
	defer rows.Close()

	var trades []types.TradeRecord
	for rows.Next() {
		var t types.TradeRecord
		var side, reason string
		if err := rows.Scan(&t.ID, &t.ClosedAt, &t.Symbol, &side, &t.Amount, &t.EntryPrice,
			&t.ExitPrice, &t.EntryFee, &t.ExitFee, &t.NetPnL, &reason, &t.OpenedAt); err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		t.Side = types.TradeSide(side)
		t.ExitReason = types.ExitReason(reason)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse: queried newest-first, consumed oldest-first.
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	return trades, nil
}

// Close closes the underlying database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
