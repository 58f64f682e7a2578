// Package journal persists position lifecycle outcomes to SQLite for
// analysis and audit. It is the durable record of every entry, settlement,
// and void; the CSV candle store remains the market-data record.
package journal

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"crypto-botv1/internal/position"
)

// Journal is a single-writer SQLite store of position outcomes.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// New opens (or creates) the journal database.
func New(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS positions (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol              TEXT NOT NULL,
		entry_order_id      TEXT NOT NULL,
		protective_order_id TEXT,
		qty                 REAL NOT NULL,
		entry_price         REAL NOT NULL,
		stop_loss           REAL,
		take_profit         REAL,
		outcome             TEXT NOT NULL DEFAULT 'open',
		reason              TEXT,
		opened_at           DATETIME NOT NULL,
		closed_at           DATETIME,
		created_at          DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol);
	CREATE INDEX IF NOT EXISTS idx_positions_outcome ON positions(outcome);
	CREATE INDEX IF NOT EXISTS idx_positions_opened_at ON positions(opened_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened position journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordEntry persists a confirmed entry fill.
func (j *Journal) RecordEntry(p *position.Position) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO positions (symbol, entry_order_id, qty, entry_price, stop_loss, take_profit, opened_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Symbol, p.EntryOrderID, p.Qty, p.EntryPrice,
		p.StopLoss, p.TakeProfit, p.OpenedAt.Format(time.RFC3339),
	)
	return err
}

// RecordExit closes out the journal row for a terminal position. Positions
// voided before an entry fill have no row yet; those are inserted whole so
// every terminal outcome leaves a record.
func (j *Journal) RecordExit(p *position.Position, outcome, reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now().Format(time.RFC3339)
	res, err := j.db.Exec(
		`UPDATE positions SET outcome = ?, reason = ?, protective_order_id = ?, closed_at = ?
		 WHERE symbol = ? AND entry_order_id = ? AND outcome = 'open'`,
		outcome, reason, p.ProtectiveOrderID, now, p.Symbol, p.EntryOrderID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	_, err = j.db.Exec(
		`INSERT INTO positions (symbol, entry_order_id, protective_order_id, qty, entry_price,
		                        stop_loss, take_profit, outcome, reason, opened_at, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Symbol, p.EntryOrderID, p.ProtectiveOrderID, p.Qty, p.EntryPrice,
		p.StopLoss, p.TakeProfit, outcome, reason,
		p.OpenedAt.Format(time.RFC3339), now,
	)
	return err
}

// PositionRecord is one row from the positions table.
type PositionRecord struct {
	ID                int64   `json:"id"`
	Symbol            string  `json:"symbol"`
	EntryOrderID      string  `json:"entry_order_id"`
	ProtectiveOrderID string  `json:"protective_order_id"`
	Qty               float64 `json:"qty"`
	EntryPrice        float64 `json:"entry_price"`
	StopLoss          float64 `json:"stop_loss"`
	TakeProfit        float64 `json:"take_profit"`
	Outcome           string  `json:"outcome"`
	Reason            string  `json:"reason"`
	OpenedAt          string  `json:"opened_at"`
	ClosedAt          string  `json:"closed_at"`
}

// Recent returns the last N positions, newest first.
func (j *Journal) Recent(limit int) ([]PositionRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, symbol, entry_order_id, COALESCE(protective_order_id, ''), qty, entry_price,
		        COALESCE(stop_loss, 0), COALESCE(take_profit, 0), outcome,
		        COALESCE(reason, ''), opened_at, COALESCE(closed_at, '')
		 FROM positions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []PositionRecord
	for rows.Next() {
		var r PositionRecord
		if err := rows.Scan(&r.ID, &r.Symbol, &r.EntryOrderID, &r.ProtectiveOrderID,
			&r.Qty, &r.EntryPrice, &r.StopLoss, &r.TakeProfit,
			&r.Outcome, &r.Reason, &r.OpenedAt, &r.ClosedAt); err != nil {
			continue
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
