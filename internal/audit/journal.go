// Package audit persists one record per processed signal: a sqlite
// journal for queries and a daily CSV file for downstream tooling.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"orderbridge/internal/model"
)

// Entry is one terminal signal outcome.
type Entry struct {
	TraceID    string    `csv:"trace_id"`
	Exchange   string    `csv:"exchange"`
	Symbol     string    `csv:"symbol"`
	Future     bool      `csv:"future"`
	Kind       string    `csv:"kind"`
	Lots       int64     `csv:"lots"`
	MatchLots  int64     `csv:"match_lots"`
	Price      int64     `csv:"price_paise"`
	Style      string    `csv:"style"`
	Outcome    string    `csv:"outcome"`
	Notice     string    `csv:"notice"`
	OrderIDs   string    `csv:"order_ids"`
	ReceivedAt time.Time `csv:"-"`
	// Rendered timestamps for the CSV trail.
	ReceivedUTC string `csv:"received_utc"`
	ReceivedIST string `csv:"received_ist"`
}

const maxNoticeLen = 200

// normalize bounds and flattens free-text fields before persistence.
func (e *Entry) normalize() {
	e.Notice = sanitize(e.Notice, maxNoticeLen)
	e.ReceivedUTC = e.ReceivedAt.UTC().Format(time.RFC3339)
	e.ReceivedIST = e.ReceivedAt.In(model.IST).Format(time.RFC3339)
}

// sanitize flattens newlines and cuts to max runes, never splitting a
// UTF-8 sequence.
func sanitize(s string, max int) string {
	s = strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
	if r := []rune(s); len(r) > max {
		s = string(r[:max])
	}
	return s
}

const schema = `
CREATE TABLE IF NOT EXISTS signals (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id    TEXT NOT NULL,
	exchange    TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	future      INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	lots        INTEGER NOT NULL,
	match_lots  INTEGER NOT NULL,
	price_paise INTEGER NOT NULL,
	style       TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	notice      TEXT NOT NULL,
	order_ids   TEXT NOT NULL,
	received_utc TEXT NOT NULL,
	received_ist TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol);
CREATE INDEX IF NOT EXISTS idx_signals_received ON signals(received_utc);
`

// Journal is the sqlite signal journal. Single writer, WAL mode.
type Journal struct {
	db *sql.DB
}

func NewJournal(path string) (*Journal, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}
	log.Printf("[audit] journal open at %s", path)
	return &Journal{db: db}, nil
}

func (j *Journal) Write(ctx context.Context, e Entry) error {
	e.normalize()
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO signals (trace_id, exchange, symbol, future, kind, lots,
			match_lots, price_paise, style, outcome, notice, order_ids,
			received_utc, received_ist)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TraceID, e.Exchange, e.Symbol, e.Future, e.Kind, e.Lots,
		e.MatchLots, e.Price, e.Style, e.Outcome, e.Notice, e.OrderIDs,
		e.ReceivedUTC, e.ReceivedIST)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

func (j *Journal) Close() error { return j.db.Close() }

// DB exposes the handle for health probes.
func (j *Journal) DB() *sql.DB { return j.db }
