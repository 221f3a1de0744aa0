// Package journal records what happened during a run: trade events and
// periodic price points, to SQLite and to compressed JSONL files. The
// journal is write-mostly; the market is never rebuilt from it.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/bazaar/internal/economy"
	"github.com/talgya/bazaar/internal/engine"
)

// ErrUnknownRun is returned when a run ID has no row in the runs table.
var ErrUnknownRun = errors.New("unknown run")

// DB wraps a SQLite connection for the event journal.
type DB struct {
	conn *sqlx.DB
}

// Run is one row of the runs table.
type Run struct {
	ID         string        `db:"id"`
	Seed       int64         `db:"seed"`
	StartedAt  time.Time     `db:"started_at"`
	FinishedAt sql.NullTime  `db:"finished_at"`
	LastTick   sql.NullInt64 `db:"last_tick"`
	Settings   string        `db:"settings_json"`
}

// EventRow is an engine.Event as stored. Non-finite prices are NULL.
type EventRow struct {
	RunID       string          `db:"run_id"`
	Tick        uint64          `db:"tick"`
	Category    string          `db:"category"`
	Kind        string          `db:"kind"`
	NpcID       uint64          `db:"npc_id"`
	BusinessID  int             `db:"business_id"`
	Product     string          `db:"product"`
	Amount      int             `db:"amount"`
	Price       sql.NullFloat64 `db:"price"`
	Total       sql.NullFloat64 `db:"total"`
	Error       string          `db:"error"`
	Description string          `db:"description"`
}

// Event converts the row back to an engine.Event.
func (r EventRow) Event() engine.Event {
	return engine.Event{
		Tick:        r.Tick,
		Category:    r.Category,
		Kind:        r.Kind,
		NpcID:       r.NpcID,
		BusinessID:  r.BusinessID,
		Product:     r.Product,
		Amount:      r.Amount,
		Price:       fromSQL(r.Price),
		Total:       fromSQL(r.Total),
		Error:       r.Error,
		Description: r.Description,
	}
}

// PricePoint is one business's quote at a tick. Values that had overflowed
// are not Valid.
type PricePoint struct {
	RunID       string          `db:"run_id"`
	Tick        uint64          `db:"tick"`
	BusinessID  int             `db:"business_id"`
	Name        string          `db:"name"`
	StockPrice  sql.NullFloat64 `db:"stock_price"`
	StockDemand sql.NullFloat64 `db:"stock_demand"`
	Balance     sql.NullFloat64 `db:"balance"`
	Products    int             `db:"products"`
	GoodsPrice  sql.NullFloat64 `db:"goods_price"`
}

// Open opens or creates a SQLite journal at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		last_tick INTEGER,
		settings_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		tick INTEGER NOT NULL,
		category TEXT NOT NULL,
		kind TEXT NOT NULL,
		npc_id INTEGER NOT NULL,
		business_id INTEGER NOT NULL,
		product TEXT NOT NULL,
		amount INTEGER NOT NULL,
		price REAL,
		total REAL,
		error TEXT NOT NULL,
		description TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS price_points (
		run_id TEXT NOT NULL REFERENCES runs(id),
		tick INTEGER NOT NULL,
		business_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		stock_price REAL,
		stock_demand REAL,
		balance REAL,
		products INTEGER NOT NULL,
		goods_price REAL,
		PRIMARY KEY (run_id, tick, business_id)
	);

	CREATE INDEX IF NOT EXISTS idx_events_run_tick ON events(run_id, tick);
	CREATE INDEX IF NOT EXISTS idx_price_points_business ON price_points(run_id, business_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// BeginRun registers a run. settingsJSON is stored verbatim.
func (db *DB) BeginRun(runID string, seed int64, settingsJSON string) error {
	_, err := db.conn.Exec(
		"INSERT INTO runs (id, seed, started_at, settings_json) VALUES (?, ?, ?, ?)",
		runID, seed, time.Now().UTC(), settingsJSON,
	)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", runID, err)
	}
	return nil
}

// FinishRun stamps a run with its final tick.
func (db *DB) FinishRun(runID string, lastTick uint64) error {
	res, err := db.conn.Exec(
		"UPDATE runs SET finished_at = ?, last_tick = ? WHERE id = ?",
		time.Now().UTC(), lastTick, runID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrUnknownRun)
	}
	return nil
}

// Runs lists every recorded run, newest first.
func (db *DB) Runs() ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs,
		"SELECT id, seed, started_at, finished_at, last_tick, settings_json FROM runs ORDER BY started_at DESC, id")
	return runs, err
}

// SaveEvents appends a run's events.
func (db *DB) SaveEvents(runID string, events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamed(`INSERT INTO events
		(run_id, tick, category, kind, npc_id, business_id, product, amount, price, total, error, description)
		VALUES (:run_id, :tick, :category, :kind, :npc_id, :business_id, :product, :amount, :price, :total, :error, :description)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		row := EventRow{
			RunID:       runID,
			Tick:        e.Tick,
			Category:    e.Category,
			Kind:        e.Kind,
			NpcID:       e.NpcID,
			BusinessID:  e.BusinessID,
			Product:     e.Product,
			Amount:      e.Amount,
			Price:       sqlFloat(e.Price),
			Total:       sqlFloat(e.Total),
			Error:       e.Error,
			Description: e.Description,
		}
		if _, err := stmt.Exec(row); err != nil {
			return fmt.Errorf("insert event at tick %d: %w", e.Tick, err)
		}
	}

	return tx.Commit()
}

// SaveQuotes records a price point per quoted business.
func (db *DB) SaveQuotes(runID string, tick uint64, quotes []economy.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range quotes {
		_, err := tx.NamedExec(`INSERT OR REPLACE INTO price_points
			(run_id, tick, business_id, name, stock_price, stock_demand, balance, products, goods_price)
			VALUES (:run_id, :tick, :business_id, :name, :stock_price, :stock_demand, :balance, :products, :goods_price)`,
			PricePoint{
				RunID:       runID,
				Tick:        tick,
				BusinessID:  int(q.ID),
				Name:        q.Name,
				StockPrice:  sqlFloat(q.StockPrice),
				StockDemand: sqlFloat(q.StockDemand),
				Balance:     sqlFloat(q.Balance),
				Products:    q.Products,
				GoodsPrice:  sqlFloat(q.GoodsPrice),
			})
		if err != nil {
			return fmt.Errorf("insert price point for %s: %w", q.Name, err)
		}
	}

	return tx.Commit()
}

// RecentEvents returns a run's most recent events, newest first.
func (db *DB) RecentEvents(runID string, limit int) ([]engine.Event, error) {
	var rows []EventRow
	err := db.conn.Select(&rows,
		`SELECT run_id, tick, category, kind, npc_id, business_id, product, amount, price, total, error, description
		FROM events WHERE run_id = ? ORDER BY id DESC LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, err
	}
	events := make([]engine.Event, len(rows))
	for i, r := range rows {
		events[i] = r.Event()
	}
	return events, nil
}

// PriceHistory returns a business's price points in tick order.
func (db *DB) PriceHistory(runID string, businessID economy.BusinessID) ([]PricePoint, error) {
	var points []PricePoint
	err := db.conn.Select(&points,
		`SELECT run_id, tick, business_id, name, stock_price, stock_demand, balance, products, goods_price
		FROM price_points WHERE run_id = ? AND business_id = ? ORDER BY tick`,
		runID, int(businessID),
	)
	return points, err
}

// CategoryCounts tallies a run's events by category.
func (db *DB) CategoryCounts(runID string) (map[string]int, error) {
	var rows []struct {
		Category string `db:"category"`
		N        int    `db:"n"`
	}
	err := db.conn.Select(&rows,
		"SELECT category, COUNT(*) AS n FROM events WHERE run_id = ? GROUP BY category", runID)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Category] = r.N
	}
	return counts, nil
}
