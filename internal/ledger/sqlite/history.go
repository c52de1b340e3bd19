package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"signal_bot/internal/ledger"
	"signal_bot/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS signal_closures (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	signal_id    TEXT    NOT NULL UNIQUE,
	destination  INTEGER NOT NULL,
	pair         TEXT    NOT NULL,
	side         TEXT    NOT NULL,
	outcome      TEXT    NOT NULL,
	entry_low    REAL    NOT NULL,
	entry_high   REAL    NOT NULL,
	final_stop   REAL    NOT NULL,
	take_profit  REAL,
	created_at   INTEGER NOT NULL,
	triggered_at INTEGER,
	closed_at    INTEGER NOT NULL,
	close_price  REAL
);
CREATE INDEX IF NOT EXISTS idx_signal_closures_dest_closed ON signal_closures (destination, closed_at);
`

const selectColumns = `
SELECT signal_id, destination, pair, side, outcome, entry_low, entry_high,
	final_stop, take_profit, created_at, triggered_at, closed_at, close_price
FROM signal_closures`

// History is the SQLite-backed ledger. Times are stored as unix milliseconds.
type History struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(path string) (*History, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}
	// single writer; also keeps ":memory:" on one connection
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sqlite.Open: wal: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sqlite.Open: schema: %w", err)
	}
	return &History{db: conn}, nil
}

func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) Record(ctx context.Context, rec models.ClosureRecord) (err error) {
	defer func() {
		if err != nil && !errors.Is(err, ledger.ErrDuplicate) {
			err = fmt.Errorf("sqlite.Record: %w", err)
		}
	}()

	res, err := h.db.ExecContext(ctx, `
INSERT OR IGNORE INTO signal_closures (signal_id, destination, pair, side, outcome, entry_low, entry_high,
	final_stop, take_profit, created_at, triggered_at, closed_at, close_price)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SignalID, rec.Destination, rec.Pair, string(rec.Side), string(rec.Outcome),
		rec.EntryLow, rec.EntryHigh, rec.FinalStop, nullFloat(rec.TakeProfit),
		rec.CreatedAt.UnixMilli(), nullTime(rec.TriggeredAt), rec.ClosedAt.UnixMilli(), nullFloat(rec.ClosePrice),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrDuplicate
	}
	return nil
}

func (h *History) Window(ctx context.Context, destination int64, since time.Time) ([]models.ClosureRecord, error) {
	rows, err := h.db.QueryContext(ctx, selectColumns+` WHERE destination = ? AND closed_at >= ? ORDER BY id`,
		destination, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("sqlite.Window: %w", err)
	}
	return scanClosures(rows)
}

func (h *History) Since(ctx context.Context, since time.Time) ([]models.ClosureRecord, error) {
	rows, err := h.db.QueryContext(ctx, selectColumns+` WHERE closed_at >= ? ORDER BY id`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("sqlite.Since: %w", err)
	}
	return scanClosures(rows)
}

// Prune deletes records closed before cutoff.
func (h *History) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM signal_closures WHERE closed_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite.Prune: %w", err)
	}
	return res.RowsAffected()
}

func scanClosures(rows *sql.Rows) ([]models.ClosureRecord, error) {
	defer rows.Close()

	out := make([]models.ClosureRecord, 0)
	for rows.Next() {
		var (
			rec            models.ClosureRecord
			side, outcome  string
			tp, closePrice sql.NullFloat64
			created        int64
			closed         int64
			triggered      sql.NullInt64
		)
		if err := rows.Scan(
			&rec.SignalID, &rec.Destination, &rec.Pair, &side, &outcome,
			&rec.EntryLow, &rec.EntryHigh, &rec.FinalStop, &tp,
			&created, &triggered, &closed, &closePrice,
		); err != nil {
			return nil, fmt.Errorf("sqlite.scan: %w", err)
		}
		rec.Side = models.Side(side)
		rec.Outcome = models.CloseReason(outcome)
		rec.CreatedAt = time.UnixMilli(created).UTC()
		rec.ClosedAt = time.UnixMilli(closed).UTC()
		if tp.Valid {
			v := tp.Float64
			rec.TakeProfit = &v
		}
		if closePrice.Valid {
			v := closePrice.Float64
			rec.ClosePrice = &v
		}
		if triggered.Valid {
			t := time.UnixMilli(triggered.Int64).UTC()
			rec.TriggeredAt = &t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite.scan: %w", err)
	}
	return out, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
