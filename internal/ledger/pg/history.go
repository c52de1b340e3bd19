package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"signal_bot/internal/ledger"
	"signal_bot/internal/models"
	"signal_bot/pkg/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS signal_closures (
	id           BIGSERIAL PRIMARY KEY,
	signal_id    TEXT             NOT NULL UNIQUE,
	destination  BIGINT           NOT NULL,
	pair         TEXT             NOT NULL,
	side         TEXT             NOT NULL,
	outcome      TEXT             NOT NULL,
	entry_low    DOUBLE PRECISION NOT NULL,
	entry_high   DOUBLE PRECISION NOT NULL,
	final_stop   DOUBLE PRECISION NOT NULL,
	take_profit  DOUBLE PRECISION,
	created_at   TIMESTAMPTZ      NOT NULL,
	triggered_at TIMESTAMPTZ,
	closed_at    TIMESTAMPTZ      NOT NULL,
	close_price  DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS signal_closures_dest_closed_idx ON signal_closures (destination, closed_at);
`

const insertClosure = `
INSERT INTO signal_closures (signal_id, destination, pair, side, outcome, entry_low, entry_high,
	final_stop, take_profit, created_at, triggered_at, closed_at, close_price)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (signal_id) DO NOTHING`

const selectColumns = `
SELECT signal_id, destination, pair, side, outcome, entry_low, entry_high,
	final_stop, take_profit, created_at, triggered_at, closed_at, close_price
FROM signal_closures`

// History is the Postgres-backed ledger.
type History struct {
	db db.TxManager
}

func NewHistory(tx db.TxManager) *History {
	return &History{db: tx}
}

// Migrate creates the closures table when missing.
func (h *History) Migrate(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Migrate: %w", err)
		}
	}()
	return h.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctxTx, schema)
		return err
	})
}

func (h *History) Record(ctx context.Context, rec models.ClosureRecord) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Record: %w", err)
		}
	}()
	return h.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		tag, err := tx.Exec(ctxTx, insertClosure,
			rec.SignalID, rec.Destination, rec.Pair, string(rec.Side), string(rec.Outcome),
			rec.EntryLow, rec.EntryHigh, rec.FinalStop, rec.TakeProfit,
			rec.CreatedAt, rec.TriggeredAt, rec.ClosedAt, rec.ClosePrice,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ledger.ErrDuplicate
		}
		return nil
	})
}

func (h *History) Window(ctx context.Context, destination int64, since time.Time) (out []models.ClosureRecord, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Window: %w", err)
		}
	}()
	err = h.db.RunRepeatableRead(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		rows, err := tx.Query(ctxTx, selectColumns+` WHERE destination = $1 AND closed_at >= $2 ORDER BY id`, destination, since)
		if err != nil {
			return err
		}
		out, err = scanClosures(rows)
		return err
	})
	return out, err
}

func (h *History) Since(ctx context.Context, since time.Time) (out []models.ClosureRecord, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Since: %w", err)
		}
	}()
	err = h.db.RunRepeatableRead(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		rows, err := tx.Query(ctxTx, selectColumns+` WHERE closed_at >= $1 ORDER BY id`, since)
		if err != nil {
			return err
		}
		out, err = scanClosures(rows)
		return err
	})
	return out, err
}

// Prune deletes records closed before cutoff.
func (h *History) Prune(ctx context.Context, cutoff time.Time) (n int64, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Prune: %w", err)
		}
	}()
	err = h.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		tag, err := tx.Exec(ctxTx, `DELETE FROM signal_closures WHERE closed_at < $1`, cutoff)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}

func scanClosures(rows pgx.Rows) ([]models.ClosureRecord, error) {
	defer rows.Close()

	out := make([]models.ClosureRecord, 0)
	for rows.Next() {
		var (
			rec           models.ClosureRecord
			side, outcome string
		)
		if err := rows.Scan(
			&rec.SignalID, &rec.Destination, &rec.Pair, &side, &outcome,
			&rec.EntryLow, &rec.EntryHigh, &rec.FinalStop, &rec.TakeProfit,
			&rec.CreatedAt, &rec.TriggeredAt, &rec.ClosedAt, &rec.ClosePrice,
		); err != nil {
			return nil, err
		}
		rec.Side = models.Side(side)
		rec.Outcome = models.CloseReason(outcome)
		out = append(out, rec)
	}
	return out, rows.Err()
}
