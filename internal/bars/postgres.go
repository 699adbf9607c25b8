package bars

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/weaverhq/weaver/internal/domain"
)

// PostgresRepository is the durable Repository backed by a single
// append-mostly `bars` table, keyed on (symbol, timeframe, ts).
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to Postgres and ensures the schema exists.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	r := &PostgresRepository{pool: pool}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepository) migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bars (
	symbol    TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	ts        TIMESTAMPTZ NOT NULL,
	open      DOUBLE PRECISION NOT NULL,
	high      DOUBLE PRECISION NOT NULL,
	low       DOUBLE PRECISION NOT NULL,
	close     DOUBLE PRECISION NOT NULL,
	volume    DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (symbol, timeframe, ts)
)`)
	if err != nil {
		return fmt.Errorf("create bars table: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
CREATE INDEX IF NOT EXISTS bars_symbol_tf_ts_idx ON bars (symbol, timeframe, ts DESC)`)
	if err != nil {
		return fmt.Errorf("create bars index: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SaveBars(ctx context.Context, rows []domain.Bar) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, b := range rows {
		batch.Queue(`
INSERT INTO bars (symbol, timeframe, ts, open, high, low, close, volume)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (symbol, timeframe, ts) DO UPDATE SET
	open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
	close = EXCLUDED.close, volume = EXCLUDED.volume`,
			b.Symbol, string(b.Timeframe), b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("save bars: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) GetBars(ctx context.Context, f Filter) ([]domain.Bar, error) {
	if f.Limit <= 0 {
		f.Limit = 1000
	}

	query := `SELECT symbol, timeframe, ts, open, high, low, close, volume
FROM bars WHERE symbol = $1 AND timeframe = $2`
	args := []any{f.Symbol, string(f.Timeframe)}

	if f.From != nil {
		args = append(args, time.Unix(*f.From, 0).UTC())
		query += fmt.Sprintf(" AND ts >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, time.Unix(*f.To, 0).UTC())
		query += fmt.Sprintf(" AND ts < $%d", len(args))
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY ts ASC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var out []domain.Bar
	for rows.Next() {
		var b domain.Bar
		var tf string
		if err := rows.Scan(&b.Symbol, &tf, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Timeframe = domain.Timeframe(tf)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetBarAt(ctx context.Context, symbol string, tf domain.Timeframe, ts int64) (domain.Bar, error) {
	var b domain.Bar
	var gotTf string
	err := r.pool.QueryRow(ctx, `
SELECT symbol, timeframe, ts, open, high, low, close, volume
FROM bars WHERE symbol = $1 AND timeframe = $2 AND ts = $3`,
		symbol, string(tf), time.Unix(ts, 0).UTC(),
	).Scan(&b.Symbol, &gotTf, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume)
	if err == pgx.ErrNoRows {
		return domain.Bar{}, ErrNotFound
	}
	if err != nil {
		return domain.Bar{}, fmt.Errorf("get bar at %d: %w", ts, err)
	}
	b.Timeframe = domain.Timeframe(gotTf)
	return b, nil
}

func (r *PostgresRepository) Close(_ context.Context) error {
	r.pool.Close()
	return nil
}
