package store

import (
	"context"
	"errors"
	"time"

	"criptodash/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

// PostgresSchema mirrors the SQLite layout for a shared server database.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS prices (
    id          BIGSERIAL   PRIMARY KEY,
    coin        TEXT        NOT NULL,
    data        JSONB       NOT NULL,
    observed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prices_coin_time
    ON prices (coin, observed_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on top of a pgx pool.
type PostgresStore struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewPostgresStore(pool PgxPool, tracer trace.Tracer) *PostgresStore {
	return &PostgresStore{pool: pool, tracer: tracer}
}

// EnsureSchema creates the tables when cmd/migrate has not been run.
func (r *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "postgres-store.ensure-schema")
	defer span.End()

	_, err := r.pool.Exec(ctx, PostgresSchema)
	return storageErr("migrate", err)
}

func (r *PostgresStore) Append(ctx context.Context, coinID string, quote domain.PriceQuote, at time.Time) error {
	ctx, span := r.tracer.Start(ctx, "postgres-store.append")
	defer span.End()

	data, err := encodeQuote(quote)
	if err != nil {
		return storageErr("append", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO prices (coin, data, observed_at) VALUES ($1, $2, $3)`,
		domain.NormalizeCoinID(coinID), string(data), observedAt(at),
	)
	return storageErr("append", err)
}

func (r *PostgresStore) Latest(ctx context.Context, coinID string) (*domain.PriceSnapshot, error) {
	ctx, span := r.tracer.Start(ctx, "postgres-store.latest")
	defer span.End()

	coinID = domain.NormalizeCoinID(coinID)
	var (
		data []byte
		ts   time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT data, observed_at FROM prices
		 WHERE coin = $1
		 ORDER BY observed_at DESC, id DESC
		 LIMIT 1`,
		coinID,
	).Scan(&data, &ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("latest", err)
	}
	snap := snapshotFromRow(coinID, data, ts)
	return &snap, nil
}

func (r *PostgresStore) History(ctx context.Context, coinID string, maxRows int) ([]domain.PriceSnapshot, error) {
	ctx, span := r.tracer.Start(ctx, "postgres-store.history")
	defer span.End()

	if maxRows <= 0 {
		return nil, nil
	}
	coinID = domain.NormalizeCoinID(coinID)
	rows, err := r.pool.Query(ctx,
		`SELECT data, observed_at FROM prices
		 WHERE coin = $1
		 ORDER BY observed_at DESC, id DESC
		 LIMIT $2`,
		coinID, maxRows,
	)
	if err != nil {
		return nil, storageErr("history", err)
	}
	defer rows.Close()

	var out []domain.PriceSnapshot
	for rows.Next() {
		var (
			data []byte
			ts   time.Time
		)
		if err := rows.Scan(&data, &ts); err != nil {
			return nil, storageErr("history", err)
		}
		out = append(out, snapshotFromRow(coinID, data, ts))
	}
	return out, storageErr("history", rows.Err())
}

func (r *PostgresStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageErr("get setting", err)
	}
	return value, true, nil
}

func (r *PostgresStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	return storageErr("set setting", err)
}

func (r *PostgresStore) DeleteSetting(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM settings WHERE key = $1`, key)
	return storageErr("delete setting", err)
}

// Close releases the pool when the store owns one.
func (r *PostgresStore) Close() error {
	if c, ok := r.pool.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}
