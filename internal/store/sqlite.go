package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"criptodash/internal/domain"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the default local store.
type SQLiteStore struct {
	db     *sql.DB
	tracer trace.Tracer
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
func OpenSQLite(path string, tracer trace.Tracer) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storageErr("open", fmt.Errorf("create data dir: %w", err))
		}
	}

	// busy_timeout bounds how long a writer waits on a locked database.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storageErr("open", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, tracer: tracer}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, storageErr("migrate", err)
	}

	log.Infof("sqlite store opened: %s", path)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS prices (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			coin        TEXT    NOT NULL,
			data        TEXT    NOT NULL,
			observed_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_coin_time ON prices(coin, observed_at DESC, id DESC)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:32], err)
		}
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, coinID string, quote domain.PriceQuote, at time.Time) error {
	ctx, span := s.tracer.Start(ctx, "sqlite-store.append")
	defer span.End()

	data, err := encodeQuote(quote)
	if err != nil {
		return storageErr("append", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO prices (coin, data, observed_at) VALUES (?, ?, ?)`,
		domain.NormalizeCoinID(coinID), string(data), observedAt(at).Unix(),
	)
	return storageErr("append", err)
}

func (s *SQLiteStore) Latest(ctx context.Context, coinID string) (*domain.PriceSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "sqlite-store.latest")
	defer span.End()

	coinID = domain.NormalizeCoinID(coinID)
	var (
		data string
		ts   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT data, observed_at FROM prices
		 WHERE coin = ?
		 ORDER BY observed_at DESC, id DESC
		 LIMIT 1`,
		coinID,
	).Scan(&data, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("latest", err)
	}
	snap := snapshotFromRow(coinID, []byte(data), time.Unix(ts, 0))
	return &snap, nil
}

func (s *SQLiteStore) History(ctx context.Context, coinID string, maxRows int) ([]domain.PriceSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "sqlite-store.history")
	defer span.End()

	if maxRows <= 0 {
		return nil, nil
	}
	coinID = domain.NormalizeCoinID(coinID)
	rows, err := s.db.QueryContext(ctx,
		`SELECT data, observed_at FROM prices
		 WHERE coin = ?
		 ORDER BY observed_at DESC, id DESC
		 LIMIT ?`,
		coinID, maxRows,
	)
	if err != nil {
		return nil, storageErr("history", err)
	}
	defer rows.Close()

	var out []domain.PriceSnapshot
	for rows.Next() {
		var (
			data string
			ts   int64
		)
		if err := rows.Scan(&data, &ts); err != nil {
			return nil, storageErr("history", err)
		}
		out = append(out, snapshotFromRow(coinID, []byte(data), time.Unix(ts, 0)))
	}
	return out, storageErr("history", rows.Err())
}

func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageErr("get setting", err)
	}
	return value, true, nil
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return storageErr("set setting", err)
}

func (s *SQLiteStore) DeleteSetting(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
	return storageErr("delete setting", err)
}

func (s *SQLiteStore) Close() error {
	log.Info("closing sqlite store")
	return s.db.Close()
}

// snapshotFromRow decodes a stored payload. Unreadable payloads become an
// empty quote so one bad row never hides the rest of the history.
func snapshotFromRow(coinID string, data []byte, at time.Time) domain.PriceSnapshot {
	q, err := decodeQuote(data)
	if err != nil {
		log.Warnf("coin %s at %s: %v", coinID, at.UTC().Format(time.RFC3339), err)
	}
	return domain.PriceSnapshot{CoinID: coinID, Quote: q, ObservedAt: at.UTC()}
}
