// Package store persists price snapshots and settings.
//
// Snapshots are append-only: one row per (coin, fetch event). Reads come
// back newest first; callers that need ascending order sort themselves.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"criptodash/internal/domain"
)

// Store is the snapshot and settings persistence boundary.
type Store interface {
	// Append records a snapshot. A zero observedAt means now.
	Append(ctx context.Context, coinID string, quote domain.PriceQuote, observedAt time.Time) error
	// Latest returns the newest snapshot for coinID, or nil when none exists.
	Latest(ctx context.Context, coinID string) (*domain.PriceSnapshot, error)
	// History returns at most maxRows snapshots, newest first.
	History(ctx context.Context, coinID string, maxRows int) ([]domain.PriceSnapshot, error)

	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error

	Close() error
}

// StorageError wraps a failure of the underlying database or filesystem.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// DataIntegrityError reports cached data that could not be decoded.
type DataIntegrityError struct {
	What string
	Err  error
}

func (e *DataIntegrityError) Error() string { return fmt.Sprintf("corrupt %s: %v", e.What, e.Err) }
func (e *DataIntegrityError) Unwrap() error { return e.Err }

var errMissingUSD = errors.New("missing usd price")

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func encodeQuote(q domain.PriceQuote) ([]byte, error) {
	return json.Marshal(q)
}

func decodeQuote(data []byte) (domain.PriceQuote, error) {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.PriceQuote{}, &DataIntegrityError{What: "snapshot payload", Err: err}
	}
	q, ok := domain.QuoteFromMap(raw)
	if !ok {
		return domain.PriceQuote{}, &DataIntegrityError{What: "snapshot payload", Err: errMissingUSD}
	}
	return q, nil
}

// observedAt normalizes a snapshot timestamp to UTC second resolution.
func observedAt(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Second)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts RFC3339 and the zone-less ISO forms found in older
// export files. Zone-less values are taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
