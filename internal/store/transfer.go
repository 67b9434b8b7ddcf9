package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"criptodash/internal/domain"

	"github.com/charmbracelet/log"
)

type exportEntry struct {
	Data      json.RawMessage `json:"data"`
	FetchedAt string          `json:"fetched_at,omitempty"`
}

type exportFile struct {
	ExportedAt string                 `json:"exported_at"`
	Prices     map[string]exportEntry `json:"prices"`
}

// importFile accepts both export files (exported_at) and mirror files
// (saved_at); only the prices object is used.
type importFile struct {
	Prices map[string]json.RawMessage `json:"prices"`
}

// Export writes the latest snapshot of each coin to path. Coins without a
// stored snapshot are left out. It returns the number of coins written.
func Export(ctx context.Context, st Store, path string, coins []string, now time.Time) (int, error) {
	out := exportFile{
		ExportedAt: now.UTC().Format(time.RFC3339),
		Prices:     make(map[string]exportEntry, len(coins)),
	}
	for _, coin := range coins {
		snap, err := st.Latest(ctx, coin)
		if err != nil {
			return 0, fmt.Errorf("export %s: %w", coin, err)
		}
		if snap == nil || snap.Quote.IsEmpty() {
			continue
		}
		data, err := encodeQuote(snap.Quote)
		if err != nil {
			return 0, storageErr("export", err)
		}
		out.Prices[snap.CoinID] = exportEntry{
			Data:      data,
			FetchedAt: snap.ObservedAt.UTC().Format(time.RFC3339),
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return 0, storageErr("export", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return 0, storageErr("export", err)
	}
	return len(out.Prices), nil
}

// Import appends every entry in the file at path as a snapshot, keeping the
// original fetch time where one is present and parsable, and now otherwise.
// It returns the imported coin ids in sorted order.
func Import(ctx context.Context, st Store, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, storageErr("import", err)
	}
	var f importFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &DataIntegrityError{What: "import file", Err: err}
	}
	if f.Prices == nil {
		return nil, &DataIntegrityError{What: "import file", Err: fmt.Errorf("no prices object")}
	}

	now := time.Now()
	var imported []string
	for coin, raw := range f.Prices {
		quote, at, err := decodeImportEntry(raw)
		if err != nil {
			log.Warnf("import entry %s skipped: %v", coin, err)
			continue
		}
		if at.IsZero() {
			at = now
		}
		coin = domain.NormalizeCoinID(coin)
		if err := st.Append(ctx, coin, quote, at); err != nil {
			return imported, err
		}
		imported = append(imported, coin)
	}
	sort.Strings(imported)
	return imported, nil
}

func decodeImportEntry(raw json.RawMessage) (domain.PriceQuote, time.Time, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return domain.PriceQuote{}, time.Time{}, err
	}
	payload, wrapped := envelope["data"]
	if !wrapped || bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		q, err := decodeQuote(raw)
		return q, time.Time{}, err
	}

	q, err := decodeQuote(payload)
	if err != nil {
		return q, time.Time{}, err
	}
	var at time.Time
	var fetched string
	if rawAt, ok := envelope["fetched_at"]; ok && json.Unmarshal(rawAt, &fetched) == nil {
		at, _ = ParseTimestamp(fetched)
	}
	return q, at, nil
}
