package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"criptodash/internal/domain"

	"github.com/charmbracelet/log"
)

// Mirror is the last-known-good price file used when the store is empty.
type Mirror struct {
	SavedAt time.Time
	Prices  map[string]domain.PriceQuote
}

type mirrorFile struct {
	SavedAt string                     `json:"saved_at"`
	Prices  map[string]json.RawMessage `json:"prices"`
}

// SaveMirror overwrites the mirror file at path.
func SaveMirror(path string, prices map[string]domain.PriceQuote, now time.Time) error {
	raw := make(map[string]json.RawMessage, len(prices))
	for coin, q := range prices {
		data, err := encodeQuote(q)
		if err != nil {
			return storageErr("save mirror", err)
		}
		raw[coin] = data
	}
	data, err := json.MarshalIndent(mirrorFile{
		SavedAt: now.UTC().Format(time.RFC3339),
		Prices:  raw,
	}, "", "  ")
	if err != nil {
		return storageErr("save mirror", err)
	}
	return storageErr("save mirror", writeFileAtomic(path, data))
}

// LoadMirror reads the mirror at path. A missing file yields nil, nil; a
// corrupt file yields nil and a *DataIntegrityError.
func LoadMirror(path string) (*Mirror, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("load mirror", err)
	}

	var f mirrorFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &DataIntegrityError{What: "mirror file", Err: err}
	}

	m := &Mirror{Prices: make(map[string]domain.PriceQuote, len(f.Prices))}
	if t, ok := ParseTimestamp(f.SavedAt); ok {
		m.SavedAt = t
	}
	for coin, raw := range f.Prices {
		q, err := decodeQuote(raw)
		if err != nil {
			log.Warnf("mirror entry %s skipped: %v", coin, err)
			continue
		}
		m.Prices[domain.NormalizeCoinID(coin)] = q
	}
	return m, nil
}

// Coins returns the mirrored coin ids in sorted order.
func (m *Mirror) Coins() []string {
	coins := make([]string, 0, len(m.Prices))
	for c := range m.Prices {
		coins = append(coins, c)
	}
	sort.Strings(coins)
	return coins
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
