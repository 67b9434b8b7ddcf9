package domain

import (
	"strings"
	"time"
)

// PriceQuote is the narrow payload stored for every snapshot.
type PriceQuote struct {
	USD          float64  `json:"usd"`
	BRL          *float64 `json:"brl,omitempty"`
	USD24hChange *float64 `json:"usd_24h_change,omitempty"`
}

// QuoteFromMap builds a quote from a raw simple/price entry.
// Entries without a usd price are rejected.
func QuoteFromMap(raw map[string]float64) (PriceQuote, bool) {
	usd, ok := raw["usd"]
	if !ok {
		return PriceQuote{}, false
	}
	q := PriceQuote{USD: usd}
	if v, ok := raw["brl"]; ok {
		q.BRL = &v
	}
	if v, ok := raw["usd_24h_change"]; ok {
		q.USD24hChange = &v
	}
	return q, true
}

// IsEmpty reports whether q is the zero quote used for unreadable rows.
func (q PriceQuote) IsEmpty() bool {
	return q.USD == 0 && q.BRL == nil && q.USD24hChange == nil
}

// PriceSnapshot is one observation of a coin's price.
type PriceSnapshot struct {
	CoinID     string     `json:"coin_id"`
	Quote      PriceQuote `json:"quote"`
	ObservedAt time.Time  `json:"observed_at"`
}

// CoinDetail is the subset of /coins/{id} the detail view shows.
type CoinDetail struct {
	ID           string             `json:"id"`
	Symbol       string             `json:"symbol"`
	Name         string             `json:"name"`
	Description  map[string]string  `json:"description"`
	Homepages    []string           `json:"homepages"`
	Images       map[string]string  `json:"images"`
	CurrentPrice map[string]float64 `json:"current_price"`
	MarketCap    map[string]float64 `json:"market_cap"`
	Change24hPct float64            `json:"change_24h_pct"`
	HasChange24h bool               `json:"has_change_24h"`
	LastUpdated  time.Time          `json:"last_updated"`
}

// Quote extracts the simple price quote carried by a detail response.
func (d *CoinDetail) Quote() (PriceQuote, bool) {
	raw := make(map[string]float64, 3)
	if v, ok := d.CurrentPrice["usd"]; ok {
		raw["usd"] = v
	}
	if v, ok := d.CurrentPrice["brl"]; ok {
		raw["brl"] = v
	}
	if d.HasChange24h {
		raw["usd_24h_change"] = d.Change24hPct
	}
	return QuoteFromMap(raw)
}

// Homepage returns the first non-empty homepage link.
func (d *CoinDetail) Homepage() string {
	for _, h := range d.Homepages {
		if h = strings.TrimSpace(h); h != "" {
			return h
		}
	}
	return ""
}

// DefaultCoins are the CoinGecko ids shown on the dashboard.
var DefaultCoins = []string{"bitcoin", "ethereum", "dogecoin", "litecoin", "ripple"}

// DefaultFiats are the vs_currencies requested from simple/price.
var DefaultFiats = []string{"usd", "brl"}

// NormalizeCoinID canonicalizes a coin identifier.
func NormalizeCoinID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
