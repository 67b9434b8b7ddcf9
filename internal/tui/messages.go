package tui

import (
	"time"

	"criptodash/internal/domain"
	"criptodash/internal/service"
)

type cachedMsg struct {
	cached   *service.CachedQuotes
	settings service.RefreshSettings
}

type pricesMsg struct {
	quotes map[string]domain.PriceQuote
	err    error
	at     time.Time
}

type detailMsg struct {
	coin string
	res  service.DetailResult
}

type chartSettingsMsg struct {
	id       int
	settings service.ChartSettings
}

type chartMsg struct {
	id       int
	res      service.ChartResult
	fetchErr error
	fetched  bool
	at       time.Time
}

type backfillMsg struct {
	id  int
	n   int
	err error
}

type transferMsg struct {
	export bool
	path   string
	n      int
	err    error
}

type savedMsg struct{ err error }
