package service

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"criptodash/internal/domain"
	"criptodash/internal/provider"
	"criptodash/internal/store"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(p *mockProvider, st *memStore, r RedisClient, mirror string) *PriceService {
	svc := NewPriceService(testTracer, p, st, r, Config{
		Coins:      []string{"bitcoin", "ethereum"},
		Fiats:      []string{"usd", "brl"},
		MirrorPath: mirror,
	})
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestPriceService_RefreshPricesStoresEachCoin(t *testing.T) {
	t.Parallel()

	p := &mockProvider{prices: map[string]map[string]float64{
		"bitcoin":  {"usd": 100, "brl": 500, "usd_24h_change": 1.2},
		"ethereum": {"usd": 10},
	}}
	st := newMemStore()
	r := newFakeRedis()
	mirror := filepath.Join(t.TempDir(), "prices.json")
	svc := newTestService(p, st, r, mirror)

	quotes, err := svc.RefreshPrices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.priceCalls != 1 {
		t.Fatalf("expected one adapter call, got %d", p.priceCalls)
	}
	if len(p.lastFiats) != 2 || p.lastFiats[1] != "brl" {
		t.Fatalf("unexpected fiats: %v", p.lastFiats)
	}
	if len(quotes) != 2 || quotes["bitcoin"].BRL == nil || *quotes["bitcoin"].BRL != 500 {
		t.Fatalf("unexpected quotes: %+v", quotes)
	}
	if len(st.rows) != 2 {
		t.Fatalf("expected 2 snapshots stored, got %d", len(st.rows))
	}
	if !st.rows[0].ObservedAt.Equal(fixedNow) {
		t.Fatalf("expected snapshot stamped %v, got %v", fixedNow, st.rows[0].ObservedAt)
	}
	if _, ok := r.data["price:bitcoin"]; !ok {
		t.Fatal("expected redis cache entry")
	}

	m, err := store.LoadMirror(mirror)
	if err != nil || m == nil || len(m.Prices) != 2 {
		t.Fatalf("expected mirror with 2 coins, got %+v, %v", m, err)
	}
}

func TestPriceService_RefreshPricesSkipsCoinWithoutUSD(t *testing.T) {
	t.Parallel()

	p := &mockProvider{prices: map[string]map[string]float64{
		"bitcoin": {"usd": 100},
	}}
	st := newMemStore()
	svc := newTestService(p, st, nil, "")

	quotes, err := svc.RefreshPrices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := quotes["ethereum"]; ok || len(st.rows) != 1 {
		t.Fatalf("expected only bitcoin, got %+v (%d rows)", quotes, len(st.rows))
	}
}

func TestPriceService_RefreshPricesStorageFailureDoesNotFail(t *testing.T) {
	t.Parallel()

	p := &mockProvider{prices: map[string]map[string]float64{"bitcoin": {"usd": 1}}}
	st := newMemStore()
	st.appendErr = errors.New("disk full")
	svc := newTestService(p, st, nil, "")

	quotes, err := svc.RefreshPrices(context.Background())
	if err != nil {
		t.Fatalf("storage failure must not surface: %v", err)
	}
	if quotes["bitcoin"].USD != 1 {
		t.Fatalf("unexpected quotes: %+v", quotes)
	}
}

func TestPriceService_RefreshPricesReturnsSourceError(t *testing.T) {
	t.Parallel()

	srcErr := &provider.SourceError{Op: "simple price", Kind: provider.KindTimeout}
	p := &mockProvider{priceErr: srcErr}
	st := newMemStore()
	svc := newTestService(p, st, nil, "")

	_, err := svc.RefreshPrices(context.Background())
	if !provider.IsKind(err, provider.KindTimeout) {
		t.Fatalf("expected timeout source error, got %v", err)
	}
	if st.appendCalls != 0 {
		t.Fatalf("expected nothing stored, got %d appends", st.appendCalls)
	}
	if msg := UserMessage(err); msg != srcErr.Message() {
		t.Fatalf("unexpected user message %q", msg)
	}
}

func TestPriceService_CachedPricesPrefersRedisThenStore(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	st.Append(context.Background(), "ethereum", domain.PriceQuote{USD: 20}, fixedNow.Add(-time.Hour))

	r := newFakeRedis()
	data, _ := json.Marshal(domain.PriceSnapshot{CoinID: "bitcoin", Quote: domain.PriceQuote{USD: 99}, ObservedAt: fixedNow})
	r.data["price:bitcoin"] = data

	svc := newTestService(&mockProvider{}, st, r, "")
	cached := svc.CachedPrices(context.Background())
	if cached == nil {
		t.Fatal("expected cached prices")
	}
	if cached.Quotes["bitcoin"].USD != 99 || cached.Quotes["ethereum"].USD != 20 {
		t.Fatalf("unexpected cached quotes: %+v", cached.Quotes)
	}
	if !cached.AsOf.Equal(fixedNow) || cached.FromMirror {
		t.Fatalf("unexpected cache metadata: %+v", cached)
	}
}

func TestPriceService_CachedPricesFallsBackToMirror(t *testing.T) {
	t.Parallel()

	mirror := filepath.Join(t.TempDir(), "prices.json")
	if err := store.SaveMirror(mirror, map[string]domain.PriceQuote{"bitcoin": {USD: 7}}, fixedNow); err != nil {
		t.Fatalf("SaveMirror() error = %v", err)
	}
	st := newMemStore()
	st.readErr = errors.New("database is locked")

	svc := newTestService(&mockProvider{}, st, nil, mirror)
	cached := svc.CachedPrices(context.Background())
	if cached == nil || !cached.FromMirror || cached.Quotes["bitcoin"].USD != 7 {
		t.Fatalf("expected mirror fallback, got %+v", cached)
	}
}

func TestPriceService_CachedPricesNothingKnown(t *testing.T) {
	t.Parallel()

	svc := newTestService(&mockProvider{}, newMemStore(), nil, filepath.Join(t.TempDir(), "none.json"))
	if cached := svc.CachedPrices(context.Background()); cached != nil {
		t.Fatalf("expected nil, got %+v", cached)
	}
}

func TestPriceService_CoinDetailStoresQuote(t *testing.T) {
	t.Parallel()

	detail := &domain.CoinDetail{
		ID:           "bitcoin",
		Name:         "Bitcoin",
		CurrentPrice: map[string]float64{"usd": 123, "brl": 600},
	}
	st := newMemStore()
	svc := newTestService(&mockProvider{detail: detail}, st, nil, "")

	res := svc.CoinDetail(context.Background(), "Bitcoin")
	if res.Err != nil || res.Detail == nil || res.Detail.Name != "Bitcoin" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(st.rows) != 1 || st.rows[0].Quote.USD != 123 {
		t.Fatalf("expected detail quote stored, got %+v", st.rows)
	}
}

func TestPriceService_CoinDetailFallsBackToStore(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	st.Append(context.Background(), "bitcoin", domain.PriceQuote{USD: 55}, fixedNow)
	p := &mockProvider{detailErr: &provider.SourceError{Op: "coin detail", Kind: provider.KindNetwork}}
	svc := newTestService(p, st, nil, "")

	res := svc.CoinDetail(context.Background(), "bitcoin")
	if res.Detail != nil {
		t.Fatalf("expected no live detail, got %+v", res.Detail)
	}
	if !provider.IsKind(res.Err, provider.KindNetwork) {
		t.Fatalf("expected network error, got %v", res.Err)
	}
	if res.Cached == nil || res.Cached.Quote.USD != 55 {
		t.Fatalf("expected cached snapshot, got %+v", res.Cached)
	}
}

func TestPriceService_ImportInvalidatesCache(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := newMemStore()
	src.Append(context.Background(), "bitcoin", domain.PriceQuote{USD: 1}, fixedNow)
	srcSvc := newTestService(&mockProvider{}, src, nil, "")
	path := filepath.Join(dir, "export.json")
	if n, err := srcSvc.Export(context.Background(), path); err != nil || n != 1 {
		t.Fatalf("Export() = %d, %v", n, err)
	}

	r := newFakeRedis()
	r.data["price:bitcoin"] = []byte(`{}`)
	dst := newMemStore()
	svc := newTestService(&mockProvider{}, dst, r, "")

	coins, err := svc.Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(coins) != 1 || coins[0] != "bitcoin" {
		t.Fatalf("unexpected coins: %v", coins)
	}
	if _, ok := r.data["price:bitcoin"]; ok {
		t.Fatal("expected cache entry removed")
	}
	if len(dst.rows) != 1 || !dst.rows[0].ObservedAt.Equal(fixedNow) {
		t.Fatalf("unexpected imported rows: %+v", dst.rows)
	}
}
