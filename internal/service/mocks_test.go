package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"criptodash/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

type mockProvider struct {
	prices    map[string]map[string]float64
	detail    *domain.CoinDetail
	chart     []domain.MarketPoint
	priceErr  error
	detailErr error
	chartErr  error

	priceCalls   int
	lastCoins    []string
	lastFiats    []string
	lastDays     int
	lastChartCur string
}

func (m *mockProvider) GetPrices(ctx context.Context, coinIDs, vsCurrencies []string, include24hChange bool) (map[string]map[string]float64, error) {
	m.priceCalls++
	m.lastCoins = append([]string(nil), coinIDs...)
	m.lastFiats = append([]string(nil), vsCurrencies...)
	if m.priceErr != nil {
		return nil, m.priceErr
	}
	return m.prices, nil
}

func (m *mockProvider) GetCoinDetail(ctx context.Context, coinID string) (*domain.CoinDetail, error) {
	if m.detailErr != nil {
		return nil, m.detailErr
	}
	return m.detail, nil
}

func (m *mockProvider) GetMarketChart(ctx context.Context, coinID, vsCurrency string, days int) ([]domain.MarketPoint, error) {
	m.lastDays = days
	m.lastChartCur = vsCurrency
	if m.chartErr != nil {
		return nil, m.chartErr
	}
	return m.chart, nil
}

type memStore struct {
	mu        sync.Mutex
	rows      []domain.PriceSnapshot
	settings  map[string]string
	appendErr error
	readErr   error

	appendCalls  int
	historyCalls int
}

func newMemStore() *memStore {
	return &memStore{settings: make(map[string]string)}
}

func (m *memStore) Append(ctx context.Context, coinID string, quote domain.PriceQuote, observedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendCalls++
	if m.appendErr != nil {
		return m.appendErr
	}
	if observedAt.IsZero() {
		observedAt = time.Now()
	}
	m.rows = append(m.rows, domain.PriceSnapshot{CoinID: coinID, Quote: quote, ObservedAt: observedAt.UTC().Truncate(time.Second)})
	return nil
}

func (m *memStore) Latest(ctx context.Context, coinID string) (*domain.PriceSnapshot, error) {
	h, err := m.History(ctx, coinID, 1)
	if err != nil || len(h) == 0 {
		return nil, err
	}
	return &h[0], nil
}

func (m *memStore) History(ctx context.Context, coinID string, maxRows int) ([]domain.PriceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyCalls++
	if m.readErr != nil {
		return nil, m.readErr
	}
	var out []domain.PriceSnapshot
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].CoinID == coinID {
			out = append(out, m.rows[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ObservedAt.After(out[j].ObservedAt) })
	if len(out) > maxRows {
		out = out[:maxRows]
	}
	return out, nil
}

func (m *memStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return "", false, m.readErr
	}
	v, ok := m.settings[key]
	return v, ok, nil
}

func (m *memStore) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *memStore) DeleteSetting(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.settings, key)
	return nil
}

func (m *memStore) Close() error { return nil }

type fakeRedis struct {
	data   map[string][]byte
	setErr error
	getErr error
	dels   []string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte)}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = append([]byte(nil), v...)
	case string:
		f.data[key] = []byte(v)
	default:
		bytes, _ := json.Marshal(v)
		f.data[key] = bytes
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(string(v), nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		f.dels = append(f.dels, k)
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func f64(v float64) *float64 { return &v }
