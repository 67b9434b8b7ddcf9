package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"criptodash/internal/domain"
	"criptodash/internal/provider"
	"criptodash/internal/store"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

const priceCacheTTL = 90 * time.Second

type PriceProvider interface {
	GetPrices(ctx context.Context, coinIDs, vsCurrencies []string, include24hChange bool) (map[string]map[string]float64, error)
	GetCoinDetail(ctx context.Context, coinID string) (*domain.CoinDetail, error)
	GetMarketChart(ctx context.Context, coinID, vsCurrency string, days int) ([]domain.MarketPoint, error)
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Config holds the service knobs that come from application config.
type Config struct {
	Coins          []string
	Fiats          []string
	MaxHistoryRows int
	MirrorPath     string
}

// PriceService orchestrates fetching, storing and reading prices for the
// dashboard, detail and chart views.
type PriceService struct {
	tracer   trace.Tracer
	provider PriceProvider
	store    store.Store
	redis    RedisClient

	coins      []string
	fiats      []string
	maxRows    int
	mirrorPath string

	now func() time.Time
}

// NewPriceService wires the service. redisClient may be nil.
func NewPriceService(
	tracer trace.Tracer,
	provider PriceProvider,
	st store.Store,
	redisClient RedisClient,
	cfg Config,
) *PriceService {
	if len(cfg.Coins) == 0 {
		cfg.Coins = domain.DefaultCoins
	}
	if len(cfg.Fiats) == 0 {
		cfg.Fiats = domain.DefaultFiats
	}
	if cfg.MaxHistoryRows <= 0 {
		cfg.MaxHistoryRows = 5000
	}
	return &PriceService{
		tracer:     tracer,
		provider:   provider,
		store:      st,
		redis:      redisClient,
		coins:      cfg.Coins,
		fiats:      cfg.Fiats,
		maxRows:    cfg.MaxHistoryRows,
		mirrorPath: cfg.MirrorPath,
		now:        time.Now,
	}
}

// Coins returns the configured coin ids in display order.
func (s *PriceService) Coins() []string { return s.coins }

// RefreshPrices fetches every configured coin in one call and records the
// result. Storage, mirror and cache failures are logged, never returned.
func (s *PriceService) RefreshPrices(ctx context.Context) (map[string]domain.PriceQuote, error) {
	ctx, span := s.tracer.Start(ctx, "price-service.refresh-prices")
	defer span.End()

	raw, err := s.provider.GetPrices(ctx, s.coins, s.fiats, true)
	if err != nil {
		return nil, err
	}

	now := s.now()
	quotes := make(map[string]domain.PriceQuote, len(raw))
	for _, coin := range s.coins {
		q, ok := domain.QuoteFromMap(raw[coin])
		if !ok {
			log.Warnf("no usd price for %s in response", coin)
			continue
		}
		quotes[coin] = q
		s.record(ctx, coin, q, now)
	}

	if s.mirrorPath != "" && len(quotes) > 0 {
		if err := store.SaveMirror(s.mirrorPath, quotes, now); err != nil {
			log.Errorf("mirror write failed: %v", err)
		}
	}

	log.Infof("refreshed prices for %d coins", len(quotes))
	return quotes, nil
}

// RefreshCoin fetches and records a single coin.
func (s *PriceService) RefreshCoin(ctx context.Context, coin string) (domain.PriceQuote, error) {
	ctx, span := s.tracer.Start(ctx, "price-service.refresh-coin")
	defer span.End()

	coin = domain.NormalizeCoinID(coin)
	raw, err := s.provider.GetPrices(ctx, []string{coin}, s.fiats, true)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	q, ok := domain.QuoteFromMap(raw[coin])
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("no usd price for %s", coin)
	}
	s.record(ctx, coin, q, s.now())
	return q, nil
}

// CachedQuotes is the last known state shown before the first fetch.
type CachedQuotes struct {
	Quotes     map[string]domain.PriceQuote
	AsOf       time.Time
	FromMirror bool
}

// CachedPrices reads the last known quote per coin from Redis, then the
// store, then the mirror file. It returns nil when nothing is known.
func (s *PriceService) CachedPrices(ctx context.Context) *CachedQuotes {
	ctx, span := s.tracer.Start(ctx, "price-service.cached-prices")
	defer span.End()

	out := &CachedQuotes{Quotes: make(map[string]domain.PriceQuote)}
	for _, coin := range s.coins {
		snap := s.latest(ctx, coin)
		if snap == nil || snap.Quote.IsEmpty() {
			continue
		}
		out.Quotes[coin] = snap.Quote
		if snap.ObservedAt.After(out.AsOf) {
			out.AsOf = snap.ObservedAt
		}
	}
	if len(out.Quotes) > 0 {
		return out
	}

	if s.mirrorPath == "" {
		return nil
	}
	m, err := store.LoadMirror(s.mirrorPath)
	if err != nil {
		log.Warnf("mirror unreadable, ignoring: %v", err)
		return nil
	}
	if m == nil || len(m.Prices) == 0 {
		return nil
	}
	return &CachedQuotes{Quotes: m.Prices, AsOf: m.SavedAt, FromMirror: true}
}

// DetailResult carries either a live detail or the cached fallback with
// the error that caused it.
type DetailResult struct {
	Detail *domain.CoinDetail
	Cached *domain.PriceSnapshot
	Err    error
}

// CoinDetail fetches the full coin record. On failure it falls back to the
// newest stored snapshot.
func (s *PriceService) CoinDetail(ctx context.Context, coin string) DetailResult {
	ctx, span := s.tracer.Start(ctx, "price-service.coin-detail")
	defer span.End()

	coin = domain.NormalizeCoinID(coin)
	detail, err := s.provider.GetCoinDetail(ctx, coin)
	if err == nil {
		if q, ok := detail.Quote(); ok {
			s.record(ctx, coin, q, s.now())
		}
		return DetailResult{Detail: detail}
	}

	log.Warnf("coin detail for %s failed: %v", coin, err)
	return DetailResult{Cached: s.latest(ctx, coin), Err: err}
}

// UserMessage turns an error into status-line text.
func UserMessage(err error) string {
	var se *provider.SourceError
	if errors.As(err, &se) {
		return se.Message()
	}
	var die *store.DataIntegrityError
	if errors.As(err, &die) {
		return "file is not valid price data"
	}
	return err.Error()
}

func (s *PriceService) record(ctx context.Context, coin string, q domain.PriceQuote, at time.Time) {
	if err := s.store.Append(ctx, coin, q, at); err != nil {
		log.Errorf("store append for %s failed: %v", coin, err)
	}
	if s.redis != nil {
		snap := domain.PriceSnapshot{CoinID: coin, Quote: q, ObservedAt: at.UTC()}
		if err := s.setPriceCache(ctx, snap); err != nil {
			log.Warnf("redis cache write error for %s: %v", coin, err)
		}
	}
}

func (s *PriceService) latest(ctx context.Context, coin string) *domain.PriceSnapshot {
	if s.redis != nil {
		cached, err := s.getPriceCache(ctx, coin)
		if err != nil {
			log.Warnf("redis cache read error: %v", err)
		}
		if cached != nil {
			return cached
		}
	}
	snap, err := s.store.Latest(ctx, coin)
	if err != nil {
		log.Errorf("store read for %s failed: %v", coin, err)
		return nil
	}
	return snap
}

func (s *PriceService) setPriceCache(ctx context.Context, snap domain.PriceSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, "price:"+snap.CoinID, data, priceCacheTTL).Err()
}

func (s *PriceService) getPriceCache(ctx context.Context, coin string) (*domain.PriceSnapshot, error) {
	data, err := s.redis.Get(ctx, "price:"+coin).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap domain.PriceSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *PriceService) invalidateCache(ctx context.Context, coins []string) {
	if s.redis == nil || len(coins) == 0 {
		return
	}
	keys := make([]string, len(coins))
	for i, c := range coins {
		keys[i] = "price:" + c
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		log.Warnf("redis cache invalidate error: %v", err)
	}
}
