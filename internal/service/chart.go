package service

import (
	"context"
	"time"

	"criptodash/internal/candle"
	"criptodash/internal/domain"
	"criptodash/internal/ta"

	"github.com/charmbracelet/log"
)

// ChartKind says how a chart result should be drawn.
type ChartKind int

const (
	ChartEmpty ChartKind = iota
	ChartLine
	ChartCandles
)

// MinCandles is the fewest bars worth drawing as candles. A single bar
// shows no movement between buckets, so shorter series are drawn as a line
// of the raw prices inside it.
const MinCandles = 2

const emaPeriod = 9

// ChartResult is everything the chart view needs for one redraw.
type ChartResult struct {
	Coin      string
	Timeframe domain.Timeframe
	Kind      ChartKind
	Candles   []domain.CandleBar
	Line      []candle.Point
	EMA       float64
	HasEMA    bool
	// FetchErr is set when an on-demand fetch for an empty history failed.
	FetchErr error
}

// Last is the time of the newest point drawn.
func (r ChartResult) Last() time.Time {
	switch r.Kind {
	case ChartCandles:
		return r.Candles[len(r.Candles)-1].BucketStart
	case ChartLine:
		return r.Line[len(r.Line)-1].At
	}
	return time.Time{}
}

// ChartData builds candles for coin from stored history. When the store has
// nothing for the coin one fetch is attempted first.
func (s *PriceService) ChartData(ctx context.Context, coin string, tf domain.Timeframe) ChartResult {
	ctx, span := s.tracer.Start(ctx, "price-service.chart-data")
	defer span.End()

	coin = domain.NormalizeCoinID(coin)
	history := s.history(ctx, coin)
	var fetchErr error
	if len(history) == 0 {
		if _, err := s.RefreshCoin(ctx, coin); err != nil {
			log.Warnf("chart fetch for empty %s history failed: %v", coin, err)
			fetchErr = err
		}
		history = s.history(ctx, coin)
	}
	res := buildChart(coin, tf, history)
	res.FetchErr = fetchErr
	return res
}

// ChartFromStore is ChartData without the fetch: it never calls the price
// source, so callers that fetch on their own schedule pay for one call only.
func (s *PriceService) ChartFromStore(ctx context.Context, coin string, tf domain.Timeframe) ChartResult {
	ctx, span := s.tracer.Start(ctx, "price-service.chart-from-store")
	defer span.End()

	coin = domain.NormalizeCoinID(coin)
	return buildChart(coin, tf, s.history(ctx, coin))
}

func buildChart(coin string, tf domain.Timeframe, history []domain.PriceSnapshot) ChartResult {
	res := ChartResult{Coin: coin, Timeframe: tf}
	points := candle.PointsFromHistory(history)
	if len(points) == 0 {
		return res
	}

	bars := candle.Aggregate(points, tf)
	if len(bars) < MinCandles {
		res.Kind = ChartLine
		res.Line = candle.Tail(points, candle.LinePoints)
		return res
	}
	res.Kind = ChartCandles
	res.Candles = bars
	res.EMA, res.HasEMA = ta.LastEMA(candle.Closes(bars), emaPeriod)
	return res
}

// Backfill loads days of market-chart prices into the store so candles
// have something to aggregate. It returns the number of points stored.
func (s *PriceService) Backfill(ctx context.Context, coin string, days int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "price-service.backfill")
	defer span.End()

	coin = domain.NormalizeCoinID(coin)
	points, err := s.provider.GetMarketChart(ctx, coin, "usd", days)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, p := range points {
		if err := s.store.Append(ctx, coin, domain.PriceQuote{USD: p.Price}, p.Timestamp); err != nil {
			log.Errorf("backfill append for %s failed: %v", coin, err)
			continue
		}
		stored++
	}
	log.Infof("backfilled %d points for %s", stored, coin)
	return stored, nil
}

func (s *PriceService) history(ctx context.Context, coin string) []domain.PriceSnapshot {
	h, err := s.store.History(ctx, coin, s.maxRows)
	if err != nil {
		log.Errorf("history read for %s failed: %v", coin, err)
		return nil
	}
	return h
}
