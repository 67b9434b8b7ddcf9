package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"criptodash/internal/domain"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBaseURL = "https://api.coingecko.com/api/v3"
	DefaultTimeout = 10 * time.Second
)

// CoinGeckoProvider is a plain request/response client for the CoinGecko
// public API. It never caches and never retries.
type CoinGeckoProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *RateLimiter
}

// NewCoinGeckoProvider creates a provider. Empty baseURL and zero timeout
// fall back to the public endpoint and a 10s request timeout.
func NewCoinGeckoProvider(tracer trace.Tracer, baseURL string, timeout time.Duration, perMinute int) *CoinGeckoProvider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CoinGeckoProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		tracer:  tracer,
		limiter: NewRateLimiterPerMinute(perMinute),
	}
}

// GetPrices fetches current prices for coinIDs in a single call.
// Response shape: {"bitcoin": {"usd": 97000, "brl": 510000, "usd_24h_change": 2.34}, ...}
func (p *CoinGeckoProvider) GetPrices(ctx context.Context, coinIDs, vsCurrencies []string, include24hChange bool) (map[string]map[string]float64, error) {
	const op = "get_prices"
	ctx, span := p.tracer.Start(ctx, "coingecko.get-prices")
	defer span.End()
	span.SetAttributes(attribute.StringSlice("coin_ids", coinIDs))

	if len(coinIDs) == 0 {
		return map[string]map[string]float64{}, nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(coinIDs, ","))
	q.Set("vs_currencies", strings.Join(vsCurrencies, ","))
	q.Set("include_24hr_change", strconv.FormatBool(include24hChange))

	body, err := p.doRequest(ctx, op, "/simple/price", q)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	var raw map[string]map[string]*float64
	if err := json.Unmarshal(body, &raw); err != nil {
		se := unexpected(op, fmt.Errorf("parse prices: %w", err))
		recordError(span, se)
		return nil, se
	}

	result := make(map[string]map[string]float64, len(raw))
	for coin, fields := range raw {
		values := make(map[string]float64, len(fields))
		for k, v := range fields {
			if v != nil {
				values[k] = *v
			}
		}
		result[coin] = values
	}
	return result, nil
}

// GetCoinDetail fetches /coins/{id} with market data.
func (p *CoinGeckoProvider) GetCoinDetail(ctx context.Context, coinID string) (*domain.CoinDetail, error) {
	const op = "get_coin_detail"
	ctx, span := p.tracer.Start(ctx, "coingecko.get-coin-detail")
	defer span.End()
	span.SetAttributes(attribute.String("coin_id", coinID))

	q := url.Values{}
	q.Set("localization", "false")
	q.Set("tickers", "false")
	q.Set("market_data", "true")
	q.Set("community_data", "false")
	q.Set("developer_data", "false")
	q.Set("sparkline", "false")

	body, err := p.doRequest(ctx, op, "/coins/"+url.PathEscape(coinID), q)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	detail, err := parseCoinDetail(body)
	if err != nil {
		se := unexpected(op, err)
		recordError(span, se)
		return nil, se
	}
	return detail, nil
}

// GetMarketChart fetches the historical price series for a coin.
func (p *CoinGeckoProvider) GetMarketChart(ctx context.Context, coinID, vsCurrency string, days int) ([]domain.MarketPoint, error) {
	const op = "get_market_chart"
	ctx, span := p.tracer.Start(ctx, "coingecko.get-market-chart")
	defer span.End()
	span.SetAttributes(attribute.String("coin_id", coinID), attribute.Int("days", days))

	if days < 1 {
		days = 1
	}
	q := url.Values{}
	q.Set("vs_currency", vsCurrency)
	q.Set("days", strconv.Itoa(days))

	body, err := p.doRequest(ctx, op, "/coins/"+url.PathEscape(coinID)+"/market_chart", q)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	var raw struct {
		Prices [][]float64 `json:"prices"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		se := unexpected(op, fmt.Errorf("parse market chart for %s: %w", coinID, err))
		recordError(span, se)
		return nil, se
	}

	points := make([]domain.MarketPoint, 0, len(raw.Prices))
	for _, pt := range raw.Prices {
		if len(pt) < 2 {
			continue
		}
		points = append(points, domain.MarketPoint{
			Timestamp: time.UnixMilli(int64(pt[0])).UTC(),
			Price:     pt[1],
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	return points, nil
}

func (p *CoinGeckoProvider) doRequest(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, classifyTransport(op, fmt.Errorf("rate limit wait: %w", err))
	}

	endpoint := p.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, unexpected(op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &SourceError{
			Op:         op,
			Kind:       KindHTTP,
			StatusCode: resp.StatusCode,
			Detail:     fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt))),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	return body, nil
}

func parseCoinDetail(body []byte) (*domain.CoinDetail, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("parse coin detail: invalid json")
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, fmt.Errorf("parse coin detail: expected object")
	}

	d := &domain.CoinDetail{
		ID:           doc.Get("id").String(),
		Symbol:       doc.Get("symbol").String(),
		Name:         doc.Get("name").String(),
		Description:  stringMap(doc.Get("description")),
		Images:       stringMap(doc.Get("image")),
		CurrentPrice: floatMap(doc.Get("market_data.current_price")),
		MarketCap:    floatMap(doc.Get("market_data.market_cap")),
	}
	for _, h := range doc.Get("links.homepage").Array() {
		if s := h.String(); s != "" {
			d.Homepages = append(d.Homepages, s)
		}
	}
	if change := doc.Get("market_data.price_change_percentage_24h"); change.Type == gjson.Number {
		d.Change24hPct = change.Float()
		d.HasChange24h = true
	}
	if ts := doc.Get("last_updated").String(); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			d.LastUpdated = t.UTC()
		}
	}
	return d, nil
}

func stringMap(r gjson.Result) map[string]string {
	out := make(map[string]string)
	r.ForEach(func(k, v gjson.Result) bool {
		if v.Type == gjson.String {
			out[k.String()] = v.String()
		}
		return true
	})
	return out
}

func floatMap(r gjson.Result) map[string]float64 {
	out := make(map[string]float64)
	r.ForEach(func(k, v gjson.Result) bool {
		if v.Type == gjson.Number {
			out[k.String()] = v.Float()
		}
		return true
	})
	return out
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
