package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestProvider(rt roundTripFunc) *CoinGeckoProvider {
	p := NewCoinGeckoProvider(trace.NewNoopTracerProvider().Tracer("test"), "http://example", time.Second, 60)
	p.client = &http.Client{Transport: rt}
	p.limiter = NewRateLimiter(100, time.Millisecond)
	return p
}

func jsonResponse(status int, v any) *http.Response {
	var data []byte
	switch body := v.(type) {
	case string:
		data = []byte(body)
	default:
		data, _ = json.Marshal(body)
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(data)),
		Header:     make(http.Header),
	}
}

func TestCoinGeckoProviderGetPrices(t *testing.T) {
	t.Parallel()

	p := newTestProvider(func(req *http.Request) (*http.Response, error) {
		if !strings.HasSuffix(req.URL.Path, "/simple/price") {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		q := req.URL.Query()
		if q.Get("ids") != "bitcoin,ethereum" || q.Get("vs_currencies") != "usd,brl" || q.Get("include_24hr_change") != "true" {
			t.Fatalf("unexpected query: %s", req.URL.RawQuery)
		}
		return jsonResponse(http.StatusOK, `{"bitcoin":{"usd":100,"brl":500,"usd_24h_change":1.5},"ethereum":{"usd":10,"usd_24h_change":null}}`), nil
	})

	result, err := p.GetPrices(context.Background(), []string{"bitcoin", "ethereum"}, []string{"usd", "brl"}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["bitcoin"]["usd"] != 100 || result["bitcoin"]["brl"] != 500 || result["bitcoin"]["usd_24h_change"] != 1.5 {
		t.Fatalf("unexpected bitcoin values: %+v", result["bitcoin"])
	}
	if _, ok := result["ethereum"]["usd_24h_change"]; ok {
		t.Fatalf("null change should be dropped: %+v", result["ethereum"])
	}
}

func TestCoinGeckoProviderGetPricesEmptyIDs(t *testing.T) {
	t.Parallel()

	p := newTestProvider(func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	result, err := p.GetPrices(context.Background(), nil, []string{"usd"}, false)
	if err != nil || len(result) != 0 {
		t.Fatalf("expected empty result, got %+v err=%v", result, err)
	}
}

func TestCoinGeckoProviderHTTPError(t *testing.T) {
	t.Parallel()

	p := newTestProvider(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusTooManyRequests, `{"status":{"error_code":429}}`), nil
	})

	_, err := p.GetPrices(context.Background(), []string{"bitcoin"}, []string{"usd"}, true)
	var se *SourceError
	if !errors.As(err, &se) {
		t.Fatalf("expected SourceError, got %v", err)
	}
	if se.Kind != KindHTTP || se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected classification: %+v", se)
	}
	if !strings.Contains(se.Message(), "429") {
		t.Fatalf("message should mention status: %q", se.Message())
	}
}

func TestCoinGeckoProviderNetworkAndTimeoutErrors(t *testing.T) {
	t.Parallel()

	netFail := newTestProvider(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	_, err := netFail.GetCoinDetail(context.Background(), "bitcoin")
	if !IsKind(err, KindNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}

	slow := newTestProvider(func(req *http.Request) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	})
	_, err = slow.GetMarketChart(context.Background(), "bitcoin", "usd", 1)
	if !IsKind(err, KindTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestCoinGeckoProviderMalformedBody(t *testing.T) {
	t.Parallel()

	p := newTestProvider(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `not json`), nil
	})
	if _, err := p.GetPrices(context.Background(), []string{"bitcoin"}, []string{"usd"}, false); !IsKind(err, KindUnexpected) {
		t.Fatalf("expected unexpected error, got %v", err)
	}
	if _, err := p.GetCoinDetail(context.Background(), "bitcoin"); !IsKind(err, KindUnexpected) {
		t.Fatalf("expected unexpected error, got %v", err)
	}
}

func TestCoinGeckoProviderGetCoinDetail(t *testing.T) {
	t.Parallel()

	p := newTestProvider(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/coins/bitcoin" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		if req.URL.Query().Get("market_data") != "true" {
			t.Fatalf("market_data not requested: %s", req.URL.RawQuery)
		}
		return jsonResponse(http.StatusOK, `{
			"id": "bitcoin", "symbol": "btc", "name": "Bitcoin",
			"description": {"en": "<p>Digital gold</p>", "pt": "Ouro digital"},
			"links": {"homepage": ["https://bitcoin.org", "", ""]},
			"image": {"thumb": "t.png", "small": "s.png", "large": "l.png"},
			"last_updated": "2025-01-01T12:00:00.000Z",
			"market_data": {
				"current_price": {"usd": 97000, "brl": 510000},
				"market_cap": {"usd": 1900000000000},
				"price_change_percentage_24h": -2.5
			}
		}`), nil
	})

	d, err := p.GetCoinDetail(context.Background(), "bitcoin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Name != "Bitcoin" || d.Symbol != "btc" || d.Description["en"] != "<p>Digital gold</p>" {
		t.Fatalf("unexpected detail: %+v", d)
	}
	if d.CurrentPrice["usd"] != 97000 || d.MarketCap["usd"] != 1.9e12 {
		t.Fatalf("unexpected market data: %+v", d)
	}
	if !d.HasChange24h || d.Change24hPct != -2.5 {
		t.Fatalf("unexpected change: %+v", d)
	}
	if d.Homepage() != "https://bitcoin.org" || d.Images["large"] != "l.png" {
		t.Fatalf("unexpected links: %+v", d)
	}
	if !d.LastUpdated.Equal(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected last updated: %v", d.LastUpdated)
	}
}

func TestCoinGeckoProviderGetMarketChart(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newTestProvider(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/coins/bitcoin/market_chart" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		if req.URL.Query().Get("days") != "1" || req.URL.Query().Get("vs_currency") != "usd" {
			t.Fatalf("unexpected query: %s", req.URL.RawQuery)
		}
		return jsonResponse(http.StatusOK, map[string]any{
			"prices": [][]float64{
				{float64(base.Add(5 * time.Minute).UnixMilli()), 12},
				{float64(base.UnixMilli()), 10},
				{1},
			},
		}), nil
	})

	points, err := p.GetMarketChart(context.Background(), "bitcoin", "usd", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if !points[0].Timestamp.Equal(base) || points[0].Price != 10 || points[1].Price != 12 {
		t.Fatalf("points not sorted ascending: %+v", points)
	}
}
