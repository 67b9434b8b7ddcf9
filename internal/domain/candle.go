package domain

import "time"

// CandleBar is one OHLC bucket derived from stored price snapshots.
// Volume is always zero: the price feed carries no trade volume.
type CandleBar struct {
	BucketStart time.Time `json:"bucket_start"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
}

// Timeframe is a supported candle bucket width.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// SupportedTimeframes lists the chart timeframes in display order.
var SupportedTimeframes = []Timeframe{
	Timeframe1m, Timeframe5m, Timeframe15m,
	Timeframe1h, Timeframe4h, Timeframe1d,
}

// Duration returns the bucket width, or 0 for an unknown timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1m:
		return time.Minute
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// MarketPoint is one (timestamp, price) pair from the market chart endpoint.
type MarketPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}
