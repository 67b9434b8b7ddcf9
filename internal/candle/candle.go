// Package candle turns stored price snapshots into OHLC bars.
package candle

import (
	"fmt"
	"math"
	"sort"
	"time"

	"criptodash/internal/domain"
)

// LinePoints is how many raw points the line fallback shows.
const LinePoints = 200

// Point is one USD observation.
type Point struct {
	At    time.Time
	Price float64
}

// Timeframes lists the selectable chart timeframes in display order.
var Timeframes = domain.SupportedTimeframes

// ParseTimeframe validates a timeframe label such as "15m".
func ParseTimeframe(s string) (domain.Timeframe, error) {
	tf := domain.Timeframe(s)
	if tf.Duration() == 0 {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// NextTimeframe cycles through Timeframes, wrapping at the end.
func NextTimeframe(tf domain.Timeframe) domain.Timeframe {
	for i, t := range Timeframes {
		if t == tf {
			return Timeframes[(i+1)%len(Timeframes)]
		}
	}
	return Timeframes[0]
}

// PointsFromHistory converts newest-first history to ascending points.
// Snapshots without a USD price are dropped. When several snapshots share a
// timestamp the most recently written one is kept.
func PointsFromHistory(history []domain.PriceSnapshot) []Point {
	seen := make(map[int64]struct{}, len(history))
	points := make([]Point, 0, len(history))
	for _, snap := range history {
		if snap.Quote.IsEmpty() {
			continue
		}
		key := snap.ObservedAt.UnixNano()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		points = append(points, Point{At: snap.ObservedAt.UTC(), Price: snap.Quote.USD})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].At.Before(points[j].At) })
	return points
}

// Aggregate buckets ascending points into bars of width tf. Buckets start
// at multiples of the width since the Unix epoch; buckets with no points
// are omitted. Volume is always zero since snapshots carry none.
func Aggregate(points []Point, tf domain.Timeframe) []domain.CandleBar {
	width := int64(tf.Duration() / time.Second)
	if width <= 0 || len(points) == 0 {
		return nil
	}

	var (
		bars    []domain.CandleBar
		current *domain.CandleBar
		start   int64
	)
	for _, p := range points {
		b := bucketStart(p.At.Unix(), width)
		if current == nil || b != start {
			bars = append(bars, domain.CandleBar{
				BucketStart: time.Unix(b, 0).UTC(),
				Open:        p.Price,
				High:        p.Price,
				Low:         p.Price,
				Close:       p.Price,
			})
			current = &bars[len(bars)-1]
			start = b
			continue
		}
		current.High = math.Max(current.High, p.Price)
		current.Low = math.Min(current.Low, p.Price)
		current.Close = p.Price
	}
	return bars
}

// Tail returns the last n points.
func Tail(points []Point, n int) []Point {
	if n <= 0 {
		return nil
	}
	if len(points) <= n {
		return points
	}
	return points[len(points)-n:]
}

// Closes extracts close prices, oldest first.
func Closes(bars []domain.CandleBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func bucketStart(unix, width int64) int64 {
	q := unix / width
	if unix%width < 0 {
		q--
	}
	return q * width
}
