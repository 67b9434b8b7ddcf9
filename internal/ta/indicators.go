// Package ta has the small indicator set shown in the chart header.
package ta

import "math"

// EMASeries returns the exponential moving average of values, seeded with
// the first value. It has the same length as values.
func EMASeries(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float64, len(values))
	out[0] = values[0]
	if period <= 1 {
		copy(out, values)
		return out
	}
	alpha := 2.0 / float64(period+1)
	for i := 1; i < len(values); i++ {
		out[i] = out[i-1] + alpha*(values[i]-out[i-1])
	}
	return out
}

// LastEMA is the final EMA value, false when there are fewer than period
// values to average.
func LastEMA(values []float64, period int) (float64, bool) {
	if period < 1 || len(values) < period {
		return 0, false
	}
	s := EMASeries(values, period)
	return s[len(s)-1], true
}

// RSI is Wilder's relative strength index over the last value, false when
// there is not enough data.
func RSI(closes []float64, period int) (float64, bool) {
	if period < 1 || len(closes) <= period {
		return 0, false
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		gain += math.Max(d, 0)
		loss += math.Max(-d, 0)
	}
	gain /= float64(period)
	loss /= float64(period)
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		gain = (gain*float64(period-1) + math.Max(d, 0)) / float64(period)
		loss = (loss*float64(period-1) + math.Max(-d, 0)) / float64(period)
	}
	if loss == 0 {
		if gain == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := gain / loss
	return 100 - 100/(1+rs), true
}
