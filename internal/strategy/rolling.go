package strategy

import "math"

// rollingStats computes the rolling mean and sample standard deviation
// over a trailing window. Output index t covers values[t-window+1..t];
// rows with t < window-1 are NaN.
func rollingStats(values []float64, window int) (means, stds []float64) {
	n := len(values)
	means = make([]float64, n)
	stds = make([]float64, n)
	for t := 0; t < n; t++ {
		if t < window-1 {
			means[t] = math.NaN()
			stds[t] = math.NaN()
			continue
		}
		sum := 0.0
		for i := t - window + 1; i <= t; i++ {
			sum += values[i]
		}
		mean := sum / float64(window)

		ss := 0.0
		for i := t - window + 1; i <= t; i++ {
			d := values[i] - mean
			ss += d * d
		}
		variance := 0.0
		if window > 1 {
			variance = ss / float64(window-1)
		}
		means[t] = mean
		stds[t] = math.Sqrt(variance)
	}
	return means, stds
}

// finalizeSignals turns a raw signal column with undefined rows into the
// spec's clean form: defined values are carried forward over undefined
// gaps, and anything before the first defined value becomes 0.
func finalizeSignals(raw []int, defined []bool) []int {
	out := make([]int, len(raw))
	last := 0
	seen := false
	for t := range raw {
		if defined[t] {
			last = raw[t]
			seen = true
		}
		if seen {
			out[t] = last
		} else {
			out[t] = 0
		}
	}
	return out
}
