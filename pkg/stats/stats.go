// Package stats provides the numeric helpers shared by the simulation engine
// and its consumers.
package stats

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// PopulationStdDev returns the population standard deviation (denominator n).
func PopulationStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	mean := Mean(values)
	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)))
}

// DownsideDeviation returns sqrt(mean(min(0, x-target)^2)). The mean is taken
// over every value, including those at or above target.
func DownsideDeviation(values []float64, target float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sumSquares float64
	for _, v := range values {
		if d := v - target; d < 0 {
			sumSquares += d * d
		}
	}
	return math.Sqrt(sumSquares / float64(len(values)))
}

// Sorted returns an ascending copy of values.
func Sorted(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted
}

// Median expects an ascending slice. Even lengths average the two middle
// elements.
func Median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// Percentile returns the nearest-rank percentile of an ascending slice:
// index = ceil(p/100*n) - 1, clamped to [0, n-1].
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}

	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

// SafeDiv returns a/b, or 0 when b is 0.
func SafeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// Moments accumulates count, mean, variance and downside (target 0) in a
// single pass using Welford's update, so large pooled samples never need to
// be materialised.
type Moments struct {
	n          int64
	mean       float64
	m2         float64
	downsideSq float64
}

// Add folds one observation into the accumulator.
func (m *Moments) Add(x float64) {
	m.n++
	delta := x - m.mean
	m.mean += delta / float64(m.n)
	m.m2 += delta * (x - m.mean)
	if x < 0 {
		m.downsideSq += x * x
	}
}

// Merge combines another accumulator into m (Chan et al. parallel update).
func (m *Moments) Merge(other Moments) {
	if other.n == 0 {
		return
	}
	if m.n == 0 {
		*m = other
		return
	}

	n := m.n + other.n
	delta := other.mean - m.mean
	m.mean += delta * float64(other.n) / float64(n)
	m.m2 += other.m2 + delta*delta*float64(m.n)*float64(other.n)/float64(n)
	m.downsideSq += other.downsideSq
	m.n = n
}

// Count returns the number of observations.
func (m *Moments) Count() int64 { return m.n }

// Mean returns the running mean.
func (m *Moments) Mean() float64 { return m.mean }

// PopulationStdDev returns the population standard deviation.
func (m *Moments) PopulationStdDev() float64 {
	if m.n == 0 {
		return 0
	}
	return math.Sqrt(m.m2 / float64(m.n))
}

// DownsideDeviation returns the downside deviation against a zero target,
// averaged over every observation.
func (m *Moments) DownsideDeviation() float64 {
	if m.n == 0 {
		return 0
	}
	return math.Sqrt(m.downsideSq / float64(m.n))
}
