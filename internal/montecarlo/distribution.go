package montecarlo

import "sort"

// DefaultBucketCount is the number of histogram buckets in a result.
const DefaultBucketCount = 20

// DistributionBucket is one equal-width slice of final outcomes. Buckets are
// [RangeStart, RangeEnd) except the last, which also includes RangeEnd.
type DistributionBucket struct {
	RangeStart float64 `json:"rangeStart"`
	RangeEnd   float64 `json:"rangeEnd"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Bucketize histograms values into bucketCount equal-width buckets spanning
// [min, max]. A degenerate range uses width 1.
func Bucketize(values []float64, bucketCount int) []DistributionBucket {
	if len(values) == 0 || bucketCount <= 0 {
		return nil
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	width := (hi - lo) / float64(bucketCount)
	if hi == lo {
		width = 1
	}

	buckets := make([]DistributionBucket, bucketCount)
	for i := range buckets {
		buckets[i].RangeStart = lo + float64(i)*width
		buckets[i].RangeEnd = lo + float64(i+1)*width
	}

	for _, v := range values {
		idx := int((v - lo) / width)
		if idx >= bucketCount {
			idx = bucketCount - 1
		}
		buckets[idx].Count++
	}

	total := float64(len(values))
	for i := range buckets {
		buckets[i].Percentage = 100 * float64(buckets[i].Count) / total
	}

	return buckets
}

// SelectSampleRun returns the run at index n/2 after a stable ascending sort
// by final outcome: the median for odd n, the lower median for even n. It is
// a representative run for display, not a statistic.
func SelectSampleRun(runs []SimulationRun) SimulationRun {
	if len(runs) == 0 {
		return SimulationRun{}
	}

	order := make([]int, len(runs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return runs[order[a]].FinalOutcome < runs[order[b]].FinalOutcome
	})

	return runs[order[len(order)/2]]
}

func finalOutcomes(runs []SimulationRun) []float64 {
	values := make([]float64, len(runs))
	for i := range runs {
		values[i] = runs[i].FinalOutcome
	}
	return values
}
