package matrix

import (
	"math"
	"sort"
)

// Aggregate computes fleet statistics over the hosts' risk scores. An empty
// host list is treated as a single score of 0 so every statistic is defined;
// the histogram only counts real hosts.
func Aggregate(hosts []HostRecord) FleetAggregate {
	agg := FleetAggregate{Count: len(hosts)}

	scores := make([]float64, 0, len(hosts))
	for i := range hosts {
		s := hosts[i].RiskScore
		scores = append(scores, s)
		agg.Histogram[bucket(s)]++
	}
	if len(scores) == 0 {
		scores = append(scores, 0)
	}

	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}

	agg.Min = sorted[0]
	agg.Max = sorted[len(sorted)-1]
	agg.Mean = sum / float64(len(sorted))
	agg.Median = median(sorted)
	return agg
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// bucket truncates a score toward zero and clamps it to 0..10.
func bucket(score float64) int {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score >= HistogramBuckets-1 {
		return HistogramBuckets - 1
	}
	return int(score)
}
