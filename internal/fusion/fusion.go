// Package fusion provides score-level fusion helpers used to combine
// result lists produced by independently-scored retrievers.
package fusion

// MinMaxNormalize rescales scores into [0, 1]. When every score is
// identical (including the single-score and empty cases), every
// output is 0 rather than leaving the inputs unchanged or dividing by
// zero — a tie carries no signal either way.
func MinMaxNormalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	if max == min {
		return out
	}
	spread := max - min
	for i, s := range scores {
		out[i] = (s - min) / spread
	}
	return out
}

// WeightedSum combines two normalized scores for the same item with
// weight alpha given to a and (1-alpha) to b.
func WeightedSum(alpha, a, b float64) float64 {
	return alpha*a + (1-alpha)*b
}
