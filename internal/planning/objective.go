package planning

import "math"

// Objective scores a cluster schedule. Higher is better; the maximum of
// zero is reached when the cluster sum matches the target exactly on
// every weighted interval.
type Objective func(cs []Schedule) float64

// NewObjective builds the negotiation objective for a target curve and a
// weight vector of the same length: the negative weighted sum of the
// absolute deviations between the per-interval cluster sum and the
// target.
//
// The per-interval sum walks the rows in index order so that scores are
// reproducible bit-for-bit across agents.
func NewObjective(target, weights []float64) Objective {
	return func(cs []Schedule) float64 {
		sums := make([]float64, len(target))
		for _, row := range cs {
			for t, v := range row {
				sums[t] += v
			}
		}
		result := 0.0
		for t := range target {
			result -= weights[t] * math.Abs(target[t]-sums[t])
		}
		return result
	}
}
