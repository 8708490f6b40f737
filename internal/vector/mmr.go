package vector

import (
	"math"

	"github.com/hyperjump/kansa/pkg/utils"
)

// MMR selects up to k candidates by maximum marginal relevance. The first pick
// is the candidate most similar to query; each further pick maximizes
//
//	lambda*cos(c, query) - (1-lambda)*max cos(c, s) over selected s
//
// lambda = 1 ranks by relevance only, lambda = 0 by diversity only. Ties go to
// the earlier candidate. Candidates must carry their vectors.
func MMR(query []float32, candidates []*VectorResult, k int, lambda float64) []*VectorResult {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	k = min(k, len(candidates))

	relevance := make([]float64, len(candidates))
	best := 0
	for i, c := range candidates {
		relevance[i] = utils.Cosine(query, c.Vector)
		if relevance[i] > relevance[best] {
			best = i
		}
	}

	selected := make([]*VectorResult, 0, k)
	used := make([]bool, len(candidates))
	// maxSim[i] is the highest similarity of candidate i to anything selected so far.
	maxSim := make([]float64, len(candidates))
	pick := func(i int) {
		used[i] = true
		selected = append(selected, candidates[i])
		for j, c := range candidates {
			if used[j] {
				continue
			}
			if s := utils.Cosine(c.Vector, candidates[i].Vector); len(selected) == 1 || s > maxSim[j] {
				maxSim[j] = s
			}
		}
	}
	pick(best)

	for len(selected) < k {
		next, nextScore := -1, math.Inf(-1)
		for i := range candidates {
			if used[i] {
				continue
			}
			score := lambda*relevance[i] - (1-lambda)*maxSim[i]
			if score > nextScore {
				next, nextScore = i, score
			}
		}
		if next < 0 {
			break
		}
		pick(next)
	}
	return selected
}
