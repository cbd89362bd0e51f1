package paper

import (
	"math/rand/v2"

	"github.com/rsharma/biopaper/internal/model"
)

// Solve finds one multiset of the allowed per-question mark values that sums
// exactly to target, expressed as (count, marks) groups in first-seen order.
//
// Feasibility is decided with an unbounded subset-sum reachability table, so
// an infeasible target is reported as *InfeasibleError rather than by
// running out of choices. The witness is rebuilt by drawing uniformly at
// random among the locally feasible marks at every step; the table
// guarantees each draw still leads to a completing path, and a seeded rng
// makes the result reproducible.
func Solve(target int, allowed []int, rng *rand.Rand) ([]model.MarkGroup, error) {
	if target <= 0 {
		return nil, &MalformedInputError{Reason: "target marks must be positive"}
	}
	if len(allowed) == 0 {
		return nil, &MalformedInputError{Reason: "allowed marks set is empty"}
	}
	for _, m := range allowed {
		if m <= 0 {
			return nil, &MalformedInputError{Reason: "allowed mark values must be positive"}
		}
	}

	// dp[s] is true iff some multiset of allowed marks sums to s.
	dp := make([]bool, target+1)
	dp[0] = true
	for s := 1; s <= target; s++ {
		for _, m := range allowed {
			if m <= s && dp[s-m] {
				dp[s] = true
				break
			}
		}
	}
	if !dp[target] {
		return nil, &InfeasibleError{Target: target, Allowed: append([]int(nil), allowed...)}
	}

	counts := make(map[int]int)
	var order []int
	candidates := make([]int, 0, len(allowed))

	for remaining := target; remaining > 0; {
		candidates = candidates[:0]
		for _, m := range allowed {
			if m <= remaining && dp[remaining-m] {
				candidates = append(candidates, m)
			}
		}
		if len(candidates) == 0 {
			// Unreachable when dp is built correctly.
			return nil, &InvariantError{Remaining: remaining}
		}
		pick := candidates[rng.IntN(len(candidates))]
		if counts[pick] == 0 {
			order = append(order, pick)
		}
		counts[pick]++
		remaining -= pick
	}

	dist := make([]model.MarkGroup, 0, len(order))
	for _, m := range order {
		dist = append(dist, model.MarkGroup{Count: counts[m], Marks: m})
	}
	return dist, nil
}

// DistributionTotal returns the total marks a distribution describes.
func DistributionTotal(dist []model.MarkGroup) int {
	total := 0
	for _, g := range dist {
		total += g.Count * g.Marks
	}
	return total
}
