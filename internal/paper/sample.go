package paper

import (
	"math/rand/v2"

	"github.com/rsharma/biopaper/internal/model"
)

// SampleFromBank selects questions from pool to satisfy dist, one group at a
// time in the distribution's order. Within a group the questions are chosen
// uniformly at random without replacement, and chosen questions leave the
// working pool so later groups cannot reuse them.
//
// When avoidReuse is set, only questions that never appeared on a finalized
// paper are eligible. If any group cannot be filled, every shortfall is
// collected first and reported together as *InsufficientPoolError.
func SampleFromBank(pool []model.Question, dist []model.MarkGroup, avoidReuse bool, rng *rand.Rand) ([]model.Question, error) {
	working := make([]model.Question, 0, len(pool))
	for _, q := range pool {
		if avoidReuse && q.Used() {
			continue
		}
		working = append(working, q)
	}

	// Check every mark value before taking anything, so the report is
	// complete. Requirements are aggregated per mark value in case the
	// distribution names the same value twice.
	required := make(map[int]int)
	seen := make(map[int]bool)
	var order []int
	for _, g := range dist {
		if !seen[g.Marks] {
			seen[g.Marks] = true
			order = append(order, g.Marks)
		}
		required[g.Marks] += g.Count
	}
	var shortfalls []Shortfall
	for _, m := range order {
		available := 0
		for _, q := range working {
			if q.Marks == m {
				available++
			}
		}
		if available < required[m] {
			shortfalls = append(shortfalls, Shortfall{
				Marks:     m,
				Required:  required[m],
				Available: available,
			})
		}
	}
	if len(shortfalls) > 0 {
		return nil, &InsufficientPoolError{Shortfalls: shortfalls}
	}

	var selected []model.Question
	for _, g := range dist {
		matching := make([]int, 0, len(working))
		for i, q := range working {
			if q.Marks == g.Marks {
				matching = append(matching, i)
			}
		}
		rng.Shuffle(len(matching), func(i, j int) {
			matching[i], matching[j] = matching[j], matching[i]
		})

		taken := make(map[int]bool, g.Count)
		for _, idx := range matching[:g.Count] {
			selected = append(selected, working[idx])
			taken[idx] = true
		}

		next := working[:0]
		for i, q := range working {
			if !taken[i] {
				next = append(next, q)
			}
		}
		working = next
	}

	return selected, nil
}
