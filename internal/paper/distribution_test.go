package paper

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsharma/biopaper/internal/model"
)

func testRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

func TestSolveProducesExactTotal(t *testing.T) {
	tests := []struct {
		name    string
		target  int
		allowed []int
	}{
		{"single value", 10, []int{2}},
		{"board paper", 70, []int{1, 2, 3, 5}},
		{"coarse values", 25, []int{5, 10}},
		{"target below smallest multiple", 7, []int{3, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dist, err := Solve(tt.target, tt.allowed, testRNG(1))
			require.NoError(t, err)
			require.NotEmpty(t, dist)

			assert.Equal(t, tt.target, DistributionTotal(dist))

			allowedSet := make(map[int]bool)
			for _, m := range tt.allowed {
				allowedSet[m] = true
			}
			seen := make(map[int]bool)
			for _, g := range dist {
				assert.Positive(t, g.Count)
				assert.True(t, allowedSet[g.Marks], "mark value %d not in allowed set", g.Marks)
				assert.False(t, seen[g.Marks], "mark value %d appears in two groups", g.Marks)
				seen[g.Marks] = true
			}
		})
	}
}

func TestSolveInfeasible(t *testing.T) {
	_, err := Solve(3, []int{2}, testRNG(1))

	var infeasible *InfeasibleError
	require.ErrorAs(t, err, &infeasible)
	assert.Equal(t, 3, infeasible.Target)
	assert.Equal(t, []int{2}, infeasible.Allowed)
}

func TestSolveMalformedInput(t *testing.T) {
	tests := []struct {
		name    string
		target  int
		allowed []int
	}{
		{"zero target", 0, []int{1}},
		{"negative target", -5, []int{1}},
		{"empty allowed", 10, nil},
		{"zero mark value", 10, []int{2, 0}},
		{"negative mark value", 10, []int{2, -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Solve(tt.target, tt.allowed, testRNG(1))
			var malformed *MalformedInputError
			assert.ErrorAs(t, err, &malformed)
		})
	}
}

func TestSolveVariesAcrossSeeds(t *testing.T) {
	distinct := make(map[string]bool)
	for seed := uint64(0); seed < 100; seed++ {
		dist, err := Solve(10, []int{1, 2, 5}, testRNG(seed))
		require.NoError(t, err)
		require.Equal(t, 10, DistributionTotal(dist))
		distinct[fmt.Sprint(dist)] = true
	}
	assert.Greater(t, len(distinct), 1, "100 seeded runs should not all agree on one witness")
}

func TestSolveDeterministicForSeed(t *testing.T) {
	first, err := Solve(70, []int{1, 2, 3, 5}, testRNG(42))
	require.NoError(t, err)
	second, err := Solve(70, []int{1, 2, 3, 5}, testRNG(42))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDistributionTotal(t *testing.T) {
	dist := []model.MarkGroup{
		{Count: 10, Marks: 1},
		{Count: 5, Marks: 2},
		{Count: 4, Marks: 5},
	}
	assert.Equal(t, 40, DistributionTotal(dist))
	assert.Equal(t, 0, DistributionTotal(nil))
}
