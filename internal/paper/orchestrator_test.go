package paper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsharma/biopaper/internal/llm"
	"github.com/rsharma/biopaper/internal/model"
)

// recordingGenerator is a GenerateFunc double that records every request and
// the exclusion list it arrived with.
type recordingGenerator struct {
	requests  []model.GenerationRequest
	excludes  [][]string
	callTimes []time.Time
	err       error
	counter   int
}

func (g *recordingGenerator) generate(_ context.Context, req model.GenerationRequest, exclude []string) ([]model.Question, error) {
	g.requests = append(g.requests, req)
	g.excludes = append(g.excludes, append([]string(nil), exclude...))
	g.callTimes = append(g.callTimes, time.Now())
	if g.err != nil {
		return nil, g.err
	}
	batch := make([]model.Question, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		g.counter++
		batch = append(batch, model.Question{
			Class:   req.Class,
			Chapter: req.Chapter,
			Text:    fmt.Sprintf("generated question %d", g.counter),
			Marks:   req.Marks,
			Type:    req.Type,
		})
	}
	return batch, nil
}

func aiSettings() model.GeneratorSettings {
	return model.GeneratorSettings{
		Class:    10,
		Chapters: []string{"Life Processes"},
		UseAI:    true,
	}
}

func TestPartitionCount(t *testing.T) {
	tests := []struct {
		count, n int
		want     []int
	}{
		{7, 3, []int{3, 2, 2}},
		{6, 3, []int{2, 2, 2}},
		{2, 4, []int{1, 1, 0, 0}},
		{1, 1, []int{1}},
		{0, 2, []int{0, 0}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_into_%d", tt.count, tt.n), func(t *testing.T) {
			assert.Equal(t, tt.want, partitionCount(tt.count, tt.n))
		})
	}
}

func TestGenerateBankOnly(t *testing.T) {
	pool := []model.Question{
		bankQuestion(1, 2), bankQuestion(2, 2), bankQuestion(3, 5),
	}
	dist := []model.MarkGroup{{Count: 1, Marks: 2}, {Count: 1, Marks: 5}}

	orch := NewOrchestrator(nil, time.Millisecond, testRNG(1))
	res, err := orch.Generate(context.Background(), dist, model.GeneratorSettings{}, pool)
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Len(t, res.Questions, 2)
}

func TestGenerateAIPartitionsAcrossTypes(t *testing.T) {
	gen := &recordingGenerator{}
	orch := NewOrchestrator(gen.generate, time.Millisecond, testRNG(1))

	st := aiSettings()
	st.Types = []model.QuestionType{model.TypeMCQ, model.TypeShort}
	dist := []model.MarkGroup{{Count: 3, Marks: 2}}

	questions, err := orch.GenerateAI(context.Background(), dist, st, nil)
	require.NoError(t, err)
	assert.Len(t, questions, 3)

	require.Len(t, gen.requests, 2)
	assert.Equal(t, 2, gen.requests[0].Count)
	assert.Equal(t, model.TypeMCQ, gen.requests[0].Type)
	assert.Equal(t, 1, gen.requests[1].Count)
	assert.Equal(t, model.TypeShort, gen.requests[1].Type)
	for _, req := range gen.requests {
		assert.Equal(t, 2, req.Marks)
		assert.Equal(t, "Life Processes", req.Chapter)
	}
}

func TestGenerateAIDefaultsToShortAnswer(t *testing.T) {
	gen := &recordingGenerator{}
	orch := NewOrchestrator(gen.generate, time.Millisecond, testRNG(1))

	dist := []model.MarkGroup{{Count: 2, Marks: 1}}
	_, err := orch.GenerateAI(context.Background(), dist, aiSettings(), nil)
	require.NoError(t, err)

	require.Len(t, gen.requests, 1)
	assert.Equal(t, model.TypeShort, gen.requests[0].Type)
}

func TestGenerateAISkipsEmptySlots(t *testing.T) {
	gen := &recordingGenerator{}
	orch := NewOrchestrator(gen.generate, time.Millisecond, testRNG(1))

	st := aiSettings()
	st.Types = []model.QuestionType{model.TypeMCQ, model.TypeShort, model.TypeLong, model.TypeDiagram}
	dist := []model.MarkGroup{{Count: 2, Marks: 1}}

	_, err := orch.GenerateAI(context.Background(), dist, st, nil)
	require.NoError(t, err)
	assert.Len(t, gen.requests, 2, "empty partition slots must not produce requests")
}

func TestGenerateAIGrowsExclusionList(t *testing.T) {
	gen := &recordingGenerator{}
	orch := NewOrchestrator(gen.generate, time.Millisecond, testRNG(1))

	existing := []model.Question{{Text: "seed question"}}
	dist := []model.MarkGroup{{Count: 1, Marks: 2}, {Count: 1, Marks: 5}}

	_, err := orch.GenerateAI(context.Background(), dist, aiSettings(), existing)
	require.NoError(t, err)
	require.Len(t, gen.excludes, 2)

	assert.Equal(t, []string{"seed question"}, gen.excludes[0])
	assert.Equal(t, []string{"seed question", "generated question 1"}, gen.excludes[1])
}

func TestGenerateAIThrottlesAfterFirstRequest(t *testing.T) {
	gen := &recordingGenerator{}
	delay := 60 * time.Millisecond
	orch := NewOrchestrator(gen.generate, delay, testRNG(1))

	dist := []model.MarkGroup{{Count: 1, Marks: 2}, {Count: 1, Marks: 5}}
	start := time.Now()
	_, err := orch.GenerateAI(context.Background(), dist, aiSettings(), nil)
	require.NoError(t, err)
	require.Len(t, gen.callTimes, 2)

	assert.Less(t, gen.callTimes[0].Sub(start), delay, "first request must not wait")
	assert.GreaterOrEqual(t, gen.callTimes[1].Sub(gen.callTimes[0]), delay-5*time.Millisecond)
}

func TestGenerateAISingleRequestHasNoDelay(t *testing.T) {
	gen := &recordingGenerator{}
	delay := 200 * time.Millisecond
	orch := NewOrchestrator(gen.generate, delay, testRNG(1))

	dist := []model.MarkGroup{{Count: 1, Marks: 2}}
	start := time.Now()
	_, err := orch.GenerateAI(context.Background(), dist, aiSettings(), nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), delay)
}

func TestGenerateAIAbortsOnCancel(t *testing.T) {
	gen := &recordingGenerator{}
	orch := NewOrchestrator(gen.generate, time.Hour, testRNG(1))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	dist := []model.MarkGroup{{Count: 1, Marks: 2}, {Count: 1, Marks: 5}}
	_, err := orch.GenerateAI(ctx, dist, aiSettings(), nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, gen.requests, 1, "cancellation during the pause must stop the run")
}

func TestGenerateQuotaFallback(t *testing.T) {
	gen := &recordingGenerator{err: &llm.ErrQuotaExceeded{Err: errors.New("429")}}
	orch := NewOrchestrator(gen.generate, time.Millisecond, testRNG(1))

	pool := []model.Question{bankQuestion(1, 2), bankQuestion(2, 5)}
	dist := []model.MarkGroup{{Count: 1, Marks: 2}, {Count: 1, Marks: 5}}

	res, err := orch.Generate(context.Background(), dist, aiSettings(), pool)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	require.Len(t, res.Questions, 2)

	// The fallback result matches what direct bank sampling would produce.
	direct, err := SampleFromBank(pool, dist, false, testRNG(1))
	require.NoError(t, err)
	assert.ElementsMatch(t, direct, res.Questions)
}

func TestGenerateQuotaFallbackInsufficientBank(t *testing.T) {
	gen := &recordingGenerator{err: &llm.ErrQuotaExceeded{Err: errors.New("429")}}
	orch := NewOrchestrator(gen.generate, time.Millisecond, testRNG(1))

	dist := []model.MarkGroup{{Count: 2, Marks: 5}}
	_, err := orch.Generate(context.Background(), dist, aiSettings(), nil)

	var fallback *QuotaFallbackError
	require.ErrorAs(t, err, &fallback)

	var insufficient *InsufficientPoolError
	assert.ErrorAs(t, fallback.Sampling, &insufficient)
	assert.ErrorAs(t, err, &insufficient, "QuotaFallbackError must unwrap to the sampling failure")
}

func TestGenerateNonQuotaFailureDoesNotFallBack(t *testing.T) {
	gen := &recordingGenerator{err: &llm.ErrUnavailable{Err: errors.New("boom")}}
	orch := NewOrchestrator(gen.generate, time.Millisecond, testRNG(1))

	pool := []model.Question{bankQuestion(1, 2)}
	dist := []model.MarkGroup{{Count: 1, Marks: 2}}

	_, err := orch.Generate(context.Background(), dist, aiSettings(), pool)
	require.Error(t, err)

	var fallback *QuotaFallbackError
	assert.False(t, errors.As(err, &fallback))
	var unavailable *llm.ErrUnavailable
	assert.ErrorAs(t, err, &unavailable)
}

func TestNewOrchestratorDefaultsDelay(t *testing.T) {
	orch := NewOrchestrator(nil, 0, testRNG(1))
	assert.Equal(t, DefaultDelay, orch.delay)
}
