package paper

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rsharma/biopaper/internal/model"
)

// DefaultDelay is the enforced pause between consecutive generation
// requests within one run. It throttles calls to the external API; it is
// not a correctness requirement.
const DefaultDelay = 1500 * time.Millisecond

// GenerateFunc issues one external generation request. The exclude list
// carries the text of questions already in the run's pool so the service
// can avoid repeating phrasing; honoring it is best-effort on the
// service's side.
type GenerateFunc func(ctx context.Context, req model.GenerationRequest, exclude []string) ([]model.Question, error)

// Orchestrator drives one paper-generation invocation: it partitions each
// requirement group across the selected question types, issues the external
// requests sequentially with the configured throttle, and falls back to
// bank sampling when the external service reports an exhausted quota.
//
// An Orchestrator holds no state between invocations; the in-run question
// pool lives on the call stack of a single Generate call.
type Orchestrator struct {
	generate GenerateFunc
	delay    time.Duration
	rng      *rand.Rand
}

// NewOrchestrator creates an Orchestrator. A zero delay selects
// DefaultDelay; pass a seeded rng for reproducible runs.
func NewOrchestrator(generate GenerateFunc, delay time.Duration, rng *rand.Rand) *Orchestrator {
	if delay == 0 {
		delay = DefaultDelay
	}
	return &Orchestrator{generate: generate, delay: delay, rng: rng}
}

// Result is the outcome of one Generate invocation.
type Result struct {
	Questions []model.Question
	// Fallback is true when the external quota was exhausted and the
	// questions were sampled from the bank instead.
	Fallback bool
}

// Generate produces the questions for one paper. With UseAI unset it
// samples directly from pool. With UseAI set it drives the external
// requests; a quota-classified failure triggers exactly one automatic
// retry of the whole distribution against the bank, while any other
// failure is surfaced as-is with no fallback.
func (o *Orchestrator) Generate(ctx context.Context, dist []model.MarkGroup, st model.GeneratorSettings, pool []model.Question) (*Result, error) {
	if !st.UseAI {
		qs, err := SampleFromBank(pool, dist, st.AvoidReuse, o.rng)
		if err != nil {
			return nil, err
		}
		return &Result{Questions: qs}, nil
	}

	qs, err := o.GenerateAI(ctx, dist, st, pool)
	if err == nil {
		return &Result{Questions: qs}, nil
	}
	if !IsQuotaExceeded(err) {
		return nil, fmt.Errorf("external generation failed: %w", err)
	}

	sampled, serr := SampleFromBank(pool, dist, st.AvoidReuse, o.rng)
	if serr != nil {
		return nil, &QuotaFallbackError{Quota: err, Sampling: serr}
	}
	return &Result{Questions: sampled, Fallback: true}, nil
}

// GenerateAI runs the external-generation path for the whole distribution.
// Requests are issued strictly one at a time; the first request of a run is
// never delayed, and every later one waits o.delay first. Any request
// failure aborts the remaining requests.
func (o *Orchestrator) GenerateAI(ctx context.Context, dist []model.MarkGroup, st model.GeneratorSettings, existing []model.Question) ([]model.Question, error) {
	types := st.Types
	if len(types) == 0 {
		types = []model.QuestionType{model.TypeShort}
	}

	exclude := make([]string, 0, len(existing))
	for _, q := range existing {
		exclude = append(exclude, q.Text)
	}

	var produced []model.Question
	for _, g := range dist {
		for i, subCount := range partitionCount(g.Count, len(types)) {
			if subCount == 0 {
				continue
			}
			if len(produced) > 0 {
				if err := o.pause(ctx); err != nil {
					return nil, err
				}
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			req := model.GenerationRequest{
				Class:        st.Class,
				Chapter:      o.pickChapter(st.Chapters),
				Marks:        g.Marks,
				Difficulty:   st.Difficulty,
				Count:        subCount,
				Type:         types[i],
				Keywords:     st.Keywords,
				WithAnswers:  st.WithAnswers,
				SyllabusOnly: st.SyllabusOnly,
				Language:     st.Language,
			}

			batch, err := o.generate(ctx, req, exclude)
			if err != nil {
				return nil, err
			}
			for _, q := range batch {
				exclude = append(exclude, q.Text)
			}
			produced = append(produced, batch...)
		}
	}

	return produced, nil
}

func (o *Orchestrator) pause(ctx context.Context) error {
	t := time.NewTimer(o.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (o *Orchestrator) pickChapter(chapters []string) string {
	if len(chapters) == 0 {
		return ""
	}
	return chapters[o.rng.IntN(len(chapters))]
}

// partitionCount divides count as evenly as possible across n slots, giving
// the remainder one extra unit each to the first slots in order.
func partitionCount(count, n int) []int {
	parts := make([]int, n)
	base := count / n
	rem := count % n
	for i := range parts {
		parts[i] = base
		if i < rem {
			parts[i]++
		}
	}
	return parts
}
