package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"

	"github.com/google/uuid"

	appI18n "github.com/rsharma/biopaper/internal/i18n"
	"github.com/rsharma/biopaper/internal/model"
	"github.com/rsharma/biopaper/internal/paper"
	"github.com/rsharma/biopaper/internal/store"
)

type generateResponse struct {
	Paper *model.PaperView `json:"paper"`
	// Fallback is set when the AI quota was exhausted and the paper was
	// assembled from the bank instead.
	Fallback bool   `json:"fallback"`
	Notice   string `json:"notice,omitempty"`
}

// handleGeneratePaper runs one paper-generation invocation: resolve the
// mark distribution, drive the orchestrator, and store the resulting draft.
func (h *Handler) handleGeneratePaper(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	var st model.GeneratorSettings
	if !decodeJSON(w, r, &st) {
		return
	}
	if st.Class <= 0 {
		writeError(w, http.StatusBadRequest, "class must be positive")
		return
	}
	if st.UseAI && h.llm == nil {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "GenerationNotConfigured"))
		return
	}
	if st.UseAI && len(st.Chapters) == 0 {
		writeError(w, http.StatusBadRequest, "at least one chapter is required for AI generation")
		return
	}

	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))

	dist, ok := h.resolveDistribution(w, r, st, rng)
	if !ok {
		return
	}

	pool, err := h.store.ListQuestions(store.QuestionFilter{Class: st.Class})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var genFn paper.GenerateFunc
	if h.llm != nil {
		genFn = h.llm.GenerateQuestions
	}
	orch := paper.NewOrchestrator(genFn, h.config.GenDelay, rng)

	res, err := orch.Generate(r.Context(), dist, st, pool)
	if err != nil {
		h.writeGenerateError(w, r, err)
		return
	}

	// Fresh AI questions carry no ID yet; add them to the bank so the
	// paper can reference them.
	questions := res.Questions
	for i, q := range questions {
		if q.ID != 0 {
			continue
		}
		q.CreatedBy = user.ID
		id, err := h.store.InsertQuestion(q)
		if err != nil {
			slog.Error("failed to store generated question", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		questions[i].ID = id
	}

	mode := model.ModeBank
	if st.UseAI && !res.Fallback {
		mode = model.ModeAI
	}
	title := st.Title
	if title == "" {
		title = fmt.Sprintf("Class %d biology paper", st.Class)
	}
	paperID, err := h.store.CreatePaper(model.Paper{
		PublicID:   uuid.NewString(),
		Title:      title,
		Class:      st.Class,
		TotalMarks: paper.DistributionTotal(dist),
		Mode:       mode,
		Status:     model.StatusDraft,
		CreatedBy:  user.ID,
	}, questions)
	if err != nil {
		slog.Error("failed to create paper", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	view, err := h.store.GetPaperView(paperID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Remember the settings that produced this paper.
	if err := h.store.SaveGeneratorSettings(user.ID, st); err != nil {
		slog.Warn("failed to save generator settings", "error", err)
	}
	h.histories.push(user.ID, st)

	resp := generateResponse{Paper: view, Fallback: res.Fallback}
	if res.Fallback {
		resp.Notice = appI18n.T(r.Context(), "QuotaFallback")
	}
	slog.Info("generated paper",
		"paper_id", paperID,
		"class", st.Class,
		"total_marks", view.Paper.TotalMarks,
		"questions", len(view.Questions),
		"mode", mode,
		"fallback", res.Fallback,
	)
	writeJSON(w, http.StatusCreated, resp)
}

// resolveDistribution turns the submitted settings into a mark
// distribution, either taking the explicit one or solving for the total.
func (h *Handler) resolveDistribution(w http.ResponseWriter, r *http.Request, st model.GeneratorSettings, rng *rand.Rand) ([]model.MarkGroup, bool) {
	if len(st.Distribution) > 0 {
		for _, g := range st.Distribution {
			if g.Count <= 0 || g.Marks <= 0 {
				writeError(w, http.StatusBadRequest, "distribution counts and marks must be positive")
				return nil, false
			}
		}
		return st.Distribution, true
	}

	dist, err := paper.Solve(st.TotalMarks, st.AllowedMarks, rng)
	if err != nil {
		var malformed *paper.MalformedInputError
		var infeasible *paper.InfeasibleError
		switch {
		case errors.As(err, &malformed):
			writeError(w, http.StatusBadRequest, malformed.Error())
		case errors.As(err, &infeasible):
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
				Error: appI18n.Td(r.Context(), "InfeasibleTotal", map[string]any{
					"Total": infeasible.Target,
				}),
			})
		default:
			slog.Error("distribution solver defect", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return nil, false
	}
	return dist, true
}

func (h *Handler) writeGenerateError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *paper.InsufficientPoolError
	var quotaFallback *paper.QuotaFallbackError

	switch {
	case errors.As(err, &quotaFallback):
		// Quota ran out and the bank could not cover the distribution
		// either; surface both.
		detail := any(nil)
		if errors.As(quotaFallback.Sampling, &insufficient) {
			detail = insufficient.Shortfalls
		}
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:  appI18n.T(r.Context(), "QuotaFallbackFailed") + " " + quotaFallback.Sampling.Error(),
			Detail: detail,
		})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:  appI18n.T(r.Context(), "InsufficientBank") + " " + insufficient.Error(),
			Detail: insufficient.Shortfalls,
		})
	default:
		slog.Error("paper generation failed", "error", err)
		writeError(w, http.StatusBadGateway, appI18n.T(r.Context(), "GenerationFailed"))
	}
}
