package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/rsharma/biopaper/internal/i18n"
	"github.com/rsharma/biopaper/internal/llm"
	"github.com/rsharma/biopaper/internal/model"
	"github.com/rsharma/biopaper/internal/store"
)

// Config holds runtime handler parameters set via CLI flags.
type Config struct {
	SecureCookies bool
	// GenDelay is the throttle between consecutive AI generation
	// requests within one paper run.
	GenDelay time.Duration
	// Language is the default UI language tag.
	Language string
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	llm    *llm.Client
	config Config

	histories *historySet
}

// New creates a new Handler. The llm client may be nil when no generation
// endpoint is configured; bank-only papers still work.
func New(s *store.Store, l *llm.Client, cfg Config) (*Handler, error) {
	return &Handler{store: s, llm: l, config: cfg, histories: newHistorySet()}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireAuth)
		pr.Use(h.csrfMiddleware)

		pr.Get("/api/profile", h.handleGetProfile)
		pr.Put("/api/profile", h.handleUpdateProfile)
		pr.Put("/api/profile/password", h.handleChangePassword)

		pr.Group(func(tr chi.Router) {
			tr.Use(requireRole(model.UserRoleTeacher, model.UserRoleAdmin))

			tr.Get("/api/questions", h.handleListQuestions)
			tr.Post("/api/questions", h.handleCreateQuestion)
			tr.Get("/api/questions/{questionID}", h.handleGetQuestion)
			tr.Put("/api/questions/{questionID}", h.handleUpdateQuestion)
			tr.Delete("/api/questions/{questionID}", h.handleDeleteQuestion)

			tr.Post("/api/papers/generate", h.handleGeneratePaper)
			tr.Post("/api/papers/{paperID}/finalize", h.handleFinalizePaper)
			tr.Delete("/api/papers/{paperID}", h.handleDeletePaper)

			tr.Get("/api/settings", h.handleGetSettings)
			tr.Put("/api/settings", h.handleSaveSettings)
			tr.Post("/api/settings/undo", h.handleUndoSettings)
			tr.Post("/api/settings/redo", h.handleRedoSettings)
		})

		// Students get read-only access to the finalized archive.
		pr.Get("/api/papers", h.handleListPapers)
		pr.Get("/api/papers/{paperID}", h.handleGetPaper)

		pr.Group(func(ar chi.Router) {
			ar.Use(requireRole(model.UserRoleAdmin))
			ar.Get("/api/users", h.handleListUsers)
			ar.Post("/api/users", h.handleCreateUser)
			ar.Post("/api/users/{userID}/toggle", h.handleToggleUserActive)
			ar.Post("/api/questions/import", h.handleImportQuestions)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail any    `json:"detail,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func urlID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.QuestionFilter{
		Chapter:    q.Get("chapter"),
		Difficulty: q.Get("difficulty"),
		Type:       q.Get("type"),
		UnusedOnly: q.Get("unused") == "true",
	}
	filter.Class, _ = strconv.Atoi(q.Get("class"))
	filter.Marks, _ = strconv.Atoi(q.Get("marks"))

	questions, err := h.store.ListQuestions(filter)
	if err != nil {
		slog.Error("failed to list questions", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var q model.Question
	if !decodeJSON(w, r, &q) {
		return
	}
	if msg := validateQuestion(q); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	user := model.UserFromContext(r.Context())
	q.CreatedBy = user.ID
	q.UsedIn = nil

	id, err := h.store.InsertQuestion(q)
	if err != nil {
		slog.Error("failed to insert question", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stored, err := h.store.GetQuestion(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "questionID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid question ID")
		return
	}
	q, err := h.store.GetQuestion(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "question not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "questionID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid question ID")
		return
	}
	var q model.Question
	if !decodeJSON(w, r, &q) {
		return
	}
	if msg := validateQuestion(q); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	q.ID = id

	if _, err := h.store.GetQuestion(id); errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "question not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.store.UpdateQuestion(q); err != nil {
		slog.Error("failed to update question", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stored, err := h.store.GetQuestion(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "questionID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid question ID")
		return
	}
	if err := h.store.DeleteQuestion(id); err != nil {
		slog.Error("failed to delete question", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validateQuestion(q model.Question) string {
	switch {
	case q.Class <= 0:
		return "class must be positive"
	case q.Marks <= 0:
		return "marks must be positive"
	case q.Text == "":
		return "text is required"
	case q.Chapter == "":
		return "chapter is required"
	}
	return ""
}

func (h *Handler) handleListPapers(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	var createdBy int64
	// Students see the whole finalized archive; teachers see their own
	// papers unless they ask for all.
	if user.Role != model.UserRoleStudent && r.URL.Query().Get("all") != "true" {
		createdBy = user.ID
	}

	papers, err := h.store.ListPapers(createdBy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if user.Role == model.UserRoleStudent {
		final := papers[:0]
		for _, p := range papers {
			if p.Status == model.StatusFinal {
				final = append(final, p)
			}
		}
		papers = final
	}
	if papers == nil {
		papers = []model.Paper{}
	}
	writeJSON(w, http.StatusOK, papers)
}

func (h *Handler) handleGetPaper(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "paperID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid paper ID")
		return
	}
	view, err := h.store.GetPaperView(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "paper not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	user := model.UserFromContext(r.Context())
	if user.Role == model.UserRoleStudent {
		if view.Paper.Status != model.StatusFinal {
			writeError(w, http.StatusForbidden, appI18n.T(r.Context(), "PaperNotAvailable"))
			return
		}
		// Students never see answers.
		for i := range view.Questions {
			view.Questions[i].Answer = ""
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleFinalizePaper(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "paperID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid paper ID")
		return
	}
	if err := h.store.FinalizePaper(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "paper not found")
			return
		}
		slog.Error("failed to finalize paper", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	view, err := h.store.GetPaperView(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleDeletePaper(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "paperID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid paper ID")
		return
	}
	if err := h.store.DeletePaper(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "paper not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, profileResponse{
		Username:    user.Username,
		DisplayName: user.DisplayName,
		School:      user.School,
		Role:        user.Role,
		// Echo the rotated token so SPA clients don't have to read the
		// cookie themselves.
		CSRFToken: model.CSRFTokenFromContext(r.Context()),
	})
}

type profileResponse struct {
	Username    string         `json:"username"`
	DisplayName string         `json:"display_name"`
	School      string         `json:"school"`
	Role        model.UserRole `json:"role"`
	CSRFToken   string         `json:"csrf_token,omitempty"`
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	var req struct {
		DisplayName string `json:"display_name"`
		School      string `json:"school"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "display name is required")
		return
	}

	if err := h.store.UpdateProfile(user.ID, req.DisplayName, req.School); err != nil {
		slog.Error("failed to update profile", "id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{
		Username:    user.Username,
		DisplayName: req.DisplayName,
		School:      req.School,
		Role:        user.Role,
	})
}
