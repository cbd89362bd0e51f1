package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/rsharma/biopaper/internal/model"
)

type userResponse struct {
	ID          int64          `json:"id"`
	Username    string         `json:"username"`
	DisplayName string         `json:"display_name"`
	School      string         `json:"school"`
	Role        model.UserRole `json:"role"`
	Active      bool           `json:"active"`
}

func toUserResponse(u model.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		School:      u.School,
		Role:        u.Role,
		Active:      u.Active,
	}
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		slog.Error("failed to list users", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		School      string `json:"school"`
		Password    string `json:"password"`
		Role        string `json:"role"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}
	role := model.UserRole(req.Role)
	if role == "" {
		role = model.UserRoleTeacher
	}

	id, err := h.store.CreateUser(model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		School:       req.School,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		slog.Error("failed to create user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create user: "+err.Error())
		return
	}

	user, err := h.store.GetUserByID(id)
	if err != nil || user == nil {
		writeError(w, http.StatusInternalServerError, "failed to load created user")
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(*user))
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "userID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	if err := h.store.ToggleUserActive(id); err != nil {
		slog.Error("failed to toggle user active", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImportQuestions loads a JSON array of questions into the bank.
// Re-posting an identical payload is detected by hash and skipped.
func (h *Handler) handleImportQuestions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read payload")
		return
	}

	hash := payloadHash(body)
	stored, err := h.store.GetImportedFileHash("upload:" + hash)
	if err != nil {
		slog.Error("failed to check import status", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if stored == hash {
		writeJSON(w, http.StatusOK, map[string]any{"imported": 0, "skipped": true})
		return
	}

	var imports []model.QuestionImport
	if err := json.Unmarshal(body, &imports); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if len(imports) == 0 {
		writeError(w, http.StatusBadRequest, "no questions in payload")
		return
	}

	user := model.UserFromContext(r.Context())
	inserted := 0
	for _, qi := range imports {
		q := model.Question{
			Class:      qi.Class,
			Chapter:    qi.Chapter,
			Text:       qi.Text,
			Answer:     qi.Answer,
			Marks:      qi.Marks,
			Difficulty: qi.Difficulty,
			Type:       qi.Type,
			Keywords:   qi.Keywords,
			CreatedBy:  user.ID,
		}
		if msg := validateQuestion(q); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		if _, err := h.store.InsertQuestion(q); err != nil {
			slog.Error("failed to insert imported question", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		inserted++
	}

	if err := h.store.SetImportedFileHash("upload:"+hash, hash); err != nil {
		slog.Warn("failed to record import hash", "error", err)
	}

	slog.Info("imported questions via admin", "count", inserted)
	writeJSON(w, http.StatusOK, map[string]int{"imported": inserted})
}

func payloadHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
