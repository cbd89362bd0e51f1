package handler

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/rsharma/biopaper/internal/model"
	"github.com/rsharma/biopaper/internal/paper"
)

// historySet tracks each user's in-memory settings history. Histories live
// only for the server's lifetime; the persisted draft in the store is the
// durable copy.
type historySet struct {
	mu        sync.Mutex
	histories map[int64]*paper.History
}

func newHistorySet() *historySet {
	return &historySet{histories: make(map[int64]*paper.History)}
}

func (hs *historySet) push(userID int64, st model.GeneratorSettings) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	h, ok := hs.histories[userID]
	if !ok {
		hs.histories[userID] = paper.NewHistory(st)
		return
	}
	h.Push(st)
}

func (hs *historySet) undo(userID int64) (model.GeneratorSettings, bool) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	h, ok := hs.histories[userID]
	if !ok || !h.CanUndo() {
		return model.GeneratorSettings{}, false
	}
	return h.Undo(), true
}

func (hs *historySet) redo(userID int64) (model.GeneratorSettings, bool) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	h, ok := hs.histories[userID]
	if !ok || !h.CanRedo() {
		return model.GeneratorSettings{}, false
	}
	return h.Redo(), true
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	st, err := h.store.GetGeneratorSettings(user.ID)
	if err != nil {
		slog.Error("failed to load generator settings", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if st == nil {
		st = &model.GeneratorSettings{}
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var st model.GeneratorSettings
	if !decodeJSON(w, r, &st) {
		return
	}
	if err := h.store.SaveGeneratorSettings(user.ID, st); err != nil {
		slog.Error("failed to save generator settings", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.histories.push(user.ID, st)
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleUndoSettings(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	st, ok := h.histories.undo(user.ID)
	if !ok {
		writeError(w, http.StatusConflict, "nothing to undo")
		return
	}
	if err := h.store.SaveGeneratorSettings(user.ID, st); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleRedoSettings(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	st, ok := h.histories.redo(user.ID)
	if !ok {
		writeError(w, http.StatusConflict, "nothing to redo")
		return
	}
	if err := h.store.SaveGeneratorSettings(user.ID, st); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}
