package paper

import "github.com/rsharma/biopaper/internal/model"

// History is an undo/redo stack of generator-settings snapshots. Snapshots
// are stored by value and never mutated; pushing after an undo discards the
// redo tail, like an editor would.
type History struct {
	states []model.GeneratorSettings
	pos    int
}

// NewHistory creates a history seeded with an initial snapshot.
func NewHistory(initial model.GeneratorSettings) *History {
	return &History{states: []model.GeneratorSettings{initial}}
}

// Current returns the snapshot the history points at.
func (h *History) Current() model.GeneratorSettings {
	return h.states[h.pos]
}

// Push records a new snapshot, dropping any redo states.
func (h *History) Push(st model.GeneratorSettings) {
	h.states = append(h.states[:h.pos+1], st)
	h.pos = len(h.states) - 1
}

// CanUndo reports whether an older snapshot exists.
func (h *History) CanUndo() bool { return h.pos > 0 }

// CanRedo reports whether an undone snapshot can be restored.
func (h *History) CanRedo() bool { return h.pos < len(h.states)-1 }

// Undo steps back one snapshot and returns it. Without older snapshots it
// returns the current one unchanged.
func (h *History) Undo() model.GeneratorSettings {
	if h.CanUndo() {
		h.pos--
	}
	return h.states[h.pos]
}

// Redo steps forward one snapshot and returns it. Without undone snapshots
// it returns the current one unchanged.
func (h *History) Redo() model.GeneratorSettings {
	if h.CanRedo() {
		h.pos++
	}
	return h.states[h.pos]
}
