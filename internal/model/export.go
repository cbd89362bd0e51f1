package model

import "time"

// BankExport is the top-level JSON structure for paper archive export.
type BankExport struct {
	School   string        `json:"school"`
	Subject  string        `json:"subject"`
	Date     string        `json:"date"`
	NumPaper int           `json:"num_papers"`
	Papers   []PaperResult `json:"papers"`
}

// PaperResult holds one archived paper for export.
type PaperResult struct {
	PublicID   string           `json:"public_id"`
	Title      string           `json:"title"`
	Class      int              `json:"class"`
	TotalMarks int              `json:"total_marks"`
	Mode       PaperMode        `json:"mode"`
	Status     PaperStatus      `json:"status"`
	CreatedBy  string           `json:"created_by"`
	CreatedAt  time.Time        `json:"created_at"`
	Questions  []QuestionResult `json:"questions"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	Position   int          `json:"position"`
	Text       string       `json:"text"`
	Answer     string       `json:"answer,omitempty"`
	Chapter    string       `json:"chapter"`
	Difficulty Difficulty   `json:"difficulty"`
	Type       QuestionType `json:"type"`
	Marks      int          `json:"marks"`
}
