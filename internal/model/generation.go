package model

// GenerationRequest is one unit of work sent to the generative API: produce
// Count questions of one type and mark value for one chapter.
type GenerationRequest struct {
	Class        int          `json:"class"`
	Chapter      string       `json:"chapter"`
	Marks        int          `json:"marks"`
	Difficulty   Difficulty   `json:"difficulty"`
	Count        int          `json:"count"`
	Type         QuestionType `json:"type"`
	Keywords     string       `json:"keywords,omitempty"`
	WithAnswers  bool         `json:"with_answers"`
	SyllabusOnly bool         `json:"syllabus_only"`
	Language     string       `json:"language,omitempty"`
}
