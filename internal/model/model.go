package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	School       string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// QuestionType categorizes how a question is answered on paper.
type QuestionType string

const (
	TypeMCQ     QuestionType = "mcq"
	TypeShort   QuestionType = "short"
	TypeLong    QuestionType = "long"
	TypeDiagram QuestionType = "diagram"
)

// PaperMode indicates how a paper's questions were produced.
type PaperMode string

const (
	// ModeBank papers are sampled from the local question bank.
	ModeBank PaperMode = "bank"
	// ModeAI papers are produced by the generative API, possibly falling
	// back to the bank after a quota failure.
	ModeAI PaperMode = "ai"
)

// PaperStatus represents the lifecycle state of a paper.
type PaperStatus string

const (
	StatusDraft PaperStatus = "draft"
	StatusFinal PaperStatus = "final"
)

// Question represents a question in the bank.
//
// UsedIn lists the public IDs of finalized papers the question appeared in;
// an empty slice means the question has never been used.
type Question struct {
	ID         int64        `json:"id"`
	Class      int          `json:"class"`
	Chapter    string       `json:"chapter"`
	Text       string       `json:"text"`
	Answer     string       `json:"answer,omitempty"`
	ImageData  string       `json:"image_data,omitempty"`
	Marks      int          `json:"marks"`
	Difficulty Difficulty   `json:"difficulty"`
	Type       QuestionType `json:"type"`
	Keywords   string       `json:"keywords,omitempty"`
	UsedIn     []string     `json:"used_in"`
	CreatedBy  int64        `json:"created_by"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Used reports whether the question appeared in any finalized paper.
func (q Question) Used() bool {
	return len(q.UsedIn) > 0
}

// Paper represents an assembled exam paper.
type Paper struct {
	ID         int64       `json:"id"`
	PublicID   string      `json:"public_id"`
	Title      string      `json:"title"`
	Class      int         `json:"class"`
	TotalMarks int         `json:"total_marks"`
	Mode       PaperMode   `json:"mode"`
	Status     PaperStatus `json:"status"`
	CreatedBy  int64       `json:"created_by"`
	CreatedAt  time.Time   `json:"created_at"`
}

// PaperQuestion is one question's placement on a paper.
type PaperQuestion struct {
	ID         int64 `json:"id"`
	PaperID    int64 `json:"paper_id"`
	QuestionID int64 `json:"question_id"`
	Position   int   `json:"position"`
	Marks      int   `json:"marks"`
}

// PaperView combines a paper with its questions in position order.
type PaperView struct {
	Paper     Paper      `json:"paper"`
	Questions []Question `json:"questions"`
}

// MarkGroup is an explicit (count, mark value) pair in a submitted
// distribution.
type MarkGroup struct {
	Count int `json:"count"`
	Marks int `json:"marks"`
}

// GeneratorSettings holds one paper-generation request as submitted by a
// teacher. Either TotalMarks with AllowedMarks or an explicit Distribution
// drives the mark layout; Distribution wins when both are present.
type GeneratorSettings struct {
	Title        string         `json:"title"`
	Class        int            `json:"class"`
	Chapters     []string       `json:"chapters"`
	TotalMarks   int            `json:"total_marks,omitempty"`
	AllowedMarks []int          `json:"allowed_marks,omitempty"`
	Distribution []MarkGroup    `json:"distribution,omitempty"`
	Difficulty   Difficulty     `json:"difficulty"`
	Types        []QuestionType `json:"types"`
	Keywords     string         `json:"keywords,omitempty"`
	WithAnswers  bool           `json:"with_answers"`
	SyllabusOnly bool           `json:"syllabus_only"`
	Language     string         `json:"language,omitempty"`
	AvoidReuse   bool           `json:"avoid_reuse"`
	UseAI        bool           `json:"use_ai"`
}

// QuestionImport is used for loading questions from JSON.
type QuestionImport struct {
	Class      int          `json:"class"`
	Chapter    string       `json:"chapter"`
	Text       string       `json:"text"`
	Answer     string       `json:"answer"`
	Marks      int          `json:"marks"`
	Difficulty Difficulty   `json:"difficulty"`
	Type       QuestionType `json:"type"`
	Keywords   string       `json:"keywords"`
}
