package prompts

import (
	"bytes"
	"embed"
	"errors"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/rsharma/biopaper/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	loadOnce   sync.Once
	loadErr    error
	systemTmpl *template.Template
	userTmpl   *template.Template
)

// Load parses the embedded prompt templates. It uses sync.Once so the
// templates are parsed only once.
func Load() error {
	loadOnce.Do(func() {
		systemContent, err := templateFS.ReadFile("templates/generate_system.txt")
		if err != nil {
			loadErr = errors.New("failed to read system prompt template: " + err.Error())
			return
		}
		systemTmpl, err = template.New("system").Parse(string(systemContent))
		if err != nil {
			loadErr = errors.New("failed to parse system prompt template: " + err.Error())
			return
		}

		userContent, err := templateFS.ReadFile("templates/generate_user.txt")
		if err != nil {
			loadErr = errors.New("failed to read user prompt template: " + err.Error())
			return
		}
		userTmpl, err = template.New("user").Parse(string(userContent))
		if err != nil {
			loadErr = errors.New("failed to parse user prompt template: " + err.Error())
			return
		}
	})
	return loadErr
}

// SystemData holds template data for the system prompt.
type SystemData struct {
	Class        int
	Language     string
	SyllabusOnly bool
}

// UserData holds template data for the generation prompt.
type UserData struct {
	Count       int
	Marks       int
	Chapter     string
	Difficulty  string
	Type        string
	TypeLabel   string
	Keywords    string
	WithAnswers bool
	Exclusions  []string
}

var typeLabels = map[model.QuestionType]string{
	model.TypeMCQ:     "multiple choice questions with four options each",
	model.TypeShort:   "short answer questions",
	model.TypeLong:    "long answer questions",
	model.TypeDiagram: "diagram-based questions",
}

// BuildSystemPrompt builds the system prompt for a generation request.
func BuildSystemPrompt(req model.GenerationRequest) (string, error) {
	if systemTmpl == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	data := SystemData{
		Class:        req.Class,
		Language:     req.Language,
		SyllabusOnly: req.SyllabusOnly,
	}
	var buf bytes.Buffer
	if err := systemTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildUserPrompt builds the user prompt for a generation request, including
// the exclusion list of already-produced question texts.
func BuildUserPrompt(req model.GenerationRequest, exclude []string) (string, error) {
	if userTmpl == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	label, ok := typeLabels[req.Type]
	if !ok {
		label = "questions"
	}
	data := UserData{
		Count:       req.Count,
		Marks:       req.Marks,
		Chapter:     req.Chapter,
		Difficulty:  string(req.Difficulty),
		Type:        string(req.Type),
		TypeLabel:   label,
		Keywords:    req.Keywords,
		WithAnswers: req.WithAnswers,
		Exclusions:  truncateExclusions(exclude),
	}
	var buf bytes.Buffer
	if err := userTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// truncateExclusions caps the exclusion list so a long run cannot blow up
// the prompt. The most recent entries are kept since they are the likeliest
// duplicates.
func truncateExclusions(exclude []string) []string {
	const maxEntries = 60
	const maxRunes = 300

	if len(exclude) > maxEntries {
		exclude = exclude[len(exclude)-maxEntries:]
	}
	out := make([]string, 0, len(exclude))
	for _, e := range exclude {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if utf8.RuneCountInString(e) > maxRunes {
			runes := []rune(e)
			e = string(runes[:maxRunes]) + "…"
		}
		out = append(out, e)
	}
	return out
}
