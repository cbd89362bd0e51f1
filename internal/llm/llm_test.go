package llm

import (
	"errors"
	"fmt"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rsharma/biopaper/internal/model"
)

func TestMapAPIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want any
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: 429, Message: "quota"}, &ErrQuotaExceeded{}},
		{"server error", &openai.APIError{HTTPStatusCode: 503, Message: "down"}, &ErrUnavailable{}},
		{"network failure", errors.New("connection refused"), &ErrUnavailable{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapAPIError(tt.err)
			switch tt.want.(type) {
			case *ErrQuotaExceeded:
				var target *ErrQuotaExceeded
				if !errors.As(got, &target) {
					t.Errorf("mapAPIError(%v) = %T, want *ErrQuotaExceeded", tt.err, got)
				}
			case *ErrUnavailable:
				var target *ErrUnavailable
				if !errors.As(got, &target) {
					t.Errorf("mapAPIError(%v) = %T, want *ErrUnavailable", tt.err, got)
				}
			}
		})
	}
}

func TestMapAPIErrorClientFault(t *testing.T) {
	apiErr := &openai.APIError{HTTPStatusCode: 400, Message: "bad request"}
	got := mapAPIError(apiErr)

	var quota *ErrQuotaExceeded
	var unavailable *ErrUnavailable
	if errors.As(got, &quota) || errors.As(got, &unavailable) {
		t.Errorf("400 should not map to quota or unavailable, got %T", got)
	}
	if !errors.As(got, &apiErr) {
		t.Error("original API error should still be unwrappable")
	}
}

func TestErrorsUnwrap(t *testing.T) {
	inner := fmt.Errorf("inner")

	if !errors.Is(error(&ErrQuotaExceeded{Err: inner}), inner) {
		t.Error("ErrQuotaExceeded should unwrap to inner error")
	}
	if !errors.Is(error(&ErrUnavailable{Err: inner}), inner) {
		t.Error("ErrUnavailable should unwrap to inner error")
	}
	if !errors.Is(error(&ErrInvalidResponse{Err: inner}), inner) {
		t.Error("ErrInvalidResponse should unwrap to inner error")
	}
}

func TestIngest(t *testing.T) {
	req := model.GenerationRequest{
		Class:      10,
		Chapter:    "Life Processes",
		Marks:      5,
		Difficulty: model.DifficultyMedium,
		Type:       model.TypeShort,
		Keywords:   "respiration",
	}

	raw := []generatedQuestion{
		{Text: "Explain aerobic respiration.", Answer: "Glucose is broken down with oxygen."},
		{Text: "  What is the role of alveoli?  ", Answer: "Gas exchange."},
	}
	questions, err := ingest(raw, req)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("got %d questions, want 2", len(questions))
	}

	q := questions[1]
	if q.Text != "What is the role of alveoli?" {
		t.Errorf("text not trimmed: %q", q.Text)
	}
	if q.Class != 10 || q.Chapter != "Life Processes" || q.Marks != 5 {
		t.Errorf("request tags not applied: %+v", q)
	}
	if q.Difficulty != model.DifficultyMedium || q.Type != model.TypeShort {
		t.Errorf("difficulty/type not applied: %+v", q)
	}
	if q.Keywords != "respiration" {
		t.Errorf("keywords = %q", q.Keywords)
	}
}

func TestIngestRejectsBadOutput(t *testing.T) {
	req := model.GenerationRequest{Class: 10, Marks: 2, WithAnswers: true}

	if _, err := ingest(nil, req); err == nil {
		t.Error("empty output should be rejected")
	}
	if _, err := ingest([]generatedQuestion{{Text: "   "}}, req); err == nil {
		t.Error("blank question text should be rejected")
	}
	if _, err := ingest([]generatedQuestion{{Text: "q", Answer: ""}}, req); err == nil {
		t.Error("missing answer should be rejected when answers were requested")
	}
}
