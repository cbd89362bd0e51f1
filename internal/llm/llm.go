package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rsharma/biopaper/internal/llm/prompts"
	"github.com/rsharma/biopaper/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// generatedQuestion is the raw per-question shape returned by the model
// before validation. Text is required; Answer and ImageData are optional
// and validated against the request at the ingestion boundary.
type generatedQuestion struct {
	Text      string `json:"text"`
	Answer    string `json:"answer"`
	ImageData string `json:"image_data"`
}

type generationOutput struct {
	Questions []generatedQuestion `json:"questions"`
}

// Client wraps an OpenAI-compatible API client for question generation.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new generation client.
func New(baseURL, apiKey, modelName string) (*Client, error) {
	if err := prompts.Load(); err != nil {
		return nil, fmt.Errorf("load prompt templates: %w", err)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}, nil
}

// Ping verifies the endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// GenerateQuestions asks the model for req.Count questions matching req.
// The exclude list names questions already produced or supplied this run;
// it is passed to the model so phrasing is not repeated, best-effort.
func (c *Client) GenerateQuestions(ctx context.Context, req model.GenerationRequest, exclude []string) ([]model.Question, error) {
	systemPrompt, err := prompts.BuildSystemPrompt(req)
	if err != nil {
		return nil, fmt.Errorf("build system prompt: %w", err)
	}
	userPrompt, err := prompts.BuildUserPrompt(req, exclude)
	if err != nil {
		return nil, fmt.Errorf("build user prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, mapAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ErrInvalidResponse{Err: fmt.Errorf("no choices in response")}
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("generation response", "model", c.model, "raw_len", len(raw))

	var out generationOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, &ErrInvalidResponse{Raw: raw, Err: err}
	}

	questions, err := ingest(out.Questions, req)
	if err != nil {
		return nil, &ErrInvalidResponse{Raw: raw, Err: err}
	}
	return questions, nil
}

// ingest validates the raw model output and fills in the request's tags.
func ingest(raw []generatedQuestion, req model.GenerationRequest) ([]model.Question, error) {
	if len(raw) == 0 {
		return nil, errors.New("model returned no questions")
	}
	questions := make([]model.Question, 0, len(raw))
	for i, gq := range raw {
		text := strings.TrimSpace(gq.Text)
		if text == "" {
			return nil, fmt.Errorf("question %d has no text", i+1)
		}
		if req.WithAnswers && strings.TrimSpace(gq.Answer) == "" {
			return nil, fmt.Errorf("question %d is missing the requested answer", i+1)
		}
		questions = append(questions, model.Question{
			Class:      req.Class,
			Chapter:    req.Chapter,
			Text:       text,
			Answer:     strings.TrimSpace(gq.Answer),
			ImageData:  gq.ImageData,
			Marks:      req.Marks,
			Difficulty: req.Difficulty,
			Type:       req.Type,
			Keywords:   req.Keywords,
		})
	}
	return questions, nil
}

func mapAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return &ErrQuotaExceeded{Err: err}
		case apiErr.HTTPStatusCode >= 500:
			return &ErrUnavailable{Err: err}
		}
		return fmt.Errorf("generation API call: %w", err)
	}
	return &ErrUnavailable{Err: err}
}
