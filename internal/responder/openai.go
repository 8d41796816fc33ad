package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/me/emailflow/pkg/model"
)

const (
	defaultOpenAIURL   = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel = "gpt-3.5-turbo"
	fallbackReply      = "Thank you for your email. I'll get back to you soon."
)

// OpenAI generates replies with the chat completions API. Unless
// StrictErrors is set, a failed call falls back to a polite canned reply so
// the email is still answered.
type OpenAI struct {
	APIKey       string
	Model        string
	BaseURL      string
	MaxTokens    int
	Temperature  float64
	StrictErrors bool
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// NewOpenAI creates an OpenAI generator with the default model and limits.
func NewOpenAI(apiKey string, logger *slog.Logger) *OpenAI {
	return &OpenAI{
		APIKey:      apiKey,
		Model:       defaultOpenAIModel,
		BaseURL:     defaultOpenAIURL,
		MaxTokens:   150,
		Temperature: 0.7,
		HTTPClient:  &http.Client{},
		Logger:      logger.With("component", "openai"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func prompt(subject, body string) string {
	return fmt.Sprintf(`You are a professional email assistant. Generate a helpful and concise response to this email.

Original Subject: %s
Original Message: %s

Please provide a professional response:`, subject, body)
}

// Generate asks the model for a reply.
func (o *OpenAI) Generate(ctx context.Context, subject, body string) (string, error) {
	text, err := o.complete(ctx, subject, body)
	if err != nil {
		if o.StrictErrors {
			return "", &model.GenerationError{Provider: string(KindOpenAI), Err: err}
		}
		o.Logger.Warn("openai request failed, using fallback reply", "error", err)
		return format(subject, fallbackReply), nil
	}
	return format(subject, text), nil
}

func (o *OpenAI) complete(ctx context.Context, subject, body string) (string, error) {
	reqBody := chatRequest{
		Model: o.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a helpful email assistant."},
			{Role: "user", Content: prompt(subject, body)},
		},
		MaxTokens:   o.MaxTokens,
		Temperature: o.Temperature,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("response has no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
