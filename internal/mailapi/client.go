// Package mailapi talks to the remote email service: it fetches the batch of
// emails to answer and posts replies.
package mailapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/me/emailflow/pkg/model"
)

// DefaultBaseURL is the production email service.
const DefaultBaseURL = "https://9uc4obe1q1.execute-api.us-east-2.amazonaws.com/dev"

// Client is an HTTP client for the email service.
type Client struct {
	BaseURL    string
	APIKey     string
	TestMode   bool
	HTTPClient *http.Client
	Logger     *slog.Logger

	// now stamps the fetch time; replaced in tests.
	now func() time.Time
}

// NewClient creates an email service client.
func NewClient(baseURL, apiKey string, testMode bool, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		TestMode:   testMode,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger.With("component", "mailapi"),
		now:        time.Now,
	}
}

// FetchTasks retrieves the email batch. Every returned task carries the same
// FetchTime: the instant the response body was received.
func (c *Client) FetchTasks(ctx context.Context) ([]model.Task, error) {
	q := url.Values{}
	q.Set("api_key", c.APIKey)
	if c.TestMode {
		q.Set("test_mode", "true")
	}
	u := c.BaseURL + "/emails?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &model.FetchError{Err: fmt.Errorf("create request: %w", err)}
	}
	c.Logger.Debug("HTTP request", "method", http.MethodGet, "url", c.BaseURL+"/emails", "test_mode", c.TestMode)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &model.FetchError{Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.FetchError{Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	fetchTime := c.now()

	c.Logger.Debug("HTTP response", "status", resp.StatusCode, "bytes", len(body))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &model.FetchError{Status: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(body)))}
	}

	var payloads []model.EmailPayload
	if err := json.Unmarshal(body, &payloads); err != nil {
		return nil, &model.FetchError{Status: resp.StatusCode, Err: fmt.Errorf("parse response: %w", err)}
	}

	tasks := make([]model.Task, len(payloads))
	for i, p := range payloads {
		tasks[i] = p.ToTask(fetchTime)
	}
	return tasks, nil
}

// SubmitResult posts the reply for taskID. It never returns an error; any
// failure is logged and reported as false.
func (c *Client) SubmitResult(ctx context.Context, taskID, text string) bool {
	payload := model.ResponsePayload{
		EmailID:      taskID,
		ResponseBody: text,
		APIKey:       c.APIKey,
	}
	if c.TestMode {
		payload.TestMode = "true"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		c.Logger.Error("marshal response", "task_id", taskID, "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/responses", bytes.NewReader(data))
	if err != nil {
		c.Logger.Error("create request", "task_id", taskID, "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Logger.Warn("failed to send response", "task_id", taskID, "error", err)
		return false
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.Logger.Warn("failed to send response",
			"task_id", taskID,
			"status", resp.StatusCode,
			"body", strings.TrimSpace(string(respBody)))
		return false
	}
	return true
}
