// Package feedback delivers session-ended events to the downstream
// feedback-collection service.
package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// SessionEndedRequest is the payload sent to the collector's
// POST /v1/sessions/ended endpoint.
type SessionEndedRequest struct {
	SessionID        string `json:"session_id"`
	CallID           string `json:"call_id"`
	OriginalCallerID string `json:"original_caller_id"`
	DurationSeconds  int    `json:"duration_seconds"`
	EndCause         string `json:"end_cause"`
}

// envelope is the standard collector response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Client is an HTTP client for the feedback-collection service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a feedback collector client. baseURL is the collector
// endpoint; apiKey authenticates this device with each request.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// Configured returns true if the client has a base URL to talk to.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// SendSessionEnded posts a completed session to the collector so it can
// prompt the original caller for feedback.
func (c *Client) SendSessionEnded(ctx context.Context, req SessionEndedRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("feedback: marshalling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sessions/ended", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("feedback: creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("feedback: sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("feedback: reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		var env envelope
		if json.Unmarshal(respBody, &env) == nil && env.Error != "" {
			return fmt.Errorf("feedback: collector error (status %d): %s", resp.StatusCode, env.Error)
		}
		return fmt.Errorf("feedback: collector returned status %d", resp.StatusCode)
	}

	slog.Debug("session feedback event sent",
		"session_id", req.SessionID,
		"caller_id", req.OriginalCallerID,
		"end_cause", req.EndCause,
	)
	return nil
}
