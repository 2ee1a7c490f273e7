package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Message is one chat turn sent to the completion endpoint.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer is the text-completion capability consumed by the extractor,
// the scorer, and the agent. Implementations may fail with *OracleError;
// callers must treat malformed output the same way as a failure.
type Completer interface {
	Complete(ctx context.Context, system string, messages []Message) (string, error)
}

// OracleError wraps any transport, timeout, or API failure from the
// completion endpoint.
type OracleError struct {
	Status int
	Msg    string
	Err    error
}

func (e *OracleError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("oracle API error (status %d): %s", e.Status, e.Msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("oracle request failed: %v", e.Err)
	}
	return "oracle request failed: " + e.Msg
}

func (e *OracleError) Unwrap() error { return e.Err }

// Client talks to an OpenAI-compatible chat completions API.
type Client struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	client    *http.Client
	logger    *logrus.Logger
}

func NewClient(apiKey, baseURL, model string, maxTokens int, timeout time.Duration, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Client{
		apiKey:    apiKey,
		baseURL:   baseURL,
		model:     model,
		maxTokens: maxTokens,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a system instruction plus chat messages and returns the
// model's text reply.
func (c *Client) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	all := make([]Message, 0, len(messages)+1)
	if system != "" {
		all = append(all, Message{Role: "system", Content: system})
	}
	all = append(all, messages...)

	payload := chatRequest{
		Model:       c.model,
		Messages:    all,
		MaxTokens:   c.maxTokens,
		Temperature: 0.3,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", &OracleError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", &OracleError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WithError(err).Warn("Oracle request failed")
		return "", &OracleError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &OracleError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(body),
		}).Warn("Oracle returned non-OK status")
		return "", &OracleError{Status: resp.StatusCode, Msg: string(body)}
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &OracleError{Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	if result.Error != nil {
		return "", &OracleError{Msg: result.Error.Message}
	}

	if len(result.Choices) == 0 {
		return "", &OracleError{Msg: "no choices in response"}
	}

	return result.Choices[0].Message.Content, nil
}
