package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hunterwarburton/agentgo/internal/logger"
)

var ErrNoChoices = errors.New("chat API returned no choices")

// Client talks to an OpenAI-compatible chat completions endpoint, such as
// DashScope compatible mode.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ ChatModel = (*Client)(nil)

// APIError represents an error response from the chat API.
type APIError struct {
	StatusCode int
	Message    string
	Type       string
	Code       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("chat API error (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("chat API error (status %d): %s", e.StatusCode, e.Message)
}

type errorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// ChatRequest represents a request to the chat completion API.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Tools    []Tool    `json:"tools,omitempty"`
	Stream   bool      `json:"stream,omitempty"`
}

// NewClient creates a Client. timeout bounds each HTTP call.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ChatCompletion implements ChatModel.
func (c *Client) ChatCompletion(ctx context.Context, model string, messages []Message, tools []Tool) (*ChatResponse, error) {
	reqBody := ChatRequest{Model: model, Messages: messages, Tools: tools}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		logger.LLMError("Failed to marshal LLM request: %v", err)
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	logger.LLMInfo("Sending request to LLM '%s' with %d messages and %d tools.", model, len(messages), len(tools))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.LLMError("Failed to send HTTP request to LLM: %v", err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// Check for error in response body regardless of status code
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: envelope.Error.Message, Type: envelope.Error.Type}
		if envelope.Error.Code != nil {
			apiErr.Code = fmt.Sprint(envelope.Error.Code)
		}
		logger.LLMError("%v", apiErr)
		return nil, apiErr
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body)}
		logger.LLMError("%v", apiErr)
		return nil, apiErr
	}

	var completion struct {
		ID      string `json:"id"`
		Choices []struct {
			FinishReason string  `json:"finish_reason"`
			Message      Message `json:"message"`
		} `json:"choices"`
		Model string `json:"model"`
		Usage Usage  `json:"usage"`
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, ErrNoChoices
	}

	choice := completion.Choices[0]
	if completion.Usage.TotalTokens > 0 {
		logger.LLMInfo("LLM Usage - Prompt: %d, Completion: %d, Total: %d tokens. Finish Reason: %s",
			completion.Usage.PromptTokens, completion.Usage.CompletionTokens, completion.Usage.TotalTokens, choice.FinishReason)
	}

	preview := choice.Message.Content
	if len(preview) > 80 {
		preview = preview[:80] + "..."
	}
	logger.LLMDebug("LLM response: %q (ToolCalls: %d)", preview, len(choice.Message.ToolCalls))

	return &ChatResponse{
		Message:      choice.Message,
		FinishReason: choice.FinishReason,
		Usage:        completion.Usage,
	}, nil
}
