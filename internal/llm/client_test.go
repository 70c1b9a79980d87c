package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCompletionSendsToolsAndParsesCalls(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{
			"id": "c1",
			"choices": [{
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{"id": "t1", "type": "function", "function": {"name": "calculate_mean", "arguments": "{\"column\":\"sales\"}"}}]
				}
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/v1/", "secret", time.Second)
	tools := []Tool{{Type: "function", Function: FunctionSchema{
		Name:       "calculate_mean",
		Parameters: ParametersSchema{Type: "object", Properties: map[string]PropertySchema{"column": {Type: "string", Description: "col"}}, Required: []string{"column"}},
	}}}
	resp, err := c.ChatCompletion(context.Background(), "qwen-plus", []Message{{Role: "user", Content: "mean?"}}, tools)
	require.NoError(t, err)

	assert.Equal(t, "qwen-plus", got.Model)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "calculate_mean", got.Tools[0].Function.Name)

	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, `{"column":"sales"}`, resp.Message.ToolCalls[0].Function.Arguments)
}

func TestChatCompletionErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{"error envelope", http.StatusBadRequest, `{"error":{"message":"bad model","type":"invalid_request_error","code":"model_not_found"}}`, "model_not_found", "bad model"},
		{"error on 200", http.StatusOK, `{"error":{"message":"quota","code":429}}`, "429", "quota"},
		{"plain status", http.StatusBadGateway, `upstream down`, "", "upstream down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "k", time.Second).ChatCompletion(context.Background(), "m", nil, nil)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
		})
	}
}

func TestChatCompletionNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k", time.Second).ChatCompletion(context.Background(), "m", nil, nil)
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestAnswerMessages(t *testing.T) {
	msgs := AnswerMessages("  what is the mean?  ", `[{"Mean of sales":20}]`)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, AssistantSystemPrompt, msgs[0].Content)
	assert.Equal(t, "user", msgs[1].Role)
	assert.True(t, strings.Contains(msgs[1].Content, "User question: what is the mean?\n"))
	assert.Contains(t, msgs[1].Content, `Retrieved result data: [{"Mean of sales":20}]`)
}
