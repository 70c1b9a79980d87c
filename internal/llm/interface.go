package llm

import "context"

// Message represents a chat message.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall represents a function call from the model.
type ToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function FunctionDetails `json:"function"`
}

// FunctionDetails contains details about a function call. Arguments is the
// raw JSON object text produced by the model.
type FunctionDetails struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool represents a function tool that can be used by the model.
type Tool struct {
	Type     string         `json:"type"`
	Function FunctionSchema `json:"function"`
}

// FunctionSchema represents the schema for a function tool.
type FunctionSchema struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Parameters  ParametersSchema `json:"parameters"`
}

// ParametersSchema is the JSON schema object describing tool arguments.
type ParametersSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// PropertySchema describes one argument.
type PropertySchema struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
}

// Usage reports token counts for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse represents a response from the chat model.
type ChatResponse struct {
	Message      Message
	FinishReason string
	Usage        Usage
}

// ChatModel is any chat-completions backend.
type ChatModel interface {
	// ChatCompletion sends messages, and optionally tools, to model.
	ChatCompletion(ctx context.Context, model string, messages []Message, tools []Tool) (*ChatResponse, error)
}
