package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hunterwarburton/agentgo/internal/dataset"
	"github.com/hunterwarburton/agentgo/internal/query"
	"github.com/hunterwarburton/agentgo/internal/rag"
)

// MCP error codes
const (
	ErrorCodeInvalidParams  = -32602
	ErrorCodeInternalError  = -32603
	ErrorCodeNoSources      = -32001
	ErrorCodeEmptyQuery     = -32004
	ErrorCodeSourceNotFound = -32005
)

const maxSearchLimit = 50

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{Code: code, Message: message, Data: data}
}

func answerQuestionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "answer_question",
		Description: "Answer a question using a stored table, an indexed document, or both",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The question to answer",
				},
				"table": map[string]interface{}{
					"type":        "string",
					"description": "Name of a stored table (see list_tables)",
				},
				"document": map[string]interface{}{
					"type":        "string",
					"description": "Name of an indexed document",
				},
				"db_name": map[string]interface{}{
					"type":        "string",
					"description": "Vector database holding the document",
				},
			},
			Required: []string{"query"},
		},
	}
}

func searchDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_documents",
		Description: "Return the chunks of an indexed document closest to a query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"document": map[string]interface{}{
					"type":        "string",
					"description": "Name of an indexed document",
				},
				"db_name": map[string]interface{}{
					"type":        "string",
					"description": "Vector database holding the document",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of chunks to return",
					"default":     query.DocumentTopK,
					"minimum":     1,
					"maximum":     maxSearchLimit,
				},
			},
			Required: []string{"query", "document"},
		},
	}
}

func listTablesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_tables",
		Description: "List the stored tables that answer_question can use",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

func (s *Server) handleAnswerQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	resp, err := s.engine.Answer(ctx, query.Request{
		Query:    getStringDefault(args, "query", ""),
		Table:    getStringDefault(args, "table", ""),
		Document: getStringDefault(args, "document", ""),
		DBName:   getStringDefault(args, "db_name", ""),
		User:     "mcp",
	})
	switch {
	case errors.Is(err, query.ErrEmptyQuery):
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param": "query",
		})
	case errors.Is(err, query.ErrNoSources):
		return nil, newMCPError(ErrorCodeNoSources, "table or document is required", nil)
	case errors.Is(err, rag.ErrCollectionNotFound), errors.Is(err, dataset.ErrDatasetNotFound):
		return nil, newMCPError(ErrorCodeSourceNotFound, "source not found", map[string]interface{}{
			"error": err.Error(),
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "answering failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if resp.Image != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewImageContent(*resp.Image, "image/png")},
		}, nil
	}
	return mcp.NewToolResultText(formatJSON(resp)), nil
}

func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	q := getStringDefault(args, "query", "")
	if q == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param": "query",
		})
	}
	document := getStringDefault(args, "document", "")
	if document == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "document parameter is required", map[string]interface{}{
			"param": "document",
		})
	}
	limit := getIntDefault(args, "limit", query.DocumentTopK)
	if limit < 1 || limit > maxSearchLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", maxSearchLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	hits, err := s.engine.Search(ctx, getStringDefault(args, "db_name", ""), document, q, limit)
	if errors.Is(err, rag.ErrCollectionNotFound) {
		return nil, newMCPError(ErrorCodeSourceNotFound, "document not indexed", map[string]interface{}{
			"document": document,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"document": document,
		"hits":     hits,
	})), nil
}

func (s *Server) handleListTables(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tables, err := s.tables.List()
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list tables", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if tables == nil {
		tables = []string{}
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"tables": tables})), nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(b)
}

func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
