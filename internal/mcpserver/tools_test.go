package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunterwarburton/agentgo/internal/dataset"
	"github.com/hunterwarburton/agentgo/internal/query"
	"github.com/hunterwarburton/agentgo/internal/rag"
)

type fakeEngine struct {
	resp      *query.Response
	err       error
	hits      []rag.Hit
	gotReq    query.Request
	gotSearch []any
}

func (f *fakeEngine) Answer(_ context.Context, req query.Request) (*query.Response, error) {
	f.gotReq = req
	return f.resp, f.err
}

func (f *fakeEngine) Search(_ context.Context, db, document, q string, topK int) ([]rag.Hit, error) {
	f.gotSearch = []any{db, document, q, topK}
	return f.hits, f.err
}

type fakeTables struct {
	names []string
	err   error
}

func (f fakeTables) List() ([]string, error) { return f.names, f.err }

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
}

func TestAnswerQuestion(t *testing.T) {
	answer := "The mean of sales is 20."
	engine := &fakeEngine{resp: &query.Response{Query: "mean?", Answer: &answer, Results: &query.Results{}}}
	s := NewServer(engine, fakeTables{})

	res, err := s.handleAnswerQuestion(context.Background(), callRequest("answer_question", map[string]interface{}{
		"query":   "mean?",
		"table":   "sales",
		"db_name": "docs",
	}))
	require.NoError(t, err)

	assert.Equal(t, query.Request{Query: "mean?", Table: "sales", DBName: "docs", User: "mcp"}, engine.gotReq)

	var got query.Response
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	require.NotNil(t, got.Answer)
	assert.Equal(t, answer, *got.Answer)
	assert.Nil(t, got.Image)
}

func TestAnswerQuestionImage(t *testing.T) {
	img := "aGVsbG8="
	s := NewServer(&fakeEngine{resp: &query.Response{Image: &img}}, fakeTables{})

	res, err := s.handleAnswerQuestion(context.Background(), callRequest("answer_question", map[string]interface{}{
		"query": "plot sales",
		"table": "sales",
	}))
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	image, ok := res.Content[0].(mcp.ImageContent)
	require.True(t, ok)
	assert.Equal(t, img, image.Data)
	assert.Equal(t, "image/png", image.MIMEType)
}

func TestAnswerQuestionErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"empty query", query.ErrEmptyQuery, ErrorCodeEmptyQuery},
		{"no sources", query.ErrNoSources, ErrorCodeNoSources},
		{"missing table", fmt.Errorf("%w: sales", dataset.ErrDatasetNotFound), ErrorCodeSourceNotFound},
		{"missing collection", fmt.Errorf("search failed: %w", rag.ErrCollectionNotFound), ErrorCodeSourceNotFound},
		{"model down", errors.New("answer model call failed"), ErrorCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(&fakeEngine{err: tt.err}, fakeTables{})
			_, err := s.handleAnswerQuestion(context.Background(), callRequest("answer_question", map[string]interface{}{"query": "q"}))
			requireCode(t, err, tt.code)
		})
	}

	s := NewServer(&fakeEngine{}, fakeTables{})
	_, err := s.handleAnswerQuestion(context.Background(), mcp.CallToolRequest{})
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestSearchDocuments(t *testing.T) {
	engine := &fakeEngine{hits: []rag.Hit{{Text: "chunk one", Distance: 0.1}}}
	s := NewServer(engine, fakeTables{})

	res, err := s.handleSearchDocuments(context.Background(), callRequest("search_documents", map[string]interface{}{
		"query":    "what is it",
		"document": "report.docx",
		"limit":    float64(3),
	}))
	require.NoError(t, err)
	assert.Equal(t, []any{"", "report.docx", "what is it", 3}, engine.gotSearch)
	assert.Contains(t, resultText(t, res), `"text": "chunk one"`)

	_, err = s.handleSearchDocuments(context.Background(), callRequest("search_documents", map[string]interface{}{
		"query":    "q",
		"document": "report.docx",
	}))
	require.NoError(t, err)
	assert.Equal(t, query.DocumentTopK, engine.gotSearch[3])
}

func TestSearchDocumentsValidation(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing query", map[string]interface{}{"document": "d"}, ErrorCodeEmptyQuery},
		{"missing document", map[string]interface{}{"query": "q"}, ErrorCodeInvalidParams},
		{"limit too small", map[string]interface{}{"query": "q", "document": "d", "limit": float64(0)}, ErrorCodeInvalidParams},
		{"limit too large", map[string]interface{}{"query": "q", "document": "d", "limit": float64(500)}, ErrorCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{}
			s := NewServer(engine, fakeTables{})
			_, err := s.handleSearchDocuments(context.Background(), callRequest("search_documents", tt.args))
			requireCode(t, err, tt.code)
			assert.Nil(t, engine.gotSearch)
		})
	}

	s := NewServer(&fakeEngine{err: rag.ErrCollectionNotFound}, fakeTables{})
	_, err := s.handleSearchDocuments(context.Background(), callRequest("search_documents", map[string]interface{}{"query": "q", "document": "d"}))
	requireCode(t, err, ErrorCodeSourceNotFound)
}

func TestListTables(t *testing.T) {
	s := NewServer(&fakeEngine{}, fakeTables{names: []string{"orders", "sales"}})
	res, err := s.handleListTables(context.Background(), callRequest("list_tables", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"tables":["orders","sales"]}`, resultText(t, res))

	s = NewServer(&fakeEngine{}, fakeTables{})
	res, err = s.handleListTables(context.Background(), callRequest("list_tables", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"tables":[]}`, resultText(t, res))

	s = NewServer(&fakeEngine{}, fakeTables{err: errors.New("disk gone")})
	_, err = s.handleListTables(context.Background(), callRequest("list_tables", nil))
	requireCode(t, err, ErrorCodeInternalError)
}
