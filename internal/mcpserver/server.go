// Package mcpserver exposes the query engine as MCP tools over stdio.
package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hunterwarburton/agentgo/internal/query"
	"github.com/hunterwarburton/agentgo/internal/rag"
)

const (
	// ServerName is the MCP server name
	ServerName = "agentgo"
	// ServerVersion is the current server version
	ServerVersion = "0.1.0"
)

// Engine answers questions and searches documents.
type Engine interface {
	Answer(ctx context.Context, req query.Request) (*query.Response, error)
	Search(ctx context.Context, db, document, query string, topK int) ([]rag.Hit, error)
}

// TableLister lists the stored tables.
type TableLister interface {
	List() ([]string, error)
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp    *server.MCPServer
	engine Engine
	tables TableLister
}

// NewServer creates a server and registers its tools.
func NewServer(engine Engine, tables TableLister) *Server {
	s := &Server{
		mcp:    server.NewMCPServer(ServerName, ServerVersion, server.WithRecovery()),
		engine: engine,
		tables: tables,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(_ context.Context) error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(answerQuestionTool(), s.handleAnswerQuestion)
	s.mcp.AddTool(searchDocumentsTool(), s.handleSearchDocuments)
	s.mcp.AddTool(listTablesTool(), s.handleListTables)
}
