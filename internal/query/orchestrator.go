// Package query answers questions against a table, a document collection
// or both, then synthesizes a reply with the answer model.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hunterwarburton/agentgo/internal/core"
	"github.com/hunterwarburton/agentgo/internal/dataset"
	"github.com/hunterwarburton/agentgo/internal/history"
	"github.com/hunterwarburton/agentgo/internal/imageutils"
	"github.com/hunterwarburton/agentgo/internal/llm"
	"github.com/hunterwarburton/agentgo/internal/logger"
	"github.com/hunterwarburton/agentgo/internal/rag"
	"github.com/hunterwarburton/agentgo/internal/tools"
)

// DocumentTopK is the number of chunks retrieved for a document query.
const DocumentTopK = 5

var (
	ErrNoSources  = errors.New("request names neither a table nor a document")
	ErrEmptyQuery = errors.New("query is empty")
)

// DatasetLoader loads a stored table by name.
type DatasetLoader interface {
	Load(name string) (*dataset.Dataset, error)
}

// TableDispatcher runs one tool round over a table.
type TableDispatcher interface {
	Dispatch(ctx context.Context, question string, ds *dataset.Dataset) (*tools.Result, error)
}

// HistoryRecorder appends answered queries to a log.
type HistoryRecorder interface {
	Record(ctx context.Context, e history.Entry) (history.Entry, error)
}

// Request is one question and the sources it should use.
type Request struct {
	Query    string `json:"query"`
	DBName   string `json:"db_name,omitempty"`
	Table    string `json:"table,omitempty"`
	Document string `json:"document,omitempty"`
	User     string `json:"-"`
}

// Results carries the raw structured outputs fed to synthesis.
type Results struct {
	Table     map[string]any `json:"table,omitempty"`
	Documents []rag.Hit      `json:"documents,omitempty"`
}

// Response is either an answer with its results or a base64 image.
type Response struct {
	Query   string   `json:"query"`
	Answer  *string  `json:"answer"`
	Results *Results `json:"results"`
	Image   *string  `json:"image"`
}

// Config holds the orchestrator's collaborators. History is optional and
// TopK defaults to DocumentTopK.
type Config struct {
	Datasets    DatasetLoader
	Dispatcher  TableDispatcher
	Gateway     rag.Gateway
	Embedder    core.EmbedService
	Model       llm.ChatModel
	AnswerModel string
	DefaultDB   string
	TopK        int
	History     HistoryRecorder
}

// Orchestrator routes a request through the table and document paths.
type Orchestrator struct {
	cfg Config
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.DefaultDB == "" {
		cfg.DefaultDB = "test"
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DocumentTopK
	}
	return &Orchestrator{cfg: cfg}
}

// Answer runs the table and document paths named in req and synthesizes
// the reply. A plot result short-circuits with the encoded image.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if req.Table == "" && req.Document == "" {
		return nil, ErrNoSources
	}

	resp := &Response{Query: req.Query}
	results := &Results{}

	if req.Table != "" {
		res, err := o.runTable(ctx, req)
		if err != nil {
			return nil, err
		}
		if res.Kind == tools.KindImage {
			img, err := imageutils.EncodeBase64(res.ImagePath)
			if err != nil {
				return nil, err
			}
			resp.Image = &img
			o.record(ctx, req, "", true)
			return resp, nil
		}
		results.Table = res.Payload()
	}

	if req.Document != "" {
		hits, err := o.Search(ctx, req.DBName, req.Document, req.Query, o.cfg.TopK)
		if err != nil {
			return nil, err
		}
		results.Documents = hits
	}

	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("failed to encode results: %w", err)
	}
	reply, err := o.cfg.Model.ChatCompletion(ctx, o.cfg.AnswerModel, llm.AnswerMessages(req.Query, string(resultsJSON)), nil)
	if err != nil {
		return nil, fmt.Errorf("answer model call failed: %w", err)
	}

	answer := reply.Message.Content
	resp.Answer = &answer
	resp.Results = results
	o.record(ctx, req, answer, false)
	return resp, nil
}

func (o *Orchestrator) runTable(ctx context.Context, req Request) (*tools.Result, error) {
	ds, err := o.cfg.Datasets.Load(req.Table)
	if err != nil {
		return nil, err
	}
	res, err := o.cfg.Dispatcher.Dispatch(ctx, req.Query, ds.NormalizeTimes())
	if err != nil {
		return nil, err
	}
	if res.Kind == tools.KindError {
		logger.ToolWarn("Table '%s' tool %s failed: %s", req.Table, res.Tool, res.Err.Message)
	}
	return res, nil
}

// Search embeds query and returns the topK nearest chunks of document in
// db. An empty db falls back to the default database.
func (o *Orchestrator) Search(ctx context.Context, db, document, query string, topK int) ([]rag.Hit, error) {
	if db == "" {
		db = o.cfg.DefaultDB
	}
	if topK <= 0 {
		topK = o.cfg.TopK
	}
	vec, err := o.cfg.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	client, err := o.cfg.Gateway.Client(ctx, db)
	if err != nil {
		return nil, err
	}
	collection := rag.CollectionName(document)
	hits, err := client.Search(ctx, collection, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search in %s/%s failed: %w", db, collection, err)
	}
	logger.StoreDebug("Search in %s/%s returned %d hits", db, collection, len(hits))
	return hits, nil
}

func (o *Orchestrator) record(ctx context.Context, req Request, answer string, image bool) {
	if o.cfg.History == nil {
		return
	}
	_, err := o.cfg.History.Record(ctx, history.Entry{
		User:     req.User,
		Query:    req.Query,
		Table:    req.Table,
		Document: req.Document,
		Answer:   answer,
		Image:    image,
	})
	if err != nil {
		logger.Warn("Failed to record history: %v", err)
	}
}
