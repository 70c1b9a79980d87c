package query

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunterwarburton/agentgo/internal/core"
	"github.com/hunterwarburton/agentgo/internal/dataset"
	"github.com/hunterwarburton/agentgo/internal/history"
	"github.com/hunterwarburton/agentgo/internal/llm"
	"github.com/hunterwarburton/agentgo/internal/rag"
	"github.com/hunterwarburton/agentgo/internal/tools"
)

type fakeEmbedder struct{}

func vectorFor(x float32) []float32 {
	v := make([]float32, rag.DefaultEmbeddingDim)
	v[0] = x
	return v
}

func (fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return vectorFor(float32(len(text))), nil
}

func (fakeEmbedder) EmbedTexts(_ context.Context, texts []string) (*core.EmbeddingResult, error) {
	return nil, errors.New("not used")
}

type fakeDispatcher struct {
	result *tools.Result
	err    error
	gotDS  *dataset.Dataset
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ string, ds *dataset.Dataset) (*tools.Result, error) {
	f.gotDS = ds
	return f.result, f.err
}

type fakeModel struct {
	calls int
	msgs  []llm.Message
}

func (f *fakeModel) ChatCompletion(_ context.Context, _ string, messages []llm.Message, _ []llm.Tool) (*llm.ChatResponse, error) {
	f.calls++
	f.msgs = messages
	return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: "the answer"}}, nil
}

type fakeHistory struct{ entries []history.Entry }

func (f *fakeHistory) Record(_ context.Context, e history.Entry) (history.Entry, error) {
	f.entries = append(f.entries, e)
	return e, nil
}

type fixture struct {
	orch    *Orchestrator
	disp    *fakeDispatcher
	model   *fakeModel
	history *fakeHistory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := dataset.NewStore(t.TempDir())
	require.NoError(t, err)
	ds, err := dataset.LoadCSV("sales", strings.NewReader("day,sales\n2024-01-02,10\n2024-01-03,20\n"))
	require.NoError(t, err)
	require.NoError(t, store.Save(ds))

	gw := rag.NewMemoryGateway()
	c, err := gw.Client(ctx, "test")
	require.NoError(t, err)
	coll := rag.CollectionName("Manual v1.docx")
	require.NoError(t, c.CreateCollection(ctx, coll))
	require.NoError(t, c.Insert(ctx, coll, []string{"far", "near"}, [][]float32{vectorFor(100), vectorFor(5)}))

	f := &fixture{
		disp:    &fakeDispatcher{result: &tools.Result{Kind: tools.KindText, Text: "ok"}},
		model:   &fakeModel{},
		history: &fakeHistory{},
	}
	f.orch = New(Config{
		Datasets:    store,
		Dispatcher:  f.disp,
		Gateway:     gw,
		Embedder:    fakeEmbedder{},
		Model:       f.model,
		AnswerModel: "answer",
		History:     f.history,
	})
	return f
}

func TestAnswerRejectsMissingSources(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Answer(context.Background(), Request{Query: "hello"})
	assert.ErrorIs(t, err, ErrNoSources)

	_, err = f.orch.Answer(context.Background(), Request{Query: " ", Table: "sales"})
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Zero(t, f.model.calls)
}

func TestAnswerTableAndDocument(t *testing.T) {
	f := newFixture(t)
	f.disp.result = &tools.Result{Kind: tools.KindText, Tool: tools.GetCurrentTime, Text: "Current time: x."}

	resp, err := f.orch.Answer(context.Background(), Request{Query: "hello", Table: "sales", Document: "Manual v1.docx", User: "9"})
	require.NoError(t, err)

	require.NotNil(t, resp.Answer)
	assert.Equal(t, "the answer", *resp.Answer)
	assert.Nil(t, resp.Image)
	require.NotNil(t, resp.Results)
	assert.Equal(t, "get_current_time", resp.Results.Table["name"])
	require.Len(t, resp.Results.Documents, 2)
	assert.Equal(t, "near", resp.Results.Documents[0].Text)

	day, ok := f.disp.gotDS.Column("day")
	require.True(t, ok)
	assert.Equal(t, dataset.TypeString, day.Type, "times are normalized before dispatch")

	require.Len(t, f.model.msgs, 2)
	assert.Contains(t, f.model.msgs[1].Content, "User question: hello")
	assert.Contains(t, f.model.msgs[1].Content, `"content":"Current time: x."`)

	require.Len(t, f.history.entries, 1)
	assert.Equal(t, "9", f.history.entries[0].User)
	assert.Equal(t, "the answer", f.history.entries[0].Answer)
}

func TestAnswerImageShortCircuit(t *testing.T) {
	f := newFixture(t)
	img := filepath.Join(t.TempDir(), "x_sales_line_chart.png")
	require.NoError(t, os.WriteFile(img, []byte("png-bytes"), 0o644))
	f.disp.result = &tools.Result{Kind: tools.KindImage, Tool: tools.PlotLineChart, ImagePath: img}

	resp, err := f.orch.Answer(context.Background(), Request{Query: "plot", Table: "sales", Document: "Manual v1.docx"})
	require.NoError(t, err)

	require.NotNil(t, resp.Image)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png-bytes")), *resp.Image)
	assert.Nil(t, resp.Answer)
	assert.Nil(t, resp.Results)
	assert.Zero(t, f.model.calls)
	require.Len(t, f.history.entries, 1)
	assert.True(t, f.history.entries[0].Image)
}

func TestAnswerErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Answer(context.Background(), Request{Query: "q", Table: "nope"})
	assert.ErrorIs(t, err, dataset.ErrDatasetNotFound)

	_, err = f.orch.Answer(context.Background(), Request{Query: "q", Document: "unknown doc"})
	assert.ErrorIs(t, err, rag.ErrCollectionNotFound)

	boom := errors.New("model down")
	f.disp.err = boom
	_, err = f.orch.Answer(context.Background(), Request{Query: "q", Table: "sales"})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, f.model.calls)
}

func TestSearchTopK(t *testing.T) {
	f := newFixture(t)
	hits, err := f.orch.Search(context.Background(), "", "Manual v1.docx", "abc", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "near", hits[0].Text)
}
