package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunterwarburton/agentgo/internal/core"
	"github.com/hunterwarburton/agentgo/internal/dataset"
	"github.com/hunterwarburton/agentgo/internal/embed"
	"github.com/hunterwarburton/agentgo/internal/rag"
)

type fakeEmbedder struct {
	fail bool
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	res, err := f.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return res.Records[0].Vector, nil
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) (*core.EmbeddingResult, error) {
	res := &core.EmbeddingResult{}
	for i, t := range texts {
		v := make([]float32, rag.DefaultEmbeddingDim)
		v[0] = float32(len(t))
		res.Records = append(res.Records, core.EmbeddingRecord{Vector: v, SourceTextIndex: i, Text: t})
		res.TotalTokens += len(t)
	}
	if f.fail {
		res.Failed = []core.FailedBatch{{Offset: 0, Size: 1, Err: errors.New("503")}}
		return res, embed.ErrPartialEmbedding
	}
	return res, nil
}

const docXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>第一段内容。</w:t></w:r><w:r><w:t xml:space="preserve">   more   text</w:t></w:r></w:p>
<w:p><w:r><w:drawing><w:inline/></w:drawing></w:r><w:r><w:t>caption with picture</w:t></w:r></w:p>
<w:p></w:p>
<w:p><w:r><w:t>Image Format: PNG</w:t></w:r></w:p>
<w:tbl><w:tr><w:tc><w:p><w:r><w:t>cell</w:t></w:r><w:r><w:tab/><w:t>two</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
</w:body>
</w:document>`

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDocxExtractor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.docx")
	require.NoError(t, os.WriteFile(path, buildDocx(t, docXML), 0o644))

	text, err := DocxExtractor{}.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "第一段内容。   more   text\n\nImage Format: PNG\ncell\ttwo", text)
	assert.Equal(t, "第一段内容。 more text\ncell two", CleanText(text))
}

func TestDocxExtractorRejectsNonZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.docx")
	require.NoError(t, os.WriteFile(path, []byte("plain"), 0o644))
	_, err := DocxExtractor{}.Extract(context.Background(), path)
	assert.Error(t, err)

	_, err = PDFExtractor{}.Extract(context.Background(), path)
	assert.Error(t, err)
}

type fixture struct {
	in      *Ingestor
	gw      *rag.MemoryGateway
	store   *dataset.Store
	emb     *fakeEmbedder
	tmp     string
	visited []FileResult
}

func newFixture(t *testing.T, ocr Extractor) *fixture {
	t.Helper()
	store, err := dataset.NewStore(filepath.Join(t.TempDir(), "tables"))
	require.NoError(t, err)
	f := &fixture{gw: rag.NewMemoryGateway(), store: store, emb: &fakeEmbedder{}, tmp: filepath.Join(t.TempDir(), "spool")}
	f.in = New(Config{
		Gateway:      f.gw,
		Embedder:     f.emb,
		Datasets:     store,
		TempDir:      f.tmp,
		ChunkSize:    20,
		ChunkOverlap: 0,
		OCR:          ocr,
		Progress:     func(r FileResult) { f.visited = append(f.visited, r) },
	})
	return f
}

func (f *fixture) assertSpoolEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadDocuments(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	results, err := f.in.UploadDocuments(ctx, UploadRequest{
		DBName: "kb",
		Files: []File{
			{Name: "notes.txt", Reader: strings.NewReader("First sentence here. Second sentence here.")},
			{Name: "report.docx", Reader: bytes.NewReader(buildDocx(t, docXML))},
			{Name: "legacy.doc", Reader: strings.NewReader("x")},
			{Name: "photo.png", Reader: strings.NewReader("x")},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedType)
	require.Len(t, results, 4)
	assert.Len(t, f.visited, 4)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, "notes_txt_"+results[0].Collection[len(results[0].Collection)-8:], results[0].Collection)
	assert.Equal(t, 2, results[0].Chunks)

	require.NoError(t, results[1].Err)
	assert.ErrorIs(t, results[2].Err, ErrUnsupportedType)
	assert.ErrorIs(t, results[3].Err, ErrUnsupportedType)

	c, err := f.gw.Client(ctx, "kb")
	require.NoError(t, err)
	hits, err := c.Search(ctx, results[1].Collection, make([]float32, rag.DefaultEmbeddingDim), 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.True(t, strings.HasPrefix(h.Text, "[report.docx] : "), h.Text)
	}

	f.assertSpoolEmpty(t)
}

func TestUploadDocumentsPartialEmbeddingInsertsNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.emb.fail = true
	ctx := context.Background()

	results, err := f.in.UploadDocuments(ctx, UploadRequest{Files: []File{{Name: "a.md", Reader: strings.NewReader("# title\n\nbody")}}})
	assert.ErrorIs(t, err, embed.ErrPartialEmbedding)
	require.Len(t, results, 1)
	assert.Zero(t, results[0].Chunks)

	c, err := f.gw.Client(ctx, "test")
	require.NoError(t, err)
	ok, err := c.HasCollection(ctx, results[0].Collection)
	require.NoError(t, err)
	assert.False(t, ok)
	f.assertSpoolEmpty(t)
}

func TestUploadDocumentsEmptyText(t *testing.T) {
	f := newFixture(t, nil)
	results, err := f.in.UploadDocuments(context.Background(), UploadRequest{Files: []File{{Name: "blank.txt", Reader: strings.NewReader("  \n ")}}})
	assert.ErrorIs(t, err, ErrEmptyDocument)
	assert.ErrorIs(t, results[0].Err, ErrEmptyDocument)
}

func TestUploadDocumentsWithOCR(t *testing.T) {
	ocr := ExtractorFunc(func(_ context.Context, path string) (string, error) {
		assert.Equal(t, ".jpg", filepath.Ext(path))
		return "recognized text", nil
	})
	f := newFixture(t, ocr)
	assert.True(t, f.in.Supported("scan.JPG"))

	results, err := f.in.UploadDocuments(context.Background(), UploadRequest{Files: []File{{Name: "scan.jpg", Reader: strings.NewReader("jpeg")}}})
	require.NoError(t, err)
	assert.Equal(t, 1, results[0].Chunks)
	assert.Equal(t, len("recognized text"), results[0].Tokens)
}

func TestUploadTableAndPurge(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	name, err := f.in.UploadTable(ctx, File{Name: "Sales Q1.csv", Reader: strings.NewReader("region,sales\nn,1\ns,2\n")})
	require.NoError(t, err)
	assert.Equal(t, "Sales Q1", name)

	ds, err := f.store.Load("Sales Q1")
	require.NoError(t, err)
	assert.Equal(t, 2, ds.NumRows())
	f.assertSpoolEmpty(t)

	_, err = f.in.UploadTable(ctx, File{Name: "old.xls", Reader: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = f.in.UploadDocuments(ctx, UploadRequest{Files: []File{{Name: "a.txt", Reader: strings.NewReader("hello world")}}})
	require.NoError(t, err)

	require.NoError(t, f.in.Purge(ctx))
	names, err := f.store.List()
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Empty(t, f.gw.Databases())
}
