package embed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider returns a one-element vector encoding the first rune of each
// text so tests can check ordering. Calls listed in fail return err.
type fakeProvider struct {
	mu       sync.Mutex
	calls    [][]string
	fail     map[int]error
	reverse  bool
	tokens   int
	override func(call int, texts []string) *ProviderResponse
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) EmbedBatch(_ context.Context, texts []string) (*ProviderResponse, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.mu.Unlock()

	if err, ok := f.fail[call]; ok {
		return nil, err
	}
	if f.override != nil {
		return f.override(call, texts), nil
	}
	resp := &ProviderResponse{TotalTokens: f.tokens}
	for i, text := range texts {
		resp.Embeddings = append(resp.Embeddings, ProviderEmbedding{
			Vector:    []float32{float32(text[0])},
			TextIndex: i,
		})
	}
	if f.reverse {
		for i, j := 0, len(resp.Embeddings)-1; i < j; i, j = i+1, j-1 {
			resp.Embeddings[i], resp.Embeddings[j] = resp.Embeddings[j], resp.Embeddings[i]
		}
	}
	return resp, nil
}

func TestEmbedTextsGlobalIndices(t *testing.T) {
	p := &fakeProvider{tokens: 3}
	b := NewBatcher(p, 2, NoRetry())

	result, err := b.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	require.Len(t, p.calls, 2)
	assert.Equal(t, []string{"a", "b"}, p.calls[0])
	assert.Equal(t, []string{"c"}, p.calls[1])

	require.Len(t, result.Records, 3)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, i, result.Records[i].SourceTextIndex)
		assert.Equal(t, want, result.Records[i].Text)
		assert.Equal(t, []float32{float32(want[0])}, result.Records[i].Vector)
	}
	assert.Equal(t, 6, result.TotalTokens)
	assert.True(t, result.Complete())
}

func TestEmbedTextsOutOfOrderReply(t *testing.T) {
	p := &fakeProvider{reverse: true}
	b := NewBatcher(p, 4, NoRetry())

	result, err := b.EmbedTexts(context.Background(), []string{"w", "x", "y", "z"})
	require.NoError(t, err)

	for i, rec := range result.Records {
		assert.Equal(t, i, rec.SourceTextIndex)
		assert.Equal(t, float32(rec.Text[0]), rec.Vector[0])
	}
}

func TestEmbedTextsReportsFailedBatch(t *testing.T) {
	p := &fakeProvider{
		tokens: 1,
		fail:   map[int]error{1: &ProviderError{Provider: "fake", StatusCode: 400, Message: "bad"}},
	}
	b := NewBatcher(p, 2, NoRetry())

	result, err := b.EmbedTexts(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialEmbedding)

	require.NotNil(t, result)
	assert.False(t, result.Complete())
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 2, result.Failed[0].Offset)
	assert.Equal(t, 2, result.Failed[0].Size)
	assert.ErrorIs(t, result.Failed[0].Err, ErrProviderFailed)

	var indices []int
	for _, rec := range result.Records {
		indices = append(indices, rec.SourceTextIndex)
	}
	assert.Equal(t, []int{0, 1, 4}, indices)
	assert.Equal(t, 2, result.TotalTokens)
}

func TestEmbedTextsRejectsMalformedReply(t *testing.T) {
	tests := []struct {
		name string
		resp *ProviderResponse
	}{
		{"short", &ProviderResponse{Embeddings: []ProviderEmbedding{{Vector: []float32{1}, TextIndex: 0}}}},
		{"out of range", &ProviderResponse{Embeddings: []ProviderEmbedding{
			{Vector: []float32{1}, TextIndex: 0}, {Vector: []float32{1}, TextIndex: 2},
		}}},
		{"duplicate", &ProviderResponse{Embeddings: []ProviderEmbedding{
			{Vector: []float32{1}, TextIndex: 1}, {Vector: []float32{1}, TextIndex: 1},
		}}},
		{"empty vector", &ProviderResponse{Embeddings: []ProviderEmbedding{
			{Vector: []float32{1}, TextIndex: 0}, {TextIndex: 1},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{override: func(int, []string) *ProviderResponse { return tt.resp }}
			b := NewBatcher(p, 2, DefaultRetryConfig())

			result, err := b.EmbedTexts(context.Background(), []string{"a", "b"})
			require.ErrorIs(t, err, ErrPartialEmbedding)
			require.Len(t, result.Failed, 1)
			assert.ErrorIs(t, result.Failed[0].Err, ErrBadResponse)
			assert.Empty(t, result.Records)
			assert.Len(t, p.calls, 1, "malformed replies are not retried")
		})
	}
}

func TestEmbedTextsRetriesTransientErrors(t *testing.T) {
	p := &fakeProvider{fail: map[int]error{0: &ProviderError{Provider: "fake", StatusCode: 503}}}
	b := NewBatcher(p, 10, RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2})

	result, err := b.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, result.Records, 2)
	assert.Len(t, p.calls, 2)
}

func TestEmbedTextsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &fakeProvider{fail: map[int]error{0: context.Canceled}}
	b := NewBatcher(p, 1, DefaultRetryConfig())

	_, err := b.EmbedTexts(ctx, []string{"a", "b"})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, p.calls, 1)
}

func TestEmbedTextsEmptyInput(t *testing.T) {
	p := &fakeProvider{}
	result, err := NewBatcher(p, 0, NoRetry()).EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.Empty(t, p.calls)
}

func TestEmbedQuery(t *testing.T) {
	p := &fakeProvider{}
	b := NewBatcher(p, 5, NoRetry())

	vec, err := b.EmbedQuery(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, []float32{'q'}, vec)

	_, err = b.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCachedEmbedderReturnsCopies(t *testing.T) {
	p := &fakeProvider{}
	c := NewCachedEmbedder(NewBatcher(p, 5, NoRetry()), 10)

	first, err := c.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	first[0] = 0

	second, err := c.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{'h'}, second)
	assert.Len(t, p.calls, 1)
	assert.Equal(t, 1, c.Len())
}

func TestProviderErrorRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{0, true},
		{400, false},
		{401, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		err := &ProviderError{Provider: "x", StatusCode: tt.status, Message: "m"}
		assert.Equal(t, tt.want, err.Retryable(), "status %d", tt.status)
		assert.True(t, strings.Contains(err.Error(), "status"))
	}
}
