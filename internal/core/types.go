package core

// EmbeddingRecord is one embedded text. SourceTextIndex is global across
// every batch of a single embedding request.
type EmbeddingRecord struct {
	Vector          []float32 `json:"vector"`
	SourceTextIndex int       `json:"source_text_index"`
	Text            string    `json:"text"`
}

// FailedBatch describes a contiguous run of input texts that the provider
// could not embed.
type FailedBatch struct {
	Offset int   `json:"offset"`
	Size   int   `json:"size"`
	Err    error `json:"-"`
}

// EmbeddingResult reports the outcome of a batched embedding request.
// Records holds only successful batches, ordered by SourceTextIndex.
type EmbeddingResult struct {
	Records     []EmbeddingRecord `json:"records"`
	TotalTokens int               `json:"total_tokens"`
	Failed      []FailedBatch     `json:"failed_batches,omitempty"`
}

// Complete reports whether every batch succeeded.
func (r *EmbeddingResult) Complete() bool {
	return len(r.Failed) == 0
}

// Vectors returns the record vectors in order.
func (r *EmbeddingResult) Vectors() [][]float32 {
	out := make([][]float32, len(r.Records))
	for i, rec := range r.Records {
		out[i] = rec.Vector
	}
	return out
}

// SearchHit is one similarity search match. Lower distance is closer.
type SearchHit struct {
	Text     string  `json:"text"`
	Distance float32 `json:"distance"`
}
