package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const dashscopeEmbeddingPath = "/services/embeddings/text-embedding/text-embedding"

// DashScopeProvider calls the DashScope text-embedding endpoint.
type DashScopeProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewDashScopeProvider creates a provider. baseURL is the API root,
// e.g. https://dashscope.aliyuncs.com/api/v1.
func NewDashScopeProvider(baseURL, apiKey, model string, timeout time.Duration) *DashScopeProvider {
	return &DashScopeProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name implements Provider.
func (p *DashScopeProvider) Name() string { return "dashscope" }

type dashscopeRequest struct {
	Model string `json:"model"`
	Input struct {
		Texts []string `json:"texts"`
	} `json:"input"`
	Parameters struct {
		TextType string `json:"text_type,omitempty"`
	} `json:"parameters"`
}

type dashscopeResponse struct {
	Output struct {
		Embeddings []struct {
			TextIndex int       `json:"text_index"`
			Embedding []float32 `json:"embedding"`
		} `json:"embeddings"`
	} `json:"output"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// EmbedBatch implements Provider.
func (p *DashScopeProvider) EmbedBatch(ctx context.Context, texts []string) (*ProviderResponse, error) {
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}

	var reqBody dashscopeRequest
	reqBody.Model = p.model
	reqBody.Input.Texts = texts
	reqBody.Parameters.TextType = "document"

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+dashscopeEmbeddingPath, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var decoded dashscopeResponse
	decodeErr := json.Unmarshal(body, &decoded)

	if resp.StatusCode != http.StatusOK || decoded.Code != "" {
		perr := &ProviderError{Provider: p.Name(), StatusCode: resp.StatusCode, Code: decoded.Code, Message: decoded.Message}
		if perr.Message == "" {
			perr.Message = truncate(string(body), 200)
		}
		return nil, perr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, decodeErr)
	}

	out := &ProviderResponse{TotalTokens: decoded.Usage.TotalTokens}
	for _, e := range decoded.Output.Embeddings {
		out.Embeddings = append(out.Embeddings, ProviderEmbedding{Vector: e.Embedding, TextIndex: e.TextIndex})
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
