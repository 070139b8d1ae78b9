// Package dashscope provides a Reranker backed by the DashScope text-rerank API.
package dashscope

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
	"github.com/custodia-labs/kbengine/internal/logger"
)

// Ensure Reranker implements the interface.
var _ driven.Reranker = (*Reranker)(nil)

// Default configuration values.
const (
	DefaultBaseURL      = domain.DefaultRerankBaseURL
	DefaultModel        = domain.DefaultRerankModel
	DefaultTimeout      = domain.DefaultRequestTimeout
	DefaultMaxDocuments = domain.DefaultRerankMaxDocuments
)

// ErrMissingAPIKey is reported when no credential is configured.
var ErrMissingAPIKey = errors.New("dashscope: API key not set")

// Config holds configuration for the DashScope reranker.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// MaxDocuments caps how many candidates are sent in one call.
	// Candidates beyond the cap are left unscored.
	MaxDocuments int
}

// Reranker scores passages with a DashScope rerank model.
type Reranker struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	maxDocs int
}

type rerankRequest struct {
	Model      string           `json:"model"`
	Input      rerankInput      `json:"input"`
	Parameters rerankParameters `json:"parameters"`
}

type rerankInput struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankParameters struct {
	ReturnDocuments bool `json:"return_documents"`
	TopN            int  `json:"top_n"`
}

type rerankResponse struct {
	Output *struct {
		Results []struct {
			Index          *int     `json:"index"`
			RelevanceScore *float64 `json:"relevance_score"`
		} `json:"results"`
	} `json:"output"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// NewReranker creates a DashScope reranker. An empty APIKey is allowed:
// every call then reports the reranker as unavailable.
func NewReranker(cfg Config) *Reranker {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxDocuments <= 0 {
		cfg.MaxDocuments = DefaultMaxDocuments
	}

	return &Reranker{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		maxDocs: cfg.MaxDocuments,
	}
}

// Model returns the rerank model name.
func (r *Reranker) Model() string {
	return r.model
}

// Rerank scores candidates against query in one request.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []string) domain.RerankOutcome {
	if r.apiKey == "" {
		return domain.RerankUnavailable{Reason: ErrMissingAPIKey}
	}
	if len(candidates) == 0 {
		return domain.RerankScored{Scores: []domain.RerankScore{}}
	}

	docs := candidates
	if len(docs) > r.maxDocs {
		logger.Debug("Rerank truncating %d candidates to %d", len(docs), r.maxDocs)
		docs = docs[:r.maxDocs]
	}

	scores, err := r.call(ctx, query, docs)
	if err != nil {
		return domain.RerankUnavailable{Reason: err}
	}
	return domain.RerankScored{Scores: scores}
}

func (r *Reranker) call(ctx context.Context, query string, docs []string) ([]domain.RerankScore, error) {
	body, err := json.Marshal(rerankRequest{
		Model: r.model,
		Input: rerankInput{Query: query, Documents: docs},
		Parameters: rerankParameters{
			ReturnDocuments: false,
			TopN:            len(docs),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dashscope: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dashscope: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dashscope: send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("dashscope: read response: %w", err)
	}

	var parsed rerankResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && parsed.Code != "" {
			return nil, fmt.Errorf("dashscope: status %d: %s: %s", resp.StatusCode, parsed.Code, parsed.Message)
		}
		return nil, fmt.Errorf("dashscope: status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("dashscope: decode response: %w", decodeErr)
	}
	if parsed.Output == nil {
		return nil, errors.New("dashscope: response has no output")
	}

	scores := make([]domain.RerankScore, 0, len(parsed.Output.Results))
	for i, res := range parsed.Output.Results {
		if res.Index == nil || res.RelevanceScore == nil {
			return nil, fmt.Errorf("dashscope: result %d missing index or relevance_score", i)
		}
		if *res.Index < 0 || *res.Index >= len(docs) || math.IsNaN(*res.RelevanceScore) {
			logger.Debug("Rerank dropping invalid result index=%d", *res.Index)
			continue
		}
		scores = append(scores, domain.RerankScore{Index: *res.Index, Score: *res.RelevanceScore})
	}
	return scores, nil
}

// Close releases idle connections.
func (r *Reranker) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
