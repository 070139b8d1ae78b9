package domain

// SearchOptions configures a search query.
// Zero values mean "use the collection default".
type SearchOptions struct {
	// TopK is the maximum number of results.
	TopK int

	// MinScore is the minimum effective score. Nil uses the collection default.
	MinScore *float64
}

// Float64 returns a pointer to v, for optional float fields.
func Float64(v float64) *float64 {
	return &v
}

// CandidateResult is produced by the vector store during a search.
// It only lives for the duration of one search call.
type CandidateResult struct {
	ChunkID    string
	DocumentID string
	Content    string
	Metadata   map[string]any

	// VectorScore is the cosine similarity between query and chunk.
	VectorScore float64

	// Rank is the 0-based position in the vector similarity ordering.
	Rank int
}

// RankedResult is a final search result.
type RankedResult struct {
	ChunkID    string         `json:"chunk_id"`
	DocumentID string         `json:"document_id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`

	// VectorScore is the similarity used for initial recall.
	VectorScore float64 `json:"vector_score"`

	// RerankScore is nil when the reranker was skipped or did not score
	// this candidate.
	RerankScore *float64 `json:"rerank_score"`

	// rank is the vector-similarity rank, kept as the final tie-breaker.
	rank int
}

// NewRankedResult converts a candidate into a result without a rerank score.
func NewRankedResult(c CandidateResult) RankedResult {
	return RankedResult{
		ChunkID:     c.ChunkID,
		DocumentID:  c.DocumentID,
		Content:     c.Content,
		Metadata:    c.Metadata,
		VectorScore: c.VectorScore,
		rank:        c.Rank,
	}
}

// EffectiveScore is the rerank score if present, else the vector score.
func (r RankedResult) EffectiveScore() float64 {
	if r.RerankScore != nil {
		return *r.RerankScore
	}
	return r.VectorScore
}

// Reranked reports whether the reranker scored this result.
func (r RankedResult) Reranked() bool {
	return r.RerankScore != nil
}

// VectorRank returns the result's position in the vector similarity ordering.
func (r RankedResult) VectorRank() int {
	return r.rank
}

// Less reports whether r sorts before other: reranked results first, then
// higher effective score, then better vector rank.
func (r RankedResult) Less(other RankedResult) bool {
	if r.Reranked() != other.Reranked() {
		return r.Reranked()
	}
	if a, b := r.EffectiveScore(), other.EffectiveScore(); a != b {
		return a > b
	}
	return r.rank < other.rank
}
