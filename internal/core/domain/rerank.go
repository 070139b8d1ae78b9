package domain

// RerankScore is a relevance score for one candidate.
// Index refers back into the candidate sequence given to the reranker.
type RerankScore struct {
	Index int
	Score float64
}

// RerankOutcome is the tagged result of a rerank attempt.
// It is either RerankScored or RerankUnavailable.
type RerankOutcome interface {
	rerankOutcome()
}

// RerankScored carries the scores returned by the reranking service.
type RerankScored struct {
	Scores []RerankScore
}

// RerankUnavailable signals that the reranker is absent, misconfigured or
// failed. Search falls back to vector similarity ordering.
type RerankUnavailable struct {
	Reason error
}

func (RerankScored) rerankOutcome()      {}
func (RerankUnavailable) rerankOutcome() {}

// Error makes RerankUnavailable usable where an error is expected.
func (u RerankUnavailable) Error() string {
	if u.Reason == nil {
		return ErrRerankUnavailable.Error()
	}
	return ErrRerankUnavailable.Error() + ": " + u.Reason.Error()
}

// Unwrap exposes both the sentinel and the underlying reason to errors.Is.
func (u RerankUnavailable) Unwrap() []error {
	if u.Reason == nil {
		return []error{ErrRerankUnavailable}
	}
	return []error{ErrRerankUnavailable, u.Reason}
}
