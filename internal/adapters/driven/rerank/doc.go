// Package rerank holds relevance reranking adapters.
//
// The dashscope subpackage calls the DashScope text-rerank service. Disabled
// is used when no credential is configured so that search always has a
// Reranker to call.
package rerank
