// Package vectorscan provides the brute-force cosine similarity scan shared
// by the vector store adapters.
package vectorscan

import (
	"container/heap"
	"math"
	"sort"
)

// Magnitude returns the Euclidean norm of v.
func Magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		f := float64(x)
		sum += f * f
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b given their precomputed
// magnitudes. A zero-magnitude vector is similar to nothing and scores 0.
// The vectors must have equal length.
func Cosine(a, b []float32, magA, magB float64) float64 {
	if magA == 0 || magB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (magA * magB)
}

// Hit is a scored item.
type Hit[T any] struct {
	Item  T
	Seq   int64
	Score float64
}

// better orders hits by descending score, then ascending insertion sequence.
func better[T any](a, b Hit[T]) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Seq < b.Seq
}

// Collector keeps the best k hits seen so far.
type Collector[T any] struct {
	k int
	h hitHeap[T]
}

// NewCollector creates a collector that keeps at most k hits.
func NewCollector[T any](k int) *Collector[T] {
	return &Collector[T]{k: k}
}

// Add offers an item with its insertion sequence and score.
func (c *Collector[T]) Add(item T, seq int64, score float64) {
	if c.k <= 0 || math.IsNaN(score) {
		return
	}
	hit := Hit[T]{Item: item, Seq: seq, Score: score}
	if len(c.h) < c.k {
		heap.Push(&c.h, hit)
		return
	}
	if better(hit, c.h[0]) {
		c.h[0] = hit
		heap.Fix(&c.h, 0)
	}
}

// Results returns the kept hits, best first.
func (c *Collector[T]) Results() []Hit[T] {
	out := make([]Hit[T], len(c.h))
	copy(out, c.h)
	sort.Slice(out, func(i, j int) bool { return better(out[i], out[j]) })
	return out
}

// hitHeap is a min-heap with the worst kept hit at the root.
type hitHeap[T any] []Hit[T]

func (h hitHeap[T]) Len() int           { return len(h) }
func (h hitHeap[T]) Less(i, j int) bool { return better(h[j], h[i]) }
func (h hitHeap[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *hitHeap[T]) Push(x any) { *h = append(*h, x.(Hit[T])) }

func (h *hitHeap[T]) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
