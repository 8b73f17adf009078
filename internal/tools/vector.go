package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/randalmurphal/taskgraph/pkg/taskgraph/llm"
)

// Embedder turns texts into vectors, one per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// HashEmbedder is a deterministic bag-of-words embedder using feature
// hashing. It needs no network and is used offline and in tests.
type HashEmbedder struct {
	Dims int
}

// Embed hashes each lower-cased token into one of Dims buckets and
// L2-normalises the counts.
func (h HashEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	dims := h.Dims
	if dims <= 0 {
		dims = 256
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec := make([]float64, dims)
		for _, tok := range tokenize(text) {
			vec[xxhash.Sum64String(tok)%uint64(dims)]++
		}
		normalize(vec)
		out[i] = vec
	}
	return out, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// OpenAIEmbedder embeds with the OpenAI Embeddings API.
type OpenAIEmbedder struct {
	Client *llm.OpenAIClient
	// Model defaults to llm.DefaultEmbeddingModel.
	Model string
}

// Embed implements Embedder.
func (e OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return e.Client.Embed(ctx, e.Model, texts)
}

// Document is an indexed text with optional metadata.
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Match is a search hit with its cosine similarity to the query.
type Match struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// ErrDimensionMismatch is returned when an embedder changes vector size.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

type entry struct {
	doc Document
	vec []float64
}

// VectorIndex is an in-memory cosine-similarity index. It is safe for
// concurrent use.
type VectorIndex struct {
	embedder Embedder

	mu      sync.RWMutex
	entries []entry
	dims    int
}

// NewVectorIndex creates an empty index that embeds with embedder.
func NewVectorIndex(embedder Embedder) *VectorIndex {
	return &VectorIndex{embedder: embedder}
}

// Add embeds and indexes docs. Either all of them are added or none.
func (v *VectorIndex) Add(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vecs, err := v.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("embed documents: got %d vectors for %d documents", len(vecs), len(docs))
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	dims := v.dims
	for _, vec := range vecs {
		if dims == 0 {
			dims = len(vec)
		}
		if len(vec) != dims {
			return fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(vec), dims)
		}
	}
	v.dims = dims
	for i, d := range docs {
		vec := slices.Clone(vecs[i])
		normalize(vec)
		v.entries = append(v.entries, entry{doc: d, vec: vec})
	}
	return nil
}

// Search returns the k documents most similar to query, best first. Ties
// keep insertion order.
func (v *VectorIndex) Search(ctx context.Context, query string, k int) ([]Match, error) {
	if k <= 0 || v.Len() == 0 {
		return nil, nil
	}
	vecs, err := v.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	q := slices.Clone(vecs[0])
	normalize(q)

	v.mu.RLock()
	defer v.mu.RUnlock()
	if len(q) != v.dims {
		return nil, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(q), v.dims)
	}

	matches := make([]Match, len(v.entries))
	for i, e := range v.entries {
		matches[i] = Match{Document: e.doc, Score: dot(q, e.vec)}
	}
	slices.SortStableFunc(matches, func(a, b Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return matches[:min(k, len(matches))], nil
}

// Len returns the number of indexed documents.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func normalize(vec []float64) {
	var sum float64
	for _, x := range vec {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	n := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= n
	}
}
