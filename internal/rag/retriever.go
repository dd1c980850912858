package rag

import (
	"context"
	"fmt"
	"strings"
)

// DefaultTopK is the number of chunks retrieved per query when the caller
// does not specify a count.
const DefaultTopK = 3

// DefaultRetriever embeds the query at retrieval time and delegates the
// similarity search to a VectorStore.
type DefaultRetriever struct {
	emb  Embedder
	vs   VectorStore
	topK int
}

// NewRetriever constructs a DefaultRetriever. defaultTopK sets the fallback
// result count when Retrieve is called with topK=0; values <= 0 fall back to
// DefaultTopK.
func NewRetriever(embedder Embedder, store VectorStore, defaultTopK int) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &DefaultRetriever{emb: embedder, vs: store, topK: defaultTopK}, nil
}

// Retrieve returns the topK documents most similar to the query. A topK of 0
// uses the default configured at construction time. Blank queries retrieve
// nothing.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Document, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = r.topK
	}

	vecs, err := r.emb.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("rag: embedder returned no vector for query")
	}

	docs, err := r.vs.Search(ctx, vecs[0], topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	return docs, nil
}
