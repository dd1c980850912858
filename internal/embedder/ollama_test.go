package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()

	var gotRequests []ollamaEmbeddingsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %q, want /api/embeddings", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %q, want POST", r.Method)
		}
		var req ollamaEmbeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotRequests = append(gotRequests, req)
		// Respond with a vector derived from the request count so batches
		// stay distinguishable.
		resp := ollamaEmbeddingsResponse{Embedding: []float32{float32(len(gotRequests)), 0.5, 0.25}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})

	embeddings, err := emb.Embed(context.Background(), []string{"first chunk", "second chunk"})
	if err != nil {
		t.Fatalf("Embed() failed: %v", err)
	}

	if len(embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(embeddings))
	}
	if embeddings[0][0] != 1 || embeddings[1][0] != 2 {
		t.Errorf("embeddings out of order: %v", embeddings)
	}

	// One request per text, each carrying model + single prompt.
	if len(gotRequests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(gotRequests))
	}
	if gotRequests[0].Model != "nomic-embed-text" {
		t.Errorf("request model = %q, want nomic-embed-text", gotRequests[0].Model)
	}
	if gotRequests[0].Prompt != "first chunk" || gotRequests[1].Prompt != "second chunk" {
		t.Errorf("request prompts = %q, %q", gotRequests[0].Prompt, gotRequests[1].Prompt)
	}
}

func TestOllamaEmbedder_Embed_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ollamaEmbeddingsResponse{Error: "model not found"})
	}))
	defer srv.Close()

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "missing-model"})

	_, err := emb.Embed(context.Background(), []string{"text"})
	if err == nil {
		t.Fatal("Embed() expected error, got nil")
	}
	if got := err.Error(); !strings.Contains(got, "model not found") {
		t.Errorf("error = %q, want it to contain the server message", got)
	}
}

func TestOllamaEmbedder_Embed_FailsWholeBatch(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 2 {
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(ollamaEmbeddingsResponse{Error: "upstream down"})
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbeddingsResponse{Embedding: []float32{0.1}})
	}))
	defer srv.Close()

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})

	embeddings, err := emb.Embed(context.Background(), []string{"a", "b", "c"})
	if err == nil {
		t.Fatal("Embed() expected error when one text fails, got nil")
	}
	if embeddings != nil {
		t.Errorf("Embed() returned partial embeddings on failure: %v", embeddings)
	}
	// The failure happens on the second text; the third is never attempted.
	if calls != 2 {
		t.Errorf("expected 2 requests before aborting, got %d", calls)
	}
}

func TestOllamaEmbedder_Embed_EmptyVector(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaEmbeddingsResponse{Embedding: nil})
	}))
	defer srv.Close()

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})

	if _, err := emb.Embed(context.Background(), []string{"text"}); err == nil {
		t.Fatal("Embed() expected error for empty embedding, got nil")
	}
}
