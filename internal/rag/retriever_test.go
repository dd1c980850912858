package rag

import (
	"context"
	"errors"
	"testing"
)

// fakeEmbedder returns a canned vector for any input, or a canned error.
type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

// fakeStore records the Search call and returns canned documents.
type fakeStore struct {
	gotEmbedding []float32
	gotTopK      int
	docs         []Document
	err          error
}

func (f *fakeStore) Upsert(context.Context, []Document, [][]float32) error { return nil }
func (f *fakeStore) Heartbeat(context.Context) error                       { return nil }
func (f *fakeStore) Close() error                                          { return nil }

func (f *fakeStore) Search(_ context.Context, embedding []float32, topK int) ([]Document, error) {
	f.gotEmbedding = embedding
	f.gotTopK = topK
	return f.docs, f.err
}

func TestNewRetriever_NilArgs(t *testing.T) {
	t.Parallel()

	if _, err := NewRetriever(nil, &fakeStore{}, 3); err == nil {
		t.Error("NewRetriever(nil embedder) expected error")
	}
	if _, err := NewRetriever(&fakeEmbedder{}, nil, 3); err == nil {
		t.Error("NewRetriever(nil store) expected error")
	}
}

func TestRetrieve_UsesQueryEmbedding(t *testing.T) {
	t.Parallel()

	store := &fakeStore{docs: []Document{{ID: "a-0", Content: "chunk", Source: "a.md"}}}
	r, err := NewRetriever(&fakeEmbedder{vec: []float32{0.1, 0.2}}, store, 3)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	docs, err := r.Retrieve(context.Background(), "how do I deploy?", 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "a-0" {
		t.Errorf("Retrieve returned %+v", docs)
	}
	if store.gotTopK != 3 {
		t.Errorf("topK = %d, want default 3", store.gotTopK)
	}
	if len(store.gotEmbedding) != 2 {
		t.Errorf("query embedding = %v, want the embedded vector", store.gotEmbedding)
	}
}

func TestRetrieve_ExplicitTopK(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	r, _ := NewRetriever(&fakeEmbedder{vec: []float32{1}}, store, 3)

	if _, err := r.Retrieve(context.Background(), "q", 7); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if store.gotTopK != 7 {
		t.Errorf("topK = %d, want 7", store.gotTopK)
	}
}

func TestRetrieve_EmbedError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("embed down")
	r, _ := NewRetriever(&fakeEmbedder{err: wantErr}, &fakeStore{}, 3)

	_, err := r.Retrieve(context.Background(), "q", 0)
	if !errors.Is(err, wantErr) {
		t.Errorf("Retrieve error = %v, want wrapped %v", err, wantErr)
	}
}

func TestRetrieve_SearchError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("store down")
	r, _ := NewRetriever(&fakeEmbedder{vec: []float32{1}}, &fakeStore{err: wantErr}, 3)

	_, err := r.Retrieve(context.Background(), "q", 0)
	if !errors.Is(err, wantErr) {
		t.Errorf("Retrieve error = %v, want wrapped %v", err, wantErr)
	}
}

func TestCollate_DeduplicatesSources(t *testing.T) {
	t.Parallel()

	docs := []Document{
		{Content: "first", Source: "runbook.md"},
		{Content: "second", Source: "faq.md"},
		{Content: "third", Source: "runbook.md"},
	}

	res := Collate(docs)

	if len(res.Chunks) != 3 {
		t.Fatalf("Chunks = %v, want 3 entries", res.Chunks)
	}
	if res.Chunks[0] != "first" || res.Chunks[2] != "third" {
		t.Errorf("Chunks out of order: %v", res.Chunks)
	}
	want := []string{"runbook.md", "faq.md"}
	if len(res.Sources) != len(want) {
		t.Fatalf("Sources = %v, want %v", res.Sources, want)
	}
	for i := range want {
		if res.Sources[i] != want[i] {
			t.Errorf("Sources[%d] = %q, want %q", i, res.Sources[i], want[i])
		}
	}
}

func TestCollate_SkipsEmptySource(t *testing.T) {
	t.Parallel()

	res := Collate([]Document{{Content: "c", Source: ""}})
	if len(res.Sources) != 0 {
		t.Errorf("Sources = %v, want empty", res.Sources)
	}
	if len(res.Chunks) != 1 {
		t.Errorf("Chunks = %v, want the chunk kept", res.Chunks)
	}
}
