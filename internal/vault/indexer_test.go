package vault

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/54b3r/vaultchat-go/internal/rag"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEmbedder embeds every text as a fixed-size vector, failing on texts it
// was told to reject.
type fakeEmbedder struct {
	failOn string
	calls  int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if f.failOn != "" && text == f.failOn {
			return nil, errors.New("embed rejected")
		}
		out[i] = []float32{float32(len(text))}
	}
	return out, nil
}

// captureStore records every Upsert batch.
type captureStore struct {
	batches [][]rag.Document
	err     error
}

func (s *captureStore) Upsert(_ context.Context, docs []rag.Document, embeddings [][]float32) error {
	if s.err != nil {
		return s.err
	}
	if len(docs) != len(embeddings) {
		return errors.New("docs and embeddings out of sync")
	}
	s.batches = append(s.batches, docs)
	return nil
}

func (s *captureStore) Search(context.Context, []float32, int) ([]rag.Document, error) {
	return nil, nil
}
func (s *captureStore) Heartbeat(context.Context) error { return nil }
func (s *captureStore) Close() error                    { return nil }

// writeVault creates a temp vault directory with the given files.
func writeVault(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	return dir
}

func newTestIndexer(t *testing.T, dir string, emb rag.Embedder, store rag.VectorStore) *Indexer {
	t.Helper()
	ix, err := NewIndexer(emb, store, &Config{Path: dir}, discardLogger())
	if err != nil {
		t.Fatalf("NewIndexer: %v", err)
	}
	return ix
}

func TestIndex_ChunkIDsAndContent(t *testing.T) {
	t.Parallel()

	dir := writeVault(t, map[string]string{
		"runbook.md": "# Incident Runbook\n\nRestart the failing pod first.\n\nThen check the logs.",
	})
	store := &captureStore{}
	ix := newTestIndexer(t, dir, &fakeEmbedder{}, store)

	res, err := ix.Index(context.Background())
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	if res.DocumentsIndexed != 1 || res.ChunksIndexed != 2 {
		t.Errorf("Result = %+v, want 1 document / 2 chunks", res)
	}
	if len(store.batches) != 1 {
		t.Fatalf("expected 1 upsert batch, got %d", len(store.batches))
	}

	docs := store.batches[0]
	wantIDs := []string{"runbook.md-0", "runbook.md-1"}
	for i, want := range wantIDs {
		if docs[i].ID != want {
			t.Errorf("docs[%d].ID = %q, want %q", i, docs[i].ID, want)
		}
		if docs[i].Source != "runbook.md" {
			t.Errorf("docs[%d].Source = %q, want runbook.md", i, docs[i].Source)
		}
	}
	if docs[0].Content != "Document: Incident Runbook\n\nRestart the failing pod first." {
		t.Errorf("docs[0].Content = %q", docs[0].Content)
	}
	if docs[1].Content != "Document: Incident Runbook\n\nThen check the logs." {
		t.Errorf("docs[1].Content = %q", docs[1].Content)
	}
}

func TestIndex_EmptyVaultIsNoOp(t *testing.T) {
	t.Parallel()

	store := &captureStore{}
	ix := newTestIndexer(t, t.TempDir(), &fakeEmbedder{}, store)

	res, err := ix.Index(context.Background())
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if res.DocumentsIndexed != 0 || len(store.batches) != 0 {
		t.Errorf("empty vault produced writes: %+v", res)
	}
}

func TestIndex_MissingVaultIsNoOp(t *testing.T) {
	t.Parallel()

	store := &captureStore{}
	ix := newTestIndexer(t, filepath.Join(t.TempDir(), "does-not-exist"), &fakeEmbedder{}, store)

	res, err := ix.Index(context.Background())
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if res.DocumentsIndexed != 0 {
		t.Errorf("missing vault indexed documents: %+v", res)
	}
}

func TestIndex_SkipsNonDocumentFiles(t *testing.T) {
	t.Parallel()

	dir := writeVault(t, map[string]string{
		"notes.md":   "# Notes\n\nSome notes.",
		"binary.png": "\x89PNG",
		"data.json":  "{}",
	})
	store := &captureStore{}
	ix := newTestIndexer(t, dir, &fakeEmbedder{}, store)

	res, err := ix.Index(context.Background())
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if res.DocumentsIndexed != 1 {
		t.Errorf("DocumentsIndexed = %d, want only notes.md", res.DocumentsIndexed)
	}
}

func TestIndex_EmbedFailureSkipsDocumentAndContinues(t *testing.T) {
	t.Parallel()

	dir := writeVault(t, map[string]string{
		"bad.md":  "# Bad\n\npoison paragraph",
		"good.md": "# Good\n\nfine paragraph",
	})
	store := &captureStore{}
	emb := &fakeEmbedder{failOn: "Document: Bad\n\npoison paragraph"}
	ix := newTestIndexer(t, dir, emb, store)

	res, err := ix.Index(context.Background())
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	if res.DocumentsIndexed != 1 {
		t.Errorf("DocumentsIndexed = %d, want 1", res.DocumentsIndexed)
	}
	if len(res.Failed) != 1 || res.Failed[0] != "bad.md" {
		t.Errorf("Failed = %v, want [bad.md]", res.Failed)
	}
	// No partial writes for the failed document.
	for _, batch := range store.batches {
		for _, doc := range batch {
			if doc.Source == "bad.md" {
				t.Errorf("failed document was partially upserted: %+v", doc)
			}
		}
	}
}

func TestIndex_UpsertFailureRecorded(t *testing.T) {
	t.Parallel()

	dir := writeVault(t, map[string]string{"doc.md": "# Doc\n\ncontent"})
	store := &captureStore{err: errors.New("store down")}
	ix := newTestIndexer(t, dir, &fakeEmbedder{}, store)

	res, err := ix.Index(context.Background())
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if res.DocumentsIndexed != 0 || len(res.Failed) != 1 {
		t.Errorf("Result = %+v, want 0 indexed / 1 failed", res)
	}
}

func TestChunk(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		text       string
		wantTitle  string
		wantChunks []string
	}{
		{
			name:       "markdown heading",
			text:       "# Deploy Guide\n\nStep one.\n\nStep two.",
			wantTitle:  "Deploy Guide",
			wantChunks: []string{"Step one.", "Step two."},
		},
		{
			name:       "plain first line",
			text:       "FAQ\n\nWhat is this?",
			wantTitle:  "FAQ",
			wantChunks: []string{"What is this?"},
		},
		{
			name:       "multi-line paragraph stays together",
			text:       "# T\n\nline one\nline two\n\nnext",
			wantTitle:  "T",
			wantChunks: []string{"line one\nline two", "next"},
		},
		{
			name:      "whitespace-only paragraphs dropped",
			text:      "# T\n\n   \n\nreal",
			wantTitle: "T",
			// The blank-line split leaves a whitespace-only block that must
			// not become a chunk.
			wantChunks: []string{"real"},
		},
		{
			name:       "title-only document has no chunks",
			text:       "# Lonely Title",
			wantTitle:  "Lonely Title",
			wantChunks: nil,
		},
		{
			name:       "empty document",
			text:       "",
			wantTitle:  "",
			wantChunks: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			title, chunks := Chunk(tc.text)
			if title != tc.wantTitle {
				t.Errorf("title = %q, want %q", title, tc.wantTitle)
			}
			if len(chunks) != len(tc.wantChunks) {
				t.Fatalf("chunks = %q, want %q", chunks, tc.wantChunks)
			}
			for i := range chunks {
				if chunks[i] != tc.wantChunks[i] {
					t.Errorf("chunks[%d] = %q, want %q", i, chunks[i], tc.wantChunks[i])
				}
			}
		})
	}
}
