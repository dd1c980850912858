// Package vault implements the knowledge vault indexing pipeline.
// It enumerates documents in a local directory, chunks each one by paragraph,
// embeds the chunks, and upserts the results into the vector store.
// This pipeline is invoked by the `vaultchat index` CLI command and on chat
// startup when retrieval is enabled.
package vault

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/54b3r/vaultchat-go/internal/rag"
)

// documentExtensions lists the file extensions treated as vault documents.
var documentExtensions = map[string]bool{
	".md":  true,
	".txt": true,
}

// Config holds the configuration for the vault indexer.
type Config struct {
	// Path is the directory containing the vault documents.
	Path string
}

// Indexer orchestrates the enumerate → chunk → embed → upsert flow over a
// knowledge vault directory.
type Indexer struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store rag.VectorStore

	// cfg holds the resolved indexer configuration.
	cfg *Config

	// log receives per-document progress and warnings.
	log *slog.Logger
}

// Result summarises an indexing run.
type Result struct {
	// DocumentsIndexed is the number of documents fully processed.
	DocumentsIndexed int

	// ChunksIndexed is the total number of chunks upserted.
	ChunksIndexed int

	// Failed lists the file names of documents that could not be indexed.
	Failed []string
}

// NewIndexer constructs an Indexer from the provided dependencies and config.
func NewIndexer(embedder rag.Embedder, store rag.VectorStore, cfg *Config, log *slog.Logger) (*Indexer, error) {
	if embedder == nil {
		return nil, fmt.Errorf("vault: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("vault: store must not be nil")
	}
	if cfg == nil || cfg.Path == "" {
		return nil, fmt.Errorf("vault: path must not be empty")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		log:      log,
	}, nil
}

// Index enumerates the vault directory and indexes every document in it.
// A missing or empty vault is not an error — it logs a warning and returns a
// zero Result. A document that fails to chunk, embed, or upsert is skipped (no
// partial writes for that document) and indexing continues with the next one.
func (ix *Indexer) Index(ctx context.Context) (*Result, error) {
	files, err := ix.enumerate()
	if err != nil {
		return nil, err
	}

	res := &Result{}
	if len(files) == 0 {
		ix.log.Warn("vault: no documents found — retrieval will return no context",
			slog.String("path", ix.cfg.Path),
		)
		return res, nil
	}

	for _, file := range files {
		name := filepath.Base(file)
		chunks, err := ix.chunkFile(file)
		if err != nil {
			ix.log.Error("vault: skipping document", slog.String("file", name), slog.Any("error", err))
			res.Failed = append(res.Failed, name)
			continue
		}
		if len(chunks) == 0 {
			ix.log.Warn("vault: document has no content, skipping", slog.String("file", name))
			continue
		}

		// Embed the whole document as one batch so a failure leaves the
		// store untouched for this document.
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		embeddings, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			ix.log.Error("vault: embedding failed, skipping document",
				slog.String("file", name), slog.Any("error", err))
			res.Failed = append(res.Failed, name)
			continue
		}

		if err := ix.store.Upsert(ctx, chunks, embeddings); err != nil {
			ix.log.Error("vault: upsert failed, skipping document",
				slog.String("file", name), slog.Any("error", err))
			res.Failed = append(res.Failed, name)
			continue
		}

		res.DocumentsIndexed++
		res.ChunksIndexed += len(chunks)
		ix.log.Info("vault: indexed document",
			slog.String("file", name),
			slog.Int("chunks", len(chunks)),
		)
	}

	return res, nil
}

// enumerate returns the vault's document file paths in stable name order.
// A missing directory yields an empty slice, not an error.
func (ix *Indexer) enumerate() ([]string, error) {
	entries, err := os.ReadDir(ix.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("vault: reading directory %s: %w", ix.cfg.Path, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if documentExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, filepath.Join(ix.cfg.Path, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// chunkFile reads one document and splits it into title-prefixed paragraph
// chunks ready for embedding.
func (ix *Indexer) chunkFile(path string) ([]rag.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	name := filepath.Base(path)
	title, paragraphs := Chunk(string(raw))

	docs := make([]rag.Document, 0, len(paragraphs))
	for i, para := range paragraphs {
		docs = append(docs, rag.Document{
			ID:      fmt.Sprintf("%s-%d", name, i),
			Content: fmt.Sprintf("Document: %s\n\n%s", title, para),
			Source:  name,
		})
	}
	return docs, nil
}

// Chunk splits raw document text into its title and paragraph chunks.
// The title is the first line with markdown heading markers stripped. The
// remaining text (everything after the title line) is split on blank-line
// boundaries into trimmed paragraphs; whitespace-only paragraphs are dropped.
func Chunk(text string) (title string, paragraphs []string) {
	lines := strings.SplitN(text, "\n", 2)
	title = strings.TrimSpace(strings.ReplaceAll(lines[0], "#", ""))

	var body string
	if len(lines) == 2 {
		body = lines[1]
	}
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		paragraphs = append(paragraphs, block)
	}
	return title, paragraphs
}
