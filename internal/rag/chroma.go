package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// ChromaConfig holds connection parameters for a ChromaDB instance.
type ChromaConfig struct {
	// URL is the ChromaDB server base URL (e.g. "http://localhost:8000").
	URL string

	// Tenant is the ChromaDB tenant name (default: default_tenant).
	Tenant string

	// Database is the ChromaDB database name (default: default_database).
	Database string

	// Collection is the collection name to use (default: knowledge_vault).
	Collection string
}

// ChromaStore implements VectorStore backed by a ChromaDB instance over its
// REST API. The collection handle is resolved lazily on first use and cached
// for the lifetime of the store, so constructing a ChromaStore never touches
// the network.
type ChromaStore struct {
	// cfg holds the resolved configuration for this store.
	cfg *ChromaConfig

	// client is the shared HTTP client with a sensible timeout.
	client *http.Client

	// mu guards collectionID.
	mu sync.Mutex
	// collectionID is the server-assigned collection UUID, empty until the
	// first operation resolves it via get-or-create.
	collectionID string
}

// NewChromaStore creates a ChromaStore from the given config, applying
// defaults for tenant, database, and collection. No network calls are made;
// the collection is created or looked up on first Upsert/Search.
func NewChromaStore(cfg *ChromaConfig) *ChromaStore {
	if cfg.Tenant == "" {
		cfg.Tenant = "default_tenant"
	}
	if cfg.Database == "" {
		cfg.Database = "default_database"
	}
	if cfg.Collection == "" {
		cfg.Collection = "knowledge_vault"
	}
	return &ChromaStore{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Heartbeat verifies the ChromaDB server is reachable.
func (s *ChromaStore) Heartbeat(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL+"/api/v1/heartbeat", nil)
	if err != nil {
		return fmt.Errorf("chroma: create heartbeat request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("chroma: heartbeat failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chroma: heartbeat returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// chromaCollectionRequest is the body for the get-or-create collection call.
type chromaCollectionRequest struct {
	Name        string `json:"name"`
	GetOrCreate bool   `json:"get_or_create"`
}

// chromaCollectionResponse is the body returned from the collection call.
type chromaCollectionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// collection returns the cached collection ID, resolving it via the
// get-or-create endpoint on first call. Safe for concurrent use.
func (s *ChromaStore) collection(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collectionID != "" {
		return s.collectionID, nil
	}

	body := chromaCollectionRequest{Name: s.cfg.Collection, GetOrCreate: true}
	endpoint := fmt.Sprintf("%s/api/v1/collections?tenant=%s&database=%s",
		s.cfg.URL, url.QueryEscape(s.cfg.Tenant), url.QueryEscape(s.cfg.Database))

	var result chromaCollectionResponse
	if err := s.post(ctx, endpoint, body, &result); err != nil {
		return "", fmt.Errorf("chroma: get-or-create collection %q: %w", s.cfg.Collection, err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("chroma: get-or-create collection %q: %w", s.cfg.Collection, ErrCollectionNotFound)
	}

	s.collectionID = result.ID
	return s.collectionID, nil
}

// chromaAddRequest is the body for the collection add endpoint.
type chromaAddRequest struct {
	IDs        []string            `json:"ids"`
	Embeddings [][]float32         `json:"embeddings"`
	Documents  []string            `json:"documents"`
	Metadatas  []map[string]string `json:"metadatas"`
}

// Upsert stores a batch of documents with their pre-computed embeddings.
// The embeddings slice must be parallel to docs.
func (s *ChromaStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("chroma: %d documents but %d embeddings", len(docs), len(embeddings))
	}
	if len(docs) == 0 {
		return nil
	}

	collID, err := s.collection(ctx)
	if err != nil {
		return err
	}

	body := chromaAddRequest{
		IDs:        make([]string, 0, len(docs)),
		Embeddings: embeddings,
		Documents:  make([]string, 0, len(docs)),
		Metadatas:  make([]map[string]string, 0, len(docs)),
	}
	for _, doc := range docs {
		body.IDs = append(body.IDs, doc.ID)
		body.Documents = append(body.Documents, doc.Content)
		meta := map[string]string{"source": doc.Source}
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		body.Metadatas = append(body.Metadatas, meta)
	}

	endpoint := fmt.Sprintf("%s/api/v1/collections/%s/add", s.cfg.URL, collID)
	if err := s.post(ctx, endpoint, body, nil); err != nil {
		return fmt.Errorf("chroma: add %d documents: %w", len(docs), err)
	}
	return nil
}

// chromaQueryRequest is the body for the collection query endpoint.
type chromaQueryRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
	Include         []string    `json:"include"`
}

// chromaQueryResponse is the body returned from the query endpoint. The outer
// slices are per query embedding; we always send exactly one.
type chromaQueryResponse struct {
	IDs       [][]string            `json:"ids"`
	Documents [][]string            `json:"documents"`
	Metadatas [][]map[string]string `json:"metadatas"`
	Distances [][]float32           `json:"distances"`
}

// Search performs a similarity search and returns the top-k results, most
// relevant first.
func (s *ChromaStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error) {
	collID, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}

	body := chromaQueryRequest{
		QueryEmbeddings: [][]float32{queryEmbedding},
		NResults:        topK,
		Include:         []string{"documents", "metadatas", "distances"},
	}

	var result chromaQueryResponse
	endpoint := fmt.Sprintf("%s/api/v1/collections/%s/query", s.cfg.URL, collID)
	if err := s.post(ctx, endpoint, body, &result); err != nil {
		return nil, fmt.Errorf("chroma: query: %w", err)
	}

	if len(result.IDs) == 0 {
		return nil, nil
	}

	hits := result.IDs[0]
	docs := make([]Document, 0, len(hits))
	for i := range hits {
		doc := Document{
			ID:       hits[i],
			Metadata: make(map[string]string),
		}
		if len(result.Documents) > 0 && i < len(result.Documents[0]) {
			doc.Content = result.Documents[0][i]
		}
		if len(result.Metadatas) > 0 && i < len(result.Metadatas[0]) {
			for k, v := range result.Metadatas[0][i] {
				if k == "source" {
					doc.Source = v
					continue
				}
				doc.Metadata[k] = v
			}
		}
		if len(result.Distances) > 0 && i < len(result.Distances[0]) {
			// Chroma returns distances; convert to a similarity score.
			doc.Score = 1 - result.Distances[0][i]
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// Close releases resources held by the store. The HTTP client keeps no
// persistent connections worth tearing down explicitly.
func (s *ChromaStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// chromaError is the error body Chroma returns on non-2xx responses.
type chromaError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// post issues a JSON POST and decodes the response into out when non-nil.
func (s *ChromaStore) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ce chromaError
		if json.Unmarshal(raw, &ce) == nil && (ce.Error != "" || ce.Message != "") {
			msg := ce.Message
			if msg == "" {
				msg = ce.Error
			}
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
