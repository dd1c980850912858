package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/vaultchat-go/internal/embedder"
	"github.com/54b3r/vaultchat-go/internal/health"
	"github.com/54b3r/vaultchat-go/internal/provider"
	"github.com/54b3r/vaultchat-go/internal/rag"
	"github.com/54b3r/vaultchat-go/internal/store"
)

// getEnvOrDefault returns the value of the environment variable or a fallback.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the environment variable or a fallback.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// ragEnabled reports whether vault retrieval is switched on. Retrieval is on
// by default; ENABLE_RAG=false turns it off completely — no embedder, no
// vector store, no retriever (questions go to the model unaugmented).
func ragEnabled() bool {
	return !strings.EqualFold(os.Getenv("ENABLE_RAG"), "false")
}

// ragStack bundles everything retrieval-related a command may need. When
// retrieval is disabled every field except close is nil.
type ragStack struct {
	// retriever feeds vault context into the orchestrator. Nil when disabled.
	retriever rag.Retriever
	// embedder is the embedding client shared by retriever and indexer.
	embedder rag.Embedder
	// store is the vector store backend. Nil when disabled.
	store rag.VectorStore
	// storeName labels the backend ("chromadb" or "qdrant") for status output.
	storeName string
	// close releases the store's connections. Never nil.
	close func()
}

// buildRAG wires the embedder, vector store, and retriever from the
// environment. VECTOR_STORE selects the backend: "chroma" (default) or
// "qdrant".
func buildRAG(ctx context.Context, log *slog.Logger) (*ragStack, error) {
	if !ragEnabled() {
		log.Info("retrieval disabled via ENABLE_RAG=false")
		return &ragStack{close: func() {}}, nil
	}

	if err := embedder.ValidateForRAG(log); err != nil {
		return nil, err
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	vs, storeName, err := buildVectorStore(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("vector store ready", slog.String("backend", storeName))

	retriever, err := rag.NewRetriever(emb, vs, getEnvInt("RAG_TOP_K", rag.DefaultTopK))
	if err != nil {
		vs.Close()
		return nil, fmt.Errorf("failed to create retriever: %w", err)
	}

	return &ragStack{
		retriever: retriever,
		embedder:  emb,
		store:     vs,
		storeName: storeName,
		close:     func() { vs.Close() },
	}, nil
}

// buildVectorStore constructs the configured vector store backend.
func buildVectorStore(ctx context.Context) (rag.VectorStore, string, error) {
	backend := getEnvOrDefault("VECTOR_STORE", "chroma")

	switch backend {
	case "chroma":
		vs := rag.NewChromaStore(&rag.ChromaConfig{
			URL:        getEnvOrDefault("CHROMADB_URL", "http://localhost:8000"),
			Tenant:     os.Getenv("CHROMA_TENANT"),
			Database:   os.Getenv("CHROMA_DATABASE"),
			Collection: os.Getenv("CHROMA_COLLECTION"),
		})
		return vs, "chromadb", nil

	case "qdrant":
		embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
		vs, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "knowledge_vault"),
			VectorSize: uint64(embedder.DefaultDimensions(embBackend)), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		return vs, "qdrant", nil

	default:
		return nil, "", fmt.Errorf("unknown VECTOR_STORE %q — valid values: chroma, qdrant", backend)
	}
}

// buildHistory opens the conversation history store. VAULTCHAT_HISTORY_DB
// overrides the default path (~/.vaultchat/history.db); "disabled" turns
// persistence off. History failures degrade to in-memory sessions — they
// never abort the command.
func buildHistory(log *slog.Logger) (store.ConversationStore, func()) {
	noop := func() {}

	dbPath := os.Getenv("VAULTCHAT_HISTORY_DB")
	if dbPath == "disabled" {
		log.Info("history: disabled via VAULTCHAT_HISTORY_DB=disabled")
		return nil, noop
	}
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, noop
		}
	}

	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil, noop
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs, func() { _ = hs.Close() }
}

// buildPingers assembles the connectivity probes for the current
// configuration. A nil map entry marks a dependency that does not apply
// (e.g. the vector store when retrieval is off) so status output still
// mentions it.
func buildPingers(providerCfg *provider.Config, stack *ragStack) map[string]health.Pinger {
	pingers := make(map[string]health.Pinger)

	if providerCfg.Backend == provider.BackendOllama {
		pingers["ollama"] = health.NewOllamaPinger(providerCfg.Ollama.Host)
	}

	if stack.store != nil {
		pingers[stack.storeName] = health.NewVectorStorePinger(stack.storeName, stack.store)
	} else {
		pingers["vector store"] = nil
	}

	return pingers
}
