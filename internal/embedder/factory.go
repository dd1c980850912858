package embedder

import (
	"fmt"
	"os"
	"strconv"

	"github.com/54b3r/vaultchat-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ — override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// DefaultDimensions returns the default embedding vector size for the given
// backend name. Callers that pre-configure a vector store (e.g. Qdrant
// collection creation) should use this rather than hardcoding a value.
// EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	if backend == "ollama" {
		return defaultOllamaDimensions
	}
	return defaultOpenAIDimensions
}

// NewFromEnv constructs a rag.Embedder using cascading defaults that inherit
// from the chat provider configuration when embedding-specific overrides are
// not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER — if unset, inherits MODEL_PROVIDER (default: ollama)
//  2. Per-backend credentials are inherited from the chat provider's env vars
//  3. EMBEDDING_MODEL — overrides the default model for the resolved backend
//  4. EMBEDDING_API_KEY — overrides the inherited API key
//  5. EMBEDDING_ENDPOINT — overrides the inherited endpoint
//  6. EMBEDDING_DIMENSIONS — overrides the default dimensions (ollama: 768, openai/azure: 1536)
func NewFromEnv() (rag.Embedder, error) {
	backend := os.Getenv("EMBEDDING_PROVIDER")
	if backend == "" {
		backend = getEnvOrDefault("MODEL_PROVIDER", "ollama")
	}

	switch backend {
	case "ollama":
		return newOllamaFromEnv(), nil
	case "openai":
		return newOpenAIFromEnv()
	case "azure":
		return newAzureFromEnv()
	case "gemini":
		return nil, fmt.Errorf("embedder: gemini embedding support is not yet implemented")
	default:
		return nil, fmt.Errorf("embedder: unknown backend %q — valid values: ollama, openai, azure, gemini", backend)
	}
}

func newOllamaFromEnv() *OllamaEmbedder {
	host := firstEnv("EMBEDDING_ENDPOINT", "OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	return NewOllamaEmbedder(&OllamaConfig{
		Host:  host,
		Model: getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel),
	})
}

func newOpenAIFromEnv() (*OpenAIEmbedder, error) {
	apiKey := firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
	}
	return NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL:    getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
		APIKey:     apiKey,
		Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions),
	}), nil
}

func newAzureFromEnv() (*OpenAIEmbedder, error) {
	apiKey := firstEnv("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
	}
	endpoint := firstEnv("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
	if endpoint == "" {
		return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
	}
	return NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL:    endpoint + "/openai",
		APIKey:     apiKey,
		Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions),
		Azure:      true,
		APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
	}), nil
}

// firstEnv returns the first non-empty value among the named variables.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
