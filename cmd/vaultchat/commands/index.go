package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/vaultchat-go/internal/embedder"
	"github.com/54b3r/vaultchat-go/internal/logging"
	"github.com/54b3r/vaultchat-go/internal/vault"
)

// NewIndexCmd constructs the `vaultchat index` command, which chunks and
// embeds every vault document into the vector store.
func NewIndexCmd() *cobra.Command {
	var vaultPath string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the knowledge vault into the vector store",
		Long: `Chunk, embed, and upsert every document in the knowledge vault.

Documents (.md and .txt files) are split into paragraphs, each paragraph is
embedded and written to the vector store under a stable chunk id, so
re-indexing an unchanged vault overwrites in place rather than duplicating.

Required environment variables:
  CHROMADB_URL       ChromaDB base URL (default: http://localhost:8000)
  VECTOR_STORE       Backend: chroma (default) or qdrant
  MODEL_PROVIDER     Embedding backend: ollama (default), openai, azure
  EMBEDDING_*        Provider-specific overrides (see README)

Examples:
  vaultchat index
  vaultchat index --vault ~/notes
  VECTOR_STORE=qdrant vaultchat index`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if !ragEnabled() {
				return fmt.Errorf("index: retrieval is disabled (ENABLE_RAG=false) — nothing to index into")
			}

			if err := embedder.ValidateForRAG(log); err != nil {
				return fmt.Errorf("index: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("index: failed to initialise embedder: %w", err)
			}

			vs, storeName, err := buildVectorStore(ctx)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer vs.Close()
			log.Info("vector store ready", slog.String("backend", storeName))

			if vaultPath == "" {
				vaultPath = getEnvOrDefault("KNOWLEDGE_VAULT_PATH", "/knowledge-vault")
			}

			indexer, err := vault.NewIndexer(emb, vs, &vault.Config{Path: vaultPath}, log)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			res, err := indexer.Index(ctx)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			fmt.Printf("Indexed %d documents (%d chunks) from %s\n",
				res.DocumentsIndexed, res.ChunksIndexed, vaultPath)
			if len(res.Failed) > 0 {
				fmt.Printf("Failed: %v\n", res.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&vaultPath, "vault", "", "Vault directory to index (default: $KNOWLEDGE_VAULT_PATH or /knowledge-vault)")

	return cmd
}
