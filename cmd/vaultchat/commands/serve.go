package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/vaultchat-go/internal/chat"
	"github.com/54b3r/vaultchat-go/internal/health"
	"github.com/54b3r/vaultchat-go/internal/logging"
	"github.com/54b3r/vaultchat-go/internal/provider"
	"github.com/54b3r/vaultchat-go/internal/server"
	"github.com/54b3r/vaultchat-go/internal/vault"
)

// NewServeCmd constructs the `vaultchat serve` command, which starts the
// HTTP server exposing the chat, index, health, and metrics endpoints.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the vaultchat HTTP server",
		Long: `Start the vaultchat HTTP server on localhost.

The server exposes a JSON chat API keyed by session id, a vault indexing
endpoint, liveness and readiness probes, and Prometheus metrics. Set
VAULTCHAT_API_KEY to require Bearer authentication on the chat and index
endpoints.

Examples:
  vaultchat serve
  vaultchat serve --port 9090
  VAULTCHAT_API_KEY=secret vaultchat serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			providerCfg := provider.ConfigFromEnv()
			chatModel, err := provider.New(ctx, providerCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised",
				slog.String("backend", string(providerCfg.Backend)),
				slog.String("model", providerCfg.ModelName()),
			)

			stack, err := buildRAG(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer stack.close()

			history, closeHistory := buildHistory(log)
			defer closeHistory()

			// Every HTTP session shares the model, retriever, and history
			// store; each gets its own orchestrator and transcript.
			welcome := os.Getenv("CHAT_WELCOME")
			newSession := func(sessionID string) (server.Asker, error) {
				orch, err := chat.New(&chat.Config{
					ChatModel: chatModel,
					Retriever: stack.retriever,
					RAGTopK:   getEnvInt("RAG_TOP_K", 0),
					History:   history,
					SessionID: sessionID,
					Welcome:   welcome,
				})
				if err != nil {
					return nil, err
				}
				if err := orch.Resume(ctx); err != nil {
					log.Warn("could not resume session",
						slog.String("session", sessionID), slog.Any("error", err))
				}
				return orch, nil
			}

			// The index endpoint is only wired when retrieval is on.
			var indexer server.VaultIndexer
			if stack.store != nil {
				vaultPath := getEnvOrDefault("KNOWLEDGE_VAULT_PATH", "/knowledge-vault")
				ix, err := vault.NewIndexer(stack.embedder, stack.store, &vault.Config{Path: vaultPath}, log)
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
				indexer = ix
			}

			var pingers []health.Pinger
			for _, p := range buildPingers(providerCfg, stack) {
				if p != nil {
					pingers = append(pingers, p)
				}
			}

			srv, err := server.New(newSession, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				Indexer: indexer,
				APIKey:  os.Getenv("VAULTCHAT_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
