package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/54b3r/vaultchat-go/internal/chat"
	"github.com/54b3r/vaultchat-go/internal/health"
	"github.com/54b3r/vaultchat-go/internal/logging"
	"github.com/54b3r/vaultchat-go/internal/provider"
	"github.com/54b3r/vaultchat-go/internal/tui"
)

// NewChatCmd constructs the `vaultchat chat` command, the interactive TUI
// chat session against the knowledge vault.
func NewChatCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session with your vault",
		Long: `Start the interactive vaultchat TUI.

Questions are augmented with relevant passages retrieved from your indexed
knowledge vault and answered by the configured model, citing source files.
Ctrl+L clears the conversation, Ctrl+C quits.

Examples:
  vaultchat chat
  vaultchat chat --session work
  ENABLE_RAG=false vaultchat chat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			providerCfg := provider.ConfigFromEnv()
			chatModel, err := provider.New(ctx, providerCfg)
			if err != nil {
				return fmt.Errorf("chat: failed to initialise model provider: %w", err)
			}

			stack, err := buildRAG(ctx, log)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			defer stack.close()

			history, closeHistory := buildHistory(log)
			defer closeHistory()

			orch, err := chat.New(&chat.Config{
				ChatModel: chatModel,
				Retriever: stack.retriever,
				RAGTopK:   getEnvInt("RAG_TOP_K", 0),
				History:   history,
				SessionID: sessionID,
				Welcome:   os.Getenv("CHAT_WELCOME"),
			})
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}

			if err := orch.Resume(ctx); err != nil {
				log.Warn("could not resume previous session", slog.Any("error", err))
			}

			// Startup connectivity checks feed the TUI status line. A
			// disconnected service is reported, not fatal — turns against it
			// fail gracefully one at a time.
			statuses := health.CheckAll(ctx, buildPingers(providerCfg, stack))

			return tui.Run(orch, tui.Status{
				Model:      providerCfg.ModelName(),
				RAGEnabled: stack.retriever != nil,
				Services:   statuses,
			})
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "default", "Conversation session to open")

	return cmd
}
