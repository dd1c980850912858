package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/54b3r/vaultchat-go/internal/chat"
	"github.com/54b3r/vaultchat-go/internal/logging"
	"github.com/54b3r/vaultchat-go/internal/provider"
)

// NewAskCmd constructs the `vaultchat ask` command, which runs a single
// turn and prints the answer (with citations) to stdout.
func NewAskCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask your vault a single question",
		Long: `Run one conversation turn without the interactive TUI.

The question is augmented with context retrieved from your indexed vault and
the answer is printed to stdout with its source citations. The turn is
recorded in the session history, so a later 'vaultchat chat' continues where
ask left off.

Examples:
  vaultchat ask "what is our incident escalation path?"
  vaultchat ask --session work "summarise the Q3 planning notes"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			stack, err := buildRAG(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
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
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if err := orch.Resume(ctx); err != nil {
				log.Warn("could not resume previous session", slog.Any("error", err))
			}

			answer := orch.Ask(ctx, args[0])
			fmt.Println(answer.Content)

			if answer.Err {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "default", "Conversation session to record the turn in")

	return cmd
}
