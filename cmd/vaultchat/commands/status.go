package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/54b3r/vaultchat-go/internal/health"
	"github.com/54b3r/vaultchat-go/internal/logging"
	"github.com/54b3r/vaultchat-go/internal/provider"
)

// NewStatusCmd constructs the `vaultchat status` command, which runs the
// connectivity checks and prints per-service state.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check connectivity to the model service and vector store",
		Long: `Probe every external dependency of the current configuration.

Each service reports one of three states: ok (reachable), disconnected
(unreachable or answering with errors), or not applicable (not part of the
current configuration, e.g. the vector store when ENABLE_RAG=false).

Examples:
  vaultchat status
  ENABLE_RAG=false vaultchat status`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			providerCfg := provider.ConfigFromEnv()

			stack, err := buildRAG(ctx, log)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			defer stack.close()

			statuses := health.CheckAll(ctx, buildPingers(providerCfg, stack))
			sort.Slice(statuses, func(i, j int) bool {
				return statuses[i].Service < statuses[j].Service
			})

			fmt.Printf("model: %s (%s)\n\n", providerCfg.ModelName(), providerCfg.Backend)

			exitErr := false
			for _, st := range statuses {
				switch st.State {
				case health.StateOK:
					fmt.Printf("  %-14s ok\n", st.Service)
				case health.StateNotApplicable:
					fmt.Printf("  %-14s not applicable\n", st.Service)
				case health.StateDisconnected:
					fmt.Printf("  %-14s disconnected (%v)\n", st.Service, st.Err)
					exitErr = true
				}
			}

			if exitErr {
				return fmt.Errorf("status: one or more services are unreachable")
			}
			return nil
		},
	}
}
