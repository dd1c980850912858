// Package commands defines all Cobra CLI commands for the vaultchat binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/54b3r/vaultchat-go/internal/audit"
	"github.com/54b3r/vaultchat-go/internal/config"
	"github.com/54b3r/vaultchat-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vaultchat",
		Short: "vaultchat — chat with your knowledge vault, locally",
		Long: `vaultchat is a local-first chat assistant grounded in your own notes.

Point it at a directory of Markdown or text documents (the knowledge vault),
index them into a vector store, and every question you ask is answered with
relevant passages from your vault as context, citing the source files.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.vaultchat/config.yaml).
See 'vaultchat --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Load .env if present. Real env vars keep precedence.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.vaultchat/config.yaml)")

	root.AddCommand(
		NewChatCmd(),
		NewAskCmd(),
		NewIndexCmd(),
		NewStatusCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
