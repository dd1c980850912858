// Command vaultchat is the entry point for the vault chat assistant.
// It provides a CLI interface (via Cobra) for chatting against a local
// knowledge vault, plus an optional HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/vaultchat-go/cmd/vaultchat/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
