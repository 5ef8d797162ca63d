package main

import (
	"fmt"
	"os"

	"github.com/noesis-ai/noesis/internal/cli"
	"github.com/noesis-ai/noesis/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "noesis",
		Short: "Noesis CLI - Knowledge retrieval and versioning",
		Long: `Noesis CLI provides commands to manage the knowledge corpus.

Environment variables:
  NOESIS_ACTOR_ID  Actor identity sent with every request (required)
  NOESIS_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("actor", "", "Actor ID (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.InitCmd())
	rootCmd.AddCommand(client.AddCmd())
	rootCmd.AddCommand(client.GetCmd())
	rootCmd.AddCommand(client.ListCmd())
	rootCmd.AddCommand(client.RetrieveCmd())
	rootCmd.AddCommand(client.StatusCmd())
	rootCmd.AddCommand(client.ApproveCmd())
	rootCmd.AddCommand(client.ArchiveCmd())
	rootCmd.AddCommand(client.RestoreCmd())
	rootCmd.AddCommand(client.VersionsCmd())
	rootCmd.AddCommand(client.ReindexCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
