package main

import (
	"github.com/spf13/cobra"

	"github.com/covalent-ai/covalent/libs/rag-engine/cmd/rag-cli/ui"
)

var (
	serverURL string
	jsonMode  bool
	noColor   bool

	apiClient *Client
	term      *ui.UI
)

var rootCmd = &cobra.Command{
	Use:   "rag-cli",
	Short: "RAG engine CLI - index documents and ask questions",
	Long: `rag-cli drives a running RAG engine API server: queue documents for
indexing, watch their progress, stream answers with citations, and run
operational tasks like key-cache invalidation and chunk purges.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		apiClient = NewAPIClient(serverURL)
		term = ui.New(jsonMode, noColor)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if term != nil {
			term.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8091", "RAG engine API base URL")
	rootCmd.PersistentFlags().BoolVar(&jsonMode, "json", false, "machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
