package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	purgeOrg string
	purgeDoc string
	purgeYes bool
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete a document's indexed chunks",
	Long: `Delete every indexed chunk for a document. The document row survives so
it can be re-indexed. This cannot be undone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !purgeYes {
			fmt.Printf("Delete all chunks for %s/%s? [y/N] ", purgeOrg, purgeDoc)
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
				term.Info("Aborted")
				return nil
			}
		}

		deleted, err := apiClient.Purge(cmd.Context(), purgeOrg, purgeDoc)
		if err != nil {
			term.Error("Purge failed: %v", err)
			return err
		}

		term.Success("Deleted %d chunks for %s/%s", deleted, purgeOrg, purgeDoc)
		return nil
	},
}

func init() {
	purgeCmd.Flags().StringVarP(&purgeOrg, "org", "o", "", "organization id (required)")
	purgeCmd.Flags().StringVarP(&purgeDoc, "document", "d", "", "document id (required)")
	purgeCmd.Flags().BoolVarP(&purgeYes, "yes", "y", false, "skip the confirmation prompt")
	purgeCmd.MarkFlagRequired("org")
	purgeCmd.MarkFlagRequired("document")

	rootCmd.AddCommand(purgeCmd)
}
