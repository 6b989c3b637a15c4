package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/covalent-ai/covalent/libs/rag-engine/cmd/rag-cli/ui"
)

var (
	askOrg         string
	askK           int
	askFast        bool
	askNoCitations bool
	askCorrelation string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question against indexed documents",
	Long: `Stream an answer grounded in the organization's indexed documents.
Tokens print as they arrive; citations and usage follow the answer.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askOrg, "org", "o", "", "organization id (required)")
	askCmd.Flags().IntVar(&askK, "k", 0, "number of chunks to retrieve (default server-side)")
	askCmd.Flags().BoolVar(&askFast, "fast", false, "use the fast completion model")
	askCmd.Flags().BoolVar(&askNoCitations, "no-citations", false, "suppress the citations block")
	askCmd.Flags().StringVar(&askCorrelation, "correlation-id", "", "correlation id for server-side log tracing")
	askCmd.MarkFlagRequired("org")

	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	citations := !askNoCitations
	req := AskRequest{
		OrgID:         askOrg,
		Message:       question,
		K:             askK,
		FastMode:      askFast,
		Citations:     &citations,
		CorrelationID: askCorrelation,
	}

	spin := ui.NewSpinner("thinking")
	if !jsonMode {
		spin.Start()
	}
	spinning := !jsonMode

	var streamErr error
	err := apiClient.Ask(cmd.Context(), req, func(event StreamEvent) error {
		if jsonMode {
			json.NewEncoder(os.Stdout).Encode(event)
			if event.Type == "error" {
				streamErr = fmt.Errorf("%s", event.Message)
			}
			return nil
		}

		switch event.Type {
		case "token":
			if spinning {
				spin.Stop()
				spinning = false
			}
			fmt.Print(event.Text)
		case "citations":
			fmt.Println()
			printCitations(event)
		case "usage":
			term.Newline()
			term.KeyValue("model", event.Model)
			term.KeyValue("tokens", fmt.Sprintf("%d in / %d out", event.TokensInput, event.TokensOutput))
		case "error":
			if spinning {
				spin.Stop()
				spinning = false
			}
			streamErr = fmt.Errorf("%s", event.Message)
		}
		return nil
	})
	if spinning {
		spin.Stop()
	}
	if err != nil {
		return err
	}
	if streamErr != nil {
		term.Error("Server error: %v", streamErr)
		return streamErr
	}

	if !jsonMode {
		fmt.Println()
	}
	return nil
}

func printCitations(event StreamEvent) {
	if len(event.Items) == 0 {
		return
	}

	term.Section("Sources")
	rows := make([][]string, 0, len(event.Items))
	for _, item := range event.Items {
		location := fmt.Sprintf("chunk %d", item.ChunkIndex)
		if item.Page > 0 {
			location = fmt.Sprintf("page %d, %s", item.Page, location)
		}
		if item.Section != "" {
			location += ", " + item.Section
		}
		rows = append(rows, []string{
			item.DocumentTitle,
			location,
			fmt.Sprintf("%.0f%%", item.Score*100),
		})
	}
	term.Table([]string{"Document", "Location", "Match"}, rows)
}
