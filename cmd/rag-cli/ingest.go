package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/covalent-ai/covalent/libs/rag-engine/cmd/rag-cli/ui"
)

var (
	ingestOrg     string
	ingestDocs    []string
	ingestForce   bool
	ingestWait    bool
	ingestTimeout time.Duration
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Queue documents for indexing",
	Long: `Queue one or more documents for indexing. With --wait the command polls
each document until it reaches a terminal state and reports the outcome.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestOrg, "org", "o", "", "organization id (required)")
	ingestCmd.Flags().StringArrayVarP(&ingestDocs, "document", "d", nil, "document id (repeatable, required)")
	ingestCmd.Flags().BoolVarP(&ingestForce, "force", "f", false, "re-index documents that are already ready")
	ingestCmd.Flags().BoolVarP(&ingestWait, "wait", "w", false, "wait for indexing to finish")
	ingestCmd.Flags().DurationVar(&ingestTimeout, "timeout", 15*time.Minute, "per-document wait timeout")
	ingestCmd.MarkFlagRequired("org")
	ingestCmd.MarkFlagRequired("document")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	for _, docID := range ingestDocs {
		if err := apiClient.Index(ctx, ingestOrg, docID, ingestForce); err != nil {
			term.Error("Failed to queue %s: %v", docID, err)
			return err
		}
		term.Step("Queued %s", docID)
	}

	if !ingestWait {
		term.Success("%d document(s) queued", len(ingestDocs))
		return nil
	}

	if len(ingestDocs) == 1 {
		return waitSingle(ctx, ingestDocs[0])
	}
	return waitMany(ctx, ingestDocs)
}

// waitSingle polls one document with a spinner-style bar.
func waitSingle(ctx context.Context, docID string) error {
	ctx, cancel := context.WithTimeout(ctx, ingestTimeout)
	defer cancel()

	var bar *ui.PollBar
	if !jsonMode && ui.IsTerminal() {
		bar = ui.NewPollBar(fmt.Sprintf("indexing %s", docID))
	}

	started := time.Now()
	status, err := apiClient.WaitForReady(ctx, ingestOrg, docID, 2*time.Second, func(s *DocumentStatus) {
		if bar != nil {
			bar.Tick()
		}
	})
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", docID, err)
	}

	return reportOutcome(status, time.Since(started))
}

// waitMany polls documents concurrently, one progress bar each.
func waitMany(ctx context.Context, docIDs []string) error {
	ctx, cancel := context.WithTimeout(ctx, ingestTimeout)
	defer cancel()

	started := time.Now()
	results := make([]*DocumentStatus, len(docIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, docID := range docIDs {
		bar := term.ProgressBar(docID, int64(ingestTimeout/(2*time.Second)))

		g.Go(func() error {
			status, err := apiClient.WaitForReady(gctx, ingestOrg, docID, 2*time.Second, func(s *DocumentStatus) {
				if bar != nil {
					bar.Increment()
				}
			})
			if bar != nil {
				bar.Abort(true)
			}
			if err != nil {
				return fmt.Errorf("waiting for %s: %w", docID, err)
			}
			results[i] = status
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var failed int
	for _, status := range results {
		if err := reportOutcome(status, time.Since(started)); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(docIDs))
	}
	return nil
}

func reportOutcome(status *DocumentStatus, elapsed time.Duration) error {
	if jsonMode {
		json.NewEncoder(os.Stdout).Encode(status)
	}

	switch status.Status {
	case "ready":
		term.Success("%s indexed: %d chunks in %s", status.DocumentID, status.Chunks, ui.FormatDuration(elapsed))
		return nil
	case "error":
		term.Error("%s failed: %s", status.DocumentID, status.Error)
		return fmt.Errorf("indexing %s failed: %s", status.DocumentID, status.Error)
	default:
		term.Warning("%s still %s", status.DocumentID, status.Status)
		return fmt.Errorf("indexing %s did not finish", status.DocumentID)
	}
}
