package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docrag/docrag/internal/app"
	"github.com/docrag/docrag/internal/config"
	"github.com/docrag/docrag/internal/indexer"
	"github.com/docrag/docrag/internal/log"
)

var (
	ingestKB    string
	ingestReset bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <directory>",
	Short: "Ingest a directory of documents into a knowledge base",
	Long: `Ingest walks the directory, uploads every supported file into the named
knowledge base and embeds its chunks. The knowledge base is created on first
use. A .gitignore at the directory root is honored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(args[0])
	},
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestKB, "knowledge-base", "k", "", "knowledge base name (required)")
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "drop the vector collection before indexing")
	_ = ingestCmd.MarkFlagRequired("knowledge-base")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(dir string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{})
	slog.SetDefault(logger)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(context.Background()); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	kb, err := a.Store.GetKnowledgeBaseByName(ctx, ingestKB)
	if err != nil {
		kb, err = a.Store.CreateKnowledgeBase(ctx, ingestKB, dir)
		if err != nil {
			return fmt.Errorf("creating knowledge base %q: %w", ingestKB, err)
		}
	}

	if ingestReset {
		if err := a.Indexer.Reset(ctx, kb.ID); err != nil {
			return fmt.Errorf("resetting collection: %w", err)
		}
	}

	result, err := a.Ingest.IngestDirectory(ctx, kb, dir, indexer.Options{SkipDuplicates: true})
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", dir, err)
	}

	fmt.Printf("Ingested %s into %q\n", dir, kb.Name)
	fmt.Printf("  files added:    %d\n", result.FilesAdded)
	fmt.Printf("  files skipped:  %d\n", result.FilesSkipped)
	fmt.Printf("  files failed:   %d\n", result.FilesFailed)
	fmt.Printf("  chunks indexed: %d\n", result.ChunksIndexed)
	fmt.Printf("  total size:     %d bytes\n", result.TotalSize)
	fmt.Printf("  duration:       %s\n", result.Duration.Round(time.Millisecond))
	return nil
}
