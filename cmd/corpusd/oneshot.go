package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/corpusd/internal/pipeline"
)

// One-shot commands operate directly on the configured storage backend,
// without going through a running server. Useful for bulk loading and
// scripting; do not run them against a flat-file backend a server is
// actively writing.

var (
	flagPartition string
	flagTopK      int
)

func init() {
	for _, cmd := range []*cobra.Command{ingestCmd, queryCmd, askCmd} {
		cmd.Flags().StringVar(&flagPartition, "partition", "", "partition to operate on (defaults to ingest.default_partition)")
	}
	for _, cmd := range []*cobra.Command{queryCmd, askCmd} {
		cmd.Flags().IntVar(&flagTopK, "k", 5, "number of chunks to retrieve")
	}
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest one or more files",
	Long: `Ingest files into the configured storage backend.

Examples:
  corpusd ingest notes.txt
  corpusd ingest --partition handbook docs/*.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Search for chunks similar to the query",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question grounded in the stored documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	partition := flagPartition
	if partition == "" {
		partition = a.config.Ingest.DefaultPartition
	}

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		res, err := a.pipeline.Ingest(ctx, pipeline.IngestRequest{
			Filename:  filepath.Base(path),
			Data:      data,
			Partition: partition,
		})
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d chunks\n", path, res.DocumentID, res.Chunks)
	}
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	partition := flagPartition
	if partition == "" {
		partition = a.config.Ingest.DefaultPartition
	}

	hits, err := a.pipeline.Query(ctx, args[0], partition, flagTopK)
	if err != nil {
		return err
	}

	if len(hits) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no results")
		return nil
	}
	for _, hit := range hits {
		fmt.Fprintf(cmd.OutOrStdout(), "%.4f\t%s\n%s\n\n", hit.Score, hit.Chunk.ID, hit.Chunk.Text)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	partition := flagPartition
	if partition == "" {
		partition = a.config.Ingest.DefaultPartition
	}

	ans, err := a.pipeline.Ask(ctx, args[0], partition, flagTopK)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), ans.Text)
	if len(ans.Sources) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "\nSources:")
		for _, src := range ans.Sources {
			fmt.Fprintf(cmd.OutOrStdout(), "  %.4f\t%s\n", src.Score, src.Chunk.ID)
		}
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.pipeline.Delete(ctx, args[0])
	if err != nil {
		return err
	}

	if !res.Existed {
		fmt.Fprintf(cmd.OutOrStdout(), "document %s not found\n", args[0])
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s (%d chunks)\n", res.DocumentID, res.ChunksRemoved)
	return nil
}
