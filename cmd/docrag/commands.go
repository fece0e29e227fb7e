package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/docrag-mcp/internal/indexer"
	"github.com/dshills/docrag-mcp/internal/mcp"
	"github.com/dshills/docrag-mcp/internal/searcher"
	"github.com/dshills/docrag-mcp/internal/watcher"
	"github.com/dshills/docrag-mcp/pkg/types"
)

// withApp builds the services for one command and tears them down afterwards.
func withApp(cmd *cobra.Command, configPath string, fn func(a *app) error) error {
	a, err := newApp(cmd.Context(), configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the document tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, *configPath, func(a *app) error {
				srv := mcp.NewServer(a.indexer, a.searcher, mcp.Defaults{
					SourceDir:    a.cfg.SourceDir,
					ChunkSize:    a.cfg.ChunkSize,
					ChunkOverlap: a.cfg.ChunkOverlap,
				}, a.logger)
				err := srv.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
				if cmd.Context().Err() != nil {
					a.logger.Info("server stopped")
					return nil
				}
				return err
			})
		},
	}
}

type indexFlags struct {
	chunkSize    int
	chunkOverlap int
	incremental  bool
	noPrune      bool
}

func (f indexFlags) options(cmd *cobra.Command, a *app, dir string) indexer.IndexOptions {
	opts := indexer.IndexOptions{
		SourceDir:    dir,
		ChunkSize:    a.cfg.ChunkSize,
		ChunkOverlap: a.cfg.ChunkOverlap,
		Incremental:  f.incremental,
		KeepDeleted:  f.noPrune,
	}
	if cmd.Flags().Changed("chunk-size") {
		opts.ChunkSize = f.chunkSize
	}
	if cmd.Flags().Changed("chunk-overlap") {
		opts.ChunkOverlap = f.chunkOverlap
	}
	return opts
}

func newIndexCmd(configPath *string) *cobra.Command {
	var flags indexFlags

	cmd := &cobra.Command{
		Use:   "index [dir]",
		Short: "Convert, chunk and embed the documents in a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *configPath, func(a *app) error {
				dir := a.cfg.SourceDir
				if len(args) == 1 {
					dir = args[0]
				}
				opts := flags.options(cmd, a, dir)
				opts.OnProgress = func(p indexer.Progress) {
					status := "ok"
					switch {
					case p.Err != nil:
						status = "failed: " + p.Err.Error()
					case p.Skipped:
						status = "unchanged"
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] %s %s\n", p.Done, p.Total, p.Path, status)
				}

				result, err := a.indexer.Index(cmd.Context(), opts)
				printIndexResult(cmd, result)
				return err
			})
		},
	}
	cmd.Flags().IntVar(&flags.chunkSize, "chunk-size", 500, "Chunk length in characters")
	cmd.Flags().IntVar(&flags.chunkOverlap, "chunk-overlap", 100, "Characters shared by consecutive chunks")
	cmd.Flags().BoolVar(&flags.incremental, "incremental", false, "Only process new or changed files")
	cmd.Flags().BoolVar(&flags.noPrune, "no-prune", false, "Keep chunks of files deleted since the last run")
	return cmd
}

func printIndexResult(cmd *cobra.Command, r *types.IndexResult) {
	if r == nil {
		return
	}
	if !r.Success {
		cmd.PrintErrf("Indexing failed after %.2fs: %s\n", r.ProcessingTime, r.Error)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%.2fs)\n", r.Message, r.ProcessingTime)
	fmt.Fprintf(cmd.OutOrStdout(), "  files: %d discovered, %d processed, %d unchanged, %d failed, %d pruned\n",
		r.FilesDiscovered, r.FilesProcessed, r.FilesSkipped, r.FilesFailed, r.FilesPruned)
}

func newSearchCmd(configPath *string) *cobra.Command {
	var (
		limit        int
		withContext  bool
		contextSize  int
		fullDocument bool
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *configPath, func(a *app) error {
				resp, err := a.searcher.Search(cmd.Context(), searcher.SearchRequest{
					Query:        strings.Join(args, " "),
					Limit:        limit,
					WithContext:  withContext,
					ContextSize:  contextSize,
					FullDocument: fullDocument,
				})
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
				if jsonOutput {
					data, err := json.MarshalIndent(resp, "", "  ")
					if err != nil {
						return fmt.Errorf("failed to marshal results: %w", err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(data))
					return nil
				}
				printSearchResults(cmd, resp)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", searcher.DefaultLimit, "Maximum number of direct hits")
	cmd.Flags().BoolVar(&withContext, "with-context", false, "Include surrounding chunks")
	cmd.Flags().IntVar(&contextSize, "context-size", searcher.DefaultContextSize, "Chunks on each side of a hit")
	cmd.Flags().BoolVar(&fullDocument, "full-document", false, "Include every chunk of matching documents")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	return cmd
}

func printSearchResults(cmd *cobra.Command, resp *searcher.SearchResponse) {
	if resp.Count == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No results found.")
		return
	}
	for i, h := range resp.Results {
		label := fmt.Sprintf("%.3f", h.Similarity)
		switch {
		case h.IsFullDocument:
			label = "document"
		case h.IsContext:
			label = "context"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s #%d (%s)\n", i+1, h.SourcePath, h.ChunkIndex, label)
		fmt.Fprintf(cmd.OutOrStdout(), "    %s\n\n", strings.ReplaceAll(strings.TrimSpace(h.Content), "\n", "\n    "))
	}
}

func newClearCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every indexed chunk and the file registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, *configPath, func(a *app) error {
				deleted, err := a.indexer.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d chunks\n", deleted)
				return nil
			})
		},
	}
}

func newCountCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of indexed chunks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, *configPath, func(a *app) error {
				n, err := a.indexer.Count(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}

func newWatchCmd(configPath *string) *cobra.Command {
	var flags indexFlags

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Re-index incrementally whenever files change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *configPath, func(a *app) error {
				dir := a.cfg.SourceDir
				if len(args) == 1 {
					dir = args[0]
				}
				flags.incremental = true
				opts := flags.options(cmd, a, dir)

				run := func(ctx context.Context) error {
					result, err := a.indexer.Index(ctx, opts)
					if errors.Is(err, indexer.ErrIndexInProgress) {
						return nil
					}
					printIndexResult(cmd, result)
					return err
				}
				if err := run(cmd.Context()); err != nil {
					return err
				}
				return watcher.New(dir, run, watcher.Config{
					Debounce: a.cfg.Watch.Debounce,
					Logger:   a.logger,
				}).Watch(cmd.Context())
			})
		},
	}
	cmd.Flags().IntVar(&flags.chunkSize, "chunk-size", 500, "Chunk length in characters")
	cmd.Flags().IntVar(&flags.chunkOverlap, "chunk-overlap", 100, "Characters shared by consecutive chunks")
	cmd.Flags().BoolVar(&flags.noPrune, "no-prune", false, "Keep chunks of files deleted since the last run")
	return cmd
}
