package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/docrag-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "docrag",
		Short:        "Document retrieval over MCP: index a folder, search it semantically",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate(versionText())
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: ./docrag.yaml or ~/.config/docrag/docrag.yaml)")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newIndexCmd(&configPath),
		newSearchCmd(&configPath),
		newClearCmd(&configPath),
		newCountCmd(&configPath),
		newWatchCmd(&configPath),
	)
	return rootCmd
}

func versionText() string {
	return fmt.Sprintf("DocRAG MCP Server\nVersion: %s\nBuild Time: %s\nBuild Mode: %s\nSQLite Driver: %s\nVector Extension: %v\n",
		version, buildTime, storage.BuildMode, storage.DriverName, storage.VectorExtensionAvailable)
}
