package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-media/pkg/simplemedia/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	_ = godotenv.Load()

	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCommand builds the mediactl command tree
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mediactl",
		Short: "Manage ingested media, the archive and positioned collections",
		Long: `mediactl talks to the configured document and blob stores directly.

Backends are selected with the same environment variables as the server:
DATABASE_URL, STORAGE_URL, REDIS_URL and friends. A .env file in the current
directory is loaded first.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("env-prefix", "", "prefix for configuration environment variables")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(NewIngestCommand())
	rootCmd.AddCommand(NewMediaCommand())
	rootCmd.AddCommand(NewArchiveCommand())
	rootCmd.AddCommand(NewPositionedCommand())
	rootCmd.AddCommand(NewCarouselCommand())
	rootCmd.AddCommand(NewReconcileCommand())

	return rootCmd
}

// runtimeFromFlags loads configuration and builds the service. The caller
// closes the returned runtime.
func runtimeFromFlags(cmd *cobra.Command) (*config.Runtime, error) {
	prefix, _ := cmd.Flags().GetString("env-prefix")
	verbose, _ := cmd.Flags().GetBool("verbose")

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(config.WithEnv(prefix), config.WithMetrics(false))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Debug("Configuration loaded", "database", cfg.DatabaseType, "storage", cfg.Storage.Type)

	rt, err := cfg.BuildService(commandContext(cmd), logger)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// printJSON reports whether --json was set and, if so, writes v
func printJSON(cmd *cobra.Command, v interface{}) (bool, error) {
	asJSON, _ := cmd.Flags().GetBool("json")
	if !asJSON {
		return false, nil
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}

func newTable(cmd *cobra.Command) *tabwriter.Writer {
	return tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
}
