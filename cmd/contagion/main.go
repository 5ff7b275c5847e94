package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nvandessel/contagion/internal/config"
	"github.com/nvandessel/contagion/internal/logging"
	"github.com/nvandessel/contagion/internal/store"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "contagion",
		Short: "Spreading simulations on directed graphs",
		Long: `contagion runs discrete-time spreading processes over a directed graph.

Two models are available: a deterministic threshold cascade, where a node
activates once enough of its in-neighbours are active, and a stochastic
epidemic with infection, death, recovery, waning immunity, shelter and
vaccination.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", "", "State directory (default ~/.contagion)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: error, warn, info, debug, trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newCascadeCmd(),
		newEpidemicCmd(),
		newGraphCmd(),
		newRunsCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

// stateDir returns the --root directory, falling back to ~/.contagion.
func stateDir(cmd *cobra.Command) (string, error) {
	if root, _ := cmd.Flags().GetString("root"); root != "" {
		return root, nil
	}
	return store.DefaultStatePath()
}

// loadConfig loads the user configuration and applies --log-level.
func loadConfig(cmd *cobra.Command) (*config.ContagionConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.ContagionConfig) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}

// openRunStore opens the configured run database, defaulting to runs.db in
// the state directory.
func openRunStore(cmd *cobra.Command, cfg *config.ContagionConfig) (*store.SQLiteRunStore, error) {
	path := cfg.Store.Path
	if path == "" {
		dir, err := stateDir(cmd)
		if err != nil {
			return nil, err
		}
		path = store.DatabasePath(dir)
	}
	runs, err := store.NewSQLiteRunStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return runs, nil
}

// signalContext returns a context cancelled on the first interrupt.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}
