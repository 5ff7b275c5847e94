package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/contagion/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve the simulations as MCP tools over stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout.

Tools:
  contagion_cascade   run the threshold cascade
  contagion_epidemic  run the stochastic epidemic
  contagion_runs      list, show or delete saved runs

Graph paths are resolved against --graph-root and must stay inside it or
~/.contagion/graphs. Every tool call is recorded in audit.jsonl in the
state directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			graphRoot, _ := cmd.Flags().GetString("graph-root")
			graphRoot, err := filepath.Abs(graphRoot)
			if err != nil {
				return fmt.Errorf("resolve graph root: %w", err)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			dir, err := stateDir(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)

			serverCfg := &mcp.Config{
				Name:     "contagion",
				Version:  version,
				Root:     graphRoot,
				StateDir: dir,
				Defaults: cfg,
				Logger:   logger,
			}
			if cfg.Store.Path != "" {
				runs, err := openRunStore(cmd, cfg)
				if err != nil {
					return err
				}
				defer runs.Close()
				serverCfg.Store = runs
			}

			server, err := mcp.NewServer(serverCfg)
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			logger.Info("mcp server starting", "version", version, "graph_root", graphRoot)
			return server.Run(cmd.Context())
		},
	}

	cmd.Flags().String("graph-root", ".", "Directory graph paths are resolved against")
	return cmd
}
