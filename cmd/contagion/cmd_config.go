package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/contagion/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage contagion configuration",
		Long: `View and modify contagion configuration settings.

Configuration is stored in ~/.contagion/config.yaml. CONTAGION_* environment
variables override the file, and command flags override both.

Examples:
  contagion config list                             # Show all settings
  contagion config get epidemic.lifespan            # Get a specific setting
  contagion config set epidemic.death_probability 0.02
  contagion config set roles.shelter 0.1`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Configuration (~/.contagion/config.yaml):")
			fmt.Fprintln(w)
			for _, key := range config.Keys() {
				value, _ := cfg.Get(key)
				fmt.Fprintf(w, "  %-36s %s\n", key+":", displayValue(value))
			}
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			value, err := cfg.Get(key)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, displayValue(value))
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key, value := args[0], args[1]

			path, err := config.DefaultPath()
			if err != nil {
				return fmt.Errorf("failed to get config path: %w", err)
			}
			cfg, err := loadConfigFile(path)
			if err != nil {
				return err
			}
			if err := cfg.Set(key, value); err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

// loadConfigFile reads path without environment overrides, so that set
// only persists what the user wrote. A missing file yields the defaults.
func loadConfigFile(path string) (*config.ContagionConfig, error) {
	cfg, err := config.LoadFromFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func displayValue(v any) string {
	if s, ok := v.(string); ok && s == "" {
		return "(not set)"
	}
	return fmt.Sprint(v)
}
