package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/contagion/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect saved runs",
		Long: `List, show and delete runs saved with --save.

Runs are kept in runs.db in the state directory unless store.path is set.
Ids may be abbreviated to any unique prefix.

Examples:
  contagion runs list --model epidemic
  contagion runs show 3f2a
  contagion runs delete 3f2a`,
	}

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsDeleteCmd(),
	)
	return cmd
}

// withRunStore opens the run store for the duration of fn.
func withRunStore(cmd *cobra.Command, fn func(runs store.RunStore) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	runs, err := openRunStore(cmd, cfg)
	if err != nil {
		return err
	}
	defer runs.Close()
	return fn(runs)
}

func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			model, _ := cmd.Flags().GetString("model")
			limit, _ := cmd.Flags().GetInt("limit")

			return withRunStore(cmd, func(runs store.RunStore) error {
				list, err := runs.ListRuns(cmd.Context(), store.ListFilter{Model: model, Limit: limit})
				if err != nil {
					return fmt.Errorf("list runs: %w", err)
				}

				w := cmd.OutOrStdout()
				if jsonOut {
					return json.NewEncoder(w).Encode(map[string]any{
						"runs":  list,
						"count": len(list),
					})
				}
				if len(list) == 0 {
					fmt.Fprintln(w, "No saved runs.")
					return nil
				}
				fmt.Fprintf(w, "%-8s  %-8s  %-20s  %6s  %6s  %s\n", "ID", "MODEL", "CREATED", "NODES", "ROUNDS", "GRAPH")
				for _, r := range list {
					fmt.Fprintf(w, "%-8s  %-8s  %-20s  %6d  %6d  %s\n",
						shortID(r.ID), r.Model, r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
						r.Nodes, r.RoundCount(), r.GraphPath)
				}
				return nil
			})
		},
	}

	cmd.Flags().String("model", "", "Only list runs of this model")
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 for all)")
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one saved run with its per-round statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			return withRunStore(cmd, func(runs store.RunStore) error {
				run, err := runs.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				if jsonOut {
					return json.NewEncoder(w).Encode(run)
				}
				fmt.Fprintf(w, "Run %s\n", run.ID)
				fmt.Fprintf(w, "  model:       %s\n", run.Model)
				fmt.Fprintf(w, "  graph:       %s (%d nodes, %d edges)\n", run.GraphPath, run.Nodes, run.Edges)
				fmt.Fprintf(w, "  created:     %s\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
				fmt.Fprintf(w, "  seed:        %d\n", run.Seed)
				fmt.Fprintf(w, "  initiators:  %v\n", run.Initiators)
				if len(run.Params) > 0 {
					fmt.Fprintf(w, "  params:      %s\n", run.Params)
				}
				fmt.Fprintf(w, "  duration:    %s\n", run.Duration)
				if run.Stopped {
					fmt.Fprintf(w, "  stopped:     %s\n", run.StopReason)
				}
				fmt.Fprintln(w)
				fmt.Fprintf(w, "%5s  %5s  %5s  %9s  %5s  %11s  %8s  %4s  %9s\n",
					"ROUND", "NEW", "DIED", "RECOVERED", "WANED", "SUSCEPTIBLE", "INFECTED", "DEAD", "RECOVERED")
				for _, s := range run.Rounds {
					fmt.Fprintf(w, "%5d  %5d  %5d  %9d  %5d  %11d  %8d  %4d  %9d\n",
						s.Round, s.Events.New, s.Events.Died, s.Events.Recovered, s.Events.Waned,
						s.Totals.Susceptible, s.Totals.Infected, s.Totals.Dead, s.Totals.Recovered)
				}
				return nil
			})
		},
	}
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			return withRunStore(cmd, func(runs store.RunStore) error {
				if err := runs.DeleteRun(cmd.Context(), args[0]); err != nil {
					return err
				}
				if jsonOut {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
						"status": "deleted",
						"id":     args[0],
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
				return nil
			})
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
