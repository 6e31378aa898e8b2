package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dshills/taskgraph-go/dag"
	"github.com/dshills/taskgraph-go/dag/load"
)

var validateCmd = &cobra.Command{
	Use:   "validate <definition.yaml>",
	Short: "Validate a workflow definition file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := load.Load(args[0])
		if err != nil {
			return err
		}

		result := def.Validate()
		if result.Valid {
			logrus.WithField("nodes", len(def.Nodes)).Info("definition is valid")
			return nil
		}
		for _, msg := range result.Errors {
			logrus.WithField("file", args[0]).Error(msg)
		}
		return fmt.Errorf("definition is invalid (%d errors)", len(result.Errors))
	},
}

var orderCmd = &cobra.Command{
	Use:   "order <definition.yaml>",
	Short: "Print a topological execution order for a definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := load.Load(args[0])
		if err != nil {
			return err
		}

		order, err := def.Order()
		if err != nil {
			return fmt.Errorf("no execution order exists: %w", err)
		}
		for i, id := range order {
			fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, id)
		}
		return nil
	},
}

var (
	completedIDs []string

	readyCmd = &cobra.Command{
		Use:   "ready <definition.yaml>",
		Short: "Print the steps currently eligible to run",
		Long: `Prints the nodes that are not yet completed and whose every direct
predecessor is completed. Pass the completed node ids via --completed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := load.Load(args[0])
			if err != nil {
				return err
			}
			if result := def.Validate(); !result.Valid {
				return fmt.Errorf("definition is invalid: %s", strings.Join(result.Errors, "; "))
			}

			completed := make(map[string]bool, len(completedIDs))
			for _, id := range completedIDs {
				completed[id] = true
			}

			ready := dag.ReadySteps(def, completed)
			if len(ready) == 0 {
				logrus.Info("no steps are ready")
				return nil
			}
			for _, id := range ready {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
)

var (
	depsOf string

	depsCmd = &cobra.Command{
		Use:   "deps <definition.yaml>",
		Short: "Show transitive dependencies, dependents and the critical path of a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := load.Load(args[0])
			if err != nil {
				return err
			}
			if depsOf == "" {
				return fmt.Errorf("--of is required")
			}
			if _, ok := def.Nodes[depsOf]; !ok {
				return fmt.Errorf("node %q does not exist in the definition", depsOf)
			}

			validator := dag.NewValidator(viewFromDefinition(def), nil, dag.Options{GraphID: def.Name})
			ctx := context.Background()

			deps, err := validator.TransitiveDependencies(ctx, depsOf)
			if err != nil {
				return err
			}
			dependents, err := validator.TransitiveDependents(ctx, depsOf)
			if err != nil {
				return err
			}
			path, err := validator.CriticalPath(ctx, depsOf)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "requires:      %s\n", formatIDs(deps))
			fmt.Fprintf(out, "required by:   %s\n", formatIDs(dependents))
			fmt.Fprintf(out, "critical path: %s\n", strings.Join(path, " <- "))
			return nil
		},
	}
)

func init() {
	readyCmd.Flags().StringSliceVar(&completedIDs, "completed", nil, "Comma-separated ids of completed nodes")
	depsCmd.Flags().StringVar(&depsOf, "of", "", "Node id to query")
}

// viewFromDefinition adapts a definition's successor edges into the
// predecessor/successor view the dependency validator expects.
func viewFromDefinition(def dag.Definition) dag.MapView {
	blockedBy := make(map[string][]string)
	for from, tos := range def.Edges {
		for _, to := range tos {
			blockedBy[to] = append(blockedBy[to], from)
		}
	}
	return dag.MapView{BlockedBy: blockedBy, Blocks: def.Edges}
}

func formatIDs(ids []string) string {
	if len(ids) == 0 {
		return "(none)"
	}
	return strings.Join(ids, ", ")
}
