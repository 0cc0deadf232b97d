package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aicubetechnology/qilbeeDB-sub001/internal/memory"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Run a consolidation pass",
	Long: `Score an agent's active episodes and transition them.

Episodes scoring at or above the policy's promotion threshold become
consolidated; episodes scoring below the forget threshold become
forgotten, unless their importance pins them. Everything in between
stays active. The pass is idempotent: running it again over an
unchanged agent does nothing.

Only one pass runs per agent at a time; a second invocation fails
immediately instead of queueing.

Examples:
  # Consolidate one agent
  qilbeemem consolidate --agent assistant-1

  # Consolidate every known agent
  qilbeemem consolidate --all`,
	Args: cobra.NoArgs,
	RunE: runConsolidate,
}

var (
	consolidateAgent string
	consolidateAll   bool
	consolidateJSON  bool
)

func init() {
	rootCmd.AddCommand(consolidateCmd)

	consolidateCmd.Flags().StringVarP(&consolidateAgent, "agent", "a", "", "agent namespace")
	consolidateCmd.Flags().BoolVar(&consolidateAll, "all", false, "consolidate every known agent")
	consolidateCmd.Flags().BoolVar(&consolidateJSON, "json", false, "output as JSON")
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	if consolidateAgent == "" && !consolidateAll {
		return fmt.Errorf("--agent or --all is required")
	}

	mem, _, err := openEngine()
	if err != nil {
		return err
	}
	defer mem.Close()

	ctx := context.Background()

	agents := []string{consolidateAgent}
	if consolidateAll {
		agents = mem.Agents()
		if len(agents) == 0 {
			fmt.Println("No agents found.")
			return nil
		}
	}

	var results []*memory.ConsolidationResult
	for _, agent := range agents {
		res, err := mem.Consolidate(ctx, agent)
		if err != nil {
			if errors.Is(err, memory.ErrConflictInProgress) {
				return fmt.Errorf("a consolidation pass is already running for %s", agent)
			}
			return fmt.Errorf("consolidating %s: %w", agent, err)
		}
		results = append(results, res)
	}

	if consolidateJSON {
		return outputJSON(results)
	}

	for _, res := range results {
		fmt.Printf("%s: examined %d, promoted %d, forgot %d\n",
			res.AgentID, res.Examined, res.Promoted, res.Forgotten)
	}
	return nil
}
