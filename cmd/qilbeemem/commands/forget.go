package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aicubetechnology/qilbeeDB-sub001/internal/memory"
)

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Forget low-relevance episodes",
	Long: `Tombstone an agent's active episodes whose relevance falls below a
floor.

Forgotten episodes drop out of recall and search but stay in the log
and remain retrievable by id. Episodes whose importance reaches the
policy's pin threshold are never forgotten.

Examples:
  # Forget below the policy's default floor
  qilbeemem forget --agent assistant-1

  # Forget below an explicit floor
  qilbeemem forget --agent assistant-1 --min-relevance 0.3`,
	Args: cobra.NoArgs,
	RunE: runForget,
}

var (
	forgetAgent        string
	forgetMinRelevance float64
)

func init() {
	rootCmd.AddCommand(forgetCmd)

	forgetCmd.Flags().StringVarP(&forgetAgent, "agent", "a", "", "agent namespace")
	forgetCmd.Flags().Float64Var(&forgetMinRelevance, "min-relevance", 0, "relevance floor in (0,1] (default from policy)")
}

func runForget(cmd *cobra.Command, args []string) error {
	if forgetAgent == "" {
		return fmt.Errorf("--agent is required")
	}

	mem, _, err := openEngine()
	if err != nil {
		return err
	}
	defer mem.Close()

	n, err := mem.Forget(context.Background(), forgetAgent, forgetMinRelevance)
	if err != nil {
		if errors.Is(err, memory.ErrConflictInProgress) {
			return fmt.Errorf("a consolidation pass is already running for %s", forgetAgent)
		}
		return fmt.Errorf("forgetting episodes: %w", err)
	}

	if !isQuiet() {
		fmt.Printf("Forgot %d episodes for %s\n", n, forgetAgent)
	}
	return nil
}
