package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <episode-id>",
	Short: "Retrieve a single episode by id",
	Long: `Retrieve one episode by its id.

Retrieval counts as an access and bumps the episode's access
statistics, which feed its relevance score. Pass --committed to read
the record exactly as it was committed to the log, without touching
the counters.

Forgotten episodes are tombstoned, not erased, so they remain
retrievable by id.

Examples:
  # Retrieve an episode
  qilbeemem get bfa3d1f2-7c44-4c86-9d5e-0a52f9e6c7aa --agent assistant-1

  # Read the as-committed record without bumping access stats
  qilbeemem get bfa3d1f2-7c44-4c86-9d5e-0a52f9e6c7aa --agent assistant-1 --committed

  # Output as JSON
  qilbeemem get bfa3d1f2-7c44-4c86-9d5e-0a52f9e6c7aa --agent assistant-1 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

var (
	getAgent     string
	getCommitted bool
	getJSON      bool
)

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().StringVarP(&getAgent, "agent", "a", "", "agent namespace")
	getCmd.Flags().BoolVar(&getCommitted, "committed", false, "read the as-committed record, without bumping access stats")
	getCmd.Flags().BoolVar(&getJSON, "json", false, "output as JSON")
}

func runGet(cmd *cobra.Command, args []string) error {
	if getAgent == "" {
		return fmt.Errorf("--agent is required")
	}

	mem, _, err := openEngine()
	if err != nil {
		return err
	}
	defer mem.Close()

	ctx := context.Background()

	retrieve := mem.Get
	if getCommitted {
		retrieve = mem.GetCommitted
	}

	ep, err := retrieve(ctx, getAgent, args[0])
	if err != nil {
		return fmt.Errorf("retrieving episode: %w", err)
	}

	if getJSON {
		return outputJSON(ep)
	}

	printEpisode(ep)
	return nil
}
