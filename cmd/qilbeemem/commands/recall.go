package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var recallCmd = &cobra.Command{
	Use:   "recall",
	Short: "List an agent's most recent episodes",
	Long: `List an agent's episodes ordered by event time, newest first.

Forgotten episodes are excluded; consolidated episodes are included.
Each row shows the status badge (A active, C consolidated), the short
id, the event time, the current relevance and the episode type.

Examples:
  # Most recent episodes
  qilbeemem recall --agent assistant-1

  # More of them
  qilbeemem recall --agent assistant-1 --limit 50

  # As JSON
  qilbeemem recall --agent assistant-1 --json`,
	Args: cobra.NoArgs,
	RunE: runRecall,
}

var (
	recallAgent string
	recallLimit int
	recallJSON  bool
)

func init() {
	rootCmd.AddCommand(recallCmd)

	recallCmd.Flags().StringVarP(&recallAgent, "agent", "a", "", "agent namespace")
	recallCmd.Flags().IntVarP(&recallLimit, "limit", "l", 0, "maximum number of episodes (default from config)")
	recallCmd.Flags().BoolVar(&recallJSON, "json", false, "output as JSON")
}

func runRecall(cmd *cobra.Command, args []string) error {
	if recallAgent == "" {
		return fmt.Errorf("--agent is required")
	}

	mem, _, err := openEngine()
	if err != nil {
		return err
	}
	defer mem.Close()

	episodes, err := mem.Recent(context.Background(), recallAgent, recallLimit)
	if err != nil {
		return fmt.Errorf("recalling episodes: %w", err)
	}

	if recallJSON {
		return outputJSON(episodes)
	}

	if len(episodes) == 0 {
		fmt.Printf("No episodes found for agent %s.\n", recallAgent)
		fmt.Println("Run 'qilbeemem store' to record episodes.")
		return nil
	}

	fmt.Printf("Recent Episodes for %s (%d shown)\n", recallAgent, len(episodes))
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()

	for _, ep := range episodes {
		printEpisodeLine(ep)
	}

	return nil
}
