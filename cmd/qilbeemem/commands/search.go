package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search an agent's episodes",
	Long: `Search episode content by substring match, ranked by relevance.

The query matches against the primary, secondary and context text of
non-forgotten episodes. Matches count as accesses and bump the
episodes' access statistics.

Examples:
  # Search for a topic
  qilbeemem search "dark mode" --agent assistant-1

  # Limit the result count
  qilbeemem search password --agent assistant-1 --limit 5

  # As JSON with scores
  qilbeemem search "dark mode" --agent assistant-1 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var (
	searchAgent string
	searchLimit int
	searchJSON  bool
)

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringVarP(&searchAgent, "agent", "a", "", "agent namespace")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 0, "maximum number of results (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchAgent == "" {
		return fmt.Errorf("--agent is required")
	}

	query := strings.Join(args, " ")

	mem, _, err := openEngine()
	if err != nil {
		return err
	}
	defer mem.Close()

	results, err := mem.Search(context.Background(), searchAgent, query, searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputJSON(results)
	}

	if len(results) == 0 {
		fmt.Printf("No results found for: %s\n", query)
		return nil
	}

	fmt.Printf("Search Results for: %s\n", query)
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()

	for _, r := range results {
		fmt.Printf("%.3f  %s %s  %s  [%s]\n",
			r.Score,
			statusBadge(r.Episode.Status),
			shortID(r.Episode.ID),
			r.Episode.EventTime.Format(dateTimeFormat),
			r.Episode.Type)
		fmt.Printf("       %s\n", truncate(r.Episode.Content.Primary, 70))
		fmt.Println()
	}

	return nil
}
