package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aicubetechnology/qilbeeDB-sub001/internal/memory"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Permanently delete all of an agent's records",
	Long: `Delete every record for an agent from the episode log.

This is the only operation that actually removes data; everything else
tombstones. Purged episode ids are never reused, and a recreated agent
continues the same transaction clock, so purge cannot be used to forge
history.

Examples:
  # Purge with confirmation (type the agent id to confirm)
  qilbeemem purge --agent assistant-1

  # Purge without prompting
  qilbeemem purge --agent assistant-1 --force`,
	Args: cobra.NoArgs,
	RunE: runPurge,
}

var (
	purgeAgent string
	purgeForce bool
)

func init() {
	rootCmd.AddCommand(purgeCmd)

	purgeCmd.Flags().StringVarP(&purgeAgent, "agent", "a", "", "agent namespace")
	purgeCmd.Flags().BoolVar(&purgeForce, "force", false, "skip the confirmation prompt")
}

func runPurge(cmd *cobra.Command, args []string) error {
	if purgeAgent == "" {
		return fmt.Errorf("--agent is required")
	}

	if !purgeForce && !confirmPurge(purgeAgent) {
		fmt.Println("Aborted.")
		return nil
	}

	mem, _, err := openEngine()
	if err != nil {
		return err
	}
	defer mem.Close()

	if err := mem.Purge(context.Background(), purgeAgent); err != nil {
		if errors.Is(err, memory.ErrConflictInProgress) {
			return fmt.Errorf("a consolidation pass is running for %s, try again when it finishes", purgeAgent)
		}
		return fmt.Errorf("purging agent: %w", err)
	}

	if !isQuiet() {
		fmt.Printf("Purged all records for %s\n", purgeAgent)
	}
	return nil
}

// confirmPurge requires typing the agent id back, since purge cannot
// be undone.
func confirmPurge(agentID string) bool {
	fmt.Printf("Purge permanently deletes every record for %s. This cannot be undone.\n", agentID)
	fmt.Printf("Type the agent id to confirm: ")

	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')

	return strings.TrimSpace(answer) == agentID
}
