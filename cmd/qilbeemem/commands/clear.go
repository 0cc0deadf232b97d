package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Tombstone all of an agent's episodes",
	Long: `Mark every one of an agent's episodes forgotten.

Clear is reversible in the audit sense: the records stay in the log
and remain retrievable by id, they just stop appearing in recall and
search. Use 'qilbeemem purge' to actually delete data.

Examples:
  # Clear with confirmation prompt
  qilbeemem clear --agent assistant-1

  # Clear without prompting, recording why
  qilbeemem clear --agent assistant-1 --yes --reason "user requested reset"`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

var (
	clearAgent  string
	clearReason string
	clearYes    bool
)

func init() {
	rootCmd.AddCommand(clearCmd)

	clearCmd.Flags().StringVarP(&clearAgent, "agent", "a", "", "agent namespace")
	clearCmd.Flags().StringVar(&clearReason, "reason", "", "reason recorded in the audit trail")
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "skip the confirmation prompt")
}

func runClear(cmd *cobra.Command, args []string) error {
	if clearAgent == "" {
		return fmt.Errorf("--agent is required")
	}

	if !clearYes && !confirm(fmt.Sprintf("Clear tombstones every episode for %s. Continue?", clearAgent)) {
		fmt.Println("Aborted.")
		return nil
	}

	mem, _, err := openEngine()
	if err != nil {
		return err
	}
	defer mem.Close()

	cleared, err := mem.Clear(context.Background(), clearAgent, clearReason)
	if err != nil {
		return fmt.Errorf("clearing agent: %w", err)
	}

	if !isQuiet() {
		if cleared {
			fmt.Printf("Cleared all episodes for %s\n", clearAgent)
		} else {
			fmt.Printf("Nothing to clear for %s\n", clearAgent)
		}
	}
	return nil
}

// confirm asks a yes/no question on the terminal.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)

	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))

	return answer == "y" || answer == "yes"
}
