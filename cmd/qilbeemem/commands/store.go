package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aicubetechnology/qilbeeDB-sub001/internal/memory"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Store a new episode",
	Long: `Store a new episode in an agent's memory.

The episode text comes from --text or, when the flag is omitted, from
stdin. Event time defaults to now; pass --event-time to backdate an
episode to when it actually happened. The commit time is assigned by
the engine and cannot be set.

Examples:
  # Store an observation
  qilbeemem store --agent assistant-1 --type observation --text "user prefers dark mode"

  # Store a conversation turn with both sides
  qilbeemem store --agent assistant-1 --type conversation \
    --text "how do I reset my password?" --response "use the account page"

  # Backdate an event and raise its importance
  qilbeemem store --agent assistant-1 --type fact --text "contract signed" \
    --event-time 2026-08-01T09:00:00Z --importance 0.9

  # Correct an earlier episode
  qilbeemem store --agent assistant-1 --type fact --text "meeting moved to 3pm" \
    --supersedes bfa3d1f2-7c44-4c86-9d5e-0a52f9e6c7aa

  # Pipe text from another tool
  git log -1 --format=%B | qilbeemem store --agent assistant-1 --type action`,
	Args: cobra.NoArgs,
	RunE: runStore,
}

var (
	storeAgent      string
	storeType       string
	storeText       string
	storeResponse   string
	storeContext    string
	storeData       []string
	storeImportance float64
	storeEventTime  string
	storeConnect    []string
	storeSupersedes string
	storeJSON       bool
)

func init() {
	rootCmd.AddCommand(storeCmd)

	storeCmd.Flags().StringVarP(&storeAgent, "agent", "a", "", "agent namespace")
	storeCmd.Flags().StringVarP(&storeType, "type", "t", "observation", "episode type (conversation, observation, action, fact)")
	storeCmd.Flags().StringVar(&storeText, "text", "", "primary content (reads stdin when omitted)")
	storeCmd.Flags().StringVar(&storeResponse, "response", "", "secondary content, e.g. the reply in a conversation")
	storeCmd.Flags().StringVar(&storeContext, "context", "", "situation the episode occurred in")
	storeCmd.Flags().StringSliceVar(&storeData, "data", nil, "additional key=value pair (repeatable)")
	storeCmd.Flags().Float64Var(&storeImportance, "importance", 0.5, "caller-assigned weight in [0,1]")
	storeCmd.Flags().StringVar(&storeEventTime, "event-time", "", "when the event happened (RFC3339, default now)")
	storeCmd.Flags().StringSliceVar(&storeConnect, "connect", nil, "episode id to reference (repeatable)")
	storeCmd.Flags().StringVar(&storeSupersedes, "supersedes", "", "episode id this one corrects")
	storeCmd.Flags().BoolVar(&storeJSON, "json", false, "output the stored episode as JSON")
}

func runStore(cmd *cobra.Command, args []string) error {
	if storeAgent == "" {
		return fmt.Errorf("--agent is required")
	}

	draft, err := buildDraft(cmd)
	if err != nil {
		return err
	}

	mem, _, err := openEngine()
	if err != nil {
		return err
	}
	defer mem.Close()

	ep, err := mem.Store(context.Background(), draft)
	if err != nil {
		return fmt.Errorf("storing episode: %w", err)
	}

	if storeJSON {
		return outputJSON(ep)
	}

	if !isQuiet() {
		fmt.Printf("Stored episode %s (relevance %.3f)\n", ep.ID, ep.Relevance)
		if storeSupersedes != "" {
			fmt.Printf("Supersedes %s\n", storeSupersedes)
		}
	}
	return nil
}

// buildDraft assembles the episode draft from flags and stdin.
func buildDraft(cmd *cobra.Command) (*memory.Draft, error) {
	text := storeText
	if text == "" {
		piped, err := readStdin()
		if err != nil {
			return nil, err
		}
		text = piped
	}
	if text == "" {
		return nil, fmt.Errorf("--text is required (or pipe content on stdin)")
	}

	draft := &memory.Draft{
		AgentID: storeAgent,
		Type:    memory.EpisodeType(storeType),
		Content: memory.Content{
			Primary:   text,
			Secondary: storeResponse,
			Context:   storeContext,
		},
		Supersedes: storeSupersedes,
	}

	if len(storeData) > 0 {
		data := make(map[string]string, len(storeData))
		for _, pair := range storeData {
			key, value, found := strings.Cut(pair, "=")
			if !found || key == "" {
				return nil, fmt.Errorf("invalid --data %q: want key=value", pair)
			}
			data[key] = value
		}
		draft.Content.Data = data
	}

	if cmd.Flags().Changed("importance") {
		imp := storeImportance
		draft.Importance = &imp
	}

	if storeEventTime != "" {
		t, err := time.Parse(time.RFC3339, storeEventTime)
		if err != nil {
			return nil, fmt.Errorf("invalid --event-time: %w", err)
		}
		draft.EventTime = t
	}

	for _, id := range storeConnect {
		draft.Connections = append(draft.Connections, memory.Connection{
			TargetID: id,
			Kind:     memory.ConnReferences,
		})
	}

	return draft, nil
}

// readStdin returns piped input, or empty when stdin is a terminal.
func readStdin() (string, error) {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return "", nil
	}
	if fi.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
