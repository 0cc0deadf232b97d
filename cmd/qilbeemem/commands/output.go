package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aicubetechnology/qilbeeDB-sub001/internal/memory"
)

const (
	dateTimeFormat = "2006-01-02 15:04"
)

// outputJSON pretty-prints v to stdout.
func outputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// statusBadge is a single-character marker for episode status in list
// output: A active, C consolidated, F forgotten.
func statusBadge(s memory.Status) string {
	switch s {
	case memory.StatusConsolidated:
		return "C"
	case memory.StatusForgotten:
		return "F"
	default:
		return "A"
	}
}

// formatAge renders how long ago t was in coarse units.
func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// printEpisodeLine renders one episode as a single list row.
func printEpisodeLine(ep *memory.Episode) {
	fmt.Printf("%s %s  %s  %.3f  [%s]  %s\n",
		statusBadge(ep.Status),
		shortID(ep.ID),
		ep.EventTime.Format(dateTimeFormat),
		ep.Relevance,
		ep.Type,
		truncate(ep.Content.Primary, 45))
}

// printEpisode renders one episode in full.
func printEpisode(ep *memory.Episode) {
	fmt.Printf("Episode: %s\n", ep.ID)
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()

	fmt.Printf("Agent:       %s\n", ep.AgentID)
	fmt.Printf("Type:        %s\n", ep.Type)
	fmt.Printf("Status:      %s\n", ep.Status)
	fmt.Printf("Event time:  %s (%s)\n", ep.EventTime.Format(time.RFC3339), formatAge(ep.EventTime))
	fmt.Printf("Committed:   %s\n", ep.TransactionTime.Format(time.RFC3339))
	fmt.Printf("Relevance:   %.3f\n", ep.Relevance)
	fmt.Printf("Importance:  %.2f\n", ep.Importance)
	fmt.Printf("Accessed:    %d times\n", ep.AccessCount)
	if !ep.LastAccessed.IsZero() {
		fmt.Printf("Last access: %s\n", ep.LastAccessed.Format(time.RFC3339))
	}
	fmt.Println()

	fmt.Println("Content")
	fmt.Println(strings.Repeat("-", 30))
	fmt.Printf("  %s\n", ep.Content.Primary)
	if ep.Content.Secondary != "" {
		fmt.Printf("  Secondary: %s\n", ep.Content.Secondary)
	}
	if ep.Content.Context != "" {
		fmt.Printf("  Context:   %s\n", ep.Content.Context)
	}
	if len(ep.Content.Data) > 0 {
		keys := make([]string, 0, len(ep.Content.Data))
		for k := range ep.Content.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s: %s\n", k, ep.Content.Data[k])
		}
	}

	if len(ep.Connections) > 0 {
		fmt.Println()
		fmt.Println("Connections")
		fmt.Println(strings.Repeat("-", 30))
		for _, c := range ep.Connections {
			fmt.Printf("  %-10s -> %s\n", c.Kind, c.TargetID)
		}
	}
}
