package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aicubetechnology/qilbeeDB-sub001/internal/audit"
	"github.com/aicubetechnology/qilbeeDB-sub001/internal/memory"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory statistics",
	Long: `Display statistics for one agent or for the whole engine.

With --agent, shows that agent's episode counts by status, the event
timeline bounds, mean relevance and recent consolidation runs. Without
it, shows a per-agent summary table and the aggregate consolidation
history.

Examples:
  # Stats for one agent
  qilbeemem stats --agent assistant-1

  # Engine-wide overview
  qilbeemem stats

  # Output as JSON
  qilbeemem stats --agent assistant-1 --json`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

var (
	statsAgent string
	statsRuns  int
	statsJSON  bool
)

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringVarP(&statsAgent, "agent", "a", "", "agent namespace (empty for all agents)")
	statsCmd.Flags().IntVar(&statsRuns, "runs", 5, "number of recent consolidation runs to show")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
}

// statsReport is the JSON shape of the stats command output.
type statsReport struct {
	Agents      []*memory.Statistics `json:"agents"`
	Runs        []audit.Run          `json:"runs,omitempty"`
	AuditTotals *audit.Stats         `json:"audit_totals,omitempty"`
	Quarantined int64                `json:"quarantined_records"`
}

func runStats(cmd *cobra.Command, args []string) error {
	mem, _, err := openEngine()
	if err != nil {
		return err
	}
	defer mem.Close()

	ctx := context.Background()

	report, err := collectStats(ctx, mem)
	if err != nil {
		return err
	}

	if statsJSON {
		return outputJSON(report)
	}

	if statsAgent != "" {
		outputAgentStats(report)
		return nil
	}
	outputEngineStats(report)
	return nil
}

func collectStats(ctx context.Context, mem *memory.Memory) (*statsReport, error) {
	report := &statsReport{Quarantined: mem.Quarantined()}

	agents := []string{statsAgent}
	if statsAgent == "" {
		agents = mem.Agents()
		sort.Strings(agents)
	}

	for _, agent := range agents {
		st, err := mem.Statistics(ctx, agent)
		if err != nil {
			return nil, fmt.Errorf("getting stats for %s: %w", agent, err)
		}
		report.Agents = append(report.Agents, st)
	}

	store := mem.AuditStore()
	if store == nil {
		return report, nil
	}

	runs, err := store.RecentRuns(ctx, statsAgent, statsRuns)
	if err != nil {
		return nil, fmt.Errorf("reading consolidation runs: %w", err)
	}
	report.Runs = runs

	if statsAgent == "" {
		totals, err := store.GetStats(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading audit totals: %w", err)
		}
		report.AuditTotals = totals
	}

	return report, nil
}

func outputAgentStats(report *statsReport) {
	st := report.Agents[0]

	fmt.Printf("Memory Stats: %s\n", st.AgentID)
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()

	fmt.Printf("Total episodes:  %d\n", st.Total)
	fmt.Printf("  Active:        %d\n", st.Active)
	fmt.Printf("  Consolidated:  %d\n", st.Consolidated)
	fmt.Printf("  Forgotten:     %d\n", st.Forgotten)
	fmt.Printf("Avg relevance:   %.3f\n", st.AvgRelevance)
	if !st.OldestEventTime.IsZero() {
		fmt.Printf("Event timeline:  %s .. %s\n",
			st.OldestEventTime.Format(dateTimeFormat),
			st.NewestEventTime.Format(dateTimeFormat))
	}

	printRuns(report.Runs)
}

func outputEngineStats(report *statsReport) {
	if len(report.Agents) == 0 {
		fmt.Println("No agents found.")
		fmt.Println("Run 'qilbeemem store' to record episodes.")
		return
	}

	fmt.Printf("Agents (%d total)\n", len(report.Agents))
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()

	fmt.Printf("%-24s %7s %7s %7s %7s %8s\n", "AGENT", "TOTAL", "ACTIVE", "CONS", "FORG", "AVG REL")
	for _, st := range report.Agents {
		fmt.Printf("%-24s %7d %7d %7d %7d %8.3f\n",
			truncate(st.AgentID, 24), st.Total, st.Active, st.Consolidated, st.Forgotten, st.AvgRelevance)
	}

	if report.AuditTotals != nil && report.AuditTotals.TotalRuns > 0 {
		t := report.AuditTotals
		fmt.Println()
		fmt.Println("Consolidation")
		fmt.Println(strings.Repeat("-", 30))
		fmt.Printf("  Runs:       %d (last %s)\n", t.TotalRuns, formatAge(t.LastRunAt))
		fmt.Printf("  Examined:   %d\n", t.TotalExamined)
		fmt.Printf("  Promoted:   %d\n", t.TotalPromoted)
		fmt.Printf("  Forgotten:  %d\n", t.TotalForgotten)

		triggers := make([]string, 0, len(t.ByTrigger))
		for trig := range t.ByTrigger {
			triggers = append(triggers, trig)
		}
		sort.Strings(triggers)
		for _, trig := range triggers {
			fmt.Printf("    %-10s %d\n", trig, t.ByTrigger[trig])
		}
	}

	printRuns(report.Runs)

	if report.Quarantined > 0 {
		fmt.Println()
		fmt.Printf("Warning: %d corrupt log records were quarantined during recovery.\n", report.Quarantined)
	}
}

func printRuns(runs []audit.Run) {
	if len(runs) == 0 {
		return
	}

	fmt.Println()
	fmt.Println("Recent Runs")
	fmt.Println(strings.Repeat("-", 30))
	for _, r := range runs {
		outcome := fmt.Sprintf("examined %d, promoted %d, forgot %d", r.Examined, r.Promoted, r.Forgotten)
		if r.Error != "" {
			outcome = "failed: " + truncate(r.Error, 40)
		}
		fmt.Printf("  %s  %-9s %-20s %s\n",
			r.StartedAt.Format(dateTimeFormat), r.Trigger, truncate(r.AgentID, 20), outcome)
	}
}
