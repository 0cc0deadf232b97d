// Package audit provides SQLite-based storage for the consolidation
// audit trail. It complements the episode log (BadgerDB) by keeping a
// queryable history of every lifecycle pass and destructive admin
// action for CLI commands like `qilbeemem stats`.
package audit

import "time"

// Triggers name what started a consolidation pass.
const (
	TriggerManual    = "manual"
	TriggerThreshold = "threshold"
	TriggerScheduled = "scheduled"
	TriggerForget    = "forget"
)

// Admin actions recorded alongside runs.
const (
	ActionClear = "clear"
	ActionPurge = "purge"
)

// Run records one consolidation or forget pass over an agent.
type Run struct {
	ID        int64         `json:"id"`
	AgentID   string        `json:"agent_id"`
	Trigger   string        `json:"trigger"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Examined  int           `json:"examined"`
	Promoted  int           `json:"promoted"`
	Forgotten int           `json:"forgotten"`
	Error     string        `json:"error,omitempty"`
}

// Action records a destructive administrative operation.
type Action struct {
	ID      int64     `json:"id"`
	AgentID string    `json:"agent_id"`
	Action  string    `json:"action"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// Stats aggregates the audit trail.
type Stats struct {
	TotalRuns      int64            `json:"total_runs"`
	TotalExamined  int64            `json:"total_examined"`
	TotalPromoted  int64            `json:"total_promoted"`
	TotalForgotten int64            `json:"total_forgotten"`
	ByTrigger      map[string]int64 `json:"by_trigger"`
	LastRunAt      time.Time        `json:"last_run_at,omitzero"`
}
