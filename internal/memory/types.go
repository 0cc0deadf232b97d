// Package memory implements a bi-temporal episodic memory engine for
// agents: a durable append-only episode log, an in-memory index derived
// from it, relevance scoring, and the consolidation machinery that
// promotes or forgets episodes over time.
package memory

import (
	"slices"
	"strings"
	"time"
)

// EpisodeType classifies what an episode records.
type EpisodeType string

const (
	TypeConversation EpisodeType = "conversation"
	TypeObservation  EpisodeType = "observation"
	TypeAction       EpisodeType = "action"
	TypeFact         EpisodeType = "fact"
)

// ValidTypes lists every recognized episode type.
var ValidTypes = []EpisodeType{TypeConversation, TypeObservation, TypeAction, TypeFact}

// Valid reports whether t is a recognized episode type.
func (t EpisodeType) Valid() bool {
	return slices.Contains(ValidTypes, t)
}

// Status is the lifecycle state of an episode. Episodes start active;
// consolidated and forgotten are terminal.
type Status string

const (
	StatusActive       Status = "active"
	StatusConsolidated Status = "consolidated"
	StatusForgotten    Status = "forgotten"
)

// Connection kinds.
const (
	// ConnReferences links an episode to related context.
	ConnReferences = "references"

	// ConnSupersedes marks the episode as a correction of the target.
	// The target is never edited in place; readers follow the
	// connection to find the newer account.
	ConnSupersedes = "supersedes"
)

// Connection links an episode to another episode.
type Connection struct {
	// TargetID is the id of the linked episode.
	TargetID string `json:"target_id"`

	// Kind is "references" or "supersedes".
	Kind string `json:"kind"`
}

// Content is the episode payload. Primary, Secondary and Context
// participate in substring search; Data is carried opaquely.
type Content struct {
	// Primary is the main content of the episode.
	Primary string `json:"primary"`

	// Secondary is optional supporting content.
	Secondary string `json:"secondary,omitempty"`

	// Context describes the situation the episode occurred in.
	Context string `json:"context,omitempty"`

	// Data contains additional key-value pairs.
	Data map[string]string `json:"data,omitempty"`
}

// searchText returns the lowercased text a substring query matches
// against.
func (c Content) searchText() string {
	var b strings.Builder
	b.Grow(len(c.Primary) + len(c.Secondary) + len(c.Context) + 2)
	b.WriteString(c.Primary)
	if c.Secondary != "" {
		b.WriteByte('\n')
		b.WriteString(c.Secondary)
	}
	if c.Context != "" {
		b.WriteByte('\n')
		b.WriteString(c.Context)
	}
	return strings.ToLower(b.String())
}

// size returns the combined byte length of the text fields.
func (c Content) size() int {
	n := len(c.Primary) + len(c.Secondary) + len(c.Context)
	for k, v := range c.Data {
		n += len(k) + len(v)
	}
	return n
}

// Episode is the atomic memory unit. It records two distinct times:
// EventTime is when the thing happened, supplied by the caller and
// allowed to lie in the past; TransactionTime is when the record was
// durably committed, assigned by the log and strictly increasing
// within an agent namespace. Episodes are never edited after commit.
type Episode struct {
	// ID is the unique identifier, never reused even after deletion.
	ID string `json:"episode_id"`

	// AgentID is the namespace the episode belongs to.
	AgentID string `json:"agent_id"`

	// Type classifies the episode.
	Type EpisodeType `json:"episode_type"`

	// Content is the payload.
	Content Content `json:"content"`

	// EventTime is when the recorded occurrence happened.
	EventTime time.Time `json:"event_time"`

	// TransactionTime is when the record was committed to the log.
	TransactionTime time.Time `json:"transaction_time"`

	// Relevance is the last computed score in [0, 1].
	Relevance float64 `json:"relevance"`

	// Importance is the caller-assigned weight in [0, 1].
	Importance float64 `json:"importance"`

	// AccessCount tracks how many times the episode was retrieved.
	AccessCount int64 `json:"access_count"`

	// LastAccessed is when the episode was last retrieved.
	LastAccessed time.Time `json:"last_accessed_time,omitzero"`

	// Connections are typed links to other episodes.
	Connections []Connection `json:"connections,omitempty"`

	// Status is the lifecycle state.
	Status Status `json:"status"`
}

// Supersedes returns the id of the episode this one corrects, or the
// empty string.
func (e *Episode) Supersedes() string {
	for _, c := range e.Connections {
		if c.Kind == ConnSupersedes {
			return c.TargetID
		}
	}
	return ""
}

// Draft is the caller-facing input to Store. Zero-value optional
// fields fall back to defaults: EventTime to the commit wall clock,
// Importance to a neutral 0.5.
type Draft struct {
	// AgentID is the namespace to store into.
	AgentID string

	// Type classifies the episode.
	Type EpisodeType

	// Content is the payload.
	Content Content

	// EventTime is when the occurrence happened. Zero means now.
	EventTime time.Time

	// Importance is the caller-assigned weight. Nil means 0.5.
	Importance *float64

	// Connections are typed links to other episodes.
	Connections []Connection

	// Supersedes, when set, adds a supersedes connection to the given
	// episode, marking this draft as its correction.
	Supersedes string
}

// SearchResult pairs an episode with the relevance it was ranked by.
type SearchResult struct {
	Episode *Episode `json:"episode"`
	Score   float64  `json:"score"`
}

// Statistics summarizes one agent's memory.
type Statistics struct {
	// AgentID is the namespace summarized.
	AgentID string `json:"agent_id"`

	// Total counts every episode ever committed, tombstoned or not.
	Total int `json:"total"`

	// Active, Consolidated and Forgotten count episodes by status.
	Active       int `json:"active"`
	Consolidated int `json:"consolidated"`
	Forgotten    int `json:"forgotten"`

	// OldestEventTime and NewestEventTime bound the event timeline.
	// Zero when the agent has no episodes.
	OldestEventTime time.Time `json:"oldest_event_time,omitzero"`
	NewestEventTime time.Time `json:"newest_event_time,omitzero"`

	// AvgRelevance is the mean relevance of non-forgotten episodes.
	AvgRelevance float64 `json:"avg_relevance"`
}

// ConsolidationResult reports what one pass did.
type ConsolidationResult struct {
	// AgentID is the namespace the pass ran over.
	AgentID string `json:"agent_id"`

	// Examined counts the active episodes that were scored.
	Examined int `json:"examined"`

	// Promoted counts transitions to consolidated.
	Promoted int `json:"promoted"`

	// Forgotten counts transitions to forgotten.
	Forgotten int `json:"forgotten"`
}
