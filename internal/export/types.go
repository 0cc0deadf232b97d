// Package export renders agent memories into external knowledge stores.
//
// The vault exporter writes one Markdown note per episode into an
// Obsidian-compatible vault, with connections rendered as wiki links.
// Notes are named deterministically, so re-exporting an agent
// refreshes the vault in place instead of piling up duplicates.
package export

import (
	"time"

	"github.com/aicubetechnology/qilbeeDB-sub001/internal/memory"
)

// Exporter writes a batch of episodes to an external destination.
type Exporter interface {
	// Export writes the batch. Episodes arrive in commit order.
	Export(episodes []*memory.Episode, meta *Metadata) error

	// Name returns the exporter name.
	Name() string
}

// Metadata describes the batch being exported.
type Metadata struct {
	// AgentID is the namespace the episodes belong to
	AgentID string

	// ExportedAt is when the export ran
	ExportedAt time.Time

	// Source identifies the data directory the batch came from
	Source string
}

// Frontmatter is the YAML frontmatter stamped on every episode note.
type Frontmatter struct {
	// ID is the episode id
	ID string `yaml:"id"`

	// Agent is the owning namespace
	Agent string `yaml:"agent"`

	// Type classifies the episode
	Type string `yaml:"type"`

	// Status is the lifecycle state at export time
	Status string `yaml:"status"`

	// EventTime is when the recorded occurrence happened
	EventTime string `yaml:"event_time"`

	// TransactionTime is when the episode was committed
	TransactionTime string `yaml:"transaction_time"`

	// Importance is the caller-assigned weight
	Importance float64 `yaml:"importance"`

	// Relevance is the last computed retention score
	Relevance float64 `yaml:"relevance"`

	// AccessCount is how many times the episode was retrieved
	AccessCount int64 `yaml:"access_count"`

	// Tags are the note tags
	Tags []string `yaml:"tags"`

	// Aliases carry the full episode id so wiki links written as
	// [[episode-id]] resolve to the note
	Aliases []string `yaml:"aliases,omitempty"`
}
