package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aicubetechnology/qilbeeDB-sub001/internal/config"
	"github.com/aicubetechnology/qilbeeDB-sub001/internal/memory"
)

// VaultExporter writes episodes into an Obsidian-compatible vault.
type VaultExporter struct {
	cfg   *config.ExportConfig
	note  *template.Template
	index *template.Template
}

// noteData holds all data passed to the note template.
type noteData struct {
	Frontmatter *Frontmatter
	Episode     *memory.Episode
	Meta        *Metadata
	Config      *config.ExportConfig
}

// indexFrontmatter is the YAML frontmatter for the per-agent index
// note.
type indexFrontmatter struct {
	Agent    string   `yaml:"agent"`
	Exported string   `yaml:"exported"`
	Episodes int      `yaml:"episodes"`
	Tags     []string `yaml:"tags"`
}

// indexData holds all data passed to the index template.
type indexData struct {
	Frontmatter  *indexFrontmatter
	Meta         *Metadata
	Active       []*memory.Episode
	Consolidated []*memory.Episode
	Forgotten    []*memory.Episode
	Total        int
}

// NewVaultExporter creates a new vault exporter.
func NewVaultExporter(cfg *config.ExportConfig) (*VaultExporter, error) {
	e := &VaultExporter{cfg: cfg}

	if err := e.validate(); err != nil {
		return nil, err
	}

	if err := e.loadTemplates(); err != nil {
		return nil, err
	}

	return e, nil
}

// Name returns the exporter name.
func (e *VaultExporter) Name() string {
	return "vault"
}

// validate validates the exporter configuration.
func (e *VaultExporter) validate() error {
	if e.cfg.Vault == "" {
		return fmt.Errorf("vault path is required")
	}

	// Expand ~ in path
	vaultPath := expandPath(e.cfg.Vault)
	e.cfg.Vault = vaultPath

	// Check vault exists
	if _, err := os.Stat(vaultPath); os.IsNotExist(err) {
		return fmt.Errorf("vault not found: %s", vaultPath)
	}

	return nil
}

// loadTemplates loads the note and index templates. A custom template
// file replaces the note template only.
func (e *VaultExporter) loadTemplates() error {
	idx, err := template.New("index").Funcs(e.templateFuncs()).Parse(defaultIndexTemplate)
	if err != nil {
		return fmt.Errorf("parsing index template: %w", err)
	}
	e.index = idx

	if e.cfg.Template != "" {
		tmplPath := expandPath(e.cfg.Template)
		content, err := os.ReadFile(tmplPath) // #nosec G304 - user-provided template path
		if err != nil {
			return fmt.Errorf("loading custom template: %w", err)
		}
		tmpl, err := template.New("note").Funcs(e.templateFuncs()).Parse(string(content))
		if err != nil {
			return fmt.Errorf("parsing custom template: %w", err)
		}
		e.note = tmpl
		return nil
	}

	tmpl, err := template.New("note").Funcs(e.templateFuncs()).Parse(defaultNoteTemplate)
	if err != nil {
		return fmt.Errorf("parsing default template: %w", err)
	}
	e.note = tmpl
	return nil
}

// templateFuncs returns the template functions.
func (e *VaultExporter) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"statusIcon":    statusIcon,
		"statusCallout": statusCallout,
		"formatTags":    formatTags,
		"wikiLink":      wikiLink,
		"formatTime":    formatTime,
		"isoTime":       isoTime,
		"noteTitle":     noteTitle,
		"noteName":      noteName,
		"yamlBlock":     yamlBlock,
	}
}

// Export writes one note per episode and, when configured, an index
// note for the agent. Re-exporting overwrites existing notes so the
// vault tracks the log.
func (e *VaultExporter) Export(episodes []*memory.Episode, meta *Metadata) error {
	agentDir := e.OutputDir(meta.AgentID)
	if err := os.MkdirAll(agentDir, 0755); err != nil {
		return fmt.Errorf("creating agent directory: %w", err)
	}

	for _, ep := range episodes {
		if err := e.writeNote(agentDir, ep, meta); err != nil {
			return fmt.Errorf("episode %s: %w", ep.ID, err)
		}
	}

	if e.cfg.Index {
		if err := e.writeIndex(agentDir, episodes, meta); err != nil {
			return fmt.Errorf("writing index note: %w", err)
		}
	}

	return nil
}

// OutputDir returns the directory an agent's notes are written to.
func (e *VaultExporter) OutputDir(agentID string) string {
	return filepath.Join(e.cfg.Vault, e.cfg.Folder, sanitizeFilename(agentID))
}

// NotePath returns the path the episode's note will be written to.
func (e *VaultExporter) NotePath(agentID string, ep *memory.Episode) string {
	return filepath.Join(e.OutputDir(agentID), noteFilename(ep))
}

// writeNote renders one episode note into the agent directory.
func (e *VaultExporter) writeNote(agentDir string, ep *memory.Episode, meta *Metadata) error {
	data := &noteData{
		Frontmatter: e.buildFrontmatter(ep),
		Episode:     ep,
		Meta:        meta,
		Config:      e.cfg,
	}

	var sb strings.Builder
	if err := e.note.Execute(&sb, data); err != nil {
		return fmt.Errorf("executing note template: %w", err)
	}

	outputPath := filepath.Join(agentDir, noteFilename(ep))
	if err := os.WriteFile(outputPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("writing note file: %w", err)
	}

	return nil
}

// writeIndex renders the per-agent index note grouping episodes by
// lifecycle status.
func (e *VaultExporter) writeIndex(agentDir string, episodes []*memory.Episode, meta *Metadata) error {
	data := &indexData{
		Frontmatter: &indexFrontmatter{
			Agent:    meta.AgentID,
			Exported: meta.ExportedAt.Format(time.RFC3339),
			Episodes: len(episodes),
			Tags:     []string{"qilbeemem", "index"},
		},
		Meta:  meta,
		Total: len(episodes),
	}
	for _, ep := range episodes {
		switch ep.Status {
		case memory.StatusConsolidated:
			data.Consolidated = append(data.Consolidated, ep)
		case memory.StatusForgotten:
			data.Forgotten = append(data.Forgotten, ep)
		default:
			data.Active = append(data.Active, ep)
		}
	}

	var sb strings.Builder
	if err := e.index.Execute(&sb, data); err != nil {
		return fmt.Errorf("executing index template: %w", err)
	}

	outputPath := filepath.Join(agentDir, indexFilename)
	if err := os.WriteFile(outputPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("writing index file: %w", err)
	}

	return nil
}

// buildFrontmatter builds the note frontmatter from the episode.
func (e *VaultExporter) buildFrontmatter(ep *memory.Episode) *Frontmatter {
	return &Frontmatter{
		ID:              ep.ID,
		Agent:           ep.AgentID,
		Type:            string(ep.Type),
		Status:          string(ep.Status),
		EventTime:       ep.EventTime.Format(time.RFC3339),
		TransactionTime: ep.TransactionTime.Format(time.RFC3339),
		Importance:      ep.Importance,
		Relevance:       ep.Relevance,
		AccessCount:     ep.AccessCount,
		Tags:            e.buildTags(ep),
		Aliases:         []string{ep.ID},
	}
}

// buildTags builds the tags for the episode note.
func (e *VaultExporter) buildTags(ep *memory.Episode) []string {
	tags := []string{"qilbeemem", "episode", string(ep.Type), string(ep.Status)}

	if ep.Supersedes() != "" {
		tags = append(tags, "correction")
	}

	// Add custom tags
	tags = append(tags, e.cfg.Tags...)

	// Sort and deduplicate
	sort.Strings(tags)
	return unique(tags)
}

// Template helper functions

// noteFilename returns the deterministic note name for an episode:
// the event date followed by the leading segment of the id.
func noteFilename(ep *memory.Episode) string {
	return noteName(ep) + ".md"
}

// noteName returns the note name without the .md extension.
func noteName(ep *memory.Episode) string {
	date := ep.EventTime.UTC().Format("2006-01-02")
	return date + "-" + shortID(ep.ID)
}

// shortID returns the leading segment of an episode id.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// indexFilename sorts ahead of date-prefixed notes in the vault.
const indexFilename = "_index.md"

// statusIcon returns an emoji icon for the lifecycle status.
func statusIcon(status memory.Status) string {
	switch status {
	case memory.StatusConsolidated:
		return ":blue_circle:"
	case memory.StatusForgotten:
		return ":white_circle:"
	default:
		return ":green_circle:"
	}
}

// statusCallout returns the Obsidian callout type for the status.
func statusCallout(status memory.Status) string {
	switch status {
	case memory.StatusConsolidated:
		return "success"
	case memory.StatusForgotten:
		return "warning"
	default:
		return "info"
	}
}

// formatTags formats tags as Obsidian hashtags.
func formatTags(tags []string) string {
	var result []string
	for _, t := range tags {
		result = append(result, "#"+t)
	}
	return strings.Join(result, " ")
}

// wikiLink creates an Obsidian wiki link.
func wikiLink(name string) string {
	return "[[" + name + "]]"
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// isoTime formats a time as RFC 3339.
func isoTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

// noteTitle derives a heading from the first line of the primary
// content.
func noteTitle(ep *memory.Episode) string {
	title := ep.Content.Primary
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return "Untitled episode"
	}
	if r := []rune(title); len(r) > 64 {
		title = string(r[:64])
	}
	return title
}

// yamlBlock marshals a value as YAML for embedding in frontmatter.
func yamlBlock(v any) (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Utility functions

// sanitizeFilename removes invalid characters from a filename.
func sanitizeFilename(name string) string {
	// Replace invalid characters
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := name
	for _, c := range invalid {
		result = strings.ReplaceAll(result, c, "-")
	}
	return result
}

// unique returns a slice with duplicate strings removed.
func unique(s []string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, v := range s {
		if !seen[v] {
			seen[v] = true
			result = append(result, v)
		}
	}
	return result
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
