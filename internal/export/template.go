package export

// defaultNoteTemplate renders one episode as a Markdown note.
const defaultNoteTemplate = `---
{{yamlBlock .Frontmatter}}---

# {{noteTitle .Episode}}

> [!{{statusCallout .Episode.Status}}] {{statusIcon .Episode.Status}} {{.Episode.Status}}
> Importance {{printf "%.2f" .Episode.Importance}}, relevance {{printf "%.2f" .Episode.Relevance}}

## Content

{{.Episode.Content.Primary}}
{{- if .Episode.Content.Secondary}}

{{.Episode.Content.Secondary}}
{{- end}}
{{- if .Episode.Content.Context}}

> [!quote] Context
> {{.Episode.Content.Context}}
{{- end}}
{{- if .Episode.Content.Data}}

## Data

| Key | Value |
|-----|-------|
{{- range $k, $v := .Episode.Content.Data}}
| {{$k}} | {{$v}} |
{{- end}}
{{- end}}
{{- if .Episode.Connections}}

## Connections

{{- range .Episode.Connections}}
- {{.Kind}} {{wikiLink .TargetID}}
{{- end}}
{{- end}}

## Timeline

- Happened: {{formatTime .Episode.EventTime}}
- Recorded: {{formatTime .Episode.TransactionTime}}
{{- if not .Episode.LastAccessed.IsZero}}
- Last recalled: {{formatTime .Episode.LastAccessed}} ({{.Episode.AccessCount}} recalls)
{{- end}}

{{formatTags .Frontmatter.Tags}}
`

// defaultIndexTemplate renders the per-agent index note.
const defaultIndexTemplate = `---
{{yamlBlock .Frontmatter}}---

# Memory index: {{.Meta.AgentID}}

Exported {{formatTime .Meta.ExportedAt}}{{if .Meta.Source}} from {{.Meta.Source}}{{end}}. {{.Total}} episodes.
{{- if .Active}}

## Active ({{len .Active}})

{{- range .Active}}
- {{statusIcon .Status}} {{wikiLink (noteName .)}} {{noteTitle .}}
{{- end}}
{{- end}}
{{- if .Consolidated}}

## Consolidated ({{len .Consolidated}})

{{- range .Consolidated}}
- {{statusIcon .Status}} {{wikiLink (noteName .)}} {{noteTitle .}}
{{- end}}
{{- end}}
{{- if .Forgotten}}

## Forgotten ({{len .Forgotten}})

{{- range .Forgotten}}
- {{statusIcon .Status}} {{wikiLink (noteName .)}} {{noteTitle .}}
{{- end}}
{{- end}}
`
