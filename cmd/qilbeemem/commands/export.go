package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/aicubetechnology/qilbeeDB-sub001/internal/export"
	"github.com/aicubetechnology/qilbeeDB-sub001/internal/memory"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export an agent's full episode log",
	Long: `Export an agent's episodes as JSON lines or as a Markdown vault.

Unlike recall, export includes forgotten episodes: the log is the
audit trail and export reproduces all of it. Each record carries the
episode's current lifecycle status and access statistics.

The vault format writes one Obsidian-compatible note per episode with
connections rendered as wiki links, plus an index note per agent.
Note names are deterministic, so re-exporting refreshes the vault in
place.

Examples:
  # Export to stdout in commit order
  qilbeemem export --agent assistant-1

  # Export to a file, newest first
  qilbeemem export --agent assistant-1 --output episodes.jsonl --desc

  # Export along the event timeline
  qilbeemem export --agent assistant-1 --order event

  # Render the agent's memory into an Obsidian vault
  qilbeemem export --agent assistant-1 --format vault --vault ~/notes`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var (
	exportAgent  string
	exportOutput string
	exportOrder  string
	exportDesc   bool
	exportFormat string
	exportVault  string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportAgent, "agent", "a", "", "agent namespace")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
	exportCmd.Flags().StringVar(&exportOrder, "order", "transaction", "timeline to walk (transaction, event)")
	exportCmd.Flags().BoolVar(&exportDesc, "desc", false, "newest first")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "jsonl", "output format (jsonl, vault)")
	exportCmd.Flags().StringVar(&exportVault, "vault", "", "vault directory (overrides export.vault config)")
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportAgent == "" {
		return fmt.Errorf("--agent is required")
	}

	var order memory.ScanOrder
	switch exportOrder {
	case "transaction":
		order = memory.OrderTransactionTime
	case "event":
		order = memory.OrderEventTime
	default:
		return fmt.Errorf("invalid --order %q: want transaction or event", exportOrder)
	}

	switch exportFormat {
	case "jsonl":
		return exportJSONL(order)
	case "vault":
		return exportToVault(order)
	default:
		return fmt.Errorf("invalid --format %q: want jsonl or vault", exportFormat)
	}
}

// exportJSONL streams the agent's episodes as JSON lines.
func exportJSONL(order memory.ScanOrder) error {
	out, closeOut, err := openOutput(exportOutput)
	if err != nil {
		return err
	}
	defer closeOut()

	mem, _, err := openEngine()
	if err != nil {
		return err
	}
	defer mem.Close()

	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)

	count := 0
	err = mem.Export(context.Background(), exportAgent, memory.ScanOptions{Order: order, Desc: exportDesc},
		func(ep *memory.Episode) error {
			count++
			return enc.Encode(ep)
		})
	if err != nil {
		return fmt.Errorf("exporting episodes: %w", err)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing output: %w", err)
	}

	if exportOutput != "" && !isQuiet() {
		fmt.Fprintf(os.Stderr, "Exported %d episodes to %s\n", count, exportOutput)
	}
	return nil
}

// exportToVault renders the agent's episodes as Markdown notes.
func exportToVault(order memory.ScanOrder) error {
	mem, cfg, err := openEngine()
	if err != nil {
		return err
	}
	defer mem.Close()

	if exportVault != "" {
		cfg.Export.Vault = exportVault
	}
	if cfg.Export.Vault == "" {
		return fmt.Errorf("--vault or the export.vault config key is required for vault export")
	}

	exp, err := export.NewVaultExporter(&cfg.Export)
	if err != nil {
		return err
	}

	var episodes []*memory.Episode
	err = mem.Export(context.Background(), exportAgent, memory.ScanOptions{Order: order, Desc: exportDesc},
		func(ep *memory.Episode) error {
			episodes = append(episodes, ep)
			return nil
		})
	if err != nil {
		return fmt.Errorf("exporting episodes: %w", err)
	}

	meta := &export.Metadata{
		AgentID:    exportAgent,
		ExportedAt: time.Now(),
		Source:     cfg.Storage.Dir,
	}
	if err := exp.Export(episodes, meta); err != nil {
		return fmt.Errorf("writing vault: %w", err)
	}

	if !isQuiet() {
		fmt.Fprintf(os.Stderr, "Exported %d episodes to %s\n", len(episodes), exp.OutputDir(exportAgent))
	}
	return nil
}

// openOutput returns the export destination and a close function.
func openOutput(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("creating output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
