package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aicubetechnology/qilbeeDB-sub001/internal/config"
	"github.com/aicubetechnology/qilbeeDB-sub001/internal/policy"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and manage qilbeemem configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the current configuration, including values from
config file, environment variables, and defaults.

Examples:
  # Show config in YAML format
  qilbeemem config show

  # Show config as JSON
  qilbeemem config show --json`,

	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Write a commented .qilbeemem.yaml with the default settings to the
current directory.

Examples:
  # Create ./.qilbeemem.yaml
  qilbeemem config init

  # Overwrite an existing file
  qilbeemem config init --force`,

	RunE: runConfigInit,
}

var configPoliciesCmd = &cobra.Command{
	Use:   "policies",
	Short: "List available retention policies",
	Long: `List the built-in retention policies plus any custom policies found
in the configured policy directory.`,

	RunE: runConfigPolicies,
}

var (
	configShowJSON  bool
	configInitForce bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPoliciesCmd)

	configShowCmd.Flags().BoolVar(&configShowJSON, "json", false, "output as JSON")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader()

	// Use config file from flag if provided
	if cfgFile != "" {
		loader.SetConfigFile(cfgFile)
	}

	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Show config file location
	if !isQuiet() {
		if configFile := loader.ConfigFileUsed(); configFile != "" {
			fmt.Printf("# Config file: %s\n\n", configFile)
		} else {
			fmt.Println("# No config file found, using defaults")
			fmt.Println()
		}
	}

	if configShowJSON {
		return outputConfigJSON(cfg)
	}

	return outputConfigYAML(cfg)
}

func outputConfigJSON(cfg *config.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func outputConfigYAML(cfg *config.Config) error {
	fmt.Println("storage:")
	fmt.Printf("  dir: %s\n", cfg.Storage.Dir)
	fmt.Printf("  sync_writes: %v\n", cfg.Storage.SyncWrites)
	fmt.Printf("  gc_interval: %s\n", cfg.Storage.GCInterval)
	fmt.Printf("  in_memory: %v\n", cfg.Storage.InMemory)

	fmt.Println("\nscoring:")
	fmt.Printf("  policy: %s\n", cfg.Scoring.Policy)
	fmt.Printf("  policy_dir: %s\n", cfg.Scoring.PolicyDir)

	fmt.Println("\nconsolidation:")
	fmt.Printf("  auto: %v\n", cfg.Consolidation.Auto)
	fmt.Printf("  schedule: %q\n", cfg.Consolidation.Schedule)
	fmt.Printf("  threshold: %d\n", cfg.Consolidation.Threshold)
	fmt.Printf("  batch_size: %d\n", cfg.Consolidation.BatchSize)
	fmt.Printf("  workers: %d\n", cfg.Consolidation.Workers)
	fmt.Printf("  queue_size: %d\n", cfg.Consolidation.QueueSize)

	fmt.Println("\nlimits:")
	fmt.Printf("  max_future_skew: %s\n", cfg.Limits.MaxFutureSkew)
	fmt.Printf("  default_recall_limit: %d\n", cfg.Limits.DefaultRecallLimit)
	fmt.Printf("  max_content_bytes: %d\n", cfg.Limits.MaxContentBytes)

	fmt.Println("\ncache:")
	fmt.Printf("  enabled: %v\n", cfg.Cache.Enabled)
	fmt.Printf("  max_entries: %d\n", cfg.Cache.MaxEntries)
	fmt.Printf("  ttl: %s\n", cfg.Cache.TTL)

	fmt.Println("\naudit:")
	fmt.Printf("  enabled: %v\n", cfg.Audit.Enabled)
	fmt.Printf("  path: %s\n", cfg.Audit.Path)

	fmt.Println("\nlog:")
	fmt.Printf("  level: %s\n", cfg.Log.Level)

	return nil
}

// configTemplate is the starter config written by config init. Paths
// are filled in from the computed defaults.
const configTemplate = `# qilbeemem configuration
#
# Search order: ./.qilbeemem.yaml, ~/.qilbeemem.yaml, /etc/qilbeemem/.
# Every key can be overridden with a QILBEEMEM_* environment variable,
# e.g. QILBEEMEM_STORAGE_DIR.

storage:
  dir: %s
  sync_writes: true
  gc_interval: 5m
  in_memory: false

scoring:
  # balanced, retentive, ephemeral, or a custom policy from policy_dir
  policy: balanced
  policy_dir: %s

consolidation:
  auto: true
  schedule: "@every 1h"
  threshold: 1000
  batch_size: 100
  workers: 2
  queue_size: 16

limits:
  max_future_skew: 5m
  default_recall_limit: 20
  max_content_bytes: 1048576

cache:
  enabled: true
  max_entries: 1024
  ttl: 5m

audit:
  enabled: true
  path: %s

log:
  level: info
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	const path = ".qilbeemem.yaml"

	if _, err := os.Stat(path); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	defaults := config.DefaultConfig()
	content := fmt.Sprintf(configTemplate,
		defaults.Storage.Dir,
		defaults.Scoring.PolicyDir,
		defaults.Audit.Path)

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if !isQuiet() {
		fmt.Printf("Wrote %s\n", path)
	}
	return nil
}

func runConfigPolicies(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	loader := policy.NewLoader(cfg.Scoring.PolicyDir)
	names, err := loader.Names()
	if err != nil {
		return fmt.Errorf("listing policies: %w", err)
	}

	for _, name := range names {
		marker := " "
		if name == cfg.Scoring.Policy {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, name)
	}
	return nil
}
