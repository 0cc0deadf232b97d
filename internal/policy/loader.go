package policy

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var embeddedPolicies embed.FS

// Loader handles loading policies from files.
type Loader struct {
	policyDir string
}

// NewLoader creates a new policy loader. policyDir may be empty, in
// which case only the embedded presets are available.
func NewLoader(policyDir string) *Loader {
	return &Loader{policyDir: policyDir}
}

// Load loads all policies from configured sources. A custom policy
// with the same name as an embedded preset replaces it.
func (l *Loader) Load() (map[string]*Policy, error) {
	policies := make(map[string]*Policy)

	embedded, err := l.loadEmbedded()
	if err != nil {
		return nil, fmt.Errorf("loading embedded policies: %w", err)
	}
	for _, p := range embedded {
		policies[p.Name] = p
	}

	if l.policyDir != "" {
		custom, err := l.loadFromDir(l.policyDir)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading custom policies: %w", err)
		}
		for _, p := range custom {
			policies[p.Name] = p
		}
	}

	return policies, nil
}

// Get loads the named policy and validates it.
func (l *Loader) Get(name string) (*Policy, error) {
	policies, err := l.Load()
	if err != nil {
		return nil, err
	}
	p, ok := policies[name]
	if !ok {
		return nil, fmt.Errorf("unknown policy %q (available: %s)", name, strings.Join(names(policies), ", "))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Names returns the names of all loadable policies, sorted.
func (l *Loader) Names() ([]string, error) {
	policies, err := l.Load()
	if err != nil {
		return nil, err
	}
	return names(policies), nil
}

func names(policies map[string]*Policy) []string {
	out := make([]string, 0, len(policies))
	for name := range policies {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (l *Loader) loadEmbedded() ([]*Policy, error) {
	var all []*Policy

	entries, err := embeddedPolicies.ReadDir("defaults")
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		data, err := embeddedPolicies.ReadFile("defaults/" + entry.Name())
		if err != nil {
			return nil, err
		}

		p, err := parsePolicyYAML(data, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", entry.Name(), err)
		}
		all = append(all, p)
	}

	return all, nil
}

func (l *Loader) loadFromDir(dir string) ([]*Policy, error) {
	var all []*Policy

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		p, err := parsePolicyYAML(data, filepath.Base(path))
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		all = append(all, p)
		return nil
	})

	return all, err
}

// parsePolicyYAML decodes one policy per file. A missing name falls
// back to the file name without extension.
func parsePolicyYAML(data []byte, filename string) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	return &p, nil
}
