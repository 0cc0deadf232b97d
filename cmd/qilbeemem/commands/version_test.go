package commands

import (
	"encoding/json"
	"runtime"
	"strings"
	"testing"
)

// TestVersionInfoJSON tests JSON marshaling of VersionInfo
func TestVersionInfoJSON(t *testing.T) {
	info := VersionInfo{
		Version:   "1.0.0",
		Commit:    "abc123",
		BuildDate: "2026-08-15",
		GoVersion: runtime.Version(),
		OS:        "linux",
		Arch:      "amd64",
	}

	data, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("Failed to marshal VersionInfo: %v", err)
	}

	// Unmarshal back
	var decoded VersionInfo
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal VersionInfo: %v", err)
	}

	if decoded.Version != info.Version {
		t.Errorf("Version mismatch: got %v, want %v", decoded.Version, info.Version)
	}

	// Check JSON contains expected fields
	jsonStr := string(data)
	expectedFields := []string{"version", "commit", "build_date", "go_version", "os", "arch"}
	for _, field := range expectedFields {
		if !strings.Contains(jsonStr, field) {
			t.Errorf("JSON missing field: %s", field)
		}
	}
}

// TestRunVersion tests the version command paths directly
func TestRunVersion(t *testing.T) {
	origVersion := Version
	Version = "1.2.3-test"
	defer func() { Version = origVersion }()

	tests := []struct {
		name  string
		short bool
		json  bool
	}{
		{"full", false, false},
		{"short", true, false},
		{"json", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			versionShort = tt.short
			versionJSON = tt.json
			defer func() {
				versionShort = false
				versionJSON = false
			}()

			if err := runVersion(versionCmd, nil); err != nil {
				t.Errorf("runVersion() error = %v", err)
			}
		})
	}
}

// TestVersionCommandArgs tests that version command rejects arguments
func TestVersionCommandArgs(t *testing.T) {
	// Execute through rootCmd to properly test argument validation
	rootCmd.SetArgs([]string{"version", "unexpected-arg"})

	err := rootCmd.Execute()
	if err == nil {
		t.Error("Expected error for unexpected argument, got nil")
	}
}
