package commands

import (
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/aicubetechnology/qilbeeDB-sub001/internal/memory"
)

// resetStoreFlags returns the store flag vars to their defaults. The
// vars are package level and shared between tests.
func resetStoreFlags() {
	storeAgent = ""
	storeType = "observation"
	storeText = ""
	storeResponse = ""
	storeContext = ""
	storeData = nil
	storeImportance = 0.5
	storeEventTime = ""
	storeConnect = nil
	storeSupersedes = ""
	storeJSON = false
}

// newStoreFlagSet builds a throwaway command carrying the importance
// flag buildDraft inspects for explicit changes.
func newStoreFlagSet(t *testing.T, importance string) *cobra.Command {
	t.Helper()

	cmd := &cobra.Command{Use: "store"}
	cmd.Flags().Float64Var(&storeImportance, "importance", 0.5, "")
	if importance != "" {
		if err := cmd.Flags().Set("importance", importance); err != nil {
			t.Fatalf("setting importance flag: %v", err)
		}
	}
	return cmd
}

func TestBuildDraft(t *testing.T) {
	resetStoreFlags()
	storeAgent = "agent-1"
	storeType = "fact"
	storeText = "the contract was signed"
	storeResponse = "acknowledged"
	storeContext = "quarterly review"
	storeData = []string{"source=chat", "lang=en"}
	storeEventTime = "2026-08-01T09:00:00Z"
	storeConnect = []string{"ep-1", "ep-2"}
	storeSupersedes = "ep-0"

	draft, err := buildDraft(newStoreFlagSet(t, "0.9"))
	if err != nil {
		t.Fatalf("buildDraft() error = %v", err)
	}

	if draft.AgentID != "agent-1" {
		t.Errorf("AgentID = %q, want %q", draft.AgentID, "agent-1")
	}
	if draft.Type != memory.TypeFact {
		t.Errorf("Type = %q, want %q", draft.Type, memory.TypeFact)
	}
	if draft.Content.Primary != "the contract was signed" {
		t.Errorf("Primary = %q, want the flag text", draft.Content.Primary)
	}
	if draft.Content.Secondary != "acknowledged" {
		t.Errorf("Secondary = %q, want %q", draft.Content.Secondary, "acknowledged")
	}
	if got := draft.Content.Data["source"]; got != "chat" {
		t.Errorf("Data[source] = %q, want %q", got, "chat")
	}
	if got := draft.Content.Data["lang"]; got != "en" {
		t.Errorf("Data[lang] = %q, want %q", got, "en")
	}

	if draft.Importance == nil {
		t.Fatal("Importance = nil, want explicit value")
	}
	if *draft.Importance != 0.9 {
		t.Errorf("Importance = %v, want 0.9", *draft.Importance)
	}

	wantTime := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	if !draft.EventTime.Equal(wantTime) {
		t.Errorf("EventTime = %v, want %v", draft.EventTime, wantTime)
	}

	if len(draft.Connections) != 2 {
		t.Fatalf("len(Connections) = %d, want 2", len(draft.Connections))
	}
	for i, conn := range draft.Connections {
		if conn.Kind != memory.ConnReferences {
			t.Errorf("Connections[%d].Kind = %q, want %q", i, conn.Kind, memory.ConnReferences)
		}
	}
	if draft.Connections[0].TargetID != "ep-1" {
		t.Errorf("Connections[0].TargetID = %q, want %q", draft.Connections[0].TargetID, "ep-1")
	}

	if draft.Supersedes != "ep-0" {
		t.Errorf("Supersedes = %q, want %q", draft.Supersedes, "ep-0")
	}
}

func TestBuildDraftDefaults(t *testing.T) {
	resetStoreFlags()
	storeAgent = "agent-1"
	storeText = "plain observation"

	draft, err := buildDraft(newStoreFlagSet(t, ""))
	if err != nil {
		t.Fatalf("buildDraft() error = %v", err)
	}

	// Unset importance stays nil so the engine applies its default
	if draft.Importance != nil {
		t.Errorf("Importance = %v, want nil for unset flag", *draft.Importance)
	}
	if !draft.EventTime.IsZero() {
		t.Errorf("EventTime = %v, want zero for unset flag", draft.EventTime)
	}
	if len(draft.Connections) != 0 {
		t.Errorf("len(Connections) = %d, want 0", len(draft.Connections))
	}
	if draft.Content.Data != nil {
		t.Errorf("Data = %v, want nil", draft.Content.Data)
	}
}

func TestBuildDraftInvalidData(t *testing.T) {
	tests := []struct {
		name string
		pair string
	}{
		{"no separator", "nokey"},
		{"empty key", "=value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetStoreFlags()
			storeAgent = "agent-1"
			storeText = "text"
			storeData = []string{tt.pair}

			if _, err := buildDraft(newStoreFlagSet(t, "")); err == nil {
				t.Errorf("buildDraft() with data %q succeeded, want error", tt.pair)
			}
		})
	}
}

func TestBuildDraftInvalidEventTime(t *testing.T) {
	resetStoreFlags()
	storeAgent = "agent-1"
	storeText = "text"
	storeEventTime = "yesterday at noon"

	if _, err := buildDraft(newStoreFlagSet(t, "")); err == nil {
		t.Error("buildDraft() with malformed event time succeeded, want error")
	}
}

func TestBuildDraftMissingText(t *testing.T) {
	resetStoreFlags()
	storeAgent = "agent-1"

	if _, err := buildDraft(newStoreFlagSet(t, "")); err == nil {
		t.Error("buildDraft() without text succeeded, want error")
	}
}
