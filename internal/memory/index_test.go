package memory

import (
	"context"
	"math"
	"testing"
	"time"
)

func indexEpisode(agent, id string, event, tx time.Time) *Episode {
	ep := testEpisode(agent, id, event)
	ep.TransactionTime = tx
	return ep
}

func TestIndexApplyEpisode(t *testing.T) {
	idx := newIndex()

	if idx.snapshot("a1") != nil {
		t.Error("Unknown agent should have no snapshot")
	}
	if idx.version("a1") != 0 {
		t.Error("Unknown agent should be at version 0")
	}

	now := time.Now().UTC()
	idx.applyEpisode("a1", indexEpisode("a1", "ep-1", now, now))

	if idx.snapshot("a1") == nil {
		t.Fatal("Expected a snapshot after the first episode")
	}
	if en := idx.entry("a1", "ep-1"); en == nil {
		t.Fatal("Expected an entry for ep-1")
	}
	if got := idx.version("a1"); got != 1 {
		t.Errorf("Expected version 1, got %d", got)
	}
	if got := idx.activeCount("a1"); got != 1 {
		t.Errorf("Expected 1 active episode, got %d", got)
	}
}

func TestIndexApplyEpisodeIdempotent(t *testing.T) {
	idx := newIndex()
	now := time.Now().UTC()

	ep := indexEpisode("a1", "ep-1", now, now)
	idx.applyEpisode("a1", ep)
	idx.applyEpisode("a1", ep)

	st := idx.statistics("a1")
	if st.Total != 1 || st.Active != 1 {
		t.Errorf("Re-applying the same id should be a no-op: %+v", st)
	}
	if got := len(idx.recent("a1", 10)); got != 1 {
		t.Errorf("Expected 1 recent episode, got %d", got)
	}
}

func TestIndexRecentOrder(t *testing.T) {
	idx := newIndex()
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	// Committed in one order, happened in another.
	idx.applyEpisode("a1", indexEpisode("a1", "oldest", base, base.Add(1*time.Second)))
	idx.applyEpisode("a1", indexEpisode("a1", "newest", base.Add(2*time.Hour), base.Add(2*time.Second)))
	idx.applyEpisode("a1", indexEpisode("a1", "middle", base.Add(time.Hour), base.Add(3*time.Second)))

	got := idx.recent("a1", 10)
	want := []string{"newest", "middle", "oldest"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d episodes, got %d", len(want), len(got))
	}
	for i, ep := range got {
		if ep.ID != want[i] {
			t.Errorf("Position %d: got %s, want %s", i, ep.ID, want[i])
		}
	}

	if limited := idx.recent("a1", 2); len(limited) != 2 || limited[0].ID != "newest" {
		t.Errorf("Limit 2 should keep the newest pair, got %v", limited)
	}
}

func TestIndexRecentTieBreak(t *testing.T) {
	idx := newIndex()
	event := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	idx.applyEpisode("a1", indexEpisode("a1", "committed-first", event, event.Add(time.Second)))
	idx.applyEpisode("a1", indexEpisode("a1", "committed-second", event, event.Add(2*time.Second)))

	// Equal event times: the most recently recorded wins.
	got := idx.recent("a1", 2)
	if got[0].ID != "committed-second" || got[1].ID != "committed-first" {
		t.Errorf("Tie break by commit time failed: [%s %s]", got[0].ID, got[1].ID)
	}
}

func TestIndexRecentExcludesForgotten(t *testing.T) {
	idx := newIndex()
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	idx.applyEpisode("a1", indexEpisode("a1", "keep", base, base))
	idx.applyEpisode("a1", indexEpisode("a1", "drop", base.Add(time.Hour), base.Add(time.Second)))
	idx.applyStatus("a1", &statusChange{EpisodeID: "drop", Status: StatusForgotten, At: base}, false)

	got := idx.recent("a1", 10)
	if len(got) != 1 || got[0].ID != "keep" {
		t.Errorf("Forgotten episodes should not be recalled, got %v", got)
	}
}

func TestIndexApplyStatus(t *testing.T) {
	idx := newIndex()
	now := time.Now().UTC()
	idx.applyEpisode("a1", indexEpisode("a1", "ep-1", now, now))

	if idx.applyStatus("a1", &statusChange{EpisodeID: "ghost", Status: StatusForgotten, At: now}, false) {
		t.Error("Unknown episode should report false")
	}
	if idx.applyStatus("ghost-agent", &statusChange{EpisodeID: "ep-1", Status: StatusForgotten, At: now}, false) {
		t.Error("Unknown agent should report false")
	}

	if !idx.applyStatus("a1", &statusChange{EpisodeID: "ep-1", Status: StatusConsolidated, At: now}, false) {
		t.Fatal("Known episode should report true")
	}

	st := idx.statistics("a1")
	if st.Active != 0 || st.Consolidated != 1 {
		t.Errorf("Expected the episode to move to consolidated: %+v", st)
	}
	if got := idx.entry("a1", "ep-1").episode(); got.Status != StatusConsolidated {
		t.Errorf("Entry status = %s, want consolidated", got.Status)
	}
}

func TestIndexApplyStatusRestoresCounters(t *testing.T) {
	idx := newIndex()
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	idx.applyEpisode("a1", indexEpisode("a1", "ep-1", now, now))

	accessed := now.Add(30 * time.Minute)
	ch := &statusChange{
		EpisodeID:    "ep-1",
		Status:       StatusConsolidated,
		Relevance:    0.42,
		AccessCount:  7,
		LastAccessed: accessed,
		At:           now.Add(time.Hour),
	}
	if !idx.applyStatus("a1", ch, true) {
		t.Fatal("applyStatus failed")
	}

	got := idx.entry("a1", "ep-1").episode()
	if got.AccessCount != 7 {
		t.Errorf("AccessCount = %d, want 7", got.AccessCount)
	}
	if got.Relevance != 0.42 {
		t.Errorf("Relevance = %v, want 0.42", got.Relevance)
	}
	if !got.LastAccessed.Equal(accessed) {
		t.Errorf("LastAccessed = %v, want %v", got.LastAccessed, accessed)
	}
}

func TestIndexViewsAreImmutable(t *testing.T) {
	idx := newIndex()
	now := time.Now().UTC()
	idx.applyEpisode("a1", indexEpisode("a1", "ep-1", now, now))

	before := idx.snapshot("a1")
	idx.applyStatus("a1", &statusChange{EpisodeID: "ep-1", Status: StatusForgotten, At: now}, false)
	after := idx.snapshot("a1")

	// A reader holding the old generation keeps seeing the old state.
	if got := before.byID["ep-1"].ep.Status; got != StatusActive {
		t.Errorf("Old view mutated: status %s", got)
	}
	if got := after.byID["ep-1"].ep.Status; got != StatusForgotten {
		t.Errorf("New view status = %s, want forgotten", got)
	}
	if after.version != before.version+1 {
		t.Errorf("Version %d should follow %d", after.version, before.version)
	}
}

func TestIndexEntryEpisodeCopies(t *testing.T) {
	idx := newIndex()
	now := time.Now().UTC()
	ep := indexEpisode("a1", "ep-1", now, now)
	ep.Connections = []Connection{{TargetID: "ep-0", Kind: ConnReferences}}
	idx.applyEpisode("a1", ep)

	en := idx.entry("a1", "ep-1")
	first := en.episode()
	first.Content.Primary = "scribbled"
	first.Connections[0].TargetID = "poked"

	second := en.episode()
	if second.Content.Primary != "note ep-1" {
		t.Errorf("Returned episodes must be caller-owned copies, got %q", second.Content.Primary)
	}
	if second.Connections[0].TargetID != "ep-0" {
		t.Errorf("Connections must be copied, got %q", second.Connections[0].TargetID)
	}
}

func TestIndexEntryFoldsLiveCounters(t *testing.T) {
	idx := newIndex()
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	idx.applyEpisode("a1", indexEpisode("a1", "ep-1", now, now))

	en := idx.entry("a1", "ep-1")
	touched := now.Add(time.Hour)
	en.stats.touch(touched)
	en.stats.touch(touched.Add(time.Minute))

	got := en.episode()
	if got.AccessCount != 2 {
		t.Errorf("AccessCount = %d, want 2", got.AccessCount)
	}
	if !got.LastAccessed.Equal(touched.Add(time.Minute)) {
		t.Errorf("LastAccessed = %v, want %v", got.LastAccessed, touched.Add(time.Minute))
	}
}

func TestIndexApplyClear(t *testing.T) {
	idx := newIndex()
	now := time.Now().UTC()

	idx.applyEpisode("a1", indexEpisode("a1", "ep-0", now, now))
	idx.applyEpisode("a1", indexEpisode("a1", "ep-1", now.Add(time.Second), now.Add(time.Second)))
	idx.applyEpisode("a1", indexEpisode("a1", "ep-2", now.Add(2*time.Second), now.Add(2*time.Second)))
	idx.applyStatus("a1", &statusChange{EpisodeID: "ep-0", Status: StatusForgotten, At: now}, false)

	// Only the two not already forgotten count.
	if got := idx.applyClear("a1"); got != 2 {
		t.Errorf("Clear touched %d episodes, want 2", got)
	}

	st := idx.statistics("a1")
	if st.Forgotten != 3 || st.Active != 0 {
		t.Errorf("Everything should be forgotten after clear: %+v", st)
	}

	if got := idx.applyClear("a1"); got != 0 {
		t.Errorf("Second clear touched %d episodes, want 0", got)
	}
	if got := idx.applyClear("ghost"); got != 0 {
		t.Errorf("Clear of unknown agent touched %d, want 0", got)
	}
}

func TestIndexConnectionDegree(t *testing.T) {
	idx := newIndex()
	now := time.Now().UTC()

	idx.applyEpisode("a1", indexEpisode("a1", "a", now, now))

	b := indexEpisode("a1", "b", now.Add(time.Second), now.Add(time.Second))
	b.Connections = []Connection{{TargetID: "a", Kind: ConnReferences}}
	idx.applyEpisode("a1", b)

	c := indexEpisode("a1", "c", now.Add(2*time.Second), now.Add(2*time.Second))
	c.Connections = []Connection{
		{TargetID: "a", Kind: ConnSupersedes},
		{TargetID: "b", Kind: ConnReferences},
	}
	idx.applyEpisode("a1", c)

	// Degree counts outgoing links plus links pointing in.
	for id, want := range map[string]int{"a": 2, "b": 2, "c": 2} {
		if got := idx.connections("a1", id); got != want {
			t.Errorf("Degree of %s = %d, want %d", id, got, want)
		}
	}

	// Tombstoning a neighbour does not shrink anyone's degree.
	idx.applyStatus("a1", &statusChange{EpisodeID: "a", Status: StatusForgotten, At: now}, false)
	if got := idx.connections("a1", "b"); got != 2 {
		t.Errorf("Degree of b after tombstoning a = %d, want 2", got)
	}
}

func TestIndexSearch(t *testing.T) {
	idx := newIndex()
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	add := func(id, primary string, relevance float64, offset time.Duration) {
		ep := indexEpisode("a1", id, base.Add(offset), base.Add(offset))
		ep.Content.Primary = primary
		ep.Relevance = relevance
		idx.applyEpisode("a1", ep)
	}
	add("low", "alpha deployment failed", 0.2, 0)
	add("high", "alpha deployment fixed", 0.9, time.Minute)
	add("mid", "alpha rollback started", 0.5, 2*time.Minute)
	add("other", "beta release notes", 0.8, 3*time.Minute)

	got, err := idx.search(context.Background(), "a1", "alpha", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	want := []string{"high", "mid", "low"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d matches, got %d", len(want), len(got))
	}
	for i, res := range got {
		if res.Episode.ID != want[i] {
			t.Errorf("Rank %d: got %s (%.2f), want %s", i, res.Episode.ID, res.Score, want[i])
		}
	}

	if limited, _ := idx.search(context.Background(), "a1", "alpha", 1); len(limited) != 1 || limited[0].Episode.ID != "high" {
		t.Errorf("Limit 1 should keep the top match, got %v", limited)
	}

	if none, _ := idx.search(context.Background(), "a1", "gamma", 10); len(none) != 0 {
		t.Errorf("Expected no matches, got %d", len(none))
	}
	if unknown, _ := idx.search(context.Background(), "ghost", "alpha", 10); unknown != nil {
		t.Errorf("Unknown agent should return nil, got %v", unknown)
	}
}

func TestIndexSearchExcludesForgotten(t *testing.T) {
	idx := newIndex()
	now := time.Now().UTC()

	ep := indexEpisode("a1", "ep-1", now, now)
	ep.Content.Primary = "deployment checklist"
	idx.applyEpisode("a1", ep)
	idx.applyStatus("a1", &statusChange{EpisodeID: "ep-1", Status: StatusForgotten, At: now}, false)

	got, err := idx.search(context.Background(), "a1", "deployment", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Forgotten episodes should not match, got %d results", len(got))
	}
}

func TestIndexSearchMatchesAllTextFields(t *testing.T) {
	idx := newIndex()
	now := time.Now().UTC()

	ep := indexEpisode("a1", "ep-1", now, now)
	ep.Content = Content{
		Primary:   "the build went green",
		Secondary: "after the cache purge",
		Context:   "release week",
	}
	idx.applyEpisode("a1", ep)

	for _, q := range []string{"build", "cache purge", "release week"} {
		got, err := idx.search(context.Background(), "a1", q, 10)
		if err != nil {
			t.Fatalf("Search %q failed: %v", q, err)
		}
		if len(got) != 1 {
			t.Errorf("Query %q matched %d episodes, want 1", q, len(got))
		}
	}
}

func TestIndexSearchHonorsContext(t *testing.T) {
	idx := newIndex()
	now := time.Now().UTC()
	idx.applyEpisode("a1", indexEpisode("a1", "ep-1", now, now))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := idx.search(ctx, "a1", "note", 10); err == nil {
		t.Error("Expected a context error from a cancelled search")
	}
}

func TestIndexStatistics(t *testing.T) {
	idx := newIndex()

	if idx.statistics("ghost") != nil {
		t.Error("Unknown agent should have nil statistics")
	}

	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	add := func(id string, relevance float64, offset time.Duration) {
		ep := indexEpisode("a1", id, base.Add(offset), base.Add(offset))
		ep.Relevance = relevance
		idx.applyEpisode("a1", ep)
	}
	add("ep-0", 0.8, 0)
	add("ep-1", 0.4, time.Hour)
	add("ep-2", 0.1, 2*time.Hour)

	idx.applyStatus("a1", &statusChange{EpisodeID: "ep-0", Status: StatusConsolidated, At: base}, false)
	idx.applyStatus("a1", &statusChange{EpisodeID: "ep-2", Status: StatusForgotten, At: base}, false)

	st := idx.statistics("a1")
	if st.Total != 3 || st.Active != 1 || st.Consolidated != 1 || st.Forgotten != 1 {
		t.Errorf("Counts wrong: %+v", st)
	}
	if !st.OldestEventTime.Equal(base) || !st.NewestEventTime.Equal(base.Add(2*time.Hour)) {
		t.Errorf("Event bounds wrong: oldest %v, newest %v", st.OldestEventTime, st.NewestEventTime)
	}

	// The forgotten episode's relevance is out of the average.
	if want := (0.8 + 0.4) / 2; math.Abs(st.AvgRelevance-want) > 1e-9 {
		t.Errorf("AvgRelevance = %v, want %v", st.AvgRelevance, want)
	}
}

func TestIndexRemoveAgent(t *testing.T) {
	idx := newIndex()
	now := time.Now().UTC()
	idx.applyEpisode("a1", indexEpisode("a1", "ep-1", now, now))
	idx.applyEpisode("a2", indexEpisode("a2", "ep-2", now, now))

	idx.removeAgent("a1")

	if idx.snapshot("a1") != nil {
		t.Error("Removed agent should have no snapshot")
	}
	got := idx.agentIDs()
	if len(got) != 1 || got[0] != "a2" {
		t.Errorf("Agents after removal = %v, want [a2]", got)
	}
}

func TestBulkBuilderSortsOnFinalize(t *testing.T) {
	idx := newIndex()
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	b := newBulkBuilder()
	b.addEpisode(indexEpisode("a1", "newest", base.Add(2*time.Hour), base.Add(3*time.Second)), nil)
	b.addEpisode(indexEpisode("a1", "oldest", base, base.Add(time.Second)), nil)
	b.addEpisode(indexEpisode("a1", "middle", base.Add(time.Hour), base.Add(2*time.Second)), nil)
	idx.install("a1", b.finalize())

	got := idx.recent("a1", 10)
	want := []string{"newest", "middle", "oldest"}
	for i, ep := range got {
		if ep.ID != want[i] {
			t.Errorf("Position %d: got %s, want %s", i, ep.ID, want[i])
		}
	}
}
