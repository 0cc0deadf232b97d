package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

func TestReopenPreservesMonotonicTransactionTimes(t *testing.T) {
	dir := t.TempDir()

	m := openTestMemory(t, Options{Dir: dir})
	var last time.Time
	for i := 0; i < 5; i++ {
		last = mustStore(t, m, newDraft("a1", "before restart")).TransactionTime
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// The clock is recovered from the replayed log, so commits after
	// a restart continue the same strictly increasing sequence.
	m = openTestMemory(t, Options{Dir: dir})
	for i := 0; i < 5; i++ {
		ep := mustStore(t, m, newDraft("a1", "after restart"))
		if !ep.TransactionTime.After(last) {
			t.Fatalf("Commit %d at %v is not after pre-restart %v", i, ep.TransactionTime, last)
		}
		last = ep.TransactionTime
	}
}

func TestReopenRebuildsLifecycleState(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	m := openTestMemory(t, Options{Dir: dir})

	// Importance 1.0 plus one access clears the 0.7 promotion bar;
	// the referencing neutral episode stays active; the ancient
	// throwaway goes under the forget floor.
	dPromote := newDraft("a1", "hard-won production lesson")
	dPromote.Importance = imp(1.0)
	toPromote := mustStore(t, m, dPromote)

	dActive := newDraft("a1", "everyday observation")
	dActive.Connections = []Connection{{TargetID: toPromote.ID, Kind: ConnReferences}}
	toStay := mustStore(t, m, dActive)

	toForget := storeAged(t, m, "a1", 365, 0.0)

	for i := 0; i < 3; i++ {
		if _, err := m.Get(ctx, "a1", toStay.ID); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}
	if _, err := m.Get(ctx, "a1", toPromote.ID); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := m.Get(ctx, "a1", toForget.ID); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if n, err := m.Forget(ctx, "a1", 0); err != nil || n != 1 {
		t.Fatalf("Forget = %d, %v; want 1, nil", n, err)
	}
	res, err := m.Consolidate(ctx, "a1")
	if err != nil {
		t.Fatalf("Consolidate failed: %v", err)
	}
	if res.Promoted != 1 {
		t.Fatalf("Promoted %d, want 1", res.Promoted)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	m = openTestMemory(t, Options{Dir: dir})

	st, err := m.Statistics(ctx, "a1")
	if err != nil {
		t.Fatalf("Statistics after reopen failed: %v", err)
	}
	if st.Total != 3 || st.Active != 1 || st.Consolidated != 1 || st.Forgotten != 1 {
		t.Errorf("Rebuilt counts wrong: %+v", st)
	}

	// Counters come back from the transition snapshots. Reads are
	// volatile until a transition persists them, so the episode that
	// never transitioned restarts at zero.
	exported := map[string]*Episode{}
	err = m.Export(ctx, "a1", ScanOptions{}, func(ep *Episode) error {
		exported[ep.ID] = ep
		return nil
	})
	if err != nil {
		t.Fatalf("Export after reopen failed: %v", err)
	}
	if len(exported) != 3 {
		t.Fatalf("Exported %d records, want 3", len(exported))
	}

	if got := exported[toPromote.ID]; got.Status != StatusConsolidated || got.AccessCount != 1 {
		t.Errorf("Promoted episode rebuilt as %s with %d accesses, want consolidated with 1",
			got.Status, got.AccessCount)
	}
	if got := exported[toForget.ID]; got.Status != StatusForgotten || got.AccessCount != 1 {
		t.Errorf("Forgotten episode rebuilt as %s with %d accesses, want forgotten with 1",
			got.Status, got.AccessCount)
	}
	if got := exported[toStay.ID]; got.Status != StatusActive || got.AccessCount != 0 {
		t.Errorf("Active episode rebuilt as %s with %d accesses, want active with 0",
			got.Status, got.AccessCount)
	}

	// Connection degree is derived from the records themselves.
	if got := m.idx.connections("a1", toPromote.ID); got != 1 {
		t.Errorf("Degree of referenced episode = %d, want 1", got)
	}
	if got := m.idx.connections("a1", toStay.ID); got != 1 {
		t.Errorf("Degree of referencing episode = %d, want 1", got)
	}

	recent, err := m.Recent(ctx, "a1", 10)
	if err != nil {
		t.Fatalf("Recent after reopen failed: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("Recent after reopen returned %d episodes, want 2", len(recent))
	}
}

func TestReopenAfterClear(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	m := openTestMemory(t, Options{Dir: dir})
	a := mustStore(t, m, newDraft("a1", "first"))
	b := mustStore(t, m, newDraft("a1", "second"))
	if _, err := m.Clear(ctx, "a1", "reset before restart"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	m = openTestMemory(t, Options{Dir: dir})
	for _, id := range []string{a.ID, b.ID} {
		ep, err := m.Get(ctx, "a1", id)
		if err != nil {
			t.Fatalf("Get after reopen failed: %v", err)
		}
		if ep.Status != StatusForgotten {
			t.Errorf("Episode %s rebuilt as %s, want forgotten", id, ep.Status)
		}
	}
}

func TestReopenQuarantinesCorruption(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	m := openTestMemory(t, Options{Dir: dir})
	good1 := mustStore(t, m, newDraft("a1", "survives"))
	victim := mustStore(t, m, newDraft("a1", "about to rot"))
	good2 := mustStore(t, m, newDraft("a1", "also survives"))
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Rot one record on disk, between engine sessions.
	raw := badger.DefaultOptions(dir)
	raw.Logger = nil
	db, err := badger.Open(raw)
	if err != nil {
		t.Fatalf("Failed to open log directly: %v", err)
	}
	victimTS := uint64(victim.TransactionTime.UnixNano())
	err = db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey("a1", victimTS), []byte("bit rot"))
	})
	if err != nil {
		t.Fatalf("Failed to corrupt record: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close log: %v", err)
	}

	// Recovery quarantines the rotten record and keeps going.
	m = openTestMemory(t, Options{Dir: dir})
	if got := m.Quarantined(); got != 1 {
		t.Errorf("Quarantined() = %d, want 1", got)
	}

	for _, id := range []string{good1.ID, good2.ID} {
		if _, err := m.Get(ctx, "a1", id); err != nil {
			t.Errorf("Intact episode %s lost: %v", id, err)
		}
	}
	if _, err := m.Get(ctx, "a1", victim.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Corrupt episode: expected ErrNotFound, got %v", err)
	}

	st, err := m.Statistics(ctx, "a1")
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	if st.Total != 2 {
		t.Errorf("Rebuilt %d episodes, want 2", st.Total)
	}

	// The engine still takes writes; the quarantined key is never
	// reassigned because the recovered clock counted it.
	ep := mustStore(t, m, newDraft("a1", "life goes on"))
	if got := uint64(ep.TransactionTime.UnixNano()); got <= victimTS {
		t.Errorf("New commit at %d did not pass the corrupt record's %d", got, victimTS)
	}
}

func TestExport(t *testing.T) {
	m := openTestMemory(t, Options{})
	ctx := context.Background()

	first := mustStore(t, m, newDraft("a1", "first commit"))
	second := storeAged(t, m, "a1", 30, 0.0)
	third := mustStore(t, m, newDraft("a1", "third commit"))

	if _, err := m.Get(ctx, "a1", second.ID); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if n, err := m.Forget(ctx, "a1", 0.3); err != nil || n != 1 {
		t.Fatalf("Forget = %d, %v; want 1, nil", n, err)
	}

	var got []*Episode
	err := m.Export(ctx, "a1", ScanOptions{}, func(ep *Episode) error {
		got = append(got, ep)
		return nil
	})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	// Commit order, forgotten included, live state overlaid.
	if len(got) != 3 {
		t.Fatalf("Exported %d records, want 3", len(got))
	}
	if got[0].ID != first.ID || got[1].ID != second.ID || got[2].ID != third.ID {
		t.Errorf("Export order [%s %s %s], want commit order", got[0].ID, got[1].ID, got[2].ID)
	}
	if got[1].Status != StatusForgotten {
		t.Errorf("Forgotten episode exported as %s", got[1].Status)
	}
	if got[1].AccessCount != 1 {
		t.Errorf("Overlaid access count = %d, want 1", got[1].AccessCount)
	}

	var reversed []*Episode
	err = m.Export(ctx, "a1", ScanOptions{Desc: true}, func(ep *Episode) error {
		reversed = append(reversed, ep)
		return nil
	})
	if err != nil {
		t.Fatalf("Descending export failed: %v", err)
	}
	if len(reversed) != 3 || reversed[0].ID != third.ID {
		t.Errorf("Descending export should start at the newest commit")
	}

	// A visitor can stop the stream early.
	seen := 0
	err = m.Export(ctx, "a1", ScanOptions{}, func(*Episode) error {
		seen++
		return ErrStopScan
	})
	if err != nil {
		t.Fatalf("Stopped export should return nil, got %v", err)
	}
	if seen != 1 {
		t.Errorf("Visited %d records before stopping, want 1", seen)
	}

	if err := m.Export(ctx, "ghost", ScanOptions{}, func(*Episode) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Errorf("Unknown agent: expected ErrNotFound, got %v", err)
	}
}
