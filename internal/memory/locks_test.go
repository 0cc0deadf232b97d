package memory

import (
	"testing"
	"time"
)

func TestAgentLocksOf(t *testing.T) {
	locks := newAgentLocks()

	a := locks.of("a1")
	if a == nil {
		t.Fatal("Expected a lock, got nil")
	}
	if again := locks.of("a1"); again != a {
		t.Error("Same agent should get the same lock")
	}
	if other := locks.of("a2"); other == a {
		t.Error("Different agents should get different locks")
	}
}

func TestNextTransactionTimeTracksWallClock(t *testing.T) {
	lk := &agentLock{}

	before := uint64(time.Now().UnixNano())
	ts := nextTransactionTime(lk)
	after := uint64(time.Now().UnixNano())

	if ts < before || ts > after {
		t.Errorf("Expected a wall clock timestamp in [%d, %d], got %d", before, after, ts)
	}
}

func TestNextTransactionTimeBumpsPastLastCommit(t *testing.T) {
	lk := &agentLock{}
	lk.lastTS = uint64(time.Now().Add(time.Hour).UnixNano())

	// With the committed clock ahead of the wall clock the next
	// timestamp lands one past it, never on or before it.
	if got, want := nextTransactionTime(lk), lk.lastTS+1; got != want {
		t.Errorf("Expected timestamp %d, got %d", want, got)
	}
}

func TestNextTransactionTimeStrictlyIncreases(t *testing.T) {
	lk := &agentLock{}

	var prev uint64
	for i := 0; i < 10000; i++ {
		ts := nextTransactionTime(lk)
		if ts <= prev {
			t.Fatalf("Timestamp %d at step %d is not after %d", ts, i, prev)
		}
		lk.lastTS = ts
		prev = ts
	}
}
