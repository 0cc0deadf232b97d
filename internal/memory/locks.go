package memory

import (
	"sync"
	"sync/atomic"
)

// agentLocks hands out one lock per agent namespace. The mutex
// serializes every durable write for the agent and guards the
// transaction clock. Writes for different agents never contend.
type agentLocks struct {
	mu    sync.Mutex
	locks map[string]*agentLock
}

// agentLock is the per-agent write lock. consolidating gives
// consolidation its fast-fail exclusivity without blocking ordinary
// writers: a pass flips it for its whole duration but holds mu only
// per batch.
type agentLock struct {
	mu            sync.Mutex
	consolidating atomic.Bool

	// lastTS is the highest committed transaction time in nanoseconds.
	// Guarded by mu.
	lastTS uint64
}

func newAgentLocks() *agentLocks {
	return &agentLocks{locks: make(map[string]*agentLock)}
}

// of returns the lock for an agent, creating it on first use. Locks
// are never removed, even by purge: callers may hold a reference at
// any time, and the transaction clock must survive so commit times
// stay monotonic across a purge-then-store sequence.
func (a *agentLocks) of(agent string) *agentLock {
	a.mu.Lock()
	defer a.mu.Unlock()
	lk, ok := a.locks[agent]
	if !ok {
		lk = &agentLock{}
		a.locks[agent] = lk
	}
	return lk
}
