package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// index is the in-memory read path, derived entirely from the log.
// Each agent's state is an immutable view behind an atomic pointer:
// writers build a replacement view and swap it in, readers load the
// current view and walk it without taking any lock. The registry
// mutex only guards the agent table itself and is never held while a
// view is read or built.
type index struct {
	mu     sync.RWMutex
	agents map[string]*agentIndex
}

type agentIndex struct {
	view atomic.Pointer[agentView]
}

// agentView is one immutable generation of an agent's index. byEvent
// holds episode ids ordered by (event time, transaction time)
// ascending, so walking it backwards yields newest-first with commits
// breaking ties.
type agentView struct {
	version      uint64
	byID         map[string]*indexEntry
	byEvent      []string
	active       map[string]struct{}
	consolidated map[string]struct{}
	forgotten    map[string]struct{}

	// connDegree is each episode's connection degree: its outgoing
	// links plus links pointing at it. Degree only grows; tombstoned
	// neighbours still count.
	connDegree map[string]int
}

// indexEntry pairs an immutable episode snapshot with its live
// counters. The episode pointer is replaced on status changes; the
// stats pointer is shared by every view generation so a lock-free read
// can bump counters without copying the view.
type indexEntry struct {
	ep    *Episode
	stats *epStats
}

// epStats holds the per-episode mutable counters.
type epStats struct {
	accessCount  atomic.Int64
	lastAccessed atomic.Int64  // unix nanos, 0 = never
	relevance    atomic.Uint64 // math.Float64bits
}

func newEpStats(ep *Episode) *epStats {
	s := &epStats{}
	s.accessCount.Store(ep.AccessCount)
	if !ep.LastAccessed.IsZero() {
		s.lastAccessed.Store(ep.LastAccessed.UnixNano())
	}
	s.storeRelevance(ep.Relevance)
	return s
}

func (s *epStats) loadRelevance() float64 {
	return math.Float64frombits(s.relevance.Load())
}

func (s *epStats) storeRelevance(v float64) {
	s.relevance.Store(math.Float64bits(v))
}

// touch records one retrieval.
func (s *epStats) touch(now time.Time) {
	s.accessCount.Add(1)
	s.lastAccessed.Store(now.UnixNano())
}

func (s *epStats) lastAccessedTime() time.Time {
	ns := s.lastAccessed.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// episode returns a caller-owned copy with the live counters folded
// in.
func (en *indexEntry) episode() *Episode {
	ep := *en.ep
	ep.AccessCount = en.stats.accessCount.Load()
	ep.LastAccessed = en.stats.lastAccessedTime()
	ep.Relevance = en.stats.loadRelevance()
	if len(ep.Connections) > 0 {
		ep.Connections = append([]Connection(nil), ep.Connections...)
	}
	return &ep
}

func newIndex() *index {
	return &index{agents: make(map[string]*agentIndex)}
}

// agentIndex returns the per-agent slot, creating it when create is
// set.
func (x *index) agentIndex(agent string, create bool) *agentIndex {
	x.mu.RLock()
	ai := x.agents[agent]
	x.mu.RUnlock()
	if ai != nil || !create {
		return ai
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if ai = x.agents[agent]; ai == nil {
		ai = &agentIndex{}
		x.agents[agent] = ai
	}
	return ai
}

// snapshot returns the current view for an agent, or nil for an
// unknown agent.
func (x *index) snapshot(agent string) *agentView {
	ai := x.agentIndex(agent, false)
	if ai == nil {
		return nil
	}
	return ai.view.Load()
}

// entry returns the live entry for an episode, or nil.
func (x *index) entry(agent, id string) *indexEntry {
	v := x.snapshot(agent)
	if v == nil {
		return nil
	}
	return v.byID[id]
}

// version returns the current view version for an agent. Used to key
// the search cache: any committed change produces a new version.
func (x *index) version(agent string) uint64 {
	v := x.snapshot(agent)
	if v == nil {
		return 0
	}
	return v.version
}

// connections returns an episode's connection degree.
func (x *index) connections(agent, id string) int {
	v := x.snapshot(agent)
	if v == nil {
		return 0
	}
	return v.connDegree[id]
}

// activeCount returns how many episodes are active for an agent.
func (x *index) activeCount(agent string) int {
	v := x.snapshot(agent)
	if v == nil {
		return 0
	}
	return len(v.active)
}

// agents returns every known agent id, sorted.
func (x *index) agentIDs() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]string, 0, len(x.agents))
	for agent := range x.agents {
		out = append(out, agent)
	}
	sort.Strings(out)
	return out
}

// recent returns up to limit episodes ordered newest event first,
// commits breaking ties. Forgotten episodes are excluded.
func (x *index) recent(agent string, limit int) []*Episode {
	v := x.snapshot(agent)
	if v == nil {
		return nil
	}

	out := make([]*Episode, 0, min(limit, len(v.byEvent)))
	for i := len(v.byEvent) - 1; i >= 0 && len(out) < limit; i-- {
		en := v.byID[v.byEvent[i]]
		if en.ep.Status == StatusForgotten {
			continue
		}
		out = append(out, en.episode())
	}
	return out
}

// search returns up to limit episodes whose content contains the
// query, ranked by relevance with recency breaking ties. Forgotten
// episodes are excluded. The query must already be lowercased.
func (x *index) search(ctx context.Context, agent, query string, limit int) ([]SearchResult, error) {
	v := x.snapshot(agent)
	if v == nil {
		return nil, nil
	}

	// Walk newest first so the stable sort below preserves recency
	// order among equal scores.
	var matches []SearchResult
	for i := len(v.byEvent) - 1; i >= 0; i-- {
		if i%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		en := v.byID[v.byEvent[i]]
		if en.ep.Status == StatusForgotten {
			continue
		}
		if !strings.Contains(en.ep.Content.searchText(), query) {
			continue
		}
		matches = append(matches, SearchResult{
			Episode: en.episode(),
			Score:   en.stats.loadRelevance(),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// statistics summarizes an agent's view, or returns nil for an
// unknown agent.
func (x *index) statistics(agent string) *Statistics {
	v := x.snapshot(agent)
	if v == nil {
		return nil
	}

	st := &Statistics{
		AgentID:      agent,
		Total:        len(v.byID),
		Active:       len(v.active),
		Consolidated: len(v.consolidated),
		Forgotten:    len(v.forgotten),
	}
	if len(v.byEvent) > 0 {
		st.OldestEventTime = v.byID[v.byEvent[0]].ep.EventTime
		st.NewestEventTime = v.byID[v.byEvent[len(v.byEvent)-1]].ep.EventTime
	}

	var sum float64
	var n int
	for id, en := range v.byID {
		if _, gone := v.forgotten[id]; gone {
			continue
		}
		sum += en.stats.loadRelevance()
		n++
	}
	if n > 0 {
		st.AvgRelevance = sum / float64(n)
	}
	return st
}

// install swaps in a fully built view, used by recovery.
func (x *index) install(agent string, v *agentView) {
	x.agentIndex(agent, true).view.Store(v)
}

// removeAgent drops an agent from the index entirely, used by purge.
func (x *index) removeAgent(agent string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.agents, agent)
}

// applyEpisode inserts a committed episode into the agent's view. The
// caller must hold the agent's write lock. Re-applying an id already
// present is a no-op, which makes log replay idempotent.
func (x *index) applyEpisode(agent string, ep *Episode) {
	ai := x.agentIndex(agent, true)
	b := newViewBuilder(ai.view.Load())
	b.addEpisode(ep, nil)
	ai.view.Store(b.finalize())
}

// applyStatus applies a committed status change. restoreStats is set
// during replay to load the snapshot counters; at runtime the live
// counters are already current. Returns false when the episode is
// unknown. The caller must hold the agent's write lock.
func (x *index) applyStatus(agent string, ch *statusChange, restoreStats bool) bool {
	ai := x.agentIndex(agent, false)
	if ai == nil {
		return false
	}
	b := newViewBuilder(ai.view.Load())
	ok := b.applyStatus(ch, restoreStats)
	if ok {
		ai.view.Store(b.finalize())
	}
	return ok
}

// applyClear tombstones every non-forgotten episode and returns how
// many it touched. The caller must hold the agent's write lock.
func (x *index) applyClear(agent string) int {
	ai := x.agentIndex(agent, false)
	if ai == nil {
		return 0
	}
	b := newViewBuilder(ai.view.Load())
	n := b.applyClear()
	if n > 0 {
		ai.view.Store(b.finalize())
	}
	return n
}

// viewBuilder accumulates changes into a new view generation. Runtime
// writes clone the previous view and apply one change; recovery uses
// a bulk builder that defers sorting until finalize.
type viewBuilder struct {
	version      uint64
	byID         map[string]*indexEntry
	byEvent      []string
	active       map[string]struct{}
	consolidated map[string]struct{}
	forgotten    map[string]struct{}
	connDegree   map[string]int
	sorted       bool
}

// newViewBuilder clones prev (nil means empty) for a single-change
// update.
func newViewBuilder(prev *agentView) *viewBuilder {
	b := &viewBuilder{sorted: true}
	if prev == nil {
		b.byID = make(map[string]*indexEntry)
		b.active = make(map[string]struct{})
		b.consolidated = make(map[string]struct{})
		b.forgotten = make(map[string]struct{})
		b.connDegree = make(map[string]int)
		return b
	}

	b.version = prev.version
	b.byID = make(map[string]*indexEntry, len(prev.byID)+1)
	for id, en := range prev.byID {
		b.byID[id] = en
	}
	b.byEvent = make([]string, len(prev.byEvent), len(prev.byEvent)+1)
	copy(b.byEvent, prev.byEvent)
	b.active = cloneSet(prev.active)
	b.consolidated = cloneSet(prev.consolidated)
	b.forgotten = cloneSet(prev.forgotten)
	b.connDegree = make(map[string]int, len(prev.connDegree))
	for id, d := range prev.connDegree {
		b.connDegree[id] = d
	}
	return b
}

// newBulkBuilder starts an empty builder that appends unsorted, for
// replaying a whole agent.
func newBulkBuilder() *viewBuilder {
	b := newViewBuilder(nil)
	b.sorted = false
	return b
}

func cloneSet(s map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// eventLess orders ids by (event time, transaction time) ascending.
func (b *viewBuilder) eventLess(a, c string) bool {
	ea, ec := b.byID[a].ep, b.byID[c].ep
	if !ea.EventTime.Equal(ec.EventTime) {
		return ea.EventTime.Before(ec.EventTime)
	}
	return ea.TransactionTime.Before(ec.TransactionTime)
}

// addEpisode inserts an episode. stats may carry counters to reuse;
// nil seeds fresh ones from the record.
func (b *viewBuilder) addEpisode(ep *Episode, stats *epStats) {
	if _, exists := b.byID[ep.ID]; exists {
		return
	}
	if stats == nil {
		stats = newEpStats(ep)
	}
	b.byID[ep.ID] = &indexEntry{ep: ep, stats: stats}

	if b.sorted {
		pos := sort.Search(len(b.byEvent), func(i int) bool {
			return b.eventLess(ep.ID, b.byEvent[i])
		})
		b.byEvent = append(b.byEvent, "")
		copy(b.byEvent[pos+1:], b.byEvent[pos:])
		b.byEvent[pos] = ep.ID
	} else {
		b.byEvent = append(b.byEvent, ep.ID)
	}

	switch ep.Status {
	case StatusConsolidated:
		b.consolidated[ep.ID] = struct{}{}
	case StatusForgotten:
		b.forgotten[ep.ID] = struct{}{}
	default:
		b.active[ep.ID] = struct{}{}
	}

	b.connDegree[ep.ID] += len(ep.Connections)
	for _, c := range ep.Connections {
		b.connDegree[c.TargetID]++
	}
}

// applyStatus moves an episode between lifecycle sets. Returns false
// when the episode is unknown; re-applying the same status is a
// no-op.
func (b *viewBuilder) applyStatus(ch *statusChange, restoreStats bool) bool {
	en, ok := b.byID[ch.EpisodeID]
	if !ok {
		return false
	}
	if restoreStats {
		en.stats.accessCount.Store(ch.AccessCount)
		if !ch.LastAccessed.IsZero() {
			en.stats.lastAccessed.Store(ch.LastAccessed.UnixNano())
		}
		en.stats.storeRelevance(ch.Relevance)
	}
	if en.ep.Status == ch.Status {
		return true
	}

	b.moveStatus(ch.EpisodeID, en, ch.Status)
	return true
}

// applyClear tombstones everything and returns the count.
func (b *viewBuilder) applyClear() int {
	n := 0
	for id, en := range b.byID {
		if en.ep.Status == StatusForgotten {
			continue
		}
		b.moveStatus(id, en, StatusForgotten)
		n++
	}
	return n
}

// moveStatus replaces the entry with a copy carrying the new status.
// Entries are never mutated in place: views sharing them may be mid
// read.
func (b *viewBuilder) moveStatus(id string, en *indexEntry, to Status) {
	delete(b.active, id)
	delete(b.consolidated, id)
	delete(b.forgotten, id)

	ep := *en.ep
	ep.Status = to
	b.byID[id] = &indexEntry{ep: &ep, stats: en.stats}

	switch to {
	case StatusConsolidated:
		b.consolidated[id] = struct{}{}
	case StatusForgotten:
		b.forgotten[id] = struct{}{}
	default:
		b.active[id] = struct{}{}
	}
}

// finalize seals the builder into an immutable view.
func (b *viewBuilder) finalize() *agentView {
	if !b.sorted {
		sort.SliceStable(b.byEvent, func(i, j int) bool {
			return b.eventLess(b.byEvent[i], b.byEvent[j])
		})
		b.sorted = true
	}
	return &agentView{
		version:      b.version + 1,
		byID:         b.byID,
		byEvent:      b.byEvent,
		active:       b.active,
		consolidated: b.consolidated,
		forgotten:    b.forgotten,
		connDegree:   b.connDegree,
	}
}
