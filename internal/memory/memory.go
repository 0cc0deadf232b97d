package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aicubetechnology/qilbeeDB-sub001/internal/audit"
	"github.com/aicubetechnology/qilbeeDB-sub001/internal/cache"
	"github.com/aicubetechnology/qilbeeDB-sub001/internal/logger"
	"github.com/aicubetechnology/qilbeeDB-sub001/internal/metrics"
	"github.com/aicubetechnology/qilbeeDB-sub001/internal/policy"
	"github.com/aicubetechnology/qilbeeDB-sub001/internal/worker"
)

const (
	defaultRecallLimit  = 20
	defaultMaxContent   = 1 << 20
	defaultFutureSkew   = 5 * time.Minute
	defaultImportance   = 0.5
	auditRecordTimeout  = 5 * time.Second
	valueLogGCThreshold = 0.5
)

// Options configure the engine.
type Options struct {
	// Dir is where the episode log lives. Required unless InMemory.
	Dir string

	// InMemory keeps the whole log in process memory. Nothing survives
	// Close. Intended for tests.
	InMemory bool

	// SyncWrites makes every commit fsync before returning.
	SyncWrites bool

	// Policy governs scoring and lifecycle thresholds. Nil means the
	// balanced default.
	Policy *policy.Policy

	// ConsolidationThreshold starts a background pass when an agent's
	// active count reaches it after a store. Zero disables the
	// trigger and the worker pool.
	ConsolidationThreshold int

	// BatchSize is episodes per consolidation batch.
	BatchSize int

	// Workers and QueueSize size the background pool.
	Workers   int
	QueueSize int

	// MaxFutureSkew bounds how far ahead of the wall clock an event
	// time may be. Zero means 5 minutes.
	MaxFutureSkew time.Duration

	// DefaultRecallLimit applies when a recall call passes limit <= 0.
	DefaultRecallLimit int

	// MaxContentBytes bounds episode content size. Zero means 1 MiB.
	MaxContentBytes int

	// CacheEntries bounds the recall cache. Zero disables caching.
	CacheEntries int64

	// CacheTTL expires cached recall results.
	CacheTTL time.Duration

	// GCInterval spaces value log garbage collection. Zero disables
	// it. Ignored for in-memory engines.
	GCInterval time.Duration

	// Audit receives run and action records. May be nil. The engine
	// takes ownership and closes it on Close.
	Audit *audit.Store

	// Logger defaults to the package default logger.
	Logger *logger.Logger
}

// Memory is the bi-temporal episodic store. All state derives from a
// durable append-only log; the in-memory index is a disposable
// acceleration structure rebuilt on open.
type Memory struct {
	opts  Options
	db    *badger.DB
	log   *episodeLog
	idx   *index
	locks *agentLocks
	cons  *consolidator
	cache *cache.Cache[[]SearchResult]
	pool  *worker.Pool
	lg    *logger.Logger
	audit *audit.Store

	quarantined atomic.Int64
	closed      atomic.Bool
	gcStop      chan struct{}
	gcDone      chan struct{}
}

// Open opens the episode log, replays it into the index and starts
// the background machinery.
func Open(opts Options) (*Memory, error) {
	if opts.Policy == nil {
		opts.Policy = policy.Default()
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if opts.DefaultRecallLimit <= 0 {
		opts.DefaultRecallLimit = defaultRecallLimit
	}
	if opts.MaxContentBytes <= 0 {
		opts.MaxContentBytes = defaultMaxContent
	}
	if opts.MaxFutureSkew <= 0 {
		opts.MaxFutureSkew = defaultFutureSkew
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}

	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("")
		badgerOpts.InMemory = true
	} else {
		if opts.Dir == "" {
			return nil, fmt.Errorf("%w: storage dir is required", ErrInvalidInput)
		}
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating storage dir: %w", err)
		}
		badgerOpts = badger.DefaultOptions(opts.Dir)
	}
	badgerOpts.Logger = nil // Disable BadgerDB logging
	// Records are framed zstd already, so block compression would
	// just re-compress compressed bytes.
	badgerOpts.Compression = options.None
	badgerOpts.SyncWrites = opts.SyncWrites

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening episode log: %w", err)
	}

	m := &Memory{
		opts:  opts,
		db:    db,
		log:   newEpisodeLog(db),
		idx:   newIndex(),
		locks: newAgentLocks(),
		lg:    opts.Logger.WithPrefix("memory"),
		audit: opts.Audit,
	}
	m.cons = newConsolidator(m.log, m.idx, m.locks, opts.Policy, opts.BatchSize, opts.Logger, opts.Audit)

	if opts.CacheEntries > 0 {
		c, cerr := cache.New[[]SearchResult](opts.CacheEntries, opts.CacheTTL)
		if cerr != nil {
			db.Close()
			return nil, fmt.Errorf("creating recall cache: %w", cerr)
		}
		m.cache = c
	}

	if err := m.recover(); err != nil {
		if m.cache != nil {
			m.cache.Close()
		}
		db.Close()
		return nil, err
	}

	if opts.ConsolidationThreshold > 0 {
		m.pool = worker.NewPool(worker.Config{Workers: opts.Workers, QueueSize: opts.QueueSize})
		m.pool.Start()
	}

	if !opts.InMemory && opts.GCInterval > 0 {
		m.gcStop = make(chan struct{})
		m.gcDone = make(chan struct{})
		go m.runGC(opts.GCInterval)
	}

	return m, nil
}

// recover rebuilds every agent's view from the log. Agents replay in
// parallel; records that fail checksum or decode are quarantined and
// counted, never fatal.
func (m *Memory) recover() error {
	started := time.Now()

	agents, err := m.log.agents()
	if err != nil {
		return fmt.Errorf("listing agents: %w", err)
	}

	var replayed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, agent := range agents {
		agent := agent
		g.Go(func() error {
			b := newBulkBuilder()
			last, err := m.log.replay(context.Background(), agent, func(_ uint64, rec *logRecord) error {
				switch rec.Kind {
				case recordEpisode:
					b.addEpisode(rec.Episode, nil)
				case recordStatus:
					b.applyStatus(rec.Status, true)
				case recordClear:
					b.applyClear()
				}
				replayed.Add(1)
				return nil
			}, func(ts uint64, derr error) {
				m.quarantined.Add(1)
				metrics.IncCounter(metrics.MetricRecordsQuarantined)
				m.lg.Warn("quarantined record for %s at ts %d: %v", agent, ts, derr)
			})
			if err != nil {
				return fmt.Errorf("replaying %s: %w", agent, err)
			}
			m.idx.install(agent, b.finalize())

			// No writers exist during open; the assignment is safe
			// without the agent mutex.
			m.locks.of(agent).lastTS = last
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	elapsed := time.Since(started)
	metrics.AddCounter(metrics.MetricRecordsReplayed, replayed.Load())
	metrics.ObserveHistogram(metrics.MetricRecoveryDuration, float64(elapsed.Milliseconds()))
	if len(agents) > 0 {
		m.lg.Info("recovered %d agents from %d records in %s",
			len(agents), replayed.Load(), elapsed.Round(time.Millisecond))
	}
	return nil
}

// Store validates a draft, assigns its identity and commit time, and
// durably appends it. It either fully succeeds or reports an error;
// there is no partially stored state.
func (m *Memory) Store(ctx context.Context, d *Draft) (*Episode, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.validateDraft(d); err != nil {
		metrics.IncCounter(metrics.MetricErrors)
		return nil, err
	}

	now := time.Now().UTC()

	ep := &Episode{
		ID:        uuid.NewString(),
		AgentID:   d.AgentID,
		Type:      d.Type,
		Content:   d.Content,
		EventTime: now,
		Status:    StatusActive,
	}
	if !d.EventTime.IsZero() {
		ep.EventTime = d.EventTime.UTC()
	}
	ep.Importance = defaultImportance
	if d.Importance != nil {
		ep.Importance = *d.Importance
	}
	ep.Connections = append(ep.Connections, d.Connections...)
	if d.Supersedes != "" {
		ep.Connections = append(ep.Connections, Connection{TargetID: d.Supersedes, Kind: ConnSupersedes})
	}
	ep.Relevance = Score(ScoreInput{
		EventTime:   ep.EventTime,
		Importance:  ep.Importance,
		Connections: len(ep.Connections),
	}, now, m.opts.Policy)

	start := time.Now()
	lk := m.locks.of(d.AgentID)
	lk.mu.Lock()
	err := m.log.appendEpisode(lk, ep)
	if err == nil {
		m.idx.applyEpisode(d.AgentID, ep)
	}
	lk.mu.Unlock()
	if err != nil {
		metrics.IncCounter(metrics.MetricErrors)
		return nil, err
	}

	metrics.IncCounter(metrics.MetricEpisodesStored)
	metrics.ObserveHistogram(metrics.MetricAppendDuration, float64(time.Since(start).Microseconds())/1000)
	m.lg.Debug("stored %s episode %s for %s", ep.Type, ep.ID, ep.AgentID)

	m.maybeConsolidate(d.AgentID)

	out := *ep
	out.Connections = append([]Connection(nil), ep.Connections...)
	return &out, nil
}

func (m *Memory) validateDraft(d *Draft) error {
	if d == nil {
		return fmt.Errorf("%w: draft is nil", ErrInvalidInput)
	}
	if strings.TrimSpace(d.AgentID) == "" {
		return fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}
	if !d.Type.Valid() {
		return fmt.Errorf("%w: unrecognized episode type %q", ErrInvalidInput, d.Type)
	}
	if strings.TrimSpace(d.Content.Primary) == "" {
		return fmt.Errorf("%w: primary content is required", ErrInvalidInput)
	}
	if size := d.Content.size(); size > m.opts.MaxContentBytes {
		return fmt.Errorf("%w: content is %d bytes, limit is %d", ErrInvalidInput, size, m.opts.MaxContentBytes)
	}
	if d.Importance != nil && (*d.Importance < 0 || *d.Importance > 1) {
		return fmt.Errorf("%w: importance %v outside [0, 1]", ErrInvalidInput, *d.Importance)
	}
	if !d.EventTime.IsZero() {
		if ahead := time.Until(d.EventTime); ahead > m.opts.MaxFutureSkew {
			return fmt.Errorf("%w: event time is %s ahead of now, tolerance is %s",
				ErrInvalidInput, ahead.Round(time.Second), m.opts.MaxFutureSkew)
		}
	}
	for _, c := range d.Connections {
		if c.TargetID == "" {
			return fmt.Errorf("%w: connection target id is required", ErrInvalidInput)
		}
		if c.Kind != ConnReferences && c.Kind != ConnSupersedes {
			return fmt.Errorf("%w: unrecognized connection kind %q", ErrInvalidInput, c.Kind)
		}
		if c.Kind == ConnSupersedes {
			if err := m.checkSupersedes(d.AgentID, c.TargetID); err != nil {
				return err
			}
		}
	}
	if d.Supersedes != "" {
		if err := m.checkSupersedes(d.AgentID, d.Supersedes); err != nil {
			return err
		}
	}
	return nil
}

// checkSupersedes requires a correction's target to exist. Plain
// references are deliberately unchecked: they may point at episodes
// of other agents or ones not stored yet.
func (m *Memory) checkSupersedes(agentID, targetID string) error {
	if m.idx.entry(agentID, targetID) == nil {
		return fmt.Errorf("supersedes target %s: %w", targetID, ErrNotFound)
	}
	return nil
}

// maybeConsolidate queues a threshold pass when the active count
// crossed the configured line. Dropping the task is fine: the next
// store will trigger again.
func (m *Memory) maybeConsolidate(agentID string) {
	if m.pool == nil {
		return
	}
	if m.idx.activeCount(agentID) < m.opts.ConsolidationThreshold {
		return
	}
	if m.locks.of(agentID).consolidating.Load() {
		return
	}

	task := worker.NewFuncTask("consolidate:"+agentID, func(ctx context.Context) error {
		_, err := m.cons.run(ctx, agentID, audit.TriggerThreshold)
		if errors.Is(err, ErrConflictInProgress) {
			return nil
		}
		return err
	})
	if !m.pool.TrySubmit(task) {
		m.lg.Debug("consolidation queue full, skipping threshold pass for %s", agentID)
	}
}

// Get returns an episode by id, bumping its access statistics first
// so the returned copy reflects the read. Forgotten episodes are
// returned like any other; their status says what they are.
func (m *Memory) Get(ctx context.Context, agentID, id string) (*Episode, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	en := m.idx.entry(agentID, id)
	if en == nil {
		return nil, fmt.Errorf("episode %s/%s: %w", agentID, id, ErrNotFound)
	}
	en.stats.touch(time.Now().UTC())
	metrics.IncCounter(metrics.MetricEpisodesRead)
	return en.episode(), nil
}

// GetCommitted returns an episode exactly as it was first committed,
// read back from the log: original counters, original status, no
// later drift. Access statistics are not bumped.
func (m *Memory) GetCommitted(ctx context.Context, agentID, id string) (*Episode, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.log.read(agentID, id)
}

// Recent returns the newest episodes by event time, excluding
// forgotten ones. A limit <= 0 means the configured default.
func (m *Memory) Recent(ctx context.Context, agentID string, limit int) ([]*Episode, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(agentID) == "" {
		return nil, fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}
	if m.idx.snapshot(agentID) == nil {
		return nil, fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	if limit <= 0 {
		limit = m.opts.DefaultRecallLimit
	}

	metrics.IncCounter(metrics.MetricRecalls)
	return m.idx.recent(agentID, limit), nil
}

// Search returns episodes whose content contains the query, ranked by
// relevance. Results are served through the recall cache keyed by the
// view generation, so any committed change invalidates naturally.
func (m *Memory) Search(ctx context.Context, agentID, query string, limit int) ([]SearchResult, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(agentID) == "" {
		return nil, fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}

	v := m.idx.snapshot(agentID)
	if v == nil {
		return nil, fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	if limit <= 0 {
		limit = m.opts.DefaultRecallLimit
	}

	key := fmt.Sprintf("%s|%d|%d|%s", agentID, v.version, limit, query)
	if m.cache != nil {
		if res, ok := m.cache.Get(key); ok {
			metrics.IncCounter(metrics.MetricCacheHits)
			return res, nil
		}
		metrics.IncCounter(metrics.MetricCacheMisses)
	}

	start := time.Now()
	res, err := m.idx.search(ctx, agentID, query, limit)
	if err != nil {
		return nil, err
	}

	metrics.IncCounter(metrics.MetricSearches)
	metrics.ObserveHistogram(metrics.MetricSearchDuration, float64(time.Since(start).Microseconds())/1000)
	if m.cache != nil {
		m.cache.Set(key, res)
	}
	return res, nil
}

// Statistics summarizes an agent's episodes.
func (m *Memory) Statistics(ctx context.Context, agentID string) (*Statistics, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st := m.idx.statistics(agentID)
	if st == nil {
		return nil, fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	return st, nil
}

// Agents lists every agent namespace currently indexed.
func (m *Memory) Agents() []string {
	return m.idx.agentIDs()
}

// Consolidate runs a lifecycle pass for the agent now. A pass already
// in flight fails this one fast with ErrConflictInProgress.
func (m *Memory) Consolidate(ctx context.Context, agentID string) (*ConsolidationResult, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	return m.cons.run(ctx, agentID, audit.TriggerManual)
}

// ScheduledConsolidate is the periodic entry point: an agent already
// being consolidated is skipped, not an error.
func (m *Memory) ScheduledConsolidate(ctx context.Context, agentID string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	_, err := m.cons.run(ctx, agentID, audit.TriggerScheduled)
	if errors.Is(err, ErrConflictInProgress) {
		return nil
	}
	return err
}

// Forget immediately tombstones active episodes scoring below the
// floor. A floor <= 0 means the policy's min_relevance. Returns how
// many episodes were forgotten.
func (m *Memory) Forget(ctx context.Context, agentID string, minRelevance float64) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if minRelevance <= 0 {
		minRelevance = m.opts.Policy.MinRelevance
	}
	if minRelevance > 1 {
		return 0, fmt.Errorf("%w: relevance floor %v outside (0, 1]", ErrInvalidInput, minRelevance)
	}

	res, err := m.cons.forgetBelow(ctx, agentID, minRelevance)
	if res == nil {
		return 0, err
	}
	return res.Forgotten, err
}

// Clear tombstones everything the agent remembers with a single
// durable record. Episodes stay in the log and remain readable by id.
// Returns whether any episode was affected.
func (m *Memory) Clear(ctx context.Context, agentID, reason string) (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if m.idx.snapshot(agentID) == nil {
		return false, fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}

	marker := &clearMarker{At: time.Now().UTC(), Reason: reason}

	lk := m.locks.of(agentID)
	lk.mu.Lock()
	err := m.log.appendClear(lk, agentID, marker)
	var n int
	if err == nil {
		n = m.idx.applyClear(agentID)
	}
	lk.mu.Unlock()
	if err != nil {
		metrics.IncCounter(metrics.MetricErrors)
		return false, err
	}

	metrics.IncCounter(metrics.MetricAdminActions)
	m.recordAction(agentID, audit.ActionClear, reason)
	m.lg.Info("cleared %d episodes for %s", n, agentID)
	return n > 0, nil
}

// Purge irreversibly erases an agent: log records, id index and agent
// marker all go. This is the single operation that deletes instead of
// tombstoning. The agent's transaction clock survives, so an agent
// recreated later still commits with increasing times.
func (m *Memory) Purge(ctx context.Context, agentID string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.idx.snapshot(agentID) == nil {
		return fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}

	lk := m.locks.of(agentID)
	if !lk.consolidating.CompareAndSwap(false, true) {
		return fmt.Errorf("agent %s: %w", agentID, ErrConflictInProgress)
	}
	defer lk.consolidating.Store(false)

	lk.mu.Lock()
	defer lk.mu.Unlock()

	if err := m.log.purge(agentID); err != nil {
		metrics.IncCounter(metrics.MetricErrors)
		return err
	}
	m.idx.removeAgent(agentID)

	// Version numbering restarts for a recreated agent, so cached
	// results keyed by the old generations must go.
	if m.cache != nil {
		m.cache.Clear()
	}

	metrics.IncCounter(metrics.MetricAdminActions)
	m.recordAction(agentID, audit.ActionPurge, "")
	m.lg.Warn("purged agent %s", agentID)
	return nil
}

// Export streams an agent's episodes as committed, with the current
// lifecycle state and counters overlaid. Forgotten episodes are
// included; the log is the audit trail and export reflects it.
func (m *Memory) Export(ctx context.Context, agentID string, opts ScanOptions, visit func(*Episode) error) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.idx.snapshot(agentID) == nil {
		return fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}

	return m.log.scan(ctx, agentID, opts, func(ep *Episode) error {
		if en := m.idx.entry(agentID, ep.ID); en != nil {
			cur := en.episode()
			ep.Status = cur.Status
			ep.Relevance = cur.Relevance
			ep.AccessCount = cur.AccessCount
			ep.LastAccessed = cur.LastAccessed
		}
		return visit(ep)
	}, func(ts uint64, err error) {
		m.quarantined.Add(1)
		metrics.IncCounter(metrics.MetricRecordsQuarantined)
		m.lg.Warn("skipping corrupt record for %s at ts %d: %v", agentID, ts, err)
	})
}

// Quarantined reports how many corrupt records were skipped since
// open.
func (m *Memory) Quarantined() int64 {
	return m.quarantined.Load()
}

// CacheStats reports recall cache effectiveness. ok is false when
// caching is disabled.
func (m *Memory) CacheStats() (stats cache.Stats, ok bool) {
	if m.cache == nil {
		return cache.Stats{}, false
	}
	return m.cache.Stats(), true
}

// AuditStore returns the audit store the engine records to, or nil
// when auditing is disabled.
func (m *Memory) AuditStore() *audit.Store {
	return m.audit
}

func (m *Memory) recordAction(agentID, action, detail string) {
	if m.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditRecordTimeout)
	defer cancel()
	err := m.audit.RecordAction(ctx, &audit.Action{
		AgentID: agentID,
		Action:  action,
		Detail:  detail,
		At:      time.Now().UTC(),
	})
	if err != nil {
		m.lg.Warn("recording %s for %s: %v", action, agentID, err)
	}
}

func (m *Memory) runGC(interval time.Duration) {
	defer close(m.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Badger reports ErrNoRewrite once nothing is left to
			// reclaim.
			for {
				if err := m.db.RunValueLogGC(valueLogGCThreshold); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						m.lg.Debug("value log gc: %v", err)
					}
					break
				}
			}
		case <-m.gcStop:
			return
		}
	}
}

// Close stops background work and closes the log. Further calls on
// the engine return ErrClosed.
func (m *Memory) Close() error {
	if m.closed.Swap(true) {
		return nil
	}

	if m.pool != nil {
		m.pool.Stop()
	}
	if m.gcStop != nil {
		close(m.gcStop)
		<-m.gcDone
	}
	if m.cache != nil {
		m.cache.Close()
	}
	if m.audit != nil {
		if err := m.audit.Close(); err != nil {
			m.lg.Warn("closing audit store: %v", err)
		}
	}

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("closing episode log: %w", err)
	}
	return nil
}
