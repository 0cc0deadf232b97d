package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aicubetechnology/qilbeeDB-sub001/internal/audit"
	"github.com/aicubetechnology/qilbeeDB-sub001/internal/logger"
	"github.com/aicubetechnology/qilbeeDB-sub001/internal/metrics"
	"github.com/aicubetechnology/qilbeeDB-sub001/internal/policy"
)

// consolidator runs lifecycle passes: it re-scores an agent's active
// episodes and transitions them to consolidated or forgotten. At most
// one pass per agent runs at a time; a pass holds the agent's write
// lock per batch, not for its whole duration, so stores interleave
// with a long run.
type consolidator struct {
	log   *episodeLog
	idx   *index
	locks *agentLocks
	pol   *policy.Policy
	batch int
	lg    *logger.Logger
	audit *audit.Store
}

func newConsolidator(log *episodeLog, idx *index, locks *agentLocks, pol *policy.Policy, batch int, lg *logger.Logger, auditStore *audit.Store) *consolidator {
	if batch <= 0 {
		batch = 100
	}
	return &consolidator{
		log:   log,
		idx:   idx,
		locks: locks,
		pol:   pol,
		batch: batch,
		lg:    lg.WithPrefix("consolidate"),
		audit: auditStore,
	}
}

// run executes one consolidation pass under the policy thresholds.
func (c *consolidator) run(ctx context.Context, agent, trigger string) (*ConsolidationResult, error) {
	return c.sweep(ctx, agent, trigger, func(score float64, ep *Episode) Status {
		switch {
		case score >= c.pol.PromotionThreshold:
			return StatusConsolidated
		case score < c.pol.ForgetThreshold && ep.Importance < c.pol.PinImportance:
			return StatusForgotten
		default:
			return ""
		}
	})
}

// forgetBelow tombstones active episodes scoring under the caller's
// floor. Promotion does not happen here, and pinned episodes survive
// no matter how low they score.
func (c *consolidator) forgetBelow(ctx context.Context, agent string, minRelevance float64) (*ConsolidationResult, error) {
	return c.sweep(ctx, agent, audit.TriggerForget, func(score float64, ep *Episode) Status {
		if score < minRelevance && ep.Importance < c.pol.PinImportance {
			return StatusForgotten
		}
		return ""
	})
}

// sweep is the shared pass machinery. decide returns the target
// status for a freshly scored episode, or "" to leave it active. On
// error the partial result is still returned: transitions already
// committed stay committed.
func (c *consolidator) sweep(ctx context.Context, agent, trigger string, decide func(score float64, ep *Episode) Status) (*ConsolidationResult, error) {
	v := c.idx.snapshot(agent)
	if v == nil {
		return nil, fmt.Errorf("agent %s: %w", agent, ErrNotFound)
	}

	lk := c.locks.of(agent)
	if !lk.consolidating.CompareAndSwap(false, true) {
		metrics.IncCounter(metrics.MetricConsolidationConflicts)
		return nil, fmt.Errorf("agent %s: %w", agent, ErrConflictInProgress)
	}
	defer lk.consolidating.Store(false)

	started := time.Now()

	// Work from a sorted snapshot of the active set so a pass visits
	// episodes in a stable order. Each one is re-checked against the
	// live view before it is touched: a clear or correction landing
	// between batches wins.
	ids := make([]string, 0, len(v.active))
	for id := range v.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	res := &ConsolidationResult{AgentID: agent}
	var runErr error

batches:
	for start := 0; start < len(ids); start += c.batch {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		end := min(start+c.batch, len(ids))

		lk.mu.Lock()
		for _, id := range ids[start:end] {
			en := c.idx.entry(agent, id)
			if en == nil || en.ep.Status != StatusActive {
				continue
			}

			now := time.Now().UTC()
			score := Score(ScoreInput{
				EventTime:   en.ep.EventTime,
				AccessCount: en.stats.accessCount.Load(),
				Importance:  en.ep.Importance,
				Connections: c.idx.connections(agent, id),
			}, now, c.pol)
			en.stats.storeRelevance(score)
			res.Examined++

			next := decide(score, en.ep)
			if next == "" {
				continue
			}
			if err := c.transition(lk, agent, en, next, now); err != nil {
				runErr = err
				lk.mu.Unlock()
				break batches
			}
			switch next {
			case StatusConsolidated:
				res.Promoted++
			case StatusForgotten:
				res.Forgotten++
			}
		}
		lk.mu.Unlock()
	}

	elapsed := time.Since(started)
	metrics.IncCounter(metrics.MetricConsolidationRuns)
	metrics.AddCounter(metrics.MetricEpisodesPromoted, int64(res.Promoted))
	metrics.AddCounter(metrics.MetricEpisodesForgotten, int64(res.Forgotten))
	metrics.ObserveHistogram(metrics.MetricConsolidationDuration, float64(elapsed.Milliseconds()))

	c.recordRun(agent, trigger, started, elapsed, res, runErr)

	lg := c.lg.WithFields(map[string]interface{}{
		"agent":     agent,
		"trigger":   trigger,
		"examined":  res.Examined,
		"promoted":  res.Promoted,
		"forgotten": res.Forgotten,
	})
	if runErr != nil {
		lg.Warn("pass aborted after %s: %v", elapsed.Round(time.Millisecond), runErr)
		return res, runErr
	}
	lg.Info("pass finished in %s", elapsed.Round(time.Millisecond))
	return res, nil
}

// transition durably commits one status change and applies it to the
// view. The snapshot fields carry the live counters into the log so
// recovery restores them. The caller holds the agent's write lock.
func (c *consolidator) transition(lk *agentLock, agent string, en *indexEntry, to Status, now time.Time) error {
	ch := &statusChange{
		EpisodeID:    en.ep.ID,
		Status:       to,
		Relevance:    en.stats.loadRelevance(),
		AccessCount:  en.stats.accessCount.Load(),
		LastAccessed: en.stats.lastAccessedTime(),
		At:           now,
	}
	if err := c.log.appendStatus(lk, agent, ch); err != nil {
		return err
	}
	c.idx.applyStatus(agent, ch, false)
	return nil
}

// recordRun writes the pass to the audit trail. Failures are logged,
// never propagated: the pass itself already committed.
func (c *consolidator) recordRun(agent, trigger string, started time.Time, elapsed time.Duration, res *ConsolidationResult, runErr error) {
	if c.audit == nil {
		return
	}
	run := &audit.Run{
		AgentID:   agent,
		Trigger:   trigger,
		StartedAt: started.UTC(),
		Duration:  elapsed,
		Examined:  res.Examined,
		Promoted:  res.Promoted,
		Forgotten: res.Forgotten,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.audit.RecordRun(ctx, run); err != nil {
		c.lg.Warn("recording run for %s: %v", agent, err)
	}
}
