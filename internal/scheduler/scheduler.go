// Package scheduler fires periodic consolidation passes.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aicubetechnology/qilbeeDB-sub001/internal/logger"
	"github.com/aicubetechnology/qilbeeDB-sub001/internal/worker"
)

// AgentSource enumerates the agent namespaces to pass over. Each tick
// re-asks it, so agents created after Start are picked up.
type AgentSource interface {
	Agents() []string
}

// PassFunc runs one consolidation pass for an agent.
type PassFunc func(ctx context.Context, agentID string) error

// scheduleParser accepts standard 5-field cron expressions and
// descriptors like "@every 1h".
var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule reports whether expr is an acceptable schedule.
func ValidateSchedule(expr string) error {
	_, err := scheduleParser.Parse(expr)
	return err
}

// Options configure the scheduler.
type Options struct {
	// Schedule is a cron expression or @every descriptor.
	Schedule string

	// Source supplies the agents to consolidate.
	Source AgentSource

	// Pass runs the actual pass for one agent.
	Pass PassFunc

	// Pool receives one task per agent per tick.
	Pool *worker.Pool

	// Logger defaults to the package default logger.
	Logger *logger.Logger
}

// Scheduler triggers a consolidation pass for every known agent on a
// cron schedule, fanning per-agent work out to the worker pool.
type Scheduler struct {
	c      *cron.Cron
	source AgentSource
	pass   PassFunc
	pool   *worker.Pool
	lg     *logger.Logger
}

// New builds a scheduler. The schedule is validated here so a bad
// expression fails at startup, not at first fire.
func New(opts Options) (*Scheduler, error) {
	if opts.Source == nil || opts.Pass == nil || opts.Pool == nil {
		return nil, fmt.Errorf("scheduler needs a source, a pass func and a pool")
	}

	lg := opts.Logger
	if lg == nil {
		lg = logger.Default()
	}

	s := &Scheduler{
		c:      cron.New(cron.WithParser(scheduleParser)),
		source: opts.Source,
		pass:   opts.Pass,
		pool:   opts.Pool,
		lg:     lg.WithPrefix("scheduler"),
	}
	if _, err := s.c.AddFunc(opts.Schedule, s.tick); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", opts.Schedule, err)
	}
	return s, nil
}

// tick enqueues one pass per agent. A full queue skips the agent;
// the next tick retries.
func (s *Scheduler) tick() {
	agents := s.source.Agents()
	if len(agents) == 0 {
		return
	}

	s.lg.Debug("queueing consolidation for %d agents", len(agents))
	for _, agent := range agents {
		if !s.pool.TrySubmit(newAgentTask(agent, s.pass)) {
			s.lg.Warn("pool queue full, skipping scheduled pass for %s", agent)
		}
	}
}

// Start begins firing on the schedule.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the schedule and waits for a tick in flight. Tasks
// already queued on the pool are unaffected.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

// Next reports when the next pass fires, or the zero time when the
// scheduler is not running.
func (s *Scheduler) Next() time.Time {
	entries := s.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// agentTask adapts one agent pass to the worker pool.
type agentTask struct {
	agentID string
	pass    PassFunc
}

func newAgentTask(agentID string, pass PassFunc) *agentTask {
	return &agentTask{agentID: agentID, pass: pass}
}

func (t *agentTask) ID() string {
	return "scheduled:" + t.agentID
}

func (t *agentTask) Execute(ctx context.Context) error {
	return t.pass(ctx, t.agentID)
}
