// Package schedule optionally invokes the orchestrator on a cron
// expression for unattended recurring extraction, per SPEC_FULL.md
// section 4.16. Adapted from the teacher's scheduler package, trimmed
// from its multi-job database-backed design to a single entry — this
// domain has one job (extract against a fixed backup root), and run
// history already tracks what happened on each invocation.
package schedule

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/rosevale/vmxtract/internal/logging"
)

// RunFunc is the orchestrator entry point the scheduler invokes on each
// tick. It receives a fresh context per run.
type RunFunc func(ctx context.Context)

// Service wraps a single cron entry driving RunFunc.
type Service struct {
	log    *logging.Logger
	cron   *cron.Cron
	run    RunFunc
	entry  cron.EntryID
	ctx    context.Context
	cancel context.CancelFunc
}

// NewService builds a Service for the given cron expression (standard
// five-field form) and run function.
func NewService(expr string, run RunFunc, log *logging.Logger) (*Service, error) {
	c := cron.New()
	s := &Service{log: log, cron: c, run: run}

	id, err := c.AddFunc(expr, s.tick)
	if err != nil {
		return nil, err
	}
	s.entry = id
	return s, nil
}

// Start begins the scheduler. Non-blocking; cron runs in its own
// goroutine.
func (s *Service) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
}

// Stop halts the scheduler and waits for any in-flight run to notice
// cancellation.
func (s *Service) Stop() {
	if s.log != nil {
		s.log.Info("stopping scheduler", nil)
	}
	if s.cancel != nil {
		s.cancel()
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

// NextRun reports when the scheduled job will next fire.
func (s *Service) NextRun() (cron.Entry, bool) {
	for _, e := range s.cron.Entries() {
		if e.ID == s.entry {
			return e, true
		}
	}
	return cron.Entry{}, false
}

func (s *Service) tick() {
	if s.log != nil {
		s.log.Info("scheduled extraction run starting", nil)
	}
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	s.run(ctx)
}
