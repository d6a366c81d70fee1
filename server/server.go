// Package server implements the Server (C9): the single authoritative loop
// that consumes every message this core produces, owns the counters and
// readiness flags of spec.md §3, and spawns Worker tasks as ordered by the
// external decider (spec.md §4.9). No other component mutates job state or
// these counters; machine state is also written by the Worker tasks the
// Server spawns.
package server

import (
	"context"
	"sync"

	"github.com/batsimgo/core/job"
	"github.com/batsimgo/core/message"
	"github.com/batsimgo/core/platform"
	"github.com/batsimgo/core/relay"
	"github.com/batsimgo/core/trace"
	"github.com/batsimgo/core/worker"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Config are the Server's run-time parameters that aren't owned by another
// collaborator.
type Config struct {
	// DynamicSubmissionEnabled tells the Server whether the decider may
	// ever submit jobs dynamically (JOB_SUBMITTED_BY_DP). When false, the
	// submitters-finished flag is driven by SUBMITTER_BYE alone (spec.md
	// §4.9 "no dynamic submission expected"); when true, it additionally
	// waits for END_DYNAMIC_SUBMIT.
	DynamicSubmissionEnabled bool
}

// runningJob is the bookkeeping a Killer needs to abort a live execution
// and report a progress snapshot (spec.md §4.6).
type runningJob struct {
	startedAt float64
	cancel    context.CancelFunc
}

// MetricsSink receives the job-completion and energy series SPEC_FULL.md §11
// wires into Prometheus. Set Server.Metrics to a non-nil sink (typically
// *metrics.Collectors) to have dispatch report into it; nil skips this, the
// same optional-collaborator convention as Log.
type MetricsSink interface {
	RecordJobCompletion(state string)
	SetEnergyConsumed(joules float64)
}

// Server is the C9 authoritative loop.
type Server struct {
	Mailbox  *message.Mailbox
	Bus      *message.Bus
	Clock    platform.Clock
	Machines platform.MachineOps
	Registry *job.Registry
	Relay    *relay.Relay
	Profiles *worker.ProfileExecutor
	Sched    trace.Scheduling
	Energy   trace.Energy
	Log      *logrus.Entry
	Metrics  MetricsSink

	mu           sync.Mutex
	running      map[job.ID]*runningJob
	submitters   map[string]submitterInfo
	jobSubmitter map[job.ID]string

	nbSubmitters         int
	nbSubmittersFinished int
	nbRunningJobs        int
	nbSwitchingMachines  int
	nbWaiters            int
	nbKillers            int
	nbRejectedJobs       int

	schedReady                   bool
	submissionSchedFinished      bool
	submissionSubmittersFinished bool
}

type submitterInfo struct {
	wantsCallback bool
	done          bool
}

// New creates a Server listening on the well-known "server" mailbox.
func New(cfg Config, bus *message.Bus, clock platform.Clock, machines platform.MachineOps, registry *job.Registry, rl *relay.Relay, profiles *worker.ProfileExecutor, sched trace.Scheduling, energy trace.Energy, log *logrus.Entry) *Server {
	s := &Server{
		Mailbox:      bus.Mailbox(message.ServerMailboxName),
		Bus:          bus,
		Clock:        clock,
		Machines:     machines,
		Registry:     registry,
		Relay:        rl,
		Profiles:     profiles,
		Sched:        sched,
		Energy:       energy,
		Log:          log,
		running:      make(map[job.ID]*runningJob),
		submitters:   make(map[string]submitterInfo),
		jobSubmitter: make(map[job.ID]string),
		// The decider starts ready for its first batch; it flips to not-ready
		// on each Flush and back to ready only once SCHED_READY round-trips,
		// so the very first JOB_SUBMITTED has something to trigger a flush.
		schedReady: true,
	}
	if !cfg.DynamicSubmissionEnabled {
		s.submissionSchedFinished = true
	}
	return s
}

// Stats is a point-in-time snapshot of the Server's counters, safe to read
// from a concurrent metrics scraper (the Run goroutine is otherwise the
// sole mutator, per spec.md §5).
type Stats struct {
	NbSubmitters         int
	NbSubmittersFinished int
	NbRunningJobs        int
	NbSwitchingMachines  int
	NbWaiters            int
	NbKillers            int
	NbRejectedJobs       int
}

// Stats returns a snapshot of the Server's counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		NbSubmitters:         s.nbSubmitters,
		NbSubmittersFinished: s.nbSubmittersFinished,
		NbRunningJobs:        s.nbRunningJobs,
		NbSwitchingMachines:  s.nbSwitchingMachines,
		NbWaiters:            s.nbWaiters,
		NbKillers:            s.nbKillers,
		NbRejectedJobs:       s.nbRejectedJobs,
	}
}

// addCounter atomically adjusts one of the Server's counters under mu, so
// Stats (called from a concurrent metrics scraper) never observes a torn
// read.
func (s *Server) addCounter(counter *int, delta int) {
	s.mu.Lock()
	*counter += delta
	s.mu.Unlock()
}

// Cancel implements worker.RunningJobs for the Killer.
func (s *Server) Cancel(id job.ID) (message.Progress, bool) {
	s.mu.Lock()
	rj, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		return message.Progress{}, false
	}
	rj.cancel()
	return message.Progress{ElapsedTime: s.Clock.Now() - rj.startedAt}, true
}

// Run drives the dispatch loop to completion (spec.md §4.9): receive,
// dispatch, maybe_flush, until every termination condition holds, followed
// by one unconditional final flush.
func (s *Server) Run(ctx context.Context) error {
	for {
		if s.finished() {
			return s.Relay.Flush(ctx, s.Clock.Now())
		}
		env, err := s.Mailbox.Receive(ctx)
		if err != nil {
			return err
		}
		if err := s.dispatch(ctx, env); err != nil {
			return err
		}
		if err := s.maybeFlush(ctx); err != nil {
			return err
		}
	}
}

// finished implements spec.md §3's termination invariant. It also requires
// schedReady, so a decider round still in flight (whose reply Flush injects
// ahead of its SCHED_READY) is dispatched before Run exits.
func (s *Server) finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedReady &&
		s.submissionSubmittersFinished &&
		s.submissionSchedFinished &&
		s.nbRunningJobs == 0 &&
		s.nbSwitchingMachines == 0 &&
		s.nbWaiters == 0 &&
		s.nbKillers == 0
}

// maybeFlush first drains every message already waiting at the current
// simulated instant (a "settle" pass for zero-time cascades triggered by
// the dispatch that just ran), then flushes to the relay if the flushing
// rule of spec.md §4.9 is satisfied.
func (s *Server) maybeFlush(ctx context.Context) error {
	for {
		env, ok := s.Mailbox.TryReceive()
		if !ok {
			break
		}
		if err := s.dispatch(ctx, env); err != nil {
			return err
		}
	}

	s.mu.Lock()
	ready := s.schedReady && s.Relay.Pending() > 0
	if ready {
		s.schedReady = false
	}
	s.mu.Unlock()

	if !ready {
		return nil
	}
	return s.Relay.Flush(ctx, s.Clock.Now())
}

// fatalf wraps a message the way spec.md §7 treats invariant violations and
// decider-level logical errors: unrecoverable, aborting the run.
func fatalf(format string, args ...interface{}) error {
	return xerrors.Errorf(format, args...)
}
