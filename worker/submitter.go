package worker

import (
	"context"

	"github.com/batsimgo/core/job"
	"github.com/batsimgo/core/message"
	"github.com/batsimgo/core/platform"
	"github.com/sirupsen/logrus"
)

// SubmissionEntry is one job a Submitter is responsible for injecting, at
// its pre-known submission time (spec.md §4.7).
type SubmissionEntry struct {
	Time  float64
	JobID job.ID
}

// Submitter greets the server, injects an ordered list of pre-known jobs at
// their submission times, then says goodbye. entries must already be
// ordered by Time; submission is this core's scope, ordering the list is
// the (out-of-scope) workload loader's (spec.md §1).
type Submitter struct {
	Name          string
	WantsCallback bool

	Clock  platform.Clock
	Server *message.Mailbox
	Log    *logrus.Entry
}

// Run executes the Submitter's lifetime: HELLO, one JOB_SUBMITTED per
// entry, BYE.
func (s *Submitter) Run(ctx context.Context, entries []SubmissionEntry) error {
	s.Clock.Enter()
	defer s.Clock.Leave()

	if err := s.Server.Send(ctx, message.Envelope{
		Kind:    message.KindSubmitterHello,
		Payload: message.SubmitterHello{Name: s.Name, WantsCallback: s.WantsCallback},
	}); err != nil {
		return err
	}

	for _, e := range entries {
		if err := s.waitUntil(ctx, e.Time); err != nil {
			return err
		}
		if err := s.submit(ctx, e.JobID); err != nil {
			return err
		}
	}

	return s.bye(ctx, false)
}

func (s *Submitter) waitUntil(ctx context.Context, t float64) error {
	if now := s.Clock.Now(); now < t {
		return s.Clock.Sleep(ctx, t-now)
	}
	return nil
}

func (s *Submitter) submit(ctx context.Context, id job.ID) error {
	if s.Log != nil {
		s.Log.WithField("job", id.String()).Debug("submitter injecting job")
	}
	return s.Server.Send(ctx, message.Envelope{
		Kind:    message.KindJobSubmitted,
		Payload: message.JobSubmitted{SubmitterName: s.Name, JobID: id},
	})
}

func (s *Submitter) bye(ctx context.Context, workflow bool) error {
	return s.Server.Send(ctx, message.Envelope{
		Kind:    message.KindSubmitterBye,
		Payload: message.SubmitterBye{Name: s.Name, WasWorkflow: workflow},
	})
}

// WorkflowEntry additionally names the jobs this one depends on; it is not
// submitted until every dependency has reached a terminal state (spec.md
// §4.7 "workflow variant ... honors inter-job dependencies").
type WorkflowEntry struct {
	JobID     job.ID
	Time      float64
	DependsOn []job.ID
}

// WorkflowSubmitter is the dependency-aware Submitter variant. It reports
// itself as a workflow submitter in SUBMITTER_BYE.
type WorkflowSubmitter struct {
	Submitter
	// Jobs resolves a dependency's current state; typically *job.Registry.
	Jobs interface {
		Resolve(id job.ID) (*job.Job, bool)
	}
}

// Run executes the workflow Submitter's lifetime.
func (s *WorkflowSubmitter) Run(ctx context.Context, entries []WorkflowEntry) error {
	s.Clock.Enter()
	defer s.Clock.Leave()

	if err := s.Server.Send(ctx, message.Envelope{
		Kind:    message.KindSubmitterHello,
		Payload: message.SubmitterHello{Name: s.Name, WantsCallback: s.WantsCallback, IsWorkflowKind: true},
	}); err != nil {
		return err
	}

	for _, e := range entries {
		if err := s.waitUntil(ctx, e.Time); err != nil {
			return err
		}
		if err := s.waitDependencies(ctx, e.DependsOn); err != nil {
			return err
		}
		if err := s.submit(ctx, e.JobID); err != nil {
			return err
		}
	}

	return s.bye(ctx, true)
}

func (s *WorkflowSubmitter) waitDependencies(ctx context.Context, deps []job.ID) error {
	for _, dep := range deps {
		for {
			j, ok := s.Jobs.Resolve(dep)
			if ok && j.State.IsTerminal() {
				break
			}
			if err := s.Clock.Sleep(ctx, minWait); err != nil {
				return err
			}
		}
	}
	return nil
}
