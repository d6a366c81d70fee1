package server

import (
	"context"

	"github.com/batsimgo/core/job"
	"github.com/batsimgo/core/message"
	"github.com/batsimgo/core/relay"
	"github.com/batsimgo/core/worker"
	"golang.org/x/xerrors"
)

// dispatch implements spec.md §4.9's per-kind dispatch table. It is called
// only from the Run goroutine, so it is the one place in this core allowed
// to mutate job state and the Server's counters.
func (s *Server) dispatch(ctx context.Context, env message.Envelope) error {
	switch env.Kind {
	case message.KindSubmitterHello:
		return s.onSubmitterHello(env.Payload.(message.SubmitterHello))
	case message.KindSubmitterBye:
		return s.onSubmitterBye(env.Payload.(message.SubmitterBye))
	case message.KindJobSubmitted:
		return s.onJobSubmitted(env.Payload.(message.JobSubmitted))
	case message.KindJobSubmittedByDP:
		return s.onJobSubmittedByDP(env.Payload.(message.JobSubmittedByDP))
	case message.KindProfileSubmittedByDP:
		return s.onProfileSubmittedByDP(env.Payload.(message.ProfileSubmittedByDP))
	case message.KindSchedExecuteJob:
		return s.onSchedExecuteJob(ctx, env.Payload.(message.SchedExecuteJob))
	case message.KindSchedChangeJobState:
		return s.onSchedChangeJobState(env.Payload.(message.SchedChangeJobState))
	case message.KindSchedRejectJob:
		return s.onSchedRejectJob(env.Payload.(message.SchedRejectJob))
	case message.KindSchedKillJob:
		return s.onSchedKillJob(ctx, env.Payload.(message.SchedKillJob))
	case message.KindSchedCallMeLater:
		return s.onSchedCallMeLater(ctx, env.Payload.(message.SchedCallMeLater))
	case message.KindSchedTellMeEnergy:
		return s.onSchedTellMeEnergy()
	case message.KindPstateModification:
		return s.onPstateModification(ctx, env.Payload.(message.PstateModification))
	case message.KindSwitchedOn:
		p := env.Payload.(message.SwitchedOn)
		return s.onSwitched(p.MachineID, p.Pstate, relay.TypeSwitchedOn)
	case message.KindSwitchedOff:
		p := env.Payload.(message.SwitchedOff)
		return s.onSwitched(p.MachineID, p.Pstate, relay.TypeSwitchedOff)
	case message.KindJobCompleted:
		return s.onJobCompleted(ctx, env.Payload.(message.JobCompleted))
	case message.KindWaitingDone:
		return s.onWaitingDone(env.Payload.(message.WaitingDone))
	case message.KindKillingDone:
		return s.onKillingDone(env.Payload.(message.KillingDone))
	case message.KindEndDynamicSubmit:
		return s.onEndDynamicSubmit()
	case message.KindContinueDynamicSubmit:
		return s.onContinueDynamicSubmit()
	case message.KindToJobMsg:
		return s.onToJobMsg(ctx, env.Payload.(message.ToJobMsg))
	case message.KindFromJobMsg:
		return s.onFromJobMsg(env.Payload.(message.FromJobMsg))
	case message.KindSchedReady:
		s.schedReady = true
		return nil
	default:
		return xerrors.Errorf("server: unhandled message kind %s", env.Kind)
	}
}

func (s *Server) onSubmitterHello(p message.SubmitterHello) error {
	s.submitters[p.Name] = submitterInfo{wantsCallback: p.WantsCallback}
	s.addCounter(&s.nbSubmitters, 1)
	return nil
}

func (s *Server) onSubmitterBye(p message.SubmitterBye) error {
	info, ok := s.submitters[p.Name]
	if !ok {
		return fatalf("server: SUBMITTER_BYE from unknown submitter %q", p.Name)
	}
	info.done = true
	s.submitters[p.Name] = info
	s.addCounter(&s.nbSubmittersFinished, 1)
	s.checkSubmittersFinished()
	return nil
}

// checkSubmittersFinished applies spec.md §4.9's rule: all submitters done
// and no dynamic submission expected (i.e. submissionSchedFinished already
// holds, whether because it was never enabled or because END_DYNAMIC_SUBMIT
// already arrived) together set submission_submitters_finished.
func (s *Server) checkSubmittersFinished() {
	if s.nbSubmittersFinished == s.nbSubmitters && s.submissionSchedFinished {
		s.submissionSubmittersFinished = true
	}
}

func (s *Server) onJobSubmitted(p message.JobSubmitted) error {
	s.jobSubmitter[p.JobID] = p.SubmitterName
	s.Relay.Enqueue(relay.OutboundEvent{Timestamp: s.Clock.Now(), Type: relay.TypeJobSubmitted, Data: p})
	return nil
}

func (s *Server) onJobSubmittedByDP(p message.JobSubmittedByDP) error {
	j := p.Job
	workload := s.Registry.Workload(j.ID.Workload)
	if err := workload.AddJob(&j); err != nil {
		return xerrors.Errorf("server: JOB_SUBMITTED_BY_DP: %w", err)
	}
	s.Relay.Enqueue(relay.OutboundEvent{Timestamp: s.Clock.Now(), Type: relay.TypeJobSubmitted, Data: message.JobSubmitted{JobID: j.ID}})
	return nil
}

func (s *Server) onProfileSubmittedByDP(p message.ProfileSubmittedByDP) error {
	workload := s.Registry.Workload(p.Workload)
	profile := p.Profile
	if err := workload.AddProfile(&profile); err != nil {
		return xerrors.Errorf("server: PROFILE_SUBMITTED_BY_DP: %w", err)
	}
	return nil
}

func (s *Server) onSchedExecuteJob(ctx context.Context, p message.SchedExecuteJob) error {
	j, ok := s.Registry.Resolve(p.JobID)
	if !ok {
		return fatalf("server: SCHED_EXECUTE_JOB: unknown job %s", p.JobID)
	}
	for _, m := range p.Machines {
		if !s.Machines.PermitsExecution(m) {
			return fatalf("server: SCHED_EXECUTE_JOB: machine %d does not permit execution", m)
		}
	}
	if err := j.State.CheckTransition(job.StateRunning); err != nil {
		return xerrors.Errorf("server: SCHED_EXECUTE_JOB: %w", err)
	}
	j.State = job.StateRunning

	workload := s.Registry.Workload(p.JobID.Workload)
	profile, ok := workload.Profile(j.ProfileName)
	if !ok {
		return fatalf("server: SCHED_EXECUTE_JOB: job %s references unknown profile %q", p.JobID, j.ProfileName)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.running[p.JobID] = &runningJob{startedAt: s.Clock.Now(), cancel: cancel}
	s.mu.Unlock()

	s.addCounter(&s.nbRunningJobs, 1)

	exec := &worker.JobExecutor{
		Clock:      s.Clock,
		Machines:   s.Machines,
		Profiles:   s.Profiles,
		Server:     s.Mailbox,
		Scheduling: s.Sched,
		Energy:     s.Energy,
		Log:        s.Log,
	}
	go func() {
		if err := exec.Run(runCtx, workload, j, profile, p.Machines, p.RankToHost); err != nil && s.Log != nil {
			s.Log.WithError(err).WithField("job", p.JobID.String()).Error("job executor failed")
		}
	}()
	return nil
}

// onSchedChangeJobState overwrites a job's state with the decider-supplied
// terminal state unconditionally, regardless of the job's current state
// (spec.md §3/§4.9); it does not run the normal transition check.
func (s *Server) onSchedChangeJobState(p message.SchedChangeJobState) error {
	j, ok := s.Registry.Resolve(p.JobID)
	if !ok {
		return fatalf("server: SCHED_CHANGE_JOB_STATE: unknown job %s", p.JobID)
	}
	if !p.NewState.IsTerminal() {
		return fatalf("server: SCHED_CHANGE_JOB_STATE: %s is not a terminal state", p.NewState)
	}
	j.State = p.NewState
	j.KillReason = p.KillReason
	return nil
}

func (s *Server) onSchedRejectJob(p message.SchedRejectJob) error {
	j, ok := s.Registry.Resolve(p.JobID)
	if !ok {
		return fatalf("server: SCHED_REJECT_JOB: unknown job %s", p.JobID)
	}
	if err := j.State.CheckTransition(job.StateRejected); err != nil {
		return xerrors.Errorf("server: SCHED_REJECT_JOB: %w", err)
	}
	j.State = job.StateRejected
	s.addCounter(&s.nbRejectedJobs, 1)
	return nil
}

func (s *Server) onSchedKillJob(ctx context.Context, p message.SchedKillJob) error {
	s.addCounter(&s.nbKillers, 1)
	k := &worker.Killer{Registry: s, Server: s.Mailbox, Log: s.Log}
	go func() {
		if err := k.Kill(ctx, p.JobIDs); err != nil && s.Log != nil {
			s.Log.WithError(err).Error("killer failed")
		}
	}()
	return nil
}

func (s *Server) onSchedCallMeLater(ctx context.Context, p message.SchedCallMeLater) error {
	s.addCounter(&s.nbWaiters, 1)
	w := &worker.Waiter{Clock: s.Clock, Server: s.Mailbox, Log: s.Log}
	go func() {
		if err := w.Wait(ctx, p.TargetTime); err != nil && s.Log != nil {
			s.Log.WithError(err).Error("waiter failed")
		}
	}()
	return nil
}

func (s *Server) onSchedTellMeEnergy() error {
	total := s.Machines.TotalConsumedEnergy()
	if s.Metrics != nil {
		s.Metrics.SetEnergyConsumed(total)
	}
	s.Relay.Enqueue(relay.OutboundEvent{Timestamp: s.Clock.Now(), Type: relay.TypeEnergyReport, Data: total})
	return nil
}

func (s *Server) onPstateModification(ctx context.Context, p message.PstateModification) error {
	s.addCounter(&s.nbSwitchingMachines, len(p.Machines))
	for _, m := range p.Machines {
		m := m
		sw := &worker.Switcher{Clock: s.Clock, Machines: s.Machines, Server: s.Mailbox, Log: s.Log}
		go func() {
			var err error
			if p.Pstate == 0 {
				err = sw.SwitchOn(ctx, m, p.Pstate)
			} else {
				err = sw.SwitchOff(ctx, m, p.Pstate)
			}
			if err != nil && s.Log != nil {
				s.Log.WithError(err).WithField("machine", m).Error("pstate switcher failed")
			}
		}()
	}
	s.Relay.Enqueue(relay.OutboundEvent{Timestamp: s.Clock.Now(), Type: relay.TypePstateChanged, Data: p})
	return nil
}

func (s *Server) onSwitched(machineID, pstate int, evtType string) error {
	s.addCounter(&s.nbSwitchingMachines, -1)
	s.Relay.Enqueue(relay.OutboundEvent{Timestamp: s.Clock.Now(), Type: evtType, Data: map[string]int{"machine": machineID, "pstate": pstate}})
	return nil
}

func (s *Server) onJobCompleted(ctx context.Context, p message.JobCompleted) error {
	s.addCounter(&s.nbRunningJobs, -1)
	s.mu.Lock()
	delete(s.running, p.JobID)
	s.mu.Unlock()

	if j, ok := s.Registry.Resolve(p.JobID); ok {
		if err := j.State.CheckTransition(p.FinalState); err != nil {
			return xerrors.Errorf("server: JOB_COMPLETED: %w", err)
		}
		j.State = p.FinalState
		j.KillReason = p.KillReason
	}

	if s.Metrics != nil {
		s.Metrics.RecordJobCompletion(p.FinalState.String())
	}

	s.Relay.Enqueue(relay.OutboundEvent{Timestamp: s.Clock.Now(), Type: relay.TypeJobCompleted, Data: p})

	name, ok := s.jobSubmitter[p.JobID]
	if !ok {
		return nil
	}
	info, ok := s.submitters[name]
	if !ok || !info.wantsCallback {
		return nil
	}
	return s.Bus.Mailbox(name).Send(ctx, message.Envelope{
		Kind:    message.KindSubmitterCallback,
		Payload: message.SubmitterCallback{CompletedJobID: p.JobID},
	})
}

func (s *Server) onWaitingDone(p message.WaitingDone) error {
	s.addCounter(&s.nbWaiters, -1)
	s.Relay.Enqueue(relay.OutboundEvent{Timestamp: s.Clock.Now(), Type: relay.TypeWaitingDone, Data: p})
	return nil
}

func (s *Server) onKillingDone(p message.KillingDone) error {
	s.addCounter(&s.nbKillers, -1)
	s.Relay.Enqueue(relay.OutboundEvent{Timestamp: s.Clock.Now(), Type: relay.TypeKillingDone, Data: p})
	return nil
}

func (s *Server) onEndDynamicSubmit() error {
	s.submissionSchedFinished = true
	s.checkSubmittersFinished()
	return nil
}

func (s *Server) onContinueDynamicSubmit() error {
	s.submissionSchedFinished = false
	return nil
}

func (s *Server) onToJobMsg(ctx context.Context, p message.ToJobMsg) error {
	return s.Bus.Mailbox(p.JobID.String()).Send(ctx, message.Envelope{Kind: message.KindToJobMsg, Payload: p})
}

func (s *Server) onFromJobMsg(p message.FromJobMsg) error {
	s.Relay.Enqueue(relay.OutboundEvent{Timestamp: s.Clock.Now(), Type: relay.TypeFromJobMsg, Data: p})
	return nil
}
