package worker

import (
	"context"
	"math"

	"github.com/batsimgo/core/job"
	"github.com/batsimgo/core/message"
	"github.com/batsimgo/core/platform"
	"github.com/batsimgo/core/trace"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// JobExecutor wraps one profile-execution run with the start/end
// bookkeeping, energy accounting, and completion notification spec.md §4.5
// describes. A caller owns exactly one allocation per call to Run.
type JobExecutor struct {
	Clock      platform.Clock
	Machines   platform.MachineOps
	Profiles   *ProfileExecutor
	Server     *message.Mailbox
	Scheduling trace.Scheduling // nil disables scheduling trace recording
	Energy     trace.Energy     // nil disables energy accounting
	Log        *logrus.Entry

	// Lite, when true, skips energy accounting and the JOB_COMPLETED
	// notification (spec.md §4.5 "lite variant"). It is otherwise
	// identical, used only for profile pre-simulation / dry-runs.
	Lite bool
}

// Run executes j's profile against allocation to completion (or kill), and
// fills in j's starting time, allocation, runtime and consumed energy; the
// terminal state is reported in JOB_COMPLETED for the Server to apply on
// j. workload resolves
// sequence sub-profiles by name. ctx being cancelled mid-run is treated as a
// kill request (spec.md §9 "the Executor always emits JOB_COMPLETED").
func (je *JobExecutor) Run(ctx context.Context, workload *job.Workload, j *job.Job, profile *job.Profile, allocation []int, rankToHost []int) error {
	je.Clock.Enter()
	defer je.Clock.Leave()

	j.StartingTime = je.Clock.Now()
	j.Allocation = allocation
	j.RankToHost = rankToHost

	remaining := j.Walltime
	if remaining <= 0 {
		remaining = math.Inf(1) // SPEC_FULL.md §12: walltime <= 0 means unlimited
	}

	var baseline map[int]float64
	if !je.Lite && je.Energy != nil {
		baseline = je.snapshotEnergy(allocation)
		je.Energy.JobEnergyStarted(j.ID, baseline)
	}
	if je.Scheduling != nil {
		je.Scheduling.JobStarted(j.ID, j.StartingTime, allocation)
	}

	if err := je.Machines.UpdateOnJobRun(j.ID, allocation); err != nil {
		return xerrors.Errorf("job %s: update machines on run: %w", j.ID, err)
	}

	result, killReason, err := je.runProfile(ctx, workload, profile, j, allocation, rankToHost, &remaining)
	if err != nil {
		return xerrors.Errorf("job %s: %w", j.ID, err)
	}

	finalState := job.StateCompletedSuccessfully
	if result == WalltimeReached {
		finalState = job.StateCompletedKilled
	}

	if err := je.Machines.UpdateOnJobEnd(j.ID, allocation); err != nil {
		return xerrors.Errorf("job %s: update machines on end: %w", j.ID, err)
	}

	j.Runtime = je.Clock.Now() - j.StartingTime
	if profile.Kind == job.ProfileMPIReplay && j.Runtime < 1e-5 {
		j.Runtime = 1e-5 // clock-precision floor for MPI-replay jobs, spec.md §4.5
	}
	if j.Runtime <= 0 {
		return xerrors.Errorf("job %s: non-positive runtime %v: %w", j.ID, j.Runtime, errFatal)
	}

	if je.Scheduling != nil {
		je.Scheduling.JobEnded(j.ID, finalState, j.Runtime)
		if finalState == job.StateCompletedKilled {
			je.Scheduling.JobKilled(j.ID, killReason)
		}
	}

	if !je.Lite && je.Energy != nil {
		consumed := je.sumEnergyDelta(allocation, baseline)
		j.ConsumedEnergy = consumed
		je.Energy.JobEnergyEnded(j.ID, consumed)
	}

	if !je.Lite {
		// A kill cancels ctx, so the completion is sent on a context the
		// kill does not cancel; otherwise a killed job's JOB_COMPLETED
		// could be dropped.
		if err := je.Server.Send(context.Background(), message.Envelope{
			Kind:    message.KindJobCompleted,
			Payload: message.JobCompleted{JobID: j.ID, FinalState: finalState, KillReason: killReason},
		}); err != nil {
			return xerrors.Errorf("job %s: notifying completion: %w", j.ID, err)
		}
	}

	return nil
}

// runProfile plays profile to completion, translating a context
// cancellation (kill) into a WalltimeReached-shaped result rather than an
// error, per the discipline spec.md §9 settles on.
func (je *JobExecutor) runProfile(ctx context.Context, workload *job.Workload, profile *job.Profile, j *job.Job, allocation, rankToHost []int, remaining *float64) (Result, string, error) {
	result, err := je.Profiles.Execute(ctx, workload, profile, j.ID, allocation, rankToHost, remaining)
	if err != nil {
		if xerrors.Is(err, context.Canceled) {
			return WalltimeReached, "killed", nil
		}
		return result, "", err
	}
	if result == WalltimeReached {
		return result, "walltime_reached", nil
	}
	return result, "", nil
}

func (je *JobExecutor) snapshotEnergy(allocation []int) map[int]float64 {
	base := make(map[int]float64, len(allocation))
	for _, m := range allocation {
		base[m] = je.Machines.ConsumedEnergy(m)
	}
	return base
}

func (je *JobExecutor) sumEnergyDelta(allocation []int, baseline map[int]float64) float64 {
	var total float64
	for _, m := range allocation {
		total += je.Machines.ConsumedEnergy(m) - baseline[m]
	}
	return total
}
