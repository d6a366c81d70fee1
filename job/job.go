// Package job holds the data model for simulated jobs: identity, lifecycle
// state, and the bookkeeping a Job Executor fills in while it runs
// (allocation, timings, energy). See SPEC_FULL.md §3.
package job

import (
	"fmt"

	"golang.org/x/xerrors"
)

// State is a job's position in the lifecycle described in spec.md §3:
//
//	SUBMITTED -> RUNNING -> {COMPLETED_SUCCESSFULLY, COMPLETED_KILLED, COMPLETED_WALLTIME_REACHED}
//
// with SUBMITTED -> REJECTED as an extra transition, and
// NOT_SUBMITTED <-> SUBMITTED both forbidden.
type State int

const (
	StateNotSubmitted State = iota
	StateSubmitted
	StateRunning
	StateCompletedSuccessfully
	StateCompletedKilled
	StateCompletedWalltimeReached
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateNotSubmitted:
		return "NOT_SUBMITTED"
	case StateSubmitted:
		return "SUBMITTED"
	case StateRunning:
		return "RUNNING"
	case StateCompletedSuccessfully:
		return "COMPLETED_SUCCESSFULLY"
	case StateCompletedKilled:
		return "COMPLETED_KILLED"
	case StateCompletedWalltimeReached:
		return "COMPLETED_WALLTIME_REACHED"
	case StateRejected:
		return "REJECTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// IsTerminal reports whether s is one of the states a job can never leave.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompletedSuccessfully, StateCompletedKilled, StateCompletedWalltimeReached, StateRejected:
		return true
	default:
		return false
	}
}

// errInvalidTransition is returned by CheckTransition; the Server is the
// only component allowed to mutate job state (spec.md §3 invariants), so
// every caller of CheckTransition is expected to treat a non-nil error as a
// decider-level logical error (spec.md §7), not a recoverable condition.
var errInvalidTransition = xerrors.New("invalid job state transition")

// CheckTransition validates that moving a job from s to next is legal.
// NOT_SUBMITTED<->SUBMITTED is never legal from here; everything else
// follows the lifecycle graph: SUBMITTED to RUNNING or REJECTED, RUNNING to
// one of the COMPLETED_* states. The decider's SCHED_CHANGE_JOB_STATE
// override does not go through this check.
func (s State) CheckTransition(next State) error {
	switch {
	case s == next:
		return xerrors.Errorf("job already in state %s: %w", s, errInvalidTransition)
	case s == StateNotSubmitted || next == StateNotSubmitted:
		return xerrors.Errorf("NOT_SUBMITTED is not a reachable transition endpoint: %w", errInvalidTransition)
	case s == StateSubmitted && (next == StateRunning || next == StateRejected):
		return nil
	case s == StateRunning && next.IsTerminal() && next != StateRejected:
		return nil
	default:
		return xerrors.Errorf("cannot move job from %s to %s: %w", s, next, errInvalidTransition)
	}
}

// ID identifies a job by the pair spec.md §3 names: its workload and its
// job number within that workload.
type ID struct {
	Workload string
	Number   int64
}

func (id ID) String() string {
	return fmt.Sprintf("%s!%d", id.Workload, id.Number)
}

// Job is the core's view of a single simulated job.
type Job struct {
	ID                ID
	RequiredResources int
	// Walltime is the job's maximum allowed runtime in simulated seconds.
	// A value <= 0 disables walltime enforcement entirely (SPEC_FULL.md §12).
	Walltime    float64
	ProfileName string
	State       State

	// Allocation is the set of machine ids the job is (or was) running on.
	// Populated by the Job Executor the Server spawns on SCHED_EXECUTE_JOB;
	// present iff State is
	// RUNNING or a terminal state reached from RUNNING.
	Allocation []int

	// RankToHost maps MPI rank index to a position within Allocation. Nil
	// unless the decider supplied an explicit mapping; round-robin
	// assignment is used in that case (spec.md §4.4).
	RankToHost []int

	StartingTime   float64
	Runtime        float64
	ConsumedEnergy float64

	// KillReason is set by SCHED_CHANGE_JOB_STATE or by the Killer path
	// when the new state is a kill-derived terminal state.
	KillReason string
}

// HasAllocation reports the invariant from spec.md §3: "a job has an
// allocation iff its state is RUNNING or a terminal state after RUNNING".
func (j *Job) HasAllocation() bool {
	return len(j.Allocation) > 0
}
