// Package platform declares the boundary between this core and the three
// external collaborators spec.md §6 calls out: simulated time, the
// parallel-task execution primitive, and the machine layer. spec.md §1
// explicitly keeps "the underlying discrete-event simulation kernel (host
// model, clock, parallel-task execution primitive)" out of this core's
// scope; this package is that boundary's Go expression — interfaces only.
// A reference in-memory implementation lives in platform/simkernel, the
// way Chapter06/linkgraph's graph.Store is backed by store/memory in the
// teacher repo.
package platform

import (
	"context"

	"github.com/batsimgo/core/job"
)

// Outcome is the result of a parallel-task execution attempt (spec.md §6).
type Outcome int

const (
	OK Outcome = iota
	Timeout
	FatalOutcome
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "OK"
	case Timeout:
		return "TIMEOUT"
	case FatalOutcome:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParallelExecutor runs a compute/communication shape across a set of
// hosts under an optional walltime budget (spec.md §6
// "parallel_task_execute_with_timeout"). A timeout <= 0 means no budget.
type ParallelExecutor interface {
	Execute(ctx context.Context, hosts []int, compute []float64, comm [][]float64, timeout float64) (Outcome, error)
}

// Clock abstracts simulated time. Sleep suspends the calling task until
// the given number of simulated seconds have elapsed, participating in the
// cooperative scheduling model of spec.md §5: the clock only advances once
// every registered task is parked in Sleep.
type Clock interface {
	Now() float64
	Sleep(ctx context.Context, seconds float64) error

	// Enter/Leave bracket a task's lifetime so the clock knows how many
	// tasks are runnable (spec.md §5's "no two message handlers execute
	// concurrently" / "clock only advances while every task is blocked").
	Enter()
	Leave()
}

// MachineOps is the machine layer described in spec.md §6: job-run/job-end
// bookkeeping, energy readout, the special PFS host, and direct pstate
// control used by the Pstate Switcher.
type MachineOps interface {
	// UpdateOnJobRun records that id started running on machines.
	UpdateOnJobRun(id job.ID, machines []int) error
	// UpdateOnJobEnd records that id stopped running on machines.
	UpdateOnJobEnd(id job.ID, machines []int) error

	// ConsumedEnergy returns the machine's cumulative consumed energy.
	ConsumedEnergy(machineID int) float64
	// TotalConsumedEnergy returns the platform-wide cumulative consumed
	// energy (spec.md §4.9 SCHED_TELL_ME_ENERGY).
	TotalConsumedEnergy() float64

	// PFSMachine returns the id of the virtual parallel-filesystem host.
	PFSMachine() int

	// Pstate returns a machine's current pstate.
	Pstate(machineID int) int
	// SetPstate forces a machine's pstate, called by the Pstate Switcher
	// once its transition delay has elapsed.
	SetPstate(machineID, pstate int)
	// TransitionDelay returns how many simulated seconds a Pstate Switcher
	// must sleep before a machine finishes moving from its current pstate
	// to target.
	TransitionDelay(machineID, target int) float64

	// PermitsExecution reports whether a machine is currently allowed to
	// run jobs (e.g. not mid pstate-transition to an off state). The
	// Server consults this when validating SCHED_EXECUTE_JOB (spec.md §7).
	PermitsExecution(machineID int) bool
}
