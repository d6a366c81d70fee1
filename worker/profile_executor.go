package worker

import (
	"context"
	"sync"

	"github.com/batsimgo/core/job"
	"github.com/batsimgo/core/platform"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Result is what a profile playback ends in: it either ran to completion or
// was cut short by its walltime budget (spec.md §4.4).
type Result int

const (
	Finished Result = iota
	WalltimeReached
)

func (r Result) String() string {
	if r == Finished {
		return "FINISHED"
	}
	return "WALLTIME_REACHED"
}

// errFatal wraps the invariant violations spec.md §7 calls fatal: unknown
// profile kind, malformed MPI mapping, an execution outcome the platform
// layer has no business returning.
var errFatal = xerrors.New("profile executor: fatal invariant violation")

// ProfileExecutor plays one job's profile against its allocation, charging
// elapsed simulated time against a caller-owned remaining-time budget
// (spec.md §4.4). It is stateless across calls; every field is a shared
// collaborator handed in by the Job Executor that owns the call.
type ProfileExecutor struct {
	Clock    platform.Clock
	Exec     platform.ParallelExecutor
	Machines platform.MachineOps
	Log      *logrus.Entry
}

// Execute plays profile against allocation, starting from *remaining
// simulated seconds of budget and decrementing it by whatever elapses.
// workload is the profile's owning workload, used to resolve sequence
// sub-profiles by name.
func (pe *ProfileExecutor) Execute(ctx context.Context, workload *job.Workload, profile *job.Profile, jobID job.ID, allocation []int, rankToHost []int, remaining *float64) (Result, error) {
	switch profile.Kind {
	case job.ProfileDelay:
		return pe.executeDelay(ctx, profile.Delay.Duration, remaining)

	case job.ProfileParallelHomogeneous:
		n := len(allocation)
		compute := make([]float64, n)
		for i := range compute {
			compute[i] = profile.ParallelHomogeneous.CPU
		}
		var comm [][]float64
		if profile.ParallelHomogeneous.Com != 0 {
			comm = homogeneousMatrix(n, profile.ParallelHomogeneous.Com)
		}
		return pe.executeParallel(ctx, allocation, compute, comm, remaining)

	case job.ProfileParallelExplicit:
		return pe.executeParallel(ctx, allocation, profile.ParallelExplicit.CPUVector(), profile.ParallelExplicit.Com, remaining)

	case job.ProfileParallelHomogeneousPFS:
		hosts := append(append([]int{}, allocation...), pe.Machines.PFSMachine())
		n := len(hosts)
		compute := make([]float64, n) // zero compute, per spec.md §4.4
		comm := make([][]float64, n)
		for i := range comm {
			comm[i] = make([]float64, n)
		}
		pfsCol := n - 1
		for i := 0; i < len(allocation); i++ {
			comm[i][pfsCol] = profile.ParallelHomogeneousPFS.Size
		}
		return pe.executeParallel(ctx, hosts, compute, comm, remaining)

	case job.ProfileMPIReplay:
		return pe.executeMPIReplay(ctx, profile.MPIReplay, jobID, allocation, rankToHost, remaining)

	case job.ProfileSequence:
		return pe.executeSequence(ctx, workload, profile.Sequence, jobID, allocation, rankToHost, remaining)

	default:
		return WalltimeReached, xerrors.Errorf("unknown profile kind %d: %w", int(profile.Kind), errFatal)
	}
}

func homogeneousMatrix(n int, com float64) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		for j := range m[i] {
			if i != j {
				m[i][j] = com
			}
		}
	}
	return m
}

func (pe *ProfileExecutor) executeDelay(ctx context.Context, d float64, remaining *float64) (Result, error) {
	if d < *remaining {
		if err := pe.Clock.Sleep(ctx, d); err != nil {
			return WalltimeReached, err
		}
		*remaining -= d
		return Finished, nil
	}
	if err := pe.Clock.Sleep(ctx, *remaining); err != nil {
		return WalltimeReached, err
	}
	*remaining = 0
	return WalltimeReached, nil
}

func (pe *ProfileExecutor) executeParallel(ctx context.Context, hosts []int, compute []float64, comm [][]float64, remaining *float64) (Result, error) {
	before := pe.Clock.Now()
	outcome, err := pe.Exec.Execute(ctx, hosts, compute, comm, *remaining)
	elapsed := pe.Clock.Now() - before
	if elapsed > 0 {
		*remaining -= elapsed
		if *remaining < 0 {
			*remaining = 0
		}
	}
	if err != nil {
		return WalltimeReached, err
	}
	switch outcome {
	case platform.OK:
		return Finished, nil
	case platform.Timeout:
		return WalltimeReached, nil
	default:
		return WalltimeReached, xerrors.Errorf("parallel task execution returned %s: %w", outcome, errFatal)
	}
}

// executeMPIReplay assigns ranks to hosts round-robin when no explicit
// mapping was supplied, then plays back each rank's trace file as one
// parallel-task unit of work against its assigned host (trace file parsing
// itself is an external collaborator's concern, spec.md §1). Rank 0's
// completion gates every other rank's start, modeled as a countdown rather
// than the source's binary semaphore hand-off (spec.md §9).
func (pe *ProfileExecutor) executeMPIReplay(ctx context.Context, profile job.MPIReplayProfile, jobID job.ID, allocation []int, rankToHost []int, remaining *float64) (Result, error) {
	nRanks := len(profile.TraceFiles)
	if nRanks == 0 {
		return WalltimeReached, xerrors.Errorf("mpi replay profile has no trace files: %w", errFatal)
	}
	if len(allocation) == 0 {
		return WalltimeReached, xerrors.Errorf("mpi replay profile %s has no allocated hosts: %w", jobID, errFatal)
	}

	mapping := rankToHost
	if len(mapping) == 0 {
		mapping = make([]int, nRanks)
		for i := range mapping {
			mapping[i] = i % len(allocation)
		}
	}
	if len(mapping) != nRanks {
		return WalltimeReached, xerrors.Errorf("mpi rank mapping has %d entries, want %d: %w", len(mapping), nRanks, errFatal)
	}

	var rank0Done sync.WaitGroup
	rank0Done.Add(1)
	var ranksDone sync.WaitGroup
	ranksDone.Add(nRanks)

	for rank := 0; rank < nRanks; rank++ {
		rank := rank
		host := allocation[mapping[rank]]
		go func() {
			defer ranksDone.Done()
			if rank != 0 {
				rank0Done.Wait()
			}
			pe.Exec.Execute(ctx, []int{host}, []float64{0}, nil, *remaining) //nolint:errcheck // best-effort trace playback, §9
			if rank == 0 {
				rank0Done.Done()
			}
		}()
	}
	ranksDone.Wait()

	return Finished, nil
}

func (pe *ProfileExecutor) executeSequence(ctx context.Context, workload *job.Workload, seq job.SequenceProfile, jobID job.ID, allocation []int, rankToHost []int, remaining *float64) (Result, error) {
	for rep := 0; rep < seq.Repeat; rep++ {
		for _, name := range seq.SubProfiles {
			sub, ok := workload.Profile(name)
			if !ok {
				return WalltimeReached, xerrors.Errorf("sequence profile references unknown sub-profile %q: %w", name, errFatal)
			}
			result, err := pe.Execute(ctx, workload, sub, jobID, allocation, rankToHost, remaining)
			if err != nil {
				return result, err
			}
			if result == WalltimeReached {
				return WalltimeReached, nil
			}
		}
	}
	return Finished, nil
}
