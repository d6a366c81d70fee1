package job

import "golang.org/x/xerrors"

// ProfileKind tags the variant held by a Profile. Go has no sum-type
// machinery, so the tag plus one struct field per variant plays the role
// the kind-tagged envelope/destructor-switch plays in the original core
// (spec.md §9 "Typed message payloads").
type ProfileKind int

const (
	ProfileDelay ProfileKind = iota
	ProfileParallelHomogeneous
	ProfileParallelExplicit
	ProfileParallelHomogeneousPFS
	ProfileMPIReplay
	ProfileSequence
)

func (k ProfileKind) String() string {
	switch k {
	case ProfileDelay:
		return "delay"
	case ProfileParallelHomogeneous:
		return "parallel_homogeneous"
	case ProfileParallelExplicit:
		return "parallel_explicit"
	case ProfileParallelHomogeneousPFS:
		return "parallel_homogeneous_pfs"
	case ProfileMPIReplay:
		return "mpi_replay"
	case ProfileSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// DelayProfile is a single simulated-second duration (spec.md §3).
type DelayProfile struct {
	Duration float64
}

// ParallelHomogeneousProfile broadcasts one cpu amount and one
// communication amount across an implicit NxN matrix with a zero diagonal.
type ParallelHomogeneousProfile struct {
	CPU float64
	Com float64
}

// ParallelExplicitProfile carries the raw per-host compute vector and the
// full communication matrix.
type ParallelExplicitProfile struct {
	CPU [][]float64 // unused second dimension kept at len 1 per host; see CPUVector
	Com [][]float64
}

// CPUVector returns the per-host compute amounts as a flat vector.
func (p ParallelExplicitProfile) CPUVector() []float64 {
	vec := make([]float64, len(p.CPU))
	for i, row := range p.CPU {
		if len(row) > 0 {
			vec[i] = row[0]
		}
	}
	return vec
}

// ParallelHomogeneousPFSProfile is a homogeneous parallel profile that adds
// one virtual host (the parallel filesystem machine) receiving size bytes
// from every job host (spec.md §3, §4.4).
type ParallelHomogeneousPFSProfile struct {
	CPU  float64
	Size float64
}

// MPIReplayProfile lists one trace file path per MPI rank.
type MPIReplayProfile struct {
	TraceFiles []string
}

// SequenceProfile repeats an ordered list of sub-profile names Repeat times
// in total (spec.md §4.4).
type SequenceProfile struct {
	Repeat      int
	SubProfiles []string
}

// Profile is a tagged union over the six profile kinds this core plays
// back (spec.md §3; kind set confirmed against original_source/src/ipp.hpp).
type Profile struct {
	Name string
	Kind ProfileKind

	Delay                  DelayProfile
	ParallelHomogeneous    ParallelHomogeneousProfile
	ParallelExplicit       ParallelExplicitProfile
	ParallelHomogeneousPFS ParallelHomogeneousPFSProfile
	MPIReplay              MPIReplayProfile
	Sequence               SequenceProfile
}

// Validate performs the structural checks the original core performs at
// load time (an unknown/malformed profile kind is a fatal invariant
// violation per spec.md §7).
func (p *Profile) Validate() error {
	switch p.Kind {
	case ProfileDelay:
		if p.Delay.Duration < 0 {
			return xerrors.Errorf("profile %q: negative delay duration", p.Name)
		}
	case ProfileParallelHomogeneous:
	case ProfileParallelExplicit:
		n := len(p.ParallelExplicit.CPU)
		if len(p.ParallelExplicit.Com) != 0 && len(p.ParallelExplicit.Com) != n {
			return xerrors.Errorf("profile %q: comm matrix row count %d does not match host count %d", p.Name, len(p.ParallelExplicit.Com), n)
		}
		for i, row := range p.ParallelExplicit.Com {
			if len(row) != n {
				return xerrors.Errorf("profile %q: comm matrix row %d has %d columns, want %d", p.Name, i, len(row), n)
			}
		}
	case ProfileParallelHomogeneousPFS:
	case ProfileMPIReplay:
		if len(p.MPIReplay.TraceFiles) == 0 {
			return xerrors.Errorf("profile %q: mpi replay profile has no trace files", p.Name)
		}
	case ProfileSequence:
		if p.Sequence.Repeat <= 0 {
			return xerrors.Errorf("profile %q: sequence repeat count must be positive", p.Name)
		}
		if len(p.Sequence.SubProfiles) == 0 {
			return xerrors.Errorf("profile %q: sequence has no sub-profiles", p.Name)
		}
	default:
		return xerrors.Errorf("profile %q: unknown profile kind %d", p.Name, int(p.Kind))
	}
	return nil
}
