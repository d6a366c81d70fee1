package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/batsimgo/core/job"
	"golang.org/x/xerrors"
)

// workloadFile is the thin JSON loader SPEC_FULL.md §14 leaves as a
// documented extension point: this core never parses the original
// platform/workload XML formats, but a caller still needs some way to get
// jobs and profiles into a job.Workload without hand-writing Go literals.
// This is that way, kept deliberately small.
type workloadFile struct {
	Name     string       `json:"name"`
	Profiles []profileDTO `json:"profiles"`
	Jobs     []jobDTO     `json:"jobs"`
}

type profileDTO struct {
	Name string `json:"name"`
	Kind string `json:"kind"`

	Delay float64 `json:"delay,omitempty"`

	CPU float64 `json:"cpu,omitempty"`
	Com float64 `json:"com,omitempty"`

	CPUVector [][]float64 `json:"cpu_vector,omitempty"`
	ComMatrix [][]float64 `json:"com_matrix,omitempty"`

	Size float64 `json:"size,omitempty"`

	TraceFiles []string `json:"trace_files,omitempty"`

	Repeat      int      `json:"repeat,omitempty"`
	SubProfiles []string `json:"sub_profiles,omitempty"`
}

type jobDTO struct {
	Number         int64   `json:"number"`
	Resources      int     `json:"resources"`
	Walltime       float64 `json:"walltime"`
	Profile        string  `json:"profile"`
	SubmissionTime float64 `json:"submission_time"`
}

func loadWorkloadFile(path string) (*workloadFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("opening workload file %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return decodeWorkloadFile(path, f)
}

func decodeWorkloadFile(path string, r io.Reader) (*workloadFile, error) {
	var wf workloadFile
	if err := json.NewDecoder(r).Decode(&wf); err != nil {
		return nil, xerrors.Errorf("decoding workload file %q: %w", path, err)
	}
	return &wf, nil
}

// toProfile converts the wire DTO into the job package's tagged union,
// rejecting an unrecognized kind up front rather than leaving it to
// Profile.Validate to discover as a fatal invariant violation later.
func (p profileDTO) toProfile() (*job.Profile, error) {
	out := &job.Profile{Name: p.Name}
	switch p.Kind {
	case "delay":
		out.Kind = job.ProfileDelay
		out.Delay = job.DelayProfile{Duration: p.Delay}
	case "parallel_homogeneous":
		out.Kind = job.ProfileParallelHomogeneous
		out.ParallelHomogeneous = job.ParallelHomogeneousProfile{CPU: p.CPU, Com: p.Com}
	case "parallel_explicit":
		out.Kind = job.ProfileParallelExplicit
		out.ParallelExplicit = job.ParallelExplicitProfile{CPU: p.CPUVector, Com: p.ComMatrix}
	case "parallel_homogeneous_pfs":
		out.Kind = job.ProfileParallelHomogeneousPFS
		out.ParallelHomogeneousPFS = job.ParallelHomogeneousPFSProfile{CPU: p.CPU, Size: p.Size}
	case "mpi_replay":
		out.Kind = job.ProfileMPIReplay
		out.MPIReplay = job.MPIReplayProfile{TraceFiles: p.TraceFiles}
	case "sequence":
		out.Kind = job.ProfileSequence
		out.Sequence = job.SequenceProfile{Repeat: p.Repeat, SubProfiles: p.SubProfiles}
	default:
		return nil, xerrors.Errorf("profile %q: unrecognized kind %q", p.Name, p.Kind)
	}
	return out, nil
}

// apply validates wf and loads it into workload, returning the submission
// schedule (job ID plus submission time) in file order.
func (wf *workloadFile) apply(workload *job.Workload) ([]submissionEntry, error) {
	for _, pd := range wf.Profiles {
		p, err := pd.toProfile()
		if err != nil {
			return nil, xerrors.Errorf("workload %q: %w", wf.Name, err)
		}
		if err := workload.AddProfile(p); err != nil {
			return nil, xerrors.Errorf("workload %q: %w", wf.Name, err)
		}
	}

	entries := make([]submissionEntry, 0, len(wf.Jobs))
	for _, jd := range wf.Jobs {
		if _, ok := workload.Profile(jd.Profile); !ok {
			return nil, xerrors.Errorf("workload %q: job %d references unknown profile %q", wf.Name, jd.Number, jd.Profile)
		}
		j := &job.Job{
			ID:                job.ID{Workload: wf.Name, Number: jd.Number},
			RequiredResources: jd.Resources,
			Walltime:          jd.Walltime,
			ProfileName:       jd.Profile,
			State:             job.StateSubmitted,
		}
		if err := workload.AddJob(j); err != nil {
			return nil, xerrors.Errorf("workload %q: %w", wf.Name, err)
		}
		entries = append(entries, submissionEntry{time: jd.SubmissionTime, id: j.ID})
	}
	return entries, nil
}

type submissionEntry struct {
	time float64
	id   job.ID
}
