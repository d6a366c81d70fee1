package job

import (
	"sync"

	"golang.org/x/xerrors"
)

// Workload is the mapping described in spec.md §3: a named collection of
// jobs and the profiles they reference. Profiles may be submitted
// dynamically while a run is in progress (PROFILE_SUBMITTED_BY_DP), so
// Workload is safe for concurrent access from the Server goroutine and any
// Submitter goroutines that read it.
type Workload struct {
	Name string

	mu       sync.RWMutex
	jobs     map[int64]*Job
	profiles map[string]*Profile
}

// NewWorkload creates an empty workload with the given name.
func NewWorkload(name string) *Workload {
	return &Workload{
		Name:     name,
		jobs:     make(map[int64]*Job),
		profiles: make(map[string]*Profile),
	}
}

// AddJob registers a job, rejecting a duplicate job number.
func (w *Workload) AddJob(j *Job) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.jobs[j.ID.Number]; exists {
		return xerrors.Errorf("workload %s: job %d already exists", w.Name, j.ID.Number)
	}
	w.jobs[j.ID.Number] = j
	return nil
}

// Job looks up a job by number.
func (w *Workload) Job(number int64) (*Job, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	j, ok := w.jobs[number]
	return j, ok
}

// AddProfile registers (or overwrites) a profile.
func (w *Workload) AddProfile(p *Profile) error {
	if err := p.Validate(); err != nil {
		return xerrors.Errorf("workload %s: %w", w.Name, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.profiles[p.Name] = p
	return nil
}

// Profile looks up a profile by name.
func (w *Workload) Profile(name string) (*Profile, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.profiles[name]
	return p, ok
}

// Registry indexes Workloads by name, mirroring how the Server resolves a
// (workload_name, job_number) pair into a concrete *Job.
type Registry struct {
	mu        sync.RWMutex
	workloads map[string]*Workload
}

// NewRegistry creates an empty workload registry.
func NewRegistry() *Registry {
	return &Registry{workloads: make(map[string]*Workload)}
}

// Register adds a workload, or replaces one with the same name.
func (r *Registry) Register(w *Workload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workloads[w.Name] = w
}

// Workload returns the named workload, creating an empty one on first use
// so dynamic submission (JOB_SUBMITTED_BY_DP for a workload the Server
// hasn't seen yet) never needs a separate registration step.
func (r *Registry) Workload(name string) *Workload {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workloads[name]
	if !ok {
		w = NewWorkload(name)
		r.workloads[name] = w
	}
	return w
}

// Resolve looks up a job by its full ID.
func (r *Registry) Resolve(id ID) (*Job, bool) {
	r.mu.RLock()
	w, ok := r.workloads[id.Workload]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return w.Job(id.Number)
}
