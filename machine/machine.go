// Package machine holds the core's machine data model (spec.md §3): a
// machine's identity, current pstate, the jobs running on it, and its
// energy totals. Machine-state changes are serialized through the Server
// and the Pstate Switcher (spec.md §3 "Invariants"); Cluster is the
// in-memory table the Server consults and mutates.
package machine

import (
	"sync"

	"github.com/batsimgo/core/job"
	"github.com/batsimgo/core/platform"
)

var _ platform.MachineOps = (*Cluster)(nil)

// Machine is one simulated host.
type Machine struct {
	ID     int
	Pstate int

	// Running holds the ids of jobs currently allocated to this machine.
	Running map[job.ID]struct{}

	ComputedEnergy    float64 // energy consumed while actively computing
	NonComputedEnergy float64 // idle/background energy (pstate-dependent)
}

func newMachine(id, initialPstate int) *Machine {
	return &Machine{ID: id, Pstate: initialPstate, Running: make(map[job.ID]struct{})}
}

// Cluster is the Server-owned table of all simulated machines, plus the
// virtual PFS host referenced by PFS-hop profiles (spec.md §4.4).
type Cluster struct {
	mu          sync.Mutex
	machines    map[int]*Machine
	pfsMachine  int
	transitions TransitionCostFunc
}

// TransitionCostFunc returns how many simulated seconds a pstate
// transition between from and to takes on a given machine. The platform
// layer owns this cost model (spec.md §4.3); a constant-cost default is
// supplied by NewCluster when nil.
type TransitionCostFunc func(machineID, from, to int) float64

// NewCluster creates a cluster of numHosts machines (ids 0..numHosts-1),
// each starting in pstate 0, plus one virtual PFS machine with id
// numHosts. If costFn is nil, every transition costs a fixed 1 simulated
// second.
func NewCluster(numHosts int, costFn TransitionCostFunc) *Cluster {
	if costFn == nil {
		costFn = func(int, int, int) float64 { return 1 }
	}
	c := &Cluster{
		machines:    make(map[int]*Machine, numHosts+1),
		pfsMachine:  numHosts,
		transitions: costFn,
	}
	for i := 0; i < numHosts; i++ {
		c.machines[i] = newMachine(i, 0)
	}
	c.machines[c.pfsMachine] = newMachine(c.pfsMachine, 0)
	return c
}

// PFSMachine returns the virtual parallel-filesystem host's id.
func (c *Cluster) PFSMachine() int {
	return c.pfsMachine
}

// Get returns the machine with the given id, or nil if it doesn't exist.
func (c *Cluster) Get(id int) *Machine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machines[id]
}

// UpdateOnJobRun marks id as running on machines.
func (c *Cluster) UpdateOnJobRun(id job.ID, machines []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, mid := range machines {
		if m := c.machines[mid]; m != nil {
			m.Running[id] = struct{}{}
		}
	}
	return nil
}

// UpdateOnJobEnd clears id from the given machines.
func (c *Cluster) UpdateOnJobEnd(id job.ID, machines []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, mid := range machines {
		if m := c.machines[mid]; m != nil {
			delete(m.Running, id)
		}
	}
	return nil
}

// AddComputedEnergy charges amount to a machine's computed-energy total.
func (c *Cluster) AddComputedEnergy(machineID int, amount float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m := c.machines[machineID]; m != nil {
		m.ComputedEnergy += amount
	}
}

// ConsumedEnergy returns a machine's cumulative consumed energy.
func (c *Cluster) ConsumedEnergy(machineID int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.machines[machineID]
	if m == nil {
		return 0
	}
	return m.ComputedEnergy + m.NonComputedEnergy
}

// TotalConsumedEnergy sums ConsumedEnergy across every machine, including
// the virtual PFS host.
func (c *Cluster) TotalConsumedEnergy() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total float64
	for _, m := range c.machines {
		total += m.ComputedEnergy + m.NonComputedEnergy
	}
	return total
}

// Pstate returns a machine's current pstate.
func (c *Cluster) Pstate(machineID int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m := c.machines[machineID]; m != nil {
		return m.Pstate
	}
	return -1
}

// SetPstate forces a machine's pstate.
func (c *Cluster) SetPstate(machineID, pstate int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m := c.machines[machineID]; m != nil {
		m.Pstate = pstate
	}
}

// TransitionDelay returns the configured transition cost.
func (c *Cluster) TransitionDelay(machineID, target int) float64 {
	c.mu.Lock()
	from := -1
	if m := c.machines[machineID]; m != nil {
		from = m.Pstate
	}
	c.mu.Unlock()
	return c.transitions(machineID, from, target)
}

// PermitsExecution reports whether a machine currently accepts new jobs.
// In this reference model every known machine always permits execution;
// a richer platform binding could forbid it while mid pstate-transition.
func (c *Cluster) PermitsExecution(machineID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.machines[machineID]
	return ok
}
