package machine_test

import (
	"testing"

	"github.com/batsimgo/core/job"
	"github.com/batsimgo/core/machine"
)

func TestNewClusterSeedsHostsAndPFSMachine(t *testing.T) {
	c := machine.NewCluster(3, nil)

	for i := 0; i < 3; i++ {
		if !c.PermitsExecution(i) {
			t.Errorf("host %d should permit execution", i)
		}
		if got := c.Pstate(i); got != 0 {
			t.Errorf("host %d Pstate() = %d, want 0", i, got)
		}
	}
	if got, want := c.PFSMachine(), 3; got != want {
		t.Fatalf("PFSMachine() = %d, want %d", got, want)
	}
	if !c.PermitsExecution(c.PFSMachine()) {
		t.Fatal("the virtual PFS machine should permit execution like any other host")
	}
	if c.PermitsExecution(99) {
		t.Fatal("an unknown machine id should not permit execution")
	}
}

func TestClusterUpdateOnJobRunAndEnd(t *testing.T) {
	c := machine.NewCluster(2, nil)
	id := job.ID{Workload: "w0", Number: 1}

	if err := c.UpdateOnJobRun(id, []int{0, 1}); err != nil {
		t.Fatalf("UpdateOnJobRun: %v", err)
	}
	if _, ok := c.Get(0).Running[id]; !ok {
		t.Fatal("host 0 should list the job as running")
	}
	if _, ok := c.Get(1).Running[id]; !ok {
		t.Fatal("host 1 should list the job as running")
	}

	if err := c.UpdateOnJobEnd(id, []int{0}); err != nil {
		t.Fatalf("UpdateOnJobEnd: %v", err)
	}
	if _, ok := c.Get(0).Running[id]; ok {
		t.Fatal("host 0 should no longer list the job as running")
	}
	if _, ok := c.Get(1).Running[id]; !ok {
		t.Fatal("host 1 should still list the job as running")
	}
}

func TestClusterUnknownMachineIsANoOp(t *testing.T) {
	c := machine.NewCluster(1, nil)
	id := job.ID{Workload: "w0", Number: 1}

	if err := c.UpdateOnJobRun(id, []int{99}); err != nil {
		t.Fatalf("UpdateOnJobRun on an unknown machine should not error, got %v", err)
	}
	if err := c.UpdateOnJobEnd(id, []int{99}); err != nil {
		t.Fatalf("UpdateOnJobEnd on an unknown machine should not error, got %v", err)
	}
	c.AddComputedEnergy(99, 10) // must not panic
	if got := c.ConsumedEnergy(99); got != 0 {
		t.Fatalf("ConsumedEnergy() for an unknown machine = %v, want 0", got)
	}
}

func TestClusterEnergyAccounting(t *testing.T) {
	c := machine.NewCluster(2, nil)
	c.AddComputedEnergy(0, 5)
	c.AddComputedEnergy(0, 2.5)
	c.AddComputedEnergy(1, 1)

	if got := c.ConsumedEnergy(0); got != 7.5 {
		t.Fatalf("ConsumedEnergy(0) = %v, want 7.5", got)
	}
	// two hosts plus the virtual PFS machine, only two of which accrued energy.
	if got := c.TotalConsumedEnergy(); got != 8.5 {
		t.Fatalf("TotalConsumedEnergy() = %v, want 8.5", got)
	}
}

func TestClusterPstateAndTransitionDelay(t *testing.T) {
	var seen []int
	cost := func(machineID, from, to int) float64 {
		seen = append(seen, from, to)
		return 2.5
	}
	c := machine.NewCluster(1, cost)

	c.SetPstate(0, 3)
	if got := c.Pstate(0); got != 3 {
		t.Fatalf("Pstate(0) = %d, want 3", got)
	}

	if got := c.TransitionDelay(0, 5); got != 2.5 {
		t.Fatalf("TransitionDelay() = %v, want 2.5", got)
	}
	if len(seen) != 2 || seen[0] != 3 || seen[1] != 5 {
		t.Fatalf("transition cost function called with (from, to) = %v, want [3 5]", seen)
	}
}

func TestClusterDefaultTransitionCostIsConstant(t *testing.T) {
	c := machine.NewCluster(1, nil)
	if got := c.TransitionDelay(0, 7); got != 1 {
		t.Fatalf("default TransitionDelay() = %v, want 1", got)
	}
}
