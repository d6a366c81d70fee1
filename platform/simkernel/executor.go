package simkernel

import (
	"context"
	"math"

	"github.com/batsimgo/core/machine"
	"github.com/batsimgo/core/platform"
)

// Executor is a reference platform.ParallelExecutor: it derives a duration
// from the compute/communication shape using a fixed per-host compute
// speed and per-link bandwidth, then sleeps that long on the associated
// Clock, accruing a simple power-draw-based energy cost on the cluster's
// machines along the way. Real platform bindings would instead run the
// shape through an actual host/network/power model; this one only needs to
// be plausible enough to drive the Profile Executor's walltime-enforcement
// logic (spec.md §4.4) and the Job Executor's energy accounting (spec.md
// §4.5) under test.
type Executor struct {
	clock   *Clock
	cluster *machine.Cluster

	// ComputeSpeed is simulated flops/second per host; Bandwidth is
	// simulated bytes/second per link. Both default to 1 when zero.
	ComputeSpeed float64
	Bandwidth    float64
	// WattsPerHost is the power draw charged to ComputedEnergy for every
	// host actively computing, per simulated second.
	WattsPerHost float64
}

var _ platform.ParallelExecutor = (*Executor)(nil)

// NewExecutor creates a reference parallel-task executor driven by clock,
// charging energy to cluster's machines as it runs.
func NewExecutor(clock *Clock, cluster *machine.Cluster) *Executor {
	return &Executor{clock: clock, cluster: cluster, ComputeSpeed: 1, Bandwidth: 1, WattsPerHost: 1}
}

// Execute implements platform.ParallelExecutor.
func (e *Executor) Execute(ctx context.Context, hosts []int, compute []float64, comm [][]float64, timeout float64) (platform.Outcome, error) {
	speed := e.ComputeSpeed
	if speed <= 0 {
		speed = 1
	}
	bw := e.Bandwidth
	if bw <= 0 {
		bw = 1
	}

	var duration float64
	for _, c := range compute {
		if d := c / speed; d > duration {
			duration = d
		}
	}
	for _, row := range comm {
		var rowSum float64
		for _, v := range row {
			rowSum += v
		}
		if d := rowSum / bw; d > duration {
			duration = d
		}
	}

	budget := timeout
	if budget <= 0 {
		budget = math.Inf(1)
	}

	outcome := platform.OK
	elapsed := duration
	if duration > budget {
		outcome = platform.Timeout
		elapsed = budget
	}

	if err := e.clock.Sleep(ctx, elapsed); err != nil {
		return platform.FatalOutcome, err
	}
	e.accrueEnergy(hosts, elapsed)
	return outcome, nil
}

func (e *Executor) accrueEnergy(hosts []int, elapsed float64) {
	if e.cluster == nil || elapsed <= 0 {
		return
	}
	for _, h := range hosts {
		e.cluster.AddComputedEnergy(h, e.WattsPerHost*elapsed)
	}
}
