package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/batsimgo/core/job"
	"github.com/batsimgo/core/machine"
	"github.com/batsimgo/core/message"
	"github.com/batsimgo/core/platform/simkernel"
	"github.com/batsimgo/core/worker"
)

type fakeScheduling struct {
	mu      sync.Mutex
	started []job.ID
	ended   []job.State
	killed  []string
}

func (f *fakeScheduling) JobStarted(id job.ID, startingTime float64, machines []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
}

func (f *fakeScheduling) JobEnded(id job.ID, state job.State, runtime float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, state)
}

func (f *fakeScheduling) JobKilled(id job.ID, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, reason)
}

func (f *fakeScheduling) PstateChanged(machineID, pstate int) {}

type fakeEnergy struct {
	mu       sync.Mutex
	started  int
	consumed []float64
}

func (f *fakeEnergy) JobEnergyStarted(id job.ID, baseline map[int]float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *fakeEnergy) JobEnergyEnded(id job.ID, consumed float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumed = append(f.consumed, consumed)
}

func TestJobExecutorRunsToSuccessfulCompletion(t *testing.T) {
	clock := simkernel.NewClock()
	cluster := machine.NewCluster(2, nil)
	exec := simkernel.NewExecutor(clock, cluster)
	exec.WattsPerHost = 2
	profiles := &worker.ProfileExecutor{Clock: clock, Exec: exec, Machines: cluster}

	bus := message.NewBus()
	server := bus.Mailbox("server")
	sched := &fakeScheduling{}
	energy := &fakeEnergy{}

	je := &worker.JobExecutor{
		Clock:      clock,
		Machines:   cluster,
		Profiles:   profiles,
		Server:     server,
		Scheduling: sched,
		Energy:     energy,
	}

	w := job.NewWorkload("w0")
	j := &job.Job{ID: job.ID{Workload: "w0", Number: 1}, Walltime: 100, State: job.StateRunning}
	profile := &job.Profile{Kind: job.ProfileDelay, Delay: job.DelayProfile{Duration: 5}}

	errCh := make(chan error, 1)
	go func() { errCh <- je.Run(context.Background(), w, j, profile, []int{0, 1}, nil) }()

	env, err := server.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if env.Kind != message.KindJobCompleted {
		t.Fatalf("Kind = %v, want KindJobCompleted", env.Kind)
	}
	completed := env.Payload.(message.JobCompleted)
	if completed.FinalState != job.StateCompletedSuccessfully {
		t.Fatalf("FinalState = %v, want StateCompletedSuccessfully", completed.FinalState)
	}
	if j.Runtime != 5 {
		t.Fatalf("j.Runtime = %v, want 5", j.Runtime)
	}
	if j.ConsumedEnergy != 20 { // 2 hosts * 2 watts * 5 seconds
		t.Fatalf("j.ConsumedEnergy = %v, want 20", j.ConsumedEnergy)
	}
	if len(sched.started) != 1 || len(sched.ended) != 1 || sched.ended[0] != job.StateCompletedSuccessfully {
		t.Fatalf("scheduling trace = %+v, want one start and one successful end", sched)
	}
	if len(sched.killed) != 0 {
		t.Fatal("a successful run should not record a kill event")
	}
	if energy.started != 1 || len(energy.consumed) != 1 {
		t.Fatalf("energy trace = %+v, want one start and one end", energy)
	}
	for _, host := range []int{0, 1} {
		if _, running := cluster.Get(host).Running[j.ID]; running {
			t.Fatalf("host %d should no longer list the job as running after completion", host)
		}
	}
}

func TestJobExecutorWalltimeReachedIsReportedAsKilled(t *testing.T) {
	clock := simkernel.NewClock()
	cluster := machine.NewCluster(1, nil)
	exec := simkernel.NewExecutor(clock, cluster)
	profiles := &worker.ProfileExecutor{Clock: clock, Exec: exec, Machines: cluster}

	bus := message.NewBus()
	server := bus.Mailbox("server")
	sched := &fakeScheduling{}

	je := &worker.JobExecutor{Clock: clock, Machines: cluster, Profiles: profiles, Server: server, Scheduling: sched}

	w := job.NewWorkload("w0")
	j := &job.Job{ID: job.ID{Workload: "w0", Number: 1}, Walltime: 3, State: job.StateRunning}
	profile := &job.Profile{Kind: job.ProfileDelay, Delay: job.DelayProfile{Duration: 10}}

	errCh := make(chan error, 1)
	go func() { errCh <- je.Run(context.Background(), w, j, profile, []int{0}, nil) }()

	env, err := server.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}

	completed := env.Payload.(message.JobCompleted)
	if completed.FinalState != job.StateCompletedKilled {
		t.Fatalf("FinalState = %v, want StateCompletedKilled", completed.FinalState)
	}
	if completed.KillReason != "walltime_reached" {
		t.Fatalf("KillReason = %q, want %q", completed.KillReason, "walltime_reached")
	}
	if len(sched.killed) != 1 || sched.killed[0] != "walltime_reached" {
		t.Fatalf("sched.killed = %v, want [walltime_reached]", sched.killed)
	}
}

func TestJobExecutorContextCancellationIsReportedAsKilled(t *testing.T) {
	clock := simkernel.NewClock()
	// A second runnable task keeps the clock from advancing on its own.
	clock.Enter()
	defer clock.Leave()

	cluster := machine.NewCluster(1, nil)
	exec := simkernel.NewExecutor(clock, cluster)
	profiles := &worker.ProfileExecutor{Clock: clock, Exec: exec, Machines: cluster}

	bus := message.NewBus()
	server := bus.Mailbox("server")

	je := &worker.JobExecutor{Clock: clock, Machines: cluster, Profiles: profiles, Server: server}

	w := job.NewWorkload("w0")
	j := &job.Job{ID: job.ID{Workload: "w0", Number: 1}, Walltime: 0, State: job.StateRunning}
	profile := &job.Profile{Kind: job.ProfileDelay, Delay: job.DelayProfile{Duration: 1000}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- je.Run(ctx, w, j, profile, []int{0}, nil) }()

	// Once the executor is parked in its delay, let 5 simulated seconds
	// pass, then kill it: a killed job still needs a positive runtime.
	for clock.PendingWaiters() == 0 {
		time.Sleep(time.Millisecond)
	}
	_ = clock.Sleep(context.Background(), 5)
	cancel()

	env, err := server.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if env.Payload.(message.JobCompleted).KillReason != "killed" {
		t.Fatalf("KillReason = %q, want %q", env.Payload.(message.JobCompleted).KillReason, "killed")
	}
	if j.Runtime != 5 {
		t.Fatalf("Runtime = %v, want 5", j.Runtime)
	}
}

func TestJobExecutorLiteSkipsEnergyAndCompletionNotification(t *testing.T) {
	clock := simkernel.NewClock()
	cluster := machine.NewCluster(1, nil)
	exec := simkernel.NewExecutor(clock, cluster)
	profiles := &worker.ProfileExecutor{Clock: clock, Exec: exec, Machines: cluster}

	bus := message.NewBus()
	server := bus.Mailbox("server")
	energy := &fakeEnergy{}

	je := &worker.JobExecutor{Clock: clock, Machines: cluster, Profiles: profiles, Server: server, Energy: energy, Lite: true}

	w := job.NewWorkload("w0")
	j := &job.Job{ID: job.ID{Workload: "w0", Number: 1}, Walltime: 100, State: job.StateRunning}
	profile := &job.Profile{Kind: job.ProfileDelay, Delay: job.DelayProfile{Duration: 2}}

	if err := je.Run(context.Background(), w, j, profile, []int{0}, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if energy.started != 0 {
		t.Fatal("a Lite run must not touch the energy sink")
	}
	if _, ok := server.TryReceive(); ok {
		t.Fatal("a Lite run must not send JOB_COMPLETED")
	}
}
