package worker_test

import (
	"context"
	"testing"

	"github.com/batsimgo/core/job"
	"github.com/batsimgo/core/message"
	"github.com/batsimgo/core/worker"
)

type fakeRunningJobs struct {
	progress map[job.ID]message.Progress
}

func (f *fakeRunningJobs) Cancel(id job.ID) (message.Progress, bool) {
	p, ok := f.progress[id]
	return p, ok
}

func TestKillerReportsOnlyActuallyKilledJobs(t *testing.T) {
	running := job.ID{Workload: "w0", Number: 1}
	terminal := job.ID{Workload: "w0", Number: 2}
	registry := &fakeRunningJobs{progress: map[job.ID]message.Progress{
		running: {ElapsedTime: 4, ProfileCounter: 1},
	}}

	bus := message.NewBus()
	server := bus.Mailbox("server")
	k := &worker.Killer{Registry: registry, Server: server}

	errCh := make(chan error, 1)
	go func() { errCh <- k.Kill(context.Background(), []job.ID{running, terminal}) }()

	env, err := server.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if env.Kind != message.KindKillingDone {
		t.Fatalf("Kind = %v, want KindKillingDone", env.Kind)
	}
	done := env.Payload.(message.KillingDone)
	if len(done.JobIDs) != 2 {
		t.Fatalf("JobIDs = %v, want both requested ids echoed back", done.JobIDs)
	}
	if _, ok := done.Progress[terminal]; ok {
		t.Fatal("an already-terminal job should not appear in Progress")
	}
	got, ok := done.Progress[running]
	if !ok {
		t.Fatal("the running job should appear in Progress")
	}
	if got.ElapsedTime != 4 || got.ProfileCounter != 1 {
		t.Fatalf("Progress[running] = %+v, want {ElapsedTime:4 ProfileCounter:1}", got)
	}
}

func TestKillerEmptyRequestStillReportsBack(t *testing.T) {
	registry := &fakeRunningJobs{}
	bus := message.NewBus()
	server := bus.Mailbox("server")
	k := &worker.Killer{Registry: registry, Server: server}

	errCh := make(chan error, 1)
	go func() { errCh <- k.Kill(context.Background(), nil) }()

	env, err := server.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Kill: %v", err)
	}
	done := env.Payload.(message.KillingDone)
	if len(done.Progress) != 0 {
		t.Fatalf("Progress = %v, want empty", done.Progress)
	}
}
