package relay_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/batsimgo/core/job"
	"github.com/batsimgo/core/message"
	"github.com/batsimgo/core/relay"
)

type fakeDecider struct {
	batch relay.Batch
	reply relay.InboundBatch
	err   error
}

func (f *fakeDecider) Exchange(ctx context.Context, batch relay.Batch) (relay.InboundBatch, error) {
	f.batch = batch
	return f.reply, f.err
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestRelayEnqueueAndPending(t *testing.T) {
	bus := message.NewBus()
	r := relay.NewRelay(&fakeDecider{}, bus.Mailbox("server"), nil)

	if r.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", r.Pending())
	}
	r.Enqueue(relay.OutboundEvent{Type: relay.TypeJobCompleted})
	r.Enqueue(relay.OutboundEvent{Type: relay.TypeWaitingDone})
	if r.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", r.Pending())
	}
}

func TestRelayFlushSendsBatchAndInjectsReply(t *testing.T) {
	jobID := job.ID{Workload: "w0", Number: 1}
	decider := &fakeDecider{reply: relay.InboundBatch{Events: []relay.InboundEvent{
		{Type: relay.TypeSchedExecuteJob, Data: mustMarshal(t, message.SchedExecuteJob{JobID: jobID, Machines: []int{0}})},
	}}}

	bus := message.NewBus()
	server := bus.Mailbox("server")
	r := relay.NewRelay(decider, server, nil)
	r.Enqueue(relay.OutboundEvent{Type: relay.TypeJobCompleted, Timestamp: 5})

	errCh := make(chan error, 1)
	go func() { errCh <- r.Flush(context.Background(), 5) }()

	execEnv, err := server.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive exec: %v", err)
	}
	readyEnv, err := server.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive ready: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if execEnv.Kind != message.KindSchedExecuteJob {
		t.Fatalf("execEnv.Kind = %v, want KindSchedExecuteJob", execEnv.Kind)
	}
	if got := execEnv.Payload.(message.SchedExecuteJob).JobID; got != jobID {
		t.Fatalf("JobID = %v, want %v", got, jobID)
	}
	if readyEnv.Kind != message.KindSchedReady {
		t.Fatalf("readyEnv.Kind = %v, want KindSchedReady", readyEnv.Kind)
	}

	if decider.batch.Now != 5 {
		t.Fatalf("batch.Now = %v, want 5", decider.batch.Now)
	}
	if len(decider.batch.Events) != 1 || decider.batch.Events[0].Type != relay.TypeJobCompleted {
		t.Fatalf("batch.Events = %+v, want one JOB_COMPLETED event", decider.batch.Events)
	}
	if r.Pending() != 0 {
		t.Fatalf("Pending() after Flush = %d, want 0 (cleared regardless of outcome)", r.Pending())
	}
}

func TestRelayFlushUnrecognizedInboundTypeIsFatal(t *testing.T) {
	decider := &fakeDecider{reply: relay.InboundBatch{Events: []relay.InboundEvent{
		{Type: "NOT_A_REAL_TYPE"},
	}}}
	bus := message.NewBus()
	r := relay.NewRelay(decider, bus.Mailbox("server"), nil)

	if err := r.Flush(context.Background(), 0); err == nil {
		t.Fatal("expected an error decoding an unrecognized inbound event type")
	}
}

func TestRelayFlushClearsPendingEvenOnDeciderError(t *testing.T) {
	decider := &fakeDecider{err: context.DeadlineExceeded}
	bus := message.NewBus()
	r := relay.NewRelay(decider, bus.Mailbox("server"), nil)
	r.Enqueue(relay.OutboundEvent{Type: relay.TypeJobCompleted})

	if err := r.Flush(context.Background(), 0); err == nil {
		t.Fatal("expected the decider's error to propagate")
	}
	if r.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0 even after a decider error", r.Pending())
	}
}
