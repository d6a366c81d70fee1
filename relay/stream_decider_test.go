package relay_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/batsimgo/core/relay"
)

// pipeReadWriter pairs a bytes.Buffer request log with a canned response,
// letting Exchange's encode-then-decode round trip be tested without a real
// socket.
type pipeReadWriter struct {
	written bytes.Buffer
	reader  *bytes.Buffer
}

func (p *pipeReadWriter) Write(b []byte) (int, error) { return p.written.Write(b) }
func (p *pipeReadWriter) Read(b []byte) (int, error)  { return p.reader.Read(b) }

func TestStreamDeciderExchangeEncodesAndDecodes(t *testing.T) {
	reply := relay.InboundBatch{Events: []relay.InboundEvent{{Type: relay.TypeSchedReady}}}
	replyBytes, err := json.Marshal(reply)
	if err != nil {
		t.Fatalf("marshal reply: %v", err)
	}

	rw := &pipeReadWriter{reader: bytes.NewBuffer(append(replyBytes, '\n'))}
	d := relay.NewStreamDecider(rw)

	batch := relay.Batch{Now: 12, Events: []relay.OutboundEvent{{Type: relay.TypeJobCompleted}}}
	got, err := d.Exchange(context.Background(), batch)
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if len(got.Events) != 1 || got.Events[0].Type != relay.TypeSchedReady {
		t.Fatalf("Exchange reply = %+v, want one SCHED_READY event", got)
	}

	var sent relay.Batch
	if err := json.Unmarshal(rw.written.Bytes(), &sent); err != nil {
		t.Fatalf("unmarshal what was sent: %v", err)
	}
	if sent.Now != 12 || len(sent.Events) != 1 || sent.Events[0].Type != relay.TypeJobCompleted {
		t.Fatalf("sent batch = %+v, want the original outbound batch", sent)
	}
}

func TestStreamDeciderExchangeOverNetConn(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	d := relay.NewStreamDecider(client)

	errCh := make(chan error, 1)
	go func() {
		var got relay.Batch
		dec := json.NewDecoder(server)
		if err := dec.Decode(&got); err != nil {
			errCh <- err
			return
		}
		reply := relay.InboundBatch{Events: []relay.InboundEvent{{Type: relay.TypeSchedReady}}}
		errCh <- json.NewEncoder(server).Encode(reply)
	}()

	reply, err := d.Exchange(context.Background(), relay.Batch{Now: 1})
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("fake decider side: %v", err)
	}
	if len(reply.Events) != 1 || reply.Events[0].Type != relay.TypeSchedReady {
		t.Fatalf("reply = %+v, want one SCHED_READY event", reply)
	}
}

func TestStreamDeciderExchangeRejectsCancelledContext(t *testing.T) {
	rw := &pipeReadWriter{reader: bytes.NewBuffer(nil)}
	d := relay.NewStreamDecider(rw)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Exchange(ctx, relay.Batch{}); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
