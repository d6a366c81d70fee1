package relay

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/batsimgo/core/message"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Relay buffers outbound events for one round, exchanges them with a
// Decider, and re-injects the reply into the Server mailbox as typed
// messages (spec.md §4.8). The Server owns calling Flush once its
// flushing rule (spec.md §4.9) is satisfied.
type Relay struct {
	Decider Decider
	Server  *message.Mailbox
	Log     *logrus.Entry

	mu      sync.Mutex
	pending []OutboundEvent
}

// NewRelay creates a relay talking to decider and re-injecting into server.
func NewRelay(decider Decider, server *message.Mailbox, log *logrus.Entry) *Relay {
	return &Relay{Decider: decider, Server: server, Log: log}
}

// Enqueue adds one event to the pending outbound batch.
func (r *Relay) Enqueue(evt OutboundEvent) {
	r.mu.Lock()
	r.pending = append(r.pending, evt)
	r.mu.Unlock()
}

// Pending reports how many events are currently buffered.
func (r *Relay) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Flush sends the buffered batch (tagged with the current simulated time
// now) to the Decider, then decodes and injects every reply event into the
// Server mailbox in order, finishing with SCHED_READY. If any reply event
// fails to decode, nothing is injected. The pending buffer is cleared
// regardless of outcome.
func (r *Relay) Flush(ctx context.Context, now float64) error {
	r.mu.Lock()
	events := r.pending
	r.pending = nil
	r.mu.Unlock()

	batch := Batch{Now: now, Events: events}
	if r.Log != nil {
		r.Log.WithFields(logrus.Fields{"now": now, "events": len(events)}).Debug("flushing batch to decider")
	}

	reply, err := r.Decider.Exchange(ctx, batch)
	if err != nil {
		return xerrors.Errorf("scheduler-relay exchange: %w", err)
	}

	envs := make([]message.Envelope, 0, len(reply.Events)+1)
	for _, evt := range reply.Events {
		env, err := decode(evt)
		if err != nil {
			return xerrors.Errorf("scheduler-relay: decoding reply event %q: %w", evt.Type, err)
		}
		envs = append(envs, env)
	}
	envs = append(envs, message.Envelope{Kind: message.KindSchedReady, Payload: message.SchedReady{}})

	// Flush runs on the Server's own dispatch goroutine, the same one
	// that will eventually receive these envelopes back off its own
	// mailbox; a blocking Send here would deadlock against itself, so
	// injection runs on one background goroutine that sends the envelopes
	// one after another, keeping reply order.
	go func() {
		for _, env := range envs {
			if err := r.Server.Send(ctx, env); err != nil {
				return
			}
		}
	}()
	return nil
}

// decode turns one raw inbound event into a typed server-bound envelope.
// An unrecognized type is a decider protocol bug (spec.md §7
// "decider-level logical errors"), not a recoverable condition.
func decode(evt InboundEvent) (message.Envelope, error) {
	switch evt.Type {
	case TypeJobSubmittedByDP:
		var p message.JobSubmittedByDP
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			return message.Envelope{}, err
		}
		return message.Envelope{Kind: message.KindJobSubmittedByDP, Payload: p}, nil

	case TypeProfileSubmittedByDP:
		var p message.ProfileSubmittedByDP
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			return message.Envelope{}, err
		}
		return message.Envelope{Kind: message.KindProfileSubmittedByDP, Payload: p}, nil

	case TypeSchedExecuteJob:
		var p message.SchedExecuteJob
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			return message.Envelope{}, err
		}
		return message.Envelope{Kind: message.KindSchedExecuteJob, Payload: p}, nil

	case TypeSchedChangeJobState:
		var p message.SchedChangeJobState
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			return message.Envelope{}, err
		}
		return message.Envelope{Kind: message.KindSchedChangeJobState, Payload: p}, nil

	case TypeSchedRejectJob:
		var p message.SchedRejectJob
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			return message.Envelope{}, err
		}
		return message.Envelope{Kind: message.KindSchedRejectJob, Payload: p}, nil

	case TypeSchedKillJob:
		var p message.SchedKillJob
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			return message.Envelope{}, err
		}
		return message.Envelope{Kind: message.KindSchedKillJob, Payload: p}, nil

	case TypeSchedCallMeLater:
		var p message.SchedCallMeLater
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			return message.Envelope{}, err
		}
		return message.Envelope{Kind: message.KindSchedCallMeLater, Payload: p}, nil

	case TypeSchedTellMeEnergy:
		return message.Envelope{Kind: message.KindSchedTellMeEnergy, Payload: message.SchedTellMeEnergy{}}, nil

	case TypePstateModification:
		var p message.PstateModification
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			return message.Envelope{}, err
		}
		return message.Envelope{Kind: message.KindPstateModification, Payload: p}, nil

	case TypeEndDynamicSubmit:
		return message.Envelope{Kind: message.KindEndDynamicSubmit, Payload: message.EndDynamicSubmit{}}, nil

	case TypeContinueDynamicSubmit:
		return message.Envelope{Kind: message.KindContinueDynamicSubmit, Payload: message.ContinueDynamicSubmit{}}, nil

	case TypeToJobMsg:
		var p message.ToJobMsg
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			return message.Envelope{}, err
		}
		return message.Envelope{Kind: message.KindToJobMsg, Payload: p}, nil

	case TypeSchedReady:
		return message.Envelope{Kind: message.KindSchedReady, Payload: message.SchedReady{}}, nil

	default:
		return message.Envelope{}, xerrors.Errorf("unrecognized inbound event type %q", evt.Type)
	}
}
