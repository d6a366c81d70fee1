package relay

import "context"

// Decider is this core's side of the external decision process boundary
// (spec.md §1, §6): a one-shot transactional exchange of one outbound
// batch for one inbound batch. Its concrete implementation (a socket
// client speaking JSON to an external process) is out of this core's
// scope; this core only needs the round trip.
type Decider interface {
	Exchange(ctx context.Context, batch Batch) (InboundBatch, error)
}
