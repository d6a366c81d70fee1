package relay

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"golang.org/x/xerrors"
)

// StreamDecider is the default Decider: one newline-delimited JSON batch
// sent per Exchange, followed by one newline-delimited JSON batch read
// back, over an arbitrary io.ReadWriter. spec.md §1/§6 describe the wire
// protocol as JSON-over-socket; this type is deliberately transport-agnostic
// (a net.Conn, an os.Pipe, or an in-process io.Pipe all satisfy
// io.ReadWriter) rather than hard-wiring a particular socket family, per
// SPEC_FULL.md §14's note that real network I/O is this core's caller's
// concern, not this core's.
type StreamDecider struct {
	mu  sync.Mutex
	rw  io.ReadWriter
	enc *json.Encoder
	dec *json.Decoder
}

// NewStreamDecider wraps rw as a Decider. Exchange is safe to call
// concurrently; calls are serialized since the underlying transport is a
// single duplex stream.
func NewStreamDecider(rw io.ReadWriter) *StreamDecider {
	return &StreamDecider{rw: rw, enc: json.NewEncoder(rw), dec: json.NewDecoder(rw)}
}

// Exchange implements Decider.
func (d *StreamDecider) Exchange(ctx context.Context, batch Batch) (InboundBatch, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return InboundBatch{}, err
	}

	if err := d.enc.Encode(batch); err != nil {
		return InboundBatch{}, xerrors.Errorf("stream decider: encoding outbound batch: %w", err)
	}

	var reply InboundBatch
	if err := d.dec.Decode(&reply); err != nil {
		return InboundBatch{}, xerrors.Errorf("stream decider: decoding inbound batch: %w", err)
	}
	return reply, nil
}

var _ Decider = (*StreamDecider)(nil)
