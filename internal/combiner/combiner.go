// Package combiner implements the fan-in byte-stream elector: N suppliers
// expected to deliver the same byte sequence from the same starting offset,
// read from a currently-elected primary with failover to the next surviving
// input on error, skipping bytes already emitted so nothing is duplicated
// and nothing is lost.
package combiner

import (
	"context"
	"errors"
	"io"

	"github.com/AnishMulay/clusterfs/internal/activefs"
	"github.com/AnishMulay/clusterfs/internal/bytestream"
)

// Combiner is itself a bytestream.Supplier.
type Combiner struct {
	ctx     context.Context
	inputs  []bytestream.Supplier
	next    int // index of the next untried input
	current bytestream.Supplier
	emitted int64
	done    bool
	err     error
}

// New builds a Combiner over inputs, in priority order (the first input is
// tried as primary first).
func New(ctx context.Context, inputs []bytestream.Supplier) *Combiner {
	cp := make([]bytestream.Supplier, len(inputs))
	copy(cp, inputs)
	return &Combiner{ctx: ctx, inputs: cp}
}

// Next returns the next chunk of the combined stream. On primary failure it
// transparently fails over; callers never see an intermediate error unless
// every remaining input is exhausted without covering the next required
// byte, in which case it returns ErrTruncatedStream.
func (c *Combiner) Next(ctx context.Context) (bytestream.Chunk, error) {
	if c.done {
		if c.err != nil {
			return bytestream.Chunk{}, c.err
		}
		return bytestream.Chunk{}, io.EOF
	}

	for {
		if c.current == nil {
			if !c.electNext() {
				c.done = true
				c.err = activefs.ErrTruncatedStream
				return bytestream.Chunk{}, c.err
			}
		}

		chunk, err := c.current.Next(ctx)
		if err == nil {
			c.emitted += int64(len(chunk.Data))
			return chunk, nil
		}
		if errors.Is(err, io.EOF) {
			c.closeRemaining(c.current)
			c.done = true
			return bytestream.Chunk{}, io.EOF
		}
		// Primary failed mid-stream: fail over.
		_ = c.current.Close(err)
		c.current = nil
	}
}

// electNext advances through c.inputs starting at c.next, skipping bytes
// already emitted on each candidate until it catches up to c.emitted (or is
// exhausted/fails, in which case it is dropped and the next is tried).
func (c *Combiner) electNext() bool {
	for c.next < len(c.inputs) {
		candidate := c.inputs[c.next]
		c.next++
		if elected, ok := c.skipTo(candidate, c.emitted); ok {
			c.current = elected
			return true
		}
	}
	return false
}

// skipTo discards leading bytes of candidate until toSkip bytes have been
// consumed, returning the supplier to read from next - candidate itself, or
// a prefixedSupplier splicing back a partially-consumed chunk's tail - or
// false if the candidate cannot provide that many bytes without hitting
// EOF/error first (a genuine gap).
func (c *Combiner) skipTo(candidate bytestream.Supplier, toSkip int64) (bytestream.Supplier, bool) {
	remaining := toSkip
	for remaining > 0 {
		chunk, err := candidate.Next(c.ctx)
		if err != nil {
			_ = candidate.Close(err)
			return nil, false
		}
		n := int64(len(chunk.Data))
		if n <= remaining {
			remaining -= n
			chunk.Release()
			continue
		}
		// Partial overlap: the tail of this chunk is new data. Splice it
		// into a fresh chunk so callers still see contiguous Next() calls.
		tail := chunk.Data[remaining:]
		rest := bytestream.NewChunk(append([]byte(nil), tail...))
		chunk.Release()
		return c.pushBack(candidate, rest), true
	}
	return candidate, true
}

// pushBack wraps candidate so its next Next() call returns pending first,
// replacing it in c.inputs, and returns the wrapper for the caller to elect.
func (c *Combiner) pushBack(candidate bytestream.Supplier, pending bytestream.Chunk) bytestream.Supplier {
	wrapped := &prefixedSupplier{pending: &pending, inner: candidate}
	for i, in := range c.inputs {
		if in == candidate {
			c.inputs[i] = wrapped
		}
	}
	return wrapped
}

func (c *Combiner) closeRemaining(except bytestream.Supplier) {
	for i, in := range c.inputs {
		if in != nil && in != except {
			_ = in.Close(nil)
			c.inputs[i] = nil
		}
	}
}

// Close closes every input that hasn't already been closed.
func (c *Combiner) Close(cause error) error {
	for i, in := range c.inputs {
		if in != nil {
			_ = in.Close(cause)
			c.inputs[i] = nil
		}
	}
	return nil
}

// prefixedSupplier yields one pending chunk before delegating to inner,
// used to splice back the unconsumed tail discovered during skipTo.
type prefixedSupplier struct {
	pending *bytestream.Chunk
	inner   bytestream.Supplier
}

func (p *prefixedSupplier) Next(ctx context.Context) (bytestream.Chunk, error) {
	if p.pending != nil {
		c := *p.pending
		p.pending = nil
		return c, nil
	}
	return p.inner.Next(ctx)
}

func (p *prefixedSupplier) Close(cause error) error {
	if p.pending != nil {
		p.pending.Release()
		p.pending = nil
	}
	return p.inner.Close(cause)
}
