package bytestream

import (
	"context"
	"io"
	"sync"
)

// WriterConsumer adapts an io.Writer (typically a staged temp file) into a
// Consumer. Ack calls the supplied commit function, which is expected to be
// the durable step (e.g. fsync + rename).
type WriterConsumer struct {
	w      io.Writer
	commit func() error
	abort  func(cause error)

	mu     sync.Mutex
	closed bool
	acked  bool
}

// NewWriterConsumer builds a Consumer whose Accept writes to w and whose Ack
// invokes commit exactly once. abort, if non-nil, runs on Close before Ack.
func NewWriterConsumer(w io.Writer, commit func() error, abort func(cause error)) *WriterConsumer {
	return &WriterConsumer{w: w, commit: commit, abort: abort}
}

func (c *WriterConsumer) Accept(ctx context.Context, chunk Chunk) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		chunk.Release()
		return ErrClosed
	}
	_, err := c.w.Write(chunk.Data)
	chunk.Release()
	return err
}

func (c *WriterConsumer) Ack(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.acked {
		return nil
	}
	c.acked = true
	if c.commit == nil {
		return nil
	}
	return c.commit()
}

func (c *WriterConsumer) Close(cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if !c.acked && c.abort != nil {
		c.abort(cause)
	}
	return nil
}

// DiscardConsumer accepts and discards everything; it is kept small and
// dependency-free.
type DiscardConsumer struct {
	mu     sync.Mutex
	closed bool
}

func (d *DiscardConsumer) Accept(ctx context.Context, chunk Chunk) error {
	chunk.Release()
	return nil
}

func (d *DiscardConsumer) Ack(ctx context.Context) error { return nil }

func (d *DiscardConsumer) Close(cause error) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}
