// Package bytestream provides the lazy, cancellable byte-buffer sequence
// that the fan-out splitter and fan-in combiner are built on. It is
// deliberately not a thin wrapper over io.Reader/io.Writer: callers need to
// observe "last chunk delivered" (an EOF from Next) separately from "commit
// acknowledged" (a successful Ack), which plain stream interfaces conflate.
package bytestream

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrClosed is returned by Next/Accept/Ack once a stream has been closed.
// It does not carry the close cause: FromReader's supplier returns the
// cause itself instead of ErrClosed when Close was given one.
var ErrClosed = errors.New("bytestream: closed")

var chunkPool = sync.Pool{
	New: func() any { return make([]byte, 0, 32*1024) },
}

// GetBuffer returns a pooled buffer with at least the requested capacity.
func GetBuffer(size int) []byte {
	buf := chunkPool.Get().([]byte)
	if cap(buf) < size {
		return make([]byte, size)
	}
	return buf[:size]
}

// PutBuffer returns a buffer to the pool. Safe to call with a buffer that
// was never obtained from GetBuffer (it is simply dropped on the floor by
// the pool's GC-driven eviction).
func PutBuffer(buf []byte) {
	chunkPool.Put(buf[:0]) //nolint:staticcheck // intentional cap reuse
}

// Chunk is one buffer of a stream, ref-counted so the fan-out splitter can
// hand the same backing array to K downstream consumers without copying.
type Chunk struct {
	Data []byte

	refs *int32
	mu   *sync.Mutex
}

// NewChunk wraps data as a single-owner chunk (refcount 1).
func NewChunk(data []byte) Chunk {
	n := int32(1)
	return Chunk{Data: data, refs: &n, mu: &sync.Mutex{}}
}

// Retain increments the refcount and returns the same logical chunk; used
// when fanning one inbound chunk out to multiple downstreams.
func (c Chunk) Retain() Chunk {
	c.mu.Lock()
	*c.refs++
	c.mu.Unlock()
	return c
}

// Release decrements the refcount and returns the backing buffer to the
// pool once the last owner has released it.
func (c Chunk) Release() {
	c.mu.Lock()
	*c.refs--
	n := *c.refs
	c.mu.Unlock()
	if n <= 0 {
		PutBuffer(c.Data)
	}
}

// Supplier is the producer half of a byte stream: lazily yields chunks,
// terminating with io.EOF on a clean end, or any other error on failure or
// cancellation.
type Supplier interface {
	// Next returns the next chunk, or io.EOF when the stream has ended
	// normally. Any other error indicates failure or cancellation.
	Next(ctx context.Context) (Chunk, error)
	// Close releases resources. cause, if non-nil, is propagated to any
	// blocked Next call. Idempotent.
	Close(cause error) error
}

// Consumer is the consumer half: accepts chunks, then must be told there
// are no more (via Ack) before its effects are considered durable.
type Consumer interface {
	// Accept delivers one chunk. Returns an error if the consumer cannot
	// take any more data (e.g. a downstream failure).
	Accept(ctx context.Context, c Chunk) error
	// Ack signals end-of-stream and blocks until the consumer has durably
	// committed everything previously Accepted. This is the commit
	// acknowledgement distinct from "last byte delivered."
	Ack(ctx context.Context) error
	// Close releases resources and/or aborts a not-yet-acked stream. cause,
	// if non-nil, is the reason. Idempotent.
	Close(cause error) error
}

// ToWriter drains a Supplier into w, returning the total byte count. It does
// not Ack anything - callers that need commit semantics should use a
// Consumer directly.
func ToWriter(ctx context.Context, s Supplier, w io.Writer) (int64, error) {
	var total int64
	for {
		chunk, err := s.Next(ctx)
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		n, werr := w.Write(chunk.Data)
		total += int64(n)
		chunk.Release()
		if werr != nil {
			_ = s.Close(werr)
			return total, werr
		}
	}
}

// FromReader adapts an io.Reader into a Supplier, reading in chunkSize
// pieces from a pooled buffer.
func FromReader(r io.Reader, chunkSize int) Supplier {
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}
	return &readerSupplier{r: r, chunkSize: chunkSize}
}

type readerSupplier struct {
	r         io.Reader
	chunkSize int
	closed    bool
	cause     error
	mu        sync.Mutex
}

func (rs *readerSupplier) Next(ctx context.Context) (Chunk, error) {
	rs.mu.Lock()
	if rs.closed {
		err := rs.cause
		rs.mu.Unlock()
		if err == nil {
			err = ErrClosed
		}
		return Chunk{}, err
	}
	rs.mu.Unlock()

	select {
	case <-ctx.Done():
		return Chunk{}, ctx.Err()
	default:
	}

	buf := GetBuffer(rs.chunkSize)
	n, err := rs.r.Read(buf)
	if n > 0 {
		return NewChunk(buf[:n]), nil
	}
	PutBuffer(buf)
	if err == nil {
		err = io.EOF
	}
	return Chunk{}, err
}

func (rs *readerSupplier) Close(cause error) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return nil
	}
	rs.closed = true
	rs.cause = cause
	if closer, ok := rs.r.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// CollectAll reads every chunk of s into one contiguous slice. Intended for
// tests and small files; production code streams instead.
func CollectAll(ctx context.Context, s Supplier) ([]byte, error) {
	var out []byte
	for {
		chunk, err := s.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, chunk.Data...)
		chunk.Release()
	}
}

// SliceSupplier returns a Supplier that yields data in chunkSize pieces,
// useful for tests and for in-memory uploads.
func SliceSupplier(data []byte, chunkSize int) Supplier {
	return FromReader(newSliceReader(data), chunkSize)
}

type sliceReader struct {
	data []byte
	pos  int
}

func newSliceReader(data []byte) *sliceReader { return &sliceReader{data: data} }

func (s *sliceReader) Read(p []byte) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += n
	return n, nil
}
