package combiner

import (
	"context"

	"github.com/AnishMulay/clusterfs/internal/bytestream"
)

// fakeSupplier replays a fixed sequence of byte slices as chunks, then
// returns a terminal error (io.EOF by default). An optional failAfter stops
// partway through the sequence and returns failErr instead, to simulate a
// primary dying mid-stream.
type fakeSupplier struct {
	chunks    [][]byte
	pos       int
	terminal  error
	failAfter int // -1 means never fail early
	failErr   error
	closed    bool
	closeErr  error
}

func newFakeSupplier(terminal error, chunks ...[]byte) *fakeSupplier {
	return &fakeSupplier{chunks: chunks, terminal: terminal, failAfter: -1}
}

func (f *fakeSupplier) Next(ctx context.Context) (bytestream.Chunk, error) {
	if f.failAfter == 0 {
		return bytestream.Chunk{}, f.failErr
	}
	if f.failAfter > 0 {
		f.failAfter--
	}
	if f.pos >= len(f.chunks) {
		return bytestream.Chunk{}, f.terminal
	}
	c := bytestream.NewChunk(f.chunks[f.pos])
	f.pos++
	return c, nil
}

func (f *fakeSupplier) Close(cause error) error {
	f.closed = true
	f.closeErr = cause
	return nil
}

var _ bytestream.Supplier = (*fakeSupplier)(nil)
