package splitter

import (
	"context"
	"sync/atomic"

	"github.com/AnishMulay/clusterfs/internal/bytestream"
)

// fakeConsumer is a controllable bytestream.Consumer stub used to exercise
// the splitter's fan-out and partial-failure bookkeeping without a real
// downstream upload.
type fakeConsumer struct {
	acceptErr error
	ackErr    error

	accepted atomic.Int32
	acked    atomic.Int32
	closed   atomic.Int32
	closeErr error
}

func (f *fakeConsumer) Accept(ctx context.Context, c bytestream.Chunk) error {
	f.accepted.Add(1)
	c.Release()
	return f.acceptErr
}

func (f *fakeConsumer) Ack(ctx context.Context) error {
	f.acked.Add(1)
	return f.ackErr
}

func (f *fakeConsumer) Close(cause error) error {
	f.closed.Add(1)
	f.closeErr = cause
	return nil
}

var _ bytestream.Consumer = (*fakeConsumer)(nil)
