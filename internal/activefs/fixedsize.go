package activefs

import (
	"context"
	"sync/atomic"

	"github.com/AnishMulay/clusterfs/internal/bytestream"
)

// FixedSize wraps a Consumer so that a stream of a declared size is
// enforced: ErrUnexpectedData if more than size bytes arrive, and
// ErrUnexpectedEndOfStream if Ack is called having seen fewer.
func FixedSize(inner bytestream.Consumer, size uint64) bytestream.Consumer {
	return &fixedSizeConsumer{inner: inner, size: size}
}

type fixedSizeConsumer struct {
	inner bytestream.Consumer
	size  uint64
	seen  uint64
	over  atomic.Bool
}

func (f *fixedSizeConsumer) Accept(ctx context.Context, c bytestream.Chunk) error {
	n := uint64(len(c.Data))
	if f.seen+n > f.size {
		f.over.Store(true)
		c.Release()
		_ = f.inner.Close(ErrUnexpectedData)
		return ErrUnexpectedData
	}
	f.seen += n
	return f.inner.Accept(ctx, c)
}

func (f *fixedSizeConsumer) Ack(ctx context.Context) error {
	if f.over.Load() {
		return ErrUnexpectedData
	}
	if f.seen != f.size {
		_ = f.inner.Close(ErrUnexpectedEndOfStream)
		return ErrUnexpectedEndOfStream
	}
	return f.inner.Ack(ctx)
}

func (f *fixedSizeConsumer) Close(cause error) error {
	return f.inner.Close(cause)
}
