package activefs

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/AnishMulay/clusterfs/internal/bytestream"
)

func TestFixedSizeExactMatch(t *testing.T) {
	var buf bytes.Buffer
	inner := bytestream.NewWriterConsumer(&buf, func() error { return nil }, nil)
	c := FixedSize(inner, 5)

	ctx := context.Background()
	if err := c.Accept(ctx, bytestream.NewChunk([]byte("hello"))); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := c.Ack(ctx); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if buf.String() != "hello" {
		t.Fatalf("buf = %q, want %q", buf.String(), "hello")
	}
}

func TestFixedSizeOverflow(t *testing.T) {
	var buf bytes.Buffer
	inner := bytestream.NewWriterConsumer(&buf, func() error { return nil }, nil)
	c := FixedSize(inner, 3)

	ctx := context.Background()
	err := c.Accept(ctx, bytestream.NewChunk([]byte("toolong")))
	if !errors.Is(err, ErrUnexpectedData) {
		t.Fatalf("Accept over declared size = %v, want ErrUnexpectedData", err)
	}
	if err := c.Ack(ctx); !errors.Is(err, ErrUnexpectedData) {
		t.Fatalf("Ack after overflow = %v, want ErrUnexpectedData", err)
	}
}

func TestFixedSizeShortStream(t *testing.T) {
	var buf bytes.Buffer
	inner := bytestream.NewWriterConsumer(&buf, func() error { return nil }, nil)
	c := FixedSize(inner, 10)

	ctx := context.Background()
	if err := c.Accept(ctx, bytestream.NewChunk([]byte("short"))); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := c.Ack(ctx); !errors.Is(err, ErrUnexpectedEndOfStream) {
		t.Fatalf("Ack with too few bytes = %v, want ErrUnexpectedEndOfStream", err)
	}
}
