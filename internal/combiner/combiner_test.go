package combiner

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/AnishMulay/clusterfs/internal/activefs"
	"github.com/AnishMulay/clusterfs/internal/bytestream"
)

func drain(t *testing.T, c *Combiner) ([]byte, error) {
	t.Helper()
	var out []byte
	for {
		chunk, err := c.Next(context.Background())
		if err != nil {
			return out, err
		}
		out = append(out, chunk.Data...)
		chunk.Release()
	}
}

func TestCombinerReadsFromPrimaryWhenHealthy(t *testing.T) {
	primary := newFakeSupplier(io.EOF, []byte("hello "), []byte("world"))
	secondary := newFakeSupplier(io.EOF, []byte("hello "), []byte("world"))

	c := New(context.Background(), []bytestream.Supplier{primary, secondary})
	out, err := drain(t, c)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("final error = %v, want io.EOF", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("out = %q, want %q", out, "hello world")
	}
	if secondary.pos != 0 {
		t.Fatalf("secondary should never have been touched while primary is healthy")
	}
}

func TestCombinerFailsOverMidStream(t *testing.T) {
	primary := newFakeSupplier(io.EOF, []byte("hello "))
	primary.failAfter = 1
	primary.failErr = errors.New("connection reset")
	secondary := newFakeSupplier(io.EOF, []byte("hello "), []byte("world"))

	c := New(context.Background(), []bytestream.Supplier{primary, secondary})
	out, err := drain(t, c)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("final error = %v, want io.EOF", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("out = %q, want %q (no duplication, no gap after failover)", out, "hello world")
	}
	if !primary.closed {
		t.Fatalf("failed primary should have been closed")
	}
}

func TestCombinerTruncatedStreamWhenAllExhausted(t *testing.T) {
	primary := newFakeSupplier(errors.New("disk error"))
	primary.failAfter = 0
	primary.failErr = errors.New("disk error")
	secondary := newFakeSupplier(errors.New("also down"))
	secondary.failAfter = 0
	secondary.failErr = errors.New("also down")

	c := New(context.Background(), []bytestream.Supplier{primary, secondary})
	_, err := drain(t, c)
	if !errors.Is(err, activefs.ErrTruncatedStream) {
		t.Fatalf("final error = %v, want ErrTruncatedStream", err)
	}
}

func TestCombinerSkipAheadOnFailoverAvoidsDuplication(t *testing.T) {
	// Primary delivers "AAAA" then dies; secondary has the full stream from
	// offset 0 and must be skipped-ahead past the 4 bytes already emitted.
	primary := newFakeSupplier(io.EOF, []byte("AAAA"))
	primary.failAfter = 1
	primary.failErr = errors.New("primary died")
	secondary := newFakeSupplier(io.EOF, []byte("AAAA"), []byte("BBBB"))

	c := New(context.Background(), []bytestream.Supplier{primary, secondary})
	out, err := drain(t, c)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("final error = %v, want io.EOF", err)
	}
	if string(out) != "AAAABBBB" {
		t.Fatalf("out = %q, want %q (exactly one copy of AAAA)", out, "AAAABBBB")
	}
}

func TestCombinerSkipAheadPartialChunkOverlap(t *testing.T) {
	// Primary emits a 3-byte chunk then dies. Secondary's first chunk spans
	// the skip boundary (5 bytes, only 3 of which are already-seen), so the
	// combiner must splice out exactly the 2-byte tail as new data.
	primary := newFakeSupplier(io.EOF, []byte("abc"))
	primary.failAfter = 1
	primary.failErr = errors.New("primary died")
	secondary := newFakeSupplier(io.EOF, []byte("abcde"), []byte("fgh"))

	c := New(context.Background(), []bytestream.Supplier{primary, secondary})
	out, err := drain(t, c)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("final error = %v, want io.EOF", err)
	}
	if string(out) != "abcdefgh" {
		t.Fatalf("out = %q, want %q", out, "abcdefgh")
	}
}

func TestCombinerClosePropagatesToAllRemainingInputs(t *testing.T) {
	a := newFakeSupplier(io.EOF, []byte("x"))
	b := newFakeSupplier(io.EOF, []byte("y"))
	c := New(context.Background(), []bytestream.Supplier{a, b})

	if err := c.Close(nil); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Fatalf("Close should close every input, got a=%v b=%v", a.closed, b.closed)
	}
}
