package bytestream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestChunkRetainRelease(t *testing.T) {
	c := NewChunk([]byte("hello"))
	c2 := c.Retain()

	c.Release()
	c2.Release()
	// both releases should be safe; no panic, no double free observable
	// from here since PutBuffer/GetBuffer don't expose refcounts.
}

func TestFromReaderAndToWriter(t *testing.T) {
	data := []byte(strings.Repeat("abcdefgh", 1000))
	s := FromReader(bytes.NewReader(data), 16)

	var out bytes.Buffer
	n, err := ToWriter(context.Background(), s, &out)
	if err != nil {
		t.Fatalf("ToWriter: %v", err)
	}
	if n != int64(len(data)) {
		t.Fatalf("ToWriter returned %d bytes, want %d", n, len(data))
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Fatalf("round-tripped data mismatch")
	}
}

func TestFromReaderEOF(t *testing.T) {
	s := FromReader(bytes.NewReader(nil), 16)
	_, err := s.Next(context.Background())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Next on empty reader = %v, want io.EOF", err)
	}
}

func TestGetPutBuffer(t *testing.T) {
	buf := GetBuffer(100)
	if len(buf) != 100 {
		t.Fatalf("GetBuffer(100) len = %d, want 100", len(buf))
	}
	PutBuffer(buf)

	buf2 := GetBuffer(10)
	if len(buf2) != 10 {
		t.Fatalf("GetBuffer(10) len = %d, want 10", len(buf2))
	}
}
