package static

import (
	"context"
	"errors"
	"testing"

	"github.com/AnishMulay/clusterfs/internal/activefs"
	"github.com/AnishMulay/clusterfs/internal/partitions"
)

type fakeFS struct {
	activefs.FileSystem
}

func TestStartRegistersAllPartitionsInDirectory(t *testing.T) {
	dir := partitions.New(nil, nil)
	list := []Partition{
		{ID: "p1", Address: "10.0.0.1:9000"},
		{ID: "p2", Address: "10.0.0.2:9000"},
	}
	dial := func(address string) (activefs.FileSystem, error) {
		return &fakeFS{}, nil
	}

	s := New(dir, list, dial)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if len(dir.All()) != 2 {
		t.Fatalf("All() len = %d, want 2", len(dir.All()))
	}
	if dir.Get(partitions.ID("p1")) == nil || dir.Get(partitions.ID("p2")) == nil {
		t.Fatalf("expected both p1 and p2 registered")
	}
}

func TestStartDialsEveryPartitionWithItsOwnAddress(t *testing.T) {
	dir := partitions.New(nil, nil)
	list := []Partition{
		{ID: "p1", Address: "10.0.0.1:9000"},
		{ID: "p2", Address: "10.0.0.2:9000"},
	}
	dial := func(address string) (activefs.FileSystem, error) {
		return &fakeFS{}, nil
	}

	var dialedAddrs []string
	s := New(dir, list, func(address string) (activefs.FileSystem, error) {
		dialedAddrs = append(dialedAddrs, address)
		return dial(address)
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(dialedAddrs) != 2 || dialedAddrs[0] != "10.0.0.1:9000" || dialedAddrs[1] != "10.0.0.2:9000" {
		t.Fatalf("dialed addresses = %v, want in-order list addresses", dialedAddrs)
	}
}

func TestStartJoinsErrorsForFailedDialsButRegistersTheRest(t *testing.T) {
	dir := partitions.New(nil, nil)
	list := []Partition{
		{ID: "p1", Address: "good:9000"},
		{ID: "p2", Address: "bad:9000"},
	}
	dialErr := errors.New("connection refused")
	dial := func(address string) (activefs.FileSystem, error) {
		if address == "bad:9000" {
			return nil, dialErr
		}
		return &fakeFS{}, nil
	}

	s := New(dir, list, dial)
	err := s.Start(context.Background())
	if err == nil {
		t.Fatalf("Start should report the failed dial")
	}
	if !errors.Is(err, dialErr) {
		t.Fatalf("Start error = %v, want it to wrap %v", err, dialErr)
	}

	if dir.Get(partitions.ID("p1")) == nil {
		t.Fatalf("p1 should still have registered despite p2 failing to dial")
	}
	if dir.Get(partitions.ID("p2")) != nil {
		t.Fatalf("p2 should not be registered since it failed to dial")
	}
}

func TestStopIsNoop(t *testing.T) {
	dir := partitions.New(nil, nil)
	s := New(dir, nil, func(address string) (activefs.FileSystem, error) { return &fakeFS{}, nil })
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
