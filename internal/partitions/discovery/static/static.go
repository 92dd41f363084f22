// Package static implements partition discovery from a fixed, in-config
// list of partitions - the default and simplest backend, grounded on the
// teacher's InMemoryNodeRegistry (a plain slice of nodes, no membership
// protocol). Partitions are registered once at Start and never change;
// liveness still flows through the directory's own ping sweeps.
package static

import (
	"context"
	"errors"
	"fmt"

	"github.com/AnishMulay/clusterfs/internal/activefs"
	"github.com/AnishMulay/clusterfs/internal/partitions"
)

// Partition is one statically configured partition: an opaque id plus the
// address a Dialer turns into a live activefs.FileSystem handle.
type Partition struct {
	ID      string
	Address string
}

// Dialer builds a FileSystem handle for a partition address - typically
// internal/wire/tcp's or internal/wire/http's client constructor, injected
// here so this package never needs to import either wire adapter.
type Dialer func(address string) (activefs.FileSystem, error)

// Source registers a fixed partition list into a Directory at Start.
type Source struct {
	dir        *partitions.Directory
	partitions []Partition
	dial       Dialer
}

// New builds a static discovery source over the given partition list.
func New(dir *partitions.Directory, list []Partition, dial Dialer) *Source {
	return &Source{dir: dir, partitions: list, dial: dial}
}

// Start dials every configured partition and registers it in the
// directory. A dial failure for one partition does not stop the others
// from registering; it is reported as a joined error so the caller can
// decide whether to proceed degraded or abort.
func (s *Source) Start(ctx context.Context) error {
	var errs []error
	for _, p := range s.partitions {
		fs, err := s.dial(p.Address)
		if err != nil {
			errs = append(errs, fmt.Errorf("partition %s (%s): %w", p.ID, p.Address, err))
			continue
		}
		s.dir.AddPartition(partitions.ID(p.ID), fs)
	}
	if len(errs) > 0 {
		return fmt.Errorf("static discovery: %d of %d partitions failed to dial: %w", len(errs), len(s.partitions), errors.Join(errs...))
	}
	return nil
}

// Stop is a no-op: static discovery has no background goroutines to unwind.
func (s *Source) Stop(ctx context.Context) error { return nil }
