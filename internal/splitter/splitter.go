// Package splitter implements the fan-out byte-stream multiplexer: one
// inbound stream duplicated to K downstream consumers (the per-partition
// upload streams opened by the cluster composer), acknowledging
// end-of-stream only once at least RequiredAcks downstreams have committed.
package splitter

import (
	"context"
	"sync"

	"github.com/AnishMulay/clusterfs/internal/activefs"
	"github.com/AnishMulay/clusterfs/internal/bytestream"
)

// Splitter is itself a bytestream.Consumer: the cluster composer hands its
// Consumer half to the caller as the effective upload stream.
type Splitter struct {
	requiredAcks int

	mu   sync.Mutex
	live []bytestream.Consumer
	dead int
	err  error
}

// New builds a Splitter over the given downstream consumers, requiring at
// least requiredAcks of them to Ack successfully for the splitter's own Ack
// to succeed.
func New(downstreams []bytestream.Consumer, requiredAcks int) *Splitter {
	live := make([]bytestream.Consumer, len(downstreams))
	copy(live, downstreams)
	return &Splitter{requiredAcks: requiredAcks, live: live}
}

// Accept copies chunk (by reference, ref-counted - no re-allocation) to
// every live downstream. A downstream whose Accept fails is dropped. If any
// of them failed with activefs.ErrClusterDegraded, Accept fails the whole
// upload with that error; otherwise, if the live count then falls below
// requiredAcks, Accept fails the whole upload with ErrNotEnoughUploadTargets.
func (s *Splitter) Accept(ctx context.Context, chunk bytestream.Chunk) error {
	s.mu.Lock()
	downstreams := make([]bytestream.Consumer, len(s.live))
	copy(downstreams, s.live)
	s.mu.Unlock()

	if len(downstreams) == 0 {
		chunk.Release()
		return s.fail(activefs.ErrNotEnoughUploadTargets)
	}

	var wg sync.WaitGroup
	failed := make([]error, len(downstreams))
	for i, d := range downstreams {
		wg.Add(1)
		go func(i int, d bytestream.Consumer) {
			defer wg.Done()
			c := chunk.Retain()
			if err := d.Accept(ctx, c); err != nil {
				failed[i] = err
			}
		}(i, d)
	}
	wg.Wait()
	chunk.Release() // release this call's own reference

	s.mu.Lock()
	defer s.mu.Unlock()
	degraded := false
	for i, f := range failed {
		if f != nil {
			s.dropLocked(downstreams[i])
			if f == activefs.ErrClusterDegraded {
				degraded = true
			}
		}
	}
	if degraded {
		s.err = activefs.ErrClusterDegraded
		return s.err
	}
	if len(s.live) < s.requiredAcks {
		s.err = activefs.ErrNotEnoughUploadTargets
		return s.err
	}
	return nil
}

// Ack requests end-of-stream acknowledgement from every live downstream in
// parallel; the splitter's own Ack succeeds once at least requiredAcks of
// them succeed.
func (s *Splitter) Ack(ctx context.Context) error {
	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return err
	}
	downstreams := make([]bytestream.Consumer, len(s.live))
	copy(downstreams, s.live)
	s.mu.Unlock()

	var wg sync.WaitGroup
	succeeded := make([]bool, len(downstreams))
	for i, d := range downstreams {
		wg.Add(1)
		go func(i int, d bytestream.Consumer) {
			defer wg.Done()
			if err := d.Ack(ctx); err == nil {
				succeeded[i] = true
			}
		}(i, d)
	}
	wg.Wait()

	acks := 0
	for _, ok := range succeeded {
		if ok {
			acks++
		}
	}
	if acks < s.requiredAcks {
		return activefs.ErrNotEnoughUploadTargets
	}
	return nil
}

// Close propagates cancellation to every live downstream. Idempotent.
func (s *Splitter) Close(cause error) error {
	s.mu.Lock()
	downstreams := make([]bytestream.Consumer, len(s.live))
	copy(downstreams, s.live)
	s.live = nil
	s.mu.Unlock()

	for _, d := range downstreams {
		_ = d.Close(cause)
	}
	return nil
}

func (s *Splitter) fail(err error) error {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	return err
}

// dropLocked removes a downstream from the live set. Caller must hold s.mu.
func (s *Splitter) dropLocked(victim bytestream.Consumer) {
	for i, d := range s.live {
		if d == victim {
			s.live = append(s.live[:i], s.live[i+1:]...)
			s.dead++
			return
		}
	}
}
