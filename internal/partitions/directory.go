// Package partitions implements the partition directory and liveness
// tracker: the registry of {id -> remote filesystem}, split into alive/dead
// sets, reconciled by pinging, and consulted by the cluster composer to
// pick upload/download targets for a given file name.
package partitions

import (
	"context"
	"sync"

	"github.com/AnishMulay/clusterfs/internal/activefs"
	"github.com/AnishMulay/clusterfs/internal/logging"
)

// ID is an opaque, comparable partition identifier - typically a string
// endpoint, but any comparable value works.
type ID any

// Directory holds the three id-domain-sharing maps (all/alive/dead)
// spec.md §3 requires, plus the rendezvous selector and the single-flight
// guard over concurrent liveness sweeps.
type Directory struct {
	log logging.Logger

	mu       sync.Mutex
	all      map[ID]activefs.FileSystem
	alive    map[ID]activefs.FileSystem
	dead     map[ID]activefs.FileSystem
	selector ServerSelector

	checkAll  *singleflight
	checkDead *singleflight
}

// New builds an empty Directory. Use AddPartition to register partitions
// (or a discovery backend, see internal/partitions/discovery).
func New(log logging.Logger, selector ServerSelector) *Directory {
	if selector == nil {
		selector = RendezvousSelector{}
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Directory{
		log:       log,
		all:       make(map[ID]activefs.FileSystem),
		alive:     make(map[ID]activefs.FileSystem),
		dead:      make(map[ID]activefs.FileSystem),
		selector:  selector,
		checkAll:  newSingleflight(),
		checkDead: newSingleflight(),
	}
}

// AddPartition registers a new partition, alive by construction. Safe to
// call after New even while the directory is in active use (registration is
// the one mutation to `all` spec.md's invariants allow outside liveness
// transitions).
func (d *Directory) AddPartition(id ID, fs activefs.FileSystem) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.all[id] = fs
	d.alive[id] = fs
}

// RemovePartition deregisters id entirely, from all three sets. Used by
// dynamic discovery backends when a node's static config entry disappears,
// as distinct from a liveness transition (MarkDead/MarkAlive), which keeps
// the id registered.
func (d *Directory) RemovePartition(id ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.all, id)
	delete(d.alive, id)
	delete(d.dead, id)
}

// All returns a snapshot copy of every registered partition.
func (d *Directory) All() map[ID]activefs.FileSystem {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneMap(d.all)
}

// Alive returns a snapshot copy of the currently alive partitions.
func (d *Directory) Alive() map[ID]activefs.FileSystem {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneMap(d.alive)
}

// Dead returns a snapshot copy of the currently dead partitions.
func (d *Directory) Dead() map[ID]activefs.FileSystem {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneMap(d.dead)
}

// DeadCount is a cheap accessor for the cluster composer's degradation
// check, avoiding a full map copy.
func (d *Directory) DeadCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dead)
}

// Get returns the alive handle for id, or nil if id is absent or dead.
func (d *Directory) Get(id ID) activefs.FileSystem {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alive[id]
}

// Select returns the ordered candidate partition ids for name, computed by
// the configured ServerSelector over the current alive set. The order is a
// deterministic function of (name, alive-set): it changes only when the
// alive set itself changes.
func (d *Directory) Select(name string) []ID {
	d.mu.Lock()
	ids := make([]ID, 0, len(d.alive))
	for id := range d.alive {
		ids = append(ids, id)
	}
	d.mu.Unlock()
	return d.selector.SelectFrom(name, ids)
}

// MarkDead moves id from alive to dead, if present there. Returns whether a
// transition actually occurred, so callers (liveness sweeps, wrapResult)
// don't log a redundant transition.
func (d *Directory) MarkDead(id ID, cause error) bool {
	d.mu.Lock()
	fs, ok := d.alive[id]
	if ok {
		delete(d.alive, id)
		d.dead[id] = fs
	}
	d.mu.Unlock()
	if ok {
		d.log.Warn(logging.Event{Message: "partition marked dead", Fields: map[string]any{"id": id, "cause": errString(cause)}})
	}
	return ok
}

// MarkAlive moves id from dead to alive, if present there.
func (d *Directory) MarkAlive(id ID) bool {
	d.mu.Lock()
	fs, ok := d.dead[id]
	if ok {
		delete(d.dead, id)
		d.alive[id] = fs
	}
	d.mu.Unlock()
	if ok {
		d.log.Info(logging.Event{Message: "partition is alive again", Fields: map[string]any{"id": id}})
	}
	return ok
}

// MarkIfDead marks id dead only when cause is NOT an application-level
// filesystem error: application errors like FILE_NOT_FOUND must never evict
// a partition, only network/timeout/unknown failures do.
func (d *Directory) MarkIfDead(id ID, cause error) bool {
	if cause == nil || activefs.IsApplicationError(cause) {
		return false
	}
	return d.MarkDead(id, cause)
}

// WrapResult is the adapter installed on every outbound partition
// operation: on error it marks the partition dead (if warranted) and
// rewraps the error as a non-application NodeFailedError; on success it
// passes the result through untouched.
func WrapResult[T any](d *Directory, id ID, result T, err error) (T, error) {
	if err == nil {
		return result, nil
	}
	d.MarkIfDead(id, err)
	var zero T
	return zero, &activefs.NodeFailedError{ID: id, Cause: err}
}

// CheckAllPartitions pings every registered partition, marking each alive
// or dead according to the result. Concurrent callers share one in-flight
// sweep (the reuse guard spec.md §4.2 requires).
func (d *Directory) CheckAllPartitions(ctx context.Context) error {
	return d.checkAll.Do(func() error { return d.doCheckAll(ctx) })
}

// CheckDeadPartitions pings only the currently dead partitions, the
// preferred periodic call since it no-ops when nothing is dead.
func (d *Directory) CheckDeadPartitions(ctx context.Context) error {
	return d.checkDead.Do(func() error { return d.doCheckDead(ctx) })
}

func (d *Directory) doCheckAll(ctx context.Context) error {
	all := d.All()
	var wg sync.WaitGroup
	for id, fs := range all {
		wg.Add(1)
		go func(id ID, fs activefs.FileSystem) {
			defer wg.Done()
			if err := fs.Ping(ctx); err != nil {
				d.MarkDead(id, err)
			} else {
				d.MarkAlive(id)
			}
		}(id, fs)
	}
	wg.Wait()
	return nil
}

func (d *Directory) doCheckDead(ctx context.Context) error {
	dead := d.Dead()
	var wg sync.WaitGroup
	for id, fs := range dead {
		wg.Add(1)
		go func(id ID, fs activefs.FileSystem) {
			defer wg.Done()
			if err := fs.Ping(ctx); err == nil {
				d.MarkAlive(id)
			}
		}(id, fs)
	}
	wg.Wait()
	return nil
}

func cloneMap(m map[ID]activefs.FileSystem) map[ID]activefs.FileSystem {
	out := make(map[ID]activefs.FileSystem, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
