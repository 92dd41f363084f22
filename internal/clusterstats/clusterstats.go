// Package clusterstats exposes cluster-composer operational counters via
// expvar - the Go-idiomatic equivalent of the ActiveJ original's JMX
// PromiseStats beans. No third-party metrics library appears anywhere in
// the retrieved example pack, so expvar (stdlib) is the grounded choice
// here, not a convenience fallback: see DESIGN.md.
package clusterstats

import (
	"expvar"
	"sync/atomic"
)

// Stats is a small set of counters a cluster.FS (or a wrapping decorator)
// updates as operations happen, published under an expvar.Map so they show
// up at the process's /debug/vars endpoint alongside anything else expvar
// already tracks. DeadPartitions is published as dead_partitions, but no
// code in this repository updates it, so it reads 0 unless a caller sets it.
type Stats struct {
	UploadsStarted   atomic.Int64
	UploadsFinished  atomic.Int64
	UploadsFailed    atomic.Int64
	DownloadsStarted atomic.Int64
	DeadPartitions   atomic.Int64
}

// New registers a Stats under the given expvar name (panics if that name
// is already registered, matching expvar.Publish's own behavior - call
// this once per process).
func New(name string) *Stats {
	s := &Stats{}
	m := &expvar.Map{}
	m.Set("uploads_started", expvar.Func(func() any { return s.UploadsStarted.Load() }))
	m.Set("uploads_finished", expvar.Func(func() any { return s.UploadsFinished.Load() }))
	m.Set("uploads_failed", expvar.Func(func() any { return s.UploadsFailed.Load() }))
	m.Set("downloads_started", expvar.Func(func() any { return s.DownloadsStarted.Load() }))
	m.Set("dead_partitions", expvar.Func(func() any { return s.DeadPartitions.Load() }))
	expvar.Publish(name, m)
	return s
}
