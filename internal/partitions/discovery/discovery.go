// Package discovery provides pluggable ways to populate a
// partitions.Directory: a static list read once from configuration, or a
// dynamic etcd-backed membership service. Both are optional - a Directory
// built with partitions.New and populated by hand via AddPartition works
// fine without either.
package discovery

import "context"

// Source starts and stops a discovery backend's background work (etcd
// watch loops, lease keepalives). Static discovery's Start does all its
// work synchronously and its Stop is a no-op.
type Source interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
