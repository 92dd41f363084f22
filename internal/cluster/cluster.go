// Package cluster implements the top-level filesystem that wires the
// partition directory, fan-out splitter, and fan-in combiner together for
// every activefs.FileSystem operation - the cluster composer of spec.md
// §4.3, the single largest component of this repo.
package cluster

import (
	"context"
	"sync"

	"github.com/AnishMulay/clusterfs/internal/activefs"
	"github.com/AnishMulay/clusterfs/internal/bytestream"
	"github.com/AnishMulay/clusterfs/internal/combiner"
	"github.com/AnishMulay/clusterfs/internal/logging"
	"github.com/AnishMulay/clusterfs/internal/partitions"
	"github.com/AnishMulay/clusterfs/internal/splitter"
)

var _ activefs.FileSystem = (*FS)(nil)

// FS is the cluster-wide activefs.FileSystem implementation.
type FS struct {
	dir *partitions.Directory
	cfg Config
	log logging.Logger
}

// New builds a cluster FS over dir, configured by cfg. cfg is validated
// against dir's current partition count.
func New(dir *partitions.Directory, cfg Config, log logging.Logger) (*FS, error) {
	if log == nil {
		log = logging.Noop()
	}
	if err := cfg.Validate(uint32(len(dir.All()))); err != nil {
		return nil, err
	}
	return &FS{dir: dir, cfg: cfg, log: log}, nil
}

func (f *FS) checkNotDegraded() error {
	if uint32(f.dir.DeadCount()) > f.cfg.DeadThreshold {
		return activefs.ErrClusterDegraded
	}
	return nil
}

// Upload implements activefs.FileSystem.
func (f *FS) Upload(ctx context.Context, name string) (bytestream.Consumer, error) {
	return f.doUpload(ctx, name, func(id partitions.ID, fs activefs.FileSystem) (bytestream.Consumer, error) {
		return fs.Upload(ctx, name)
	})
}

// UploadSized implements activefs.FileSystem, additionally enforcing the
// declared size via activefs.FixedSize.
func (f *FS) UploadSized(ctx context.Context, name string, size uint64) (bytestream.Consumer, error) {
	c, err := f.doUpload(ctx, name, func(id partitions.ID, fs activefs.FileSystem) (bytestream.Consumer, error) {
		return fs.UploadSized(ctx, name, size)
	})
	if err != nil {
		return nil, err
	}
	return activefs.FixedSize(c, size), nil
}

// Append implements activefs.FileSystem.
func (f *FS) Append(ctx context.Context, name string, offset uint64) (bytestream.Consumer, error) {
	return f.doUpload(ctx, name, func(id partitions.ID, fs activefs.FileSystem) (bytestream.Consumer, error) {
		return fs.Append(ctx, name, offset)
	})
}

// doUpload implements the upload algorithm of spec.md §4.3: select target
// ids, try them in order opening a consumer on each until UploadMax
// successes (or the id list is exhausted), require at least UploadMin, then
// wrap the collected consumers in a fan-out splitter.
func (f *FS) doUpload(ctx context.Context, name string, open func(partitions.ID, activefs.FileSystem) (bytestream.Consumer, error)) (bytestream.Consumer, error) {
	if err := f.checkNotDegraded(); err != nil {
		return nil, err
	}

	ids := f.dir.Select(name)
	var opened []trackedEntry

	for _, id := range ids {
		if uint32(len(opened)) >= f.cfg.UploadMax {
			break
		}
		fs := f.dir.Get(id)
		if fs == nil {
			continue // already marked dead by somebody else
		}
		consumer, err := open(id, fs)
		if err != nil {
			f.dir.MarkIfDead(id, err)
			continue
		}
		opened = append(opened, trackedEntry{id: id, consumer: f.wrapConsumer(id, consumer)})
	}

	if uint32(len(opened)) < f.cfg.UploadMin {
		for _, e := range opened {
			_ = e.consumer.Close(activefs.ErrNotEnoughUploadTargets)
		}
		return nil, activefs.ErrNotEnoughUploadTargets
	}

	ids2 := make([]partitions.ID, len(opened))
	for i, e := range opened {
		ids2[i] = e.id
	}
	f.log.Debug(logging.Event{Message: "uploading", Fields: map[string]any{"name": name, "targets": ids2}})

	downstreams := make([]bytestream.Consumer, len(opened))
	for i, e := range opened {
		downstreams[i] = e.consumer
	}
	return splitter.New(downstreams, int(f.cfg.UploadMin)), nil
}

type trackedEntry struct {
	id       partitions.ID
	consumer bytestream.Consumer
}

// wrapConsumer installs the WrapResult adapter on a per-partition consumer:
// a failing Accept/Ack marks the partition dead (if warranted) and returns
// ErrClusterDegraded if the dead count then exceeds the threshold. On
// Accept the splitter then aborts the whole upload; on Ack that partition
// only counts as not acknowledged.
func (f *FS) wrapConsumer(id partitions.ID, inner bytestream.Consumer) bytestream.Consumer {
	return &trackingConsumer{fs: f, id: id, inner: inner}
}

type trackingConsumer struct {
	fs    *FS
	id    partitions.ID
	inner bytestream.Consumer
}

func (t *trackingConsumer) Accept(ctx context.Context, c bytestream.Chunk) error {
	err := t.inner.Accept(ctx, c)
	return t.wrap(err)
}

func (t *trackingConsumer) Ack(ctx context.Context) error {
	err := t.inner.Ack(ctx)
	return t.wrap(err)
}

func (t *trackingConsumer) Close(cause error) error {
	return t.inner.Close(cause)
}

func (t *trackingConsumer) wrap(err error) error {
	if err == nil {
		return nil
	}
	t.fs.dir.MarkIfDead(t.id, err)
	if uint32(t.fs.dir.DeadCount()) > t.fs.cfg.DeadThreshold {
		return activefs.ErrClusterDegraded
	}
	_, wrapped := partitions.WrapResult[struct{}](t.fs.dir, t.id, struct{}{}, err)
	return wrapped
}

// Download implements activefs.FileSystem: broadcast to every alive
// partition, collect successful suppliers, and fan them into a combiner.
func (f *FS) Download(ctx context.Context, name string, offset, limit uint64) (bytestream.Supplier, error) {
	if err := f.checkNotDegraded(); err != nil {
		return nil, err
	}

	ids := f.dir.Select(name) // deterministic order used to pick the primary

	type result struct {
		id       partitions.ID
		supplier bytestream.Supplier
		err      error
	}

	results := make([]result, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id partitions.ID) {
			defer wg.Done()
			fs := f.dir.Get(id)
			if fs == nil {
				results[i] = result{id: id, err: activefs.ErrFileNotFound}
				return
			}
			supplier, err := fs.Download(ctx, name, offset, limit)
			if err != nil {
				f.dir.MarkIfDead(id, err)
				results[i] = result{id: id, err: err}
				return
			}
			results[i] = result{id: id, supplier: supplier}
		}(i, id)
	}
	wg.Wait()

	var suppliers []bytestream.Supplier
	sawFileNotFound := false
	for _, r := range results {
		if r.err != nil {
			if activefs.IsApplicationError(r.err) && activefs.Code(r.err) == activefs.CodeFileNotFound {
				sawFileNotFound = true
			}
			continue
		}
		suppliers = append(suppliers, r.supplier)
	}

	if len(suppliers) == 0 {
		if sawFileNotFound {
			return nil, activefs.ErrFileNotFound
		}
		return nil, activefs.ErrNoReplicasAvailable
	}

	return combiner.New(ctx, suppliers), nil
}

// Copy/Move have no bespoke cluster implementation: they inherit
// fan-out-on-upload, fan-in-on-download, and liveness handling for free by
// delegating to the shared default derivations over f itself.
func (f *FS) Copy(ctx context.Context, src, dst string) error {
	return activefs.DefaultCopy(ctx, f, src, dst)
}

func (f *FS) Move(ctx context.Context, src, dst string) error {
	return activefs.DefaultMove(ctx, f, src, dst)
}
