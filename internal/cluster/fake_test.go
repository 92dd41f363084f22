package cluster

import (
	"context"
	"sync"

	"github.com/AnishMulay/clusterfs/internal/activefs"
	"github.com/AnishMulay/clusterfs/internal/bytestream"
)

// fakePartitionFS is a minimal in-memory activefs.FileSystem used to drive
// the cluster composer's upload/download/broadcast algorithms without a real
// network partition. uploadErr/downloadErr/pingErr, when set, make every
// call of that kind fail; otherwise Upload appends to an in-memory buffer
// and Download replays it.
type fakePartitionFS struct {
	mu sync.Mutex

	uploadErr   error
	downloadErr error
	pingErr     error

	data map[string][]byte
}

func newFakePartitionFS() *fakePartitionFS {
	return &fakePartitionFS{data: make(map[string][]byte)}
}

func (f *fakePartitionFS) Upload(ctx context.Context, name string) (bytestream.Consumer, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return f.newWriter(name), nil
}

func (f *fakePartitionFS) UploadSized(ctx context.Context, name string, size uint64) (bytestream.Consumer, error) {
	return f.Upload(ctx, name)
}

func (f *fakePartitionFS) Append(ctx context.Context, name string, offset uint64) (bytestream.Consumer, error) {
	return f.Upload(ctx, name)
}

func (f *fakePartitionFS) Download(ctx context.Context, name string, offset, limit uint64) (bytestream.Supplier, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	f.mu.Lock()
	data, ok := f.data[name]
	f.mu.Unlock()
	if !ok {
		return nil, activefs.ErrFileNotFound
	}
	return bytestream.SliceSupplier(data, 64), nil
}

func (f *fakePartitionFS) Delete(ctx context.Context, name string) error {
	f.mu.Lock()
	delete(f.data, name)
	f.mu.Unlock()
	return nil
}

func (f *fakePartitionFS) DeleteAll(ctx context.Context, names []string) error {
	for _, n := range names {
		_ = f.Delete(ctx, n)
	}
	return nil
}

func (f *fakePartitionFS) CopyAll(ctx context.Context, sourceToTarget map[string]string) error {
	return nil
}
func (f *fakePartitionFS) MoveAll(ctx context.Context, sourceToTarget map[string]string) error {
	return nil
}
func (f *fakePartitionFS) Copy(ctx context.Context, src, dst string) error { return nil }
func (f *fakePartitionFS) Move(ctx context.Context, src, dst string) error { return nil }

func (f *fakePartitionFS) List(ctx context.Context, glob string) (map[string]activefs.Metadata, error) {
	return nil, nil
}

func (f *fakePartitionFS) Info(ctx context.Context, name string) (*activefs.Metadata, error) {
	return nil, nil
}

func (f *fakePartitionFS) InfoAll(ctx context.Context, names []string) (map[string]activefs.Metadata, error) {
	return nil, nil
}

func (f *fakePartitionFS) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakePartitionFS) newWriter(name string) bytestream.Consumer {
	var buf []byte
	return bytestream.NewWriterConsumer(&sliceWriter{buf: &buf}, func() error {
		f.mu.Lock()
		f.data[name] = buf
		f.mu.Unlock()
		return nil
	}, nil)
}

// sliceWriter is an io.Writer appending into a backing []byte, used to avoid
// the stdlib bytes.Buffer's separate read cursor, which this write-only
// fake has no use for.
type sliceWriter struct {
	buf *[]byte
}

func (s *sliceWriter) Write(p []byte) (int, error) {
	*s.buf = append(*s.buf, p...)
	return len(p), nil
}

var _ activefs.FileSystem = (*fakePartitionFS)(nil)
