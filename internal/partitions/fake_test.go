package partitions

import (
	"context"

	"github.com/AnishMulay/clusterfs/internal/activefs"
	"github.com/AnishMulay/clusterfs/internal/bytestream"
)

// fakeFS is a minimal activefs.FileSystem stub whose Ping result is
// controllable, for exercising directory liveness transitions without a
// real network partition.
type fakeFS struct {
	pingErr error
}

func (f *fakeFS) Upload(ctx context.Context, name string) (bytestream.Consumer, error) {
	return nil, nil
}
func (f *fakeFS) UploadSized(ctx context.Context, name string, size uint64) (bytestream.Consumer, error) {
	return nil, nil
}
func (f *fakeFS) Append(ctx context.Context, name string, offset uint64) (bytestream.Consumer, error) {
	return nil, nil
}
func (f *fakeFS) Download(ctx context.Context, name string, offset, limit uint64) (bytestream.Supplier, error) {
	return nil, nil
}
func (f *fakeFS) Delete(ctx context.Context, name string) error                       { return nil }
func (f *fakeFS) DeleteAll(ctx context.Context, names []string) error                 { return nil }
func (f *fakeFS) CopyAll(ctx context.Context, sourceToTarget map[string]string) error { return nil }
func (f *fakeFS) MoveAll(ctx context.Context, sourceToTarget map[string]string) error { return nil }
func (f *fakeFS) Copy(ctx context.Context, src, dst string) error                     { return nil }
func (f *fakeFS) Move(ctx context.Context, src, dst string) error                     { return nil }
func (f *fakeFS) List(ctx context.Context, glob string) (map[string]activefs.Metadata, error) {
	return nil, nil
}
func (f *fakeFS) Info(ctx context.Context, name string) (*activefs.Metadata, error) { return nil, nil }
func (f *fakeFS) InfoAll(ctx context.Context, names []string) (map[string]activefs.Metadata, error) {
	return nil, nil
}
func (f *fakeFS) Ping(ctx context.Context) error { return f.pingErr }

var _ activefs.FileSystem = (*fakeFS)(nil)
