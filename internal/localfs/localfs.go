// Package localfs implements a single-node activefs.FileSystem backed by
// the OS filesystem: the default partition implementation (and the
// mounting layer's scratch target). This is the one backing store out of
// scope per spec.md §1 - external wire adapters and the cluster layer are
// the interesting parts - but a concrete implementation is what makes the
// rest of the repo runnable and testable end to end.
package localfs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/AnishMulay/clusterfs/internal/activefs"
	"github.com/AnishMulay/clusterfs/internal/bytestream"
	"github.com/google/uuid"
)

var _ activefs.FileSystem = (*FS)(nil)

// FS roots every operation at a single directory on disk. Names are
// resolved relative to root and checked against path escape (ErrBadPath).
type FS struct {
	root string
}

// New builds a FS rooted at dir, creating it if necessary.
func New(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &FS{root: abs}, nil
}

func (f *FS) resolve(name string) (string, error) {
	clean := filepath.Clean("/" + name)
	full := filepath.Join(f.root, clean)
	if !strings.HasPrefix(full, f.root) {
		return "", activefs.ErrBadPath
	}
	return full, nil
}

func (f *FS) Upload(ctx context.Context, name string) (bytestream.Consumer, error) {
	return f.stage(name)
}

func (f *FS) UploadSized(ctx context.Context, name string, size uint64) (bytestream.Consumer, error) {
	c, err := f.stage(name)
	if err != nil {
		return nil, err
	}
	return activefs.FixedSize(c, size), nil
}

func (f *FS) stage(name string) (bytestream.Consumer, error) {
	full, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	tmp := filepath.Join(filepath.Dir(full), ".upload-"+uuid.New().String())
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return bytestream.NewWriterConsumer(file,
		func() error {
			if err := file.Sync(); err != nil {
				file.Close()
				os.Remove(tmp)
				return err
			}
			if err := file.Close(); err != nil {
				os.Remove(tmp)
				return err
			}
			return os.Rename(tmp, full)
		},
		func(cause error) {
			file.Close()
			os.Remove(tmp)
		},
	), nil
}

func (f *FS) Append(ctx context.Context, name string, offset uint64) (bytestream.Consumer, error) {
	full, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	info, statErr := os.Stat(full)
	var size uint64
	if statErr == nil {
		size = uint64(info.Size())
	} else if !os.IsNotExist(statErr) {
		return nil, statErr
	}
	if offset > size {
		return nil, activefs.ErrIllegalOffset
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(full, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	ac := &appendConsumer{file: file, pos: int64(offset), existingSize: int64(size)}
	return ac, nil
}

// appendConsumer writes starting at pos, verifying that any bytes
// overlapping the pre-existing tail of the file match exactly (idempotent
// retry of a partially-applied append), per spec.md §4.1.
type appendConsumer struct {
	file         *os.File
	pos          int64
	existingSize int64
	mismatch     bool
}

func (a *appendConsumer) Accept(ctx context.Context, c bytestream.Chunk) error {
	defer c.Release()
	data := c.Data
	if a.pos < a.existingSize {
		overlapLen := a.existingSize - a.pos
		if int64(len(data)) < overlapLen {
			overlapLen = int64(len(data))
		}
		existing := make([]byte, overlapLen)
		if _, err := a.file.ReadAt(existing, a.pos); err != nil && err != io.EOF {
			return err
		}
		if !bytes.Equal(existing, data[:overlapLen]) {
			a.mismatch = true
			return activefs.ErrIllegalOffset
		}
		data = data[overlapLen:]
		a.pos += overlapLen
	}
	if len(data) == 0 {
		return nil
	}
	n, err := a.file.WriteAt(data, a.pos)
	a.pos += int64(n)
	return err
}

func (a *appendConsumer) Ack(ctx context.Context) error {
	if a.mismatch {
		return activefs.ErrIllegalOffset
	}
	if err := a.file.Sync(); err != nil {
		return err
	}
	return a.file.Close()
}

func (a *appendConsumer) Close(cause error) error {
	return a.file.Close()
}

func (f *FS) Download(ctx context.Context, name string, offset, limit uint64) (bytestream.Supplier, error) {
	full, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, activefs.ErrFileNotFound
		}
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	size := uint64(info.Size())
	if offset >= size {
		file.Close()
		return bytestream.SliceSupplier(nil, 32*1024), nil
	}
	remaining := size - offset
	if limit > remaining {
		limit = remaining
	}
	if _, err := file.Seek(int64(offset), io.SeekStart); err != nil {
		file.Close()
		return nil, err
	}
	return bytestream.FromReader(io.LimitReader(file, int64(limit)), 32*1024), nil
}

func (f *FS) Delete(ctx context.Context, name string) error {
	full, err := f.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *FS) DeleteAll(ctx context.Context, names []string) error {
	return activefs.DefaultDeleteAll(ctx, f, names)
}

func (f *FS) CopyAll(ctx context.Context, sourceToTarget map[string]string) error {
	return activefs.DefaultCopyAll(ctx, f, sourceToTarget)
}

func (f *FS) MoveAll(ctx context.Context, sourceToTarget map[string]string) error {
	return activefs.DefaultMoveAll(ctx, f, sourceToTarget)
}

func (f *FS) Copy(ctx context.Context, src, dst string) error {
	return activefs.DefaultCopy(ctx, f, src, dst)
}

func (f *FS) Move(ctx context.Context, src, dst string) error {
	return activefs.DefaultMove(ctx, f, src, dst)
}

func (f *FS) List(ctx context.Context, glob string) (map[string]activefs.Metadata, error) {
	out := make(map[string]activefs.Metadata)
	err := filepath.Walk(f.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(f.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(filepath.Base(rel), ".upload-") {
			return nil
		}
		matched, merr := activefs.MatchGlob(glob, rel)
		if merr != nil {
			return merr
		}
		if matched {
			out[rel] = activefs.Metadata{Size: uint64(info.Size()), ModTime: info.ModTime().UnixNano()}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *FS) Info(ctx context.Context, name string) (*activefs.Metadata, error) {
	full, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return &activefs.Metadata{Size: uint64(info.Size()), ModTime: info.ModTime().UnixNano()}, nil
}

func (f *FS) InfoAll(ctx context.Context, names []string) (map[string]activefs.Metadata, error) {
	return activefs.DefaultInfoAll(ctx, f, names)
}

func (f *FS) Ping(ctx context.Context) error {
	_, err := os.Stat(f.root)
	return err
}
