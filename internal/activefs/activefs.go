package activefs

import (
	"context"
	"errors"
	"io"

	"github.com/AnishMulay/clusterfs/internal/bytestream"
)

// FileSystem is the abstract operation set every composition layer
// (mounting, cluster, forwarding, wire adapters) must honor identically.
// Every operation is cancellable via ctx; cancelling MUST release any
// streams opened for it.
type FileSystem interface {
	// Upload accepts an immutable file of unknown size. Failure may surface
	// when opening the consumer, while streaming, or on Ack (commit).
	Upload(ctx context.Context, name string) (bytestream.Consumer, error)

	// UploadSized is like Upload but the stream MUST deliver exactly size
	// bytes: ErrUnexpectedData if more arrive, ErrUnexpectedEndOfStream on
	// Ack if fewer did.
	UploadSized(ctx context.Context, name string, size uint64) (bytestream.Consumer, error)

	// Append extends an existing file starting at offset. ErrIllegalOffset
	// if offset exceeds the current size; when offset is below the current
	// size, the incoming bytes overlapping [offset, size) must match what's
	// already there (idempotent retry of a partially-applied append).
	Append(ctx context.Context, name string, offset uint64) (bytestream.Consumer, error)

	// Download reads up to limit bytes starting at offset. ErrFileNotFound
	// if absent, ErrBadRange if offset or limit is negative (callers pass
	// uint64 so this is enforced by the caller rejecting out-of-range
	// inputs before conversion). limit beyond EOF is clamped silently.
	Download(ctx context.Context, name string, offset, limit uint64) (bytestream.Supplier, error)

	// Delete is idempotent: deleting an absent name is not an error.
	Delete(ctx context.Context, name string) error

	// DeleteAll, CopyAll, MoveAll are bulk variants. Atomicity is NOT
	// guaranteed: an error on any element fails the whole batch, but
	// partial effects may persist.
	DeleteAll(ctx context.Context, names []string) error
	CopyAll(ctx context.Context, sourceToTarget map[string]string) error
	MoveAll(ctx context.Context, sourceToTarget map[string]string) error

	// Copy is the derived default: download(src) streamed into upload(dst).
	Copy(ctx context.Context, src, dst string) error
	// Move is copy then delete(src), skipped entirely when src == dst.
	Move(ctx context.Context, src, dst string) error

	// List returns metadata for every name matching glob (shell-style over
	// /-segments: *, ?, [...], **). ErrMalformedGlob on a bad pattern.
	List(ctx context.Context, glob string) (map[string]Metadata, error)

	// Info returns nil if name is absent.
	Info(ctx context.Context, name string) (*Metadata, error)

	// InfoAll is the bulk form of Info; absent names are simply omitted
	// from the result map.
	InfoAll(ctx context.Context, names []string) (map[string]Metadata, error)

	// Ping is a cheap liveness check.
	Ping(ctx context.Context) error
}

// DefaultCopy streams src to dst through fs: download(src) piped into
// upload(dst). Any FileSystem can use this as its Copy implementation.
func DefaultCopy(ctx context.Context, fs FileSystem, src, dst string) error {
	supplier, err := fs.Download(ctx, src, 0, maxLimit)
	if err != nil {
		return err
	}
	consumer, err := fs.Upload(ctx, dst)
	if err != nil {
		_ = supplier.Close(err)
		return err
	}
	return pipe(ctx, supplier, consumer)
}

// DefaultMove is copy-then-delete-source, skipped entirely when src == dst,
// matching spec.md's derived default.
func DefaultMove(ctx context.Context, fs FileSystem, src, dst string) error {
	if src == dst {
		return nil
	}
	if err := DefaultCopy(ctx, fs, src, dst); err != nil {
		return err
	}
	return fs.Delete(ctx, src)
}

// DefaultCopyAll/DefaultMoveAll apply the single-pair default to each entry,
// failing the whole batch (without guaranteed atomicity) on the first error,
// exactly as spec.md describes bulk variants.
func DefaultCopyAll(ctx context.Context, fs FileSystem, sourceToTarget map[string]string) error {
	for src, dst := range sourceToTarget {
		if err := DefaultCopy(ctx, fs, src, dst); err != nil {
			return err
		}
	}
	return nil
}

// DefaultMoveAll matches the original's *resolved* behavior (see
// DESIGN.md's Open Question note): it deletes the SOURCE name after each
// successful copy, not the target.
func DefaultMoveAll(ctx context.Context, fs FileSystem, sourceToTarget map[string]string) error {
	for src, dst := range sourceToTarget {
		if src == dst {
			continue
		}
		if err := DefaultCopy(ctx, fs, src, dst); err != nil {
			return err
		}
		if err := fs.Delete(ctx, src); err != nil {
			return err
		}
	}
	return nil
}

// DefaultInfoAll fans Info out across names for FileSystem implementations
// (typically single-partition ones) with no bulk-native implementation.
func DefaultInfoAll(ctx context.Context, fs FileSystem, names []string) (map[string]Metadata, error) {
	out := make(map[string]Metadata, len(names))
	for _, name := range names {
		meta, err := fs.Info(ctx, name)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			out[name] = *meta
		}
	}
	return out, nil
}

// DefaultDeleteAll applies Delete to each name, matching spec.md's "fails
// the whole batch on an error, partial effects may persist" contract.
func DefaultDeleteAll(ctx context.Context, fs FileSystem, names []string) error {
	for _, name := range names {
		if err := fs.Delete(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

const maxLimit = ^uint64(0)

func pipe(ctx context.Context, s bytestream.Supplier, c bytestream.Consumer) error {
	for {
		chunk, err := s.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			_ = c.Close(err)
			_ = s.Close(err)
			return err
		}
		if aerr := c.Accept(ctx, chunk); aerr != nil {
			_ = s.Close(aerr)
			_ = c.Close(aerr)
			return aerr
		}
	}
	if err := c.Ack(ctx); err != nil {
		_ = s.Close(err)
		return err
	}
	return s.Close(nil)
}
