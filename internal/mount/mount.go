// Package mount implements path-prefix dispatch across several
// activefs.FileSystems - grounded on ActiveJ's MountingActiveFs, which lets
// one logical filesystem be composed of several physically distinct
// backends (e.g. the cluster composer mounted at "cluster/" alongside a
// local scratch store mounted at "scratch/").
package mount

import (
	"context"
	"sort"
	"strings"

	"github.com/AnishMulay/clusterfs/internal/activefs"
	"github.com/AnishMulay/clusterfs/internal/bytestream"
)

var _ activefs.FileSystem = (*FS)(nil)

// FS dispatches every operation to the mount whose prefix longest-matches
// the name, stripping that prefix before delegating. Names that match no
// mount fall through to the root filesystem, if one was configured with
// Mount("", fs).
type FS struct {
	mounts []mountEntry
}

type mountEntry struct {
	prefix string // always ends in "/", except the root mount ("")
	fs     activefs.FileSystem
}

// New builds an empty FS; use Mount to register backends.
func New() *FS {
	return &FS{}
}

// Mount registers fs at prefix. prefix is normalized to always end in "/"
// (except the empty/root prefix). Mounts are matched longest-prefix-first
// regardless of registration order.
func (m *FS) Mount(prefix string, fs activefs.FileSystem) {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	m.mounts = append(m.mounts, mountEntry{prefix: prefix, fs: fs})
	sort.Slice(m.mounts, func(i, j int) bool {
		return len(m.mounts[i].prefix) > len(m.mounts[j].prefix)
	})
}

func (m *FS) resolve(name string) (activefs.FileSystem, string, error) {
	for _, e := range m.mounts {
		if strings.HasPrefix(name, e.prefix) {
			return e.fs, name[len(e.prefix):], nil
		}
	}
	return nil, "", activefs.ErrFileNotFound
}

func (m *FS) Upload(ctx context.Context, name string) (bytestream.Consumer, error) {
	fs, rest, err := m.resolve(name)
	if err != nil {
		return nil, err
	}
	return fs.Upload(ctx, rest)
}

func (m *FS) UploadSized(ctx context.Context, name string, size uint64) (bytestream.Consumer, error) {
	fs, rest, err := m.resolve(name)
	if err != nil {
		return nil, err
	}
	return fs.UploadSized(ctx, rest, size)
}

func (m *FS) Append(ctx context.Context, name string, offset uint64) (bytestream.Consumer, error) {
	fs, rest, err := m.resolve(name)
	if err != nil {
		return nil, err
	}
	return fs.Append(ctx, rest, offset)
}

func (m *FS) Download(ctx context.Context, name string, offset, limit uint64) (bytestream.Supplier, error) {
	fs, rest, err := m.resolve(name)
	if err != nil {
		return nil, err
	}
	return fs.Download(ctx, rest, offset, limit)
}

func (m *FS) Delete(ctx context.Context, name string) error {
	fs, rest, err := m.resolve(name)
	if err != nil {
		return err
	}
	return fs.Delete(ctx, rest)
}

// DeleteAll partitions its names by mount and delegates each group;
// CopyAll/MoveAll go pair by pair through Copy/Move. Each fails the whole
// batch (no atomicity promised, matching activefs.FileSystem's own bulk
// contract) as soon as one group or pair fails - a name that matches no
// mount fails the whole call.
func (m *FS) DeleteAll(ctx context.Context, names []string) error {
	groups, err := m.groupNames(names)
	if err != nil {
		return err
	}
	for fs, rest := range groups {
		if err := fs.DeleteAll(ctx, rest); err != nil {
			return err
		}
	}
	return nil
}

func (m *FS) CopyAll(ctx context.Context, sourceToTarget map[string]string) error {
	for src, dst := range sourceToTarget {
		if err := m.Copy(ctx, src, dst); err != nil {
			return err
		}
	}
	return nil
}

func (m *FS) MoveAll(ctx context.Context, sourceToTarget map[string]string) error {
	for src, dst := range sourceToTarget {
		if err := m.Move(ctx, src, dst); err != nil {
			return err
		}
	}
	return nil
}

// Copy delegates to the source mount's own Copy when src and dst share a
// mount (letting that backend use any native fast path), otherwise falls
// back to the generic cross-mount default (download from one, upload to
// the other).
func (m *FS) Copy(ctx context.Context, src, dst string) error {
	srcFS, srcRest, err := m.resolve(src)
	if err != nil {
		return err
	}
	dstFS, dstRest, err := m.resolve(dst)
	if err != nil {
		return err
	}
	if sameFS(srcFS, dstFS) {
		return srcFS.Copy(ctx, srcRest, dstRest)
	}
	return activefs.DefaultCopy(ctx, m, src, dst)
}

func (m *FS) Move(ctx context.Context, src, dst string) error {
	if src == dst {
		return nil
	}
	srcFS, srcRest, err := m.resolve(src)
	if err != nil {
		return err
	}
	dstFS, dstRest, err := m.resolve(dst)
	if err != nil {
		return err
	}
	if sameFS(srcFS, dstFS) {
		return srcFS.Move(ctx, srcRest, dstRest)
	}
	return activefs.DefaultMove(ctx, m, src, dst)
}

func sameFS(a, b activefs.FileSystem) bool {
	return a == b
}

func (m *FS) groupNames(names []string) (map[activefs.FileSystem][]string, error) {
	groups := make(map[activefs.FileSystem][]string)
	for _, name := range names {
		fs, rest, err := m.resolve(name)
		if err != nil {
			return nil, err
		}
		groups[fs] = append(groups[fs], rest)
	}
	return groups, nil
}

// List merges results across every mount whose prefix glob could possibly
// reach, stripping that prefix before delegating (mirroring resolve's
// stripping for every other operation) and re-adding it to the names
// returned. A mount is skipped outright when glob's leading literal
// segments rule it out.
func (m *FS) List(ctx context.Context, glob string) (map[string]activefs.Metadata, error) {
	out := make(map[string]activefs.Metadata)
	for _, e := range m.mounts {
		subGlob, ok := stripGlobPrefix(glob, e.prefix)
		if !ok {
			continue
		}
		sub, err := e.fs.List(ctx, subGlob)
		if err != nil {
			return nil, err
		}
		for name, meta := range sub {
			out[e.prefix+name] = meta
		}
	}
	return out, nil
}

// stripGlobPrefix removes a mount's prefix segments from glob so the mount
// only ever sees a pattern relative to its own root. It reports false when
// glob's leading literal segments can't possibly reach under prefix. A "**"
// segment short-circuits the walk and is passed through unchanged, since it
// already matches any number of segments - including the rest of prefix and
// anything beneath it - regardless of where it's rooted. Wildcard segments
// elsewhere in the prefix region (e.g. "*" standing in for a literal mount
// name) are not specially interpreted; only exact literal segments or "**"
// let a mount through.
func stripGlobPrefix(glob, prefix string) (string, bool) {
	if prefix == "" {
		return glob, true
	}
	prefixSegs := strings.Split(strings.TrimSuffix(prefix, "/"), "/")
	globSegs := strings.SplitN(glob, "/", len(prefixSegs)+1)
	for i, ps := range prefixSegs {
		if i >= len(globSegs) {
			return "", false
		}
		if globSegs[i] == "**" {
			return strings.Join(globSegs[i:], "/"), true
		}
		if globSegs[i] != ps {
			return "", false
		}
	}
	if len(globSegs) <= len(prefixSegs) {
		return "", false
	}
	return strings.Join(globSegs[len(prefixSegs):], "/"), true
}

func (m *FS) Info(ctx context.Context, name string) (*activefs.Metadata, error) {
	fs, rest, err := m.resolve(name)
	if err != nil {
		return nil, err
	}
	return fs.Info(ctx, rest)
}

func (m *FS) InfoAll(ctx context.Context, names []string) (map[string]activefs.Metadata, error) {
	groups, err := m.groupNames(names)
	if err != nil {
		return nil, err
	}
	prefixes := make(map[activefs.FileSystem]string, len(m.mounts))
	for _, e := range m.mounts {
		prefixes[e.fs] = e.prefix
	}
	out := make(map[string]activefs.Metadata)
	for fs, rest := range groups {
		sub, err := fs.InfoAll(ctx, rest)
		if err != nil {
			return nil, err
		}
		prefix := prefixes[fs]
		for name, meta := range sub {
			out[prefix+name] = meta
		}
	}
	return out, nil
}

func (m *FS) Ping(ctx context.Context) error {
	for _, e := range m.mounts {
		if err := e.fs.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}
