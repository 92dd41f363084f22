package mount

import (
	"context"
	"errors"
	"testing"

	"github.com/AnishMulay/clusterfs/internal/activefs"
	"github.com/AnishMulay/clusterfs/internal/bytestream"
	"github.com/AnishMulay/clusterfs/internal/localfs"
)

func newBackend(t *testing.T) *localfs.FS {
	t.Helper()
	fs, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	return fs
}

func upload(t *testing.T, fs activefs.FileSystem, name string, data []byte) {
	t.Helper()
	ctx := context.Background()
	c, err := fs.Upload(ctx, name)
	if err != nil {
		t.Fatalf("Upload(%q): %v", name, err)
	}
	if err := c.Accept(ctx, bytestream.NewChunk(data)); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := c.Ack(ctx); err != nil {
		t.Fatalf("Ack: %v", err)
	}
}

func download(t *testing.T, fs activefs.FileSystem, name string) []byte {
	t.Helper()
	ctx := context.Background()
	s, err := fs.Download(ctx, name, 0, ^uint64(0))
	if err != nil {
		t.Fatalf("Download(%q): %v", name, err)
	}
	data, err := bytestream.CollectAll(ctx, s)
	if err != nil {
		t.Fatalf("CollectAll: %v", err)
	}
	return data
}

func TestMountDispatchesByLongestPrefix(t *testing.T) {
	m := New()
	cluster := newBackend(t)
	scratch := newBackend(t)
	m.Mount("cluster", cluster)
	m.Mount("cluster/scratch", scratch)

	upload(t, m, "cluster/scratch/note.txt", []byte("scratch-note"))
	upload(t, m, "cluster/file.txt", []byte("cluster-file"))

	if got := download(t, scratch, "note.txt"); string(got) != "scratch-note" {
		t.Fatalf("scratch backend got %q directly, want %q", got, "scratch-note")
	}
	if got := download(t, cluster, "file.txt"); string(got) != "cluster-file" {
		t.Fatalf("cluster backend got %q directly, want %q", got, "cluster-file")
	}
	// cluster must NOT have received scratch/note.txt under that name -
	// the longer "cluster/scratch" prefix should have claimed it first.
	if _, err := cluster.Info(context.Background(), "scratch/note.txt"); err == nil {
		if info, _ := cluster.Info(context.Background(), "scratch/note.txt"); info != nil {
			t.Fatalf("cluster backend unexpectedly has scratch/note.txt")
		}
	}
}

func TestMountUnmatchedNameIsNotFound(t *testing.T) {
	m := New()
	m.Mount("cluster", newBackend(t))

	_, err := m.Download(context.Background(), "other/file.txt", 0, ^uint64(0))
	if !errors.Is(err, activefs.ErrFileNotFound) {
		t.Fatalf("Download of unmounted name = %v, want ErrFileNotFound", err)
	}
}

func TestMountRootFallback(t *testing.T) {
	m := New()
	root := newBackend(t)
	scratch := newBackend(t)
	m.Mount("", root)
	m.Mount("scratch", scratch)

	upload(t, m, "anything.txt", []byte("root-data"))
	upload(t, m, "scratch/x.txt", []byte("scratch-data"))

	if got := download(t, root, "anything.txt"); string(got) != "root-data" {
		t.Fatalf("root backend got %q, want %q", got, "root-data")
	}
	if got := download(t, scratch, "x.txt"); string(got) != "scratch-data" {
		t.Fatalf("scratch backend got %q, want %q", got, "scratch-data")
	}
}

func TestMountSameMountCopyUsesNativeFastPath(t *testing.T) {
	m := New()
	backend := newBackend(t)
	m.Mount("cluster", backend)

	upload(t, m, "cluster/src.txt", []byte("payload"))
	if err := m.Copy(context.Background(), "cluster/src.txt", "cluster/dst.txt"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if got := download(t, m, "cluster/dst.txt"); string(got) != "payload" {
		t.Fatalf("copied content = %q, want %q", got, "payload")
	}
	// Source must still exist - Copy, unlike Move, never deletes it.
	if got := download(t, m, "cluster/src.txt"); string(got) != "payload" {
		t.Fatalf("source should survive Copy, got %q", got)
	}
}

func TestMountCrossMountCopyFallsBackToDefault(t *testing.T) {
	m := New()
	a := newBackend(t)
	b := newBackend(t)
	m.Mount("a", a)
	m.Mount("b", b)

	upload(t, m, "a/src.txt", []byte("cross-mount"))
	if err := m.Copy(context.Background(), "a/src.txt", "b/dst.txt"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if got := download(t, b, "dst.txt"); string(got) != "cross-mount" {
		t.Fatalf("cross-mount copy content = %q, want %q", got, "cross-mount")
	}
}

func TestMountCrossMountMoveDeletesSource(t *testing.T) {
	m := New()
	a := newBackend(t)
	b := newBackend(t)
	m.Mount("a", a)
	m.Mount("b", b)

	upload(t, m, "a/src.txt", []byte("move-me"))
	if err := m.Move(context.Background(), "a/src.txt", "b/dst.txt"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if got := download(t, b, "dst.txt"); string(got) != "move-me" {
		t.Fatalf("moved content = %q, want %q", got, "move-me")
	}
	if _, err := m.Download(context.Background(), "a/src.txt", 0, ^uint64(0)); !errors.Is(err, activefs.ErrFileNotFound) {
		t.Fatalf("source should be gone after cross-mount Move, Download = %v", err)
	}
}

func TestMountMoveSameNameIsNoop(t *testing.T) {
	m := New()
	m.Mount("a", newBackend(t))
	upload(t, m, "a/same.txt", []byte("unchanged"))

	if err := m.Move(context.Background(), "a/same.txt", "a/same.txt"); err != nil {
		t.Fatalf("Move(x, x): %v", err)
	}
	if got := download(t, m, "a/same.txt"); string(got) != "unchanged" {
		t.Fatalf("content after no-op move = %q, want %q", got, "unchanged")
	}
}

func TestMountPingFailsIfAnyBackendFails(t *testing.T) {
	m := New()
	m.Mount("a", newBackend(t))
	m.Mount("b", &failingPingFS{err: errors.New("backend down")})

	if err := m.Ping(context.Background()); err == nil {
		t.Fatalf("Ping should surface a failing backend's error")
	}
}

type failingPingFS struct {
	activefs.FileSystem
	err error
}

func (f *failingPingFS) Ping(ctx context.Context) error { return f.err }

func TestMountListStripsPrefixBeforeDelegating(t *testing.T) {
	m := New()
	cluster := newBackend(t)
	other := newBackend(t)
	m.Mount("cluster", cluster)
	m.Mount("other", other)

	upload(t, m, "cluster/a.txt", []byte("1"))
	upload(t, m, "cluster/b.log", []byte("2"))
	upload(t, m, "other/a.txt", []byte("3"))

	got, err := m.List(context.Background(), "cluster/*.txt")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("List(%q) = %v, want exactly 1 entry", "cluster/*.txt", got)
	}
	if _, ok := got["cluster/a.txt"]; !ok {
		t.Fatalf("List result = %v, want key %q", got, "cluster/a.txt")
	}
}

func TestMountListDoesNotQueryMountsTheGlobCannotReach(t *testing.T) {
	m := New()
	cluster := newBackend(t)
	other := newBackend(t)
	m.Mount("cluster", cluster)
	m.Mount("other", &failingList{FileSystem: other, err: errors.New("should never be called")})

	upload(t, m, "cluster/a.txt", []byte("1"))

	got, err := m.List(context.Background(), "cluster/*.txt")
	if err != nil {
		t.Fatalf("List should not have reached the other mount: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("List = %v, want exactly 1 entry", got)
	}
}

func TestMountListDoubleStarReachesEveryMount(t *testing.T) {
	m := New()
	cluster := newBackend(t)
	scratch := newBackend(t)
	m.Mount("cluster", cluster)
	m.Mount("scratch", scratch)

	upload(t, m, "cluster/a.txt", []byte("1"))
	upload(t, m, "scratch/b.txt", []byte("2"))

	got, err := m.List(context.Background(), "**")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List(\"**\") = %v, want 2 entries across both mounts", got)
	}
	if _, ok := got["cluster/a.txt"]; !ok {
		t.Fatalf("missing cluster/a.txt in %v", got)
	}
	if _, ok := got["scratch/b.txt"]; !ok {
		t.Fatalf("missing scratch/b.txt in %v", got)
	}
}

type failingList struct {
	activefs.FileSystem
	err error
}

func (f *failingList) List(ctx context.Context, glob string) (map[string]activefs.Metadata, error) {
	return nil, f.err
}
