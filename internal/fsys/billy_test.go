package fsys

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/hashsync/internal/plan"
)

func write(t *testing.T, fs billy.Filesystem, path, content string) {
	t.Helper()
	require.NoError(t, util.WriteFile(fs, path, []byte(content), 0o644))
}

func read(t *testing.T, fs billy.Filesystem, path string) string {
	t.Helper()
	data, err := util.ReadFile(fs, path)
	require.NoError(t, err)
	return string(data)
}

func exists(t *testing.T, fs billy.Filesystem, path string) bool {
	t.Helper()
	_, err := fs.Lstat(path)
	if os.IsNotExist(err) {
		return false
	}
	require.NoError(t, err)
	return true
}

func testCopy(t *testing.T, b *Billy, root string) {
	t.Helper()
	src := filepath.Join(root, "src", "fn1")
	dst := filepath.Join(root, "dst", "nested", "fn1")
	write(t, b.Raw(), src, "I am a very useful file")

	require.NoError(t, b.Copy(src, dst))

	assert.Equal(t, "I am a very useful file", read(t, b.Raw(), dst))
	assert.True(t, exists(t, b.Raw(), src), "copy must keep the source")
	assert.Equal(t, []plan.Action{plan.Copy(src, dst)}, b.Actions())

	entries, err := b.Raw().ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files may remain")
}

func testCopyRefusesOverwrite(t *testing.T, b *Billy, root string) {
	t.Helper()
	src := filepath.Join(root, "src", "a")
	dst := filepath.Join(root, "dst", "a")
	write(t, b.Raw(), src, "new")
	write(t, b.Raw(), dst, "old")

	err := b.Copy(src, dst)

	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.ErrorIs(t, err, ErrTargetExists)
	assert.Equal(t, plan.Copy(src, dst), actionErr.Action)
	assert.Equal(t, "old", read(t, b.Raw(), dst))
	assert.Empty(t, b.Actions())
}

func testCopyMissingSource(t *testing.T, b *Billy, root string) {
	t.Helper()
	err := b.Copy(filepath.Join(root, "nope"), filepath.Join(root, "dst", "nope"))

	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Empty(t, b.Actions())
}

func testMove(t *testing.T, b *Billy, root string) {
	t.Helper()
	src := filepath.Join(root, "dst", "fn2")
	dst := filepath.Join(root, "dst", "sub", "fn1")
	write(t, b.Raw(), src, "content")

	require.NoError(t, b.Move(src, dst))

	assert.False(t, exists(t, b.Raw(), src))
	assert.Equal(t, "content", read(t, b.Raw(), dst))
	assert.Equal(t, []plan.Action{plan.Move(src, dst)}, b.Actions())
}

func testMoveRefusesOverwrite(t *testing.T, b *Billy, root string) {
	t.Helper()
	src := filepath.Join(root, "dst", "x")
	dst := filepath.Join(root, "dst", "y")
	write(t, b.Raw(), src, "x")
	write(t, b.Raw(), dst, "y")

	err := b.Move(src, dst)

	assert.ErrorIs(t, err, ErrTargetExists)
	assert.Equal(t, "x", read(t, b.Raw(), src))
	assert.Equal(t, "y", read(t, b.Raw(), dst))
}

func testCopyReplacesEmptyDirectory(t *testing.T, b *Billy, root string) {
	t.Helper()
	src := filepath.Join(root, "src", "d")
	dst := filepath.Join(root, "dst", "d")
	write(t, b.Raw(), src, "now a file")
	require.NoError(t, b.Raw().MkdirAll(filepath.Join(dst, "e", "f"), 0o755))

	require.NoError(t, b.Copy(src, dst))

	assert.Equal(t, "now a file", read(t, b.Raw(), dst))
	assert.Equal(t, []plan.Action{plan.Copy(src, dst)}, b.Actions())
}

func testMoveRefusesDirectoryWithFiles(t *testing.T, b *Billy, root string) {
	t.Helper()
	src := filepath.Join(root, "dst", "x")
	dst := filepath.Join(root, "dst", "d")
	write(t, b.Raw(), src, "x")
	write(t, b.Raw(), filepath.Join(dst, "e", "kept"), "kept")

	err := b.Move(src, dst)

	assert.ErrorIs(t, err, ErrTargetExists)
	assert.Equal(t, "kept", read(t, b.Raw(), filepath.Join(dst, "e", "kept")))
	assert.Equal(t, "x", read(t, b.Raw(), src))
	assert.Empty(t, b.Actions())
}

func testDelete(t *testing.T, b *Billy, root string) {
	t.Helper()
	path := filepath.Join(root, "dst", "gone")
	write(t, b.Raw(), path, "bye")

	require.NoError(t, b.Delete(path))
	assert.False(t, exists(t, b.Raw(), path))

	err := b.Delete(path)
	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, []plan.Action{plan.Delete(path)}, b.Actions())
}

func testRead(t *testing.T, b *Billy, root string) {
	t.Helper()
	write(t, b.Raw(), filepath.Join(root, "tree", "a"), "alpha")
	write(t, b.Raw(), filepath.Join(root, "tree", "d", "b"), "beta")

	idx, err := b.Read(filepath.Join(root, "tree"))
	require.NoError(t, err)

	name, ok := idx.Get(digest.FromString("beta"))
	require.True(t, ok)
	assert.Equal(t, "d/b", name)
	assert.Equal(t, 2, idx.Len())
}

// runSuite runs every behaviour check against fresh filesystems.
func runSuite(t *testing.T, newFS func(t *testing.T) (*Billy, string)) {
	t.Helper()
	for name, check := range map[string]func(*testing.T, *Billy, string){
		"Copy":                 testCopy,
		"CopyRefusesOverwrite": testCopyRefusesOverwrite,
		"CopyMissingSource":    testCopyMissingSource,
		"Move":                 testMove,
		"MoveRefusesOverwrite": testMoveRefusesOverwrite,
		"CopyReplacesEmptyDir": testCopyReplacesEmptyDirectory,
		"MoveRefusesFullDir":   testMoveRefusesDirectoryWithFiles,
		"Delete":               testDelete,
		"Read":                 testRead,
	} {
		t.Run(name, func(t *testing.T) {
			b, root := newFS(t)
			check(t, b, root)
		})
	}
}

func TestMemory_Suite(t *testing.T) {
	runSuite(t, func(*testing.T) (*Billy, string) {
		return NewMemory(), "/"
	})
}

func TestOS_Suite(t *testing.T) {
	runSuite(t, func(t *testing.T) (*Billy, string) {
		return NewOS(), t.TempDir()
	})
}

// crossDevice fails every rename that does not involve a temporary copy
// file, as a rename between two mounts would.
type crossDevice struct {
	billy.Filesystem
}

func (c crossDevice) Rename(from, to string) error {
	if filepath.Dir(from) != filepath.Dir(to) {
		return &os.LinkError{Op: "rename", Old: from, New: to, Err: syscall.EXDEV}
	}
	return c.Filesystem.Rename(from, to)
}

func TestMove_FallsBackToCopyAcrossDevices(t *testing.T) {
	b := NewBilly(crossDevice{memfs.New()})
	write(t, b.Raw(), "/mnt/a/file", "payload")

	require.NoError(t, b.Move("/mnt/a/file", "/mnt/b/file"))

	assert.False(t, exists(t, b.Raw(), "/mnt/a/file"))
	assert.Equal(t, "payload", read(t, b.Raw(), "/mnt/b/file"))
	assert.Equal(t, []plan.Action{plan.Move("/mnt/a/file", "/mnt/b/file")}, b.Actions())
}

func TestWithAlgorithm(t *testing.T) {
	b := NewMemory(WithAlgorithm(digest.SHA512), WithSkip(func(name string) bool { return name == "skip" }))
	write(t, b.Raw(), "/t/keep", "k")
	write(t, b.Raw(), "/t/skip", "s")

	idx, err := b.Read("/t")
	require.NoError(t, err)
	assert.True(t, idx.Has(digest.SHA512.FromString("k")))
	assert.Equal(t, 1, idx.Len())
}
