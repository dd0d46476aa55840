package fsys

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/opencontainers/go-digest"

	"github.com/schaermu/hashsync/internal/index"
	"github.com/schaermu/hashsync/internal/plan"
)

const tempPrefix = ".hashsync-copy-"

// Billy is a Filesystem on top of a go-billy filesystem. Backed by osfs it
// works on real directories, backed by memfs it keeps everything in memory.
type Billy struct {
	fs     billy.Filesystem
	scan   index.Options
	logger *slog.Logger
	log    ActionLog
}

// Option configures a Billy filesystem.
type Option func(*Billy)

// WithAlgorithm sets the content hash algorithm used by Read.
func WithAlgorithm(alg digest.Algorithm) Option {
	return func(b *Billy) {
		b.scan.Algorithm = alg
	}
}

// WithSkip excludes matching root-relative names from Read.
func WithSkip(skip func(name string) bool) Option {
	return func(b *Billy) {
		b.scan.Skip = skip
	}
}

// WithLogger sets the logger for per-action debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Billy) {
		b.logger = logger
		b.scan.Logger = logger
	}
}

// NewBilly wraps fs.
func NewBilly(fs billy.Filesystem, opts ...Option) *Billy {
	b := &Billy{
		fs:     fs,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewOS returns a Billy filesystem over the host filesystem. Paths are
// interpreted as on the host.
func NewOS(opts ...Option) *Billy {
	return NewBilly(osfs.New("/"), opts...)
}

// NewMemory returns an empty in-memory Billy filesystem.
func NewMemory(opts ...Option) *Billy {
	return NewBilly(memfs.New(), opts...)
}

// Raw returns the underlying go-billy filesystem.
//
//nolint:ireturn // exposes the adapter target.
func (b *Billy) Raw() billy.Filesystem {
	return b.fs
}

// Read implements Filesystem.Read.
func (b *Billy) Read(root string) (*index.Index, error) {
	return index.Build(b.fs, root, b.scan)
}

// Copy implements Filesystem.Copy. The content is written to a temporary
// file next to dst and renamed into place. An existing file at dst is never
// replaced.
func (b *Billy) Copy(src, dst string) error {
	a := plan.Copy(src, dst)
	if err := b.clearTarget(dst); err != nil {
		return &ActionError{Action: a, Err: err}
	}
	if err := b.copyFile(src, dst); err != nil {
		return &ActionError{Action: a, Err: err}
	}

	b.logger.Debug("copied file", "source", src, "target", dst)
	b.log.Record(a)
	return nil
}

// Move implements Filesystem.Move. It renames in place and falls back to
// copy-then-delete when src and dst are on different devices.
func (b *Billy) Move(src, dst string) error {
	a := plan.Move(src, dst)
	if err := b.clearTarget(dst); err != nil {
		return &ActionError{Action: a, Err: err}
	}
	if err := b.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &ActionError{Action: a, Err: err}
	}

	err := b.fs.Rename(src, dst)
	if errors.Is(err, syscall.EXDEV) {
		b.logger.Debug("rename crosses devices, copying instead", "source", src, "target", dst)
		err = b.copyFile(src, dst)
		if err == nil {
			err = b.fs.Remove(src)
		}
	}
	if err != nil {
		return &ActionError{Action: a, Err: err}
	}

	b.logger.Debug("moved file", "source", src, "target", dst)
	b.log.Record(a)
	return nil
}

// Delete implements Filesystem.Delete.
func (b *Billy) Delete(path string) error {
	a := plan.Delete(path)
	if _, err := b.fs.Lstat(path); err != nil {
		return &ActionError{Action: a, Err: err}
	}
	if err := b.fs.Remove(path); err != nil {
		return &ActionError{Action: a, Err: err}
	}

	b.logger.Debug("deleted file", "path", path)
	b.log.Record(a)
	return nil
}

// Actions implements Filesystem.Actions.
func (b *Billy) Actions() []plan.Action {
	return b.log.Actions()
}

// clearTarget makes sure nothing is at path. A directory left without
// files, for example by earlier moves out of it, is removed; any file is
// refused with ErrTargetExists.
func (b *Billy) clearTarget(path string) error {
	info, err := b.fs.Lstat(path)
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return err
	case !info.IsDir():
		return fmt.Errorf("%s: %w", path, ErrTargetExists)
	}

	err = util.Walk(b.fs, path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s: %w", path, ErrTargetExists)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := util.RemoveAll(b.fs, path); err != nil {
		return err
	}
	b.logger.Debug("removed empty directory", "path", path)
	return nil
}

// copyFile copies src to dst with an atomic write.
func (b *Billy) copyFile(src, dst string) error {
	dir := filepath.Dir(dst)
	if err := b.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	srcFile, err := b.fs.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	srcInfo, err := b.fs.Stat(src)
	if err != nil {
		return err
	}

	tmpFile, err := b.fs.TempFile(dir, tempPrefix)
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = b.fs.Remove(tmpPath)
	}() // cleanup on error

	if _, err := io.Copy(tmpFile, srcFile); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	if ch, ok := b.fs.(billy.Change); ok {
		if err := ch.Chmod(tmpPath, srcInfo.Mode().Perm()); err != nil {
			return err
		}
	}

	return b.fs.Rename(tmpPath, dst)
}
