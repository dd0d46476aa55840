package index

import (
	// Register the digest algorithms go-digest exposes.
	_ "crypto/sha256"
	_ "crypto/sha512"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/opencontainers/go-digest"
)

// BlockSize is the read size used when hashing file content.
const BlockSize = 64 << 10

// ScanError reports a tree that could not be fully walked or a file that
// could not be hashed. A scan that fails returns no index at all.
type ScanError struct {
	Root string
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	if e.Path == "" || e.Path == e.Root {
		return fmt.Sprintf("failed to scan %s: %v", e.Root, e.Err)
	}
	return fmt.Sprintf("failed to scan %s: %s: %v", e.Root, e.Path, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// Options tune Build. The zero value hashes with SHA-256 and logs nothing.
type Options struct {
	Algorithm digest.Algorithm
	// Skip reports whether the file at the given root-relative name is
	// left out of the index.
	Skip   func(name string) bool
	Logger *slog.Logger
}

func (o Options) algorithm() digest.Algorithm {
	if o.Algorithm == "" {
		return digest.Canonical
	}
	return o.Algorithm
}

// Build walks root on fsys and returns an index of every regular file below
// it. Directories are descended; symlinks and special files are ignored.
// Files with identical content collapse to the last one visited.
func Build(fsys billy.Filesystem, root string, opts Options) (*Index, error) {
	alg := opts.algorithm()
	if !alg.Available() {
		return nil, &ScanError{Root: root, Err: fmt.Errorf("unsupported hash algorithm %q", alg)}
	}

	idx := New()
	err := util.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return &ScanError{Root: root, Path: path, Err: err}
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return &ScanError{Root: root, Path: path, Err: err}
		}
		name := filepath.ToSlash(rel)
		if opts.Skip != nil && opts.Skip(name) {
			return nil
		}

		hash, err := HashFile(fsys, path, alg)
		if err != nil {
			return &ScanError{Root: root, Path: path, Err: err}
		}

		if prev, replaced := idx.Set(hash, name); replaced && opts.Logger != nil {
			opts.Logger.Debug("duplicate content, keeping last name",
				"hash", hash, "kept", name, "dropped", prev)
		}
		return nil
	})
	if err != nil {
		// util.Walk returns the callback error unchanged.
		var scanErr *ScanError
		if errors.As(err, &scanErr) {
			return nil, scanErr
		}
		return nil, &ScanError{Root: root, Err: err}
	}

	return idx, nil
}

// HashFile computes the content hash of the file at path.
func HashFile(fsys billy.Filesystem, path string, alg digest.Algorithm) (ContentHash, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	return HashReader(f, alg)
}

// HashReader digests r in BlockSize chunks.
func HashReader(r io.Reader, alg digest.Algorithm) (ContentHash, error) {
	digester := alg.Digester()
	h := digester.Hash()

	buf := make([]byte, BlockSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = h.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
	}

	return digester.Digest(), nil
}
