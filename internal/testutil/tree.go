// Package testutil holds helpers shared by tests across packages.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// WriteTree creates root on fs and writes files below it. Keys are slash
// separated names relative to root, values the file content.
func WriteTree(t testing.TB, fs billy.Filesystem, root string, files map[string]string) {
	t.Helper()
	if err := fs.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", root, err)
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := util.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
}

// ReadTree returns every regular file below root as name -> content, in the
// same shape WriteTree accepts.
func ReadTree(t testing.TB, fs billy.Filesystem, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := util.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		data, err := util.ReadFile(fs, path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("failed to read tree %s: %v", root, err)
	}
	return files
}
