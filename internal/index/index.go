// Package index builds content indexes of directory trees. An Index maps the
// digest of each file's content to the file's name relative to the tree root.
package index

import (
	"github.com/opencontainers/go-digest"
)

// ContentHash identifies file content. Two files with equal hashes are treated
// as identical; collisions are not defended against.
type ContentHash = digest.Digest

// Entry is a single hash -> name pair of an Index.
type Entry struct {
	Hash ContentHash
	Name string
}

// Index is an insertion-ordered mapping from content hash to a single
// filename. Filenames are slash separated and relative to the tree root.
//
// Each hash maps to exactly one name. Setting a hash that is already present
// replaces the name but keeps the original position, so the last file seen
// with a given content wins while iteration order stays stable. The names
// that lost are kept aside and reported by Shadowed, since those files still
// exist in the tree.
type Index struct {
	order    []ContentHash
	names    map[ContentHash]string
	shadowed []Entry
}

// New returns an empty index.
func New() *Index {
	return &Index{names: make(map[ContentHash]string)}
}

// FromEntries builds an index from entries, applied in order.
func FromEntries(entries ...Entry) *Index {
	idx := New()
	for _, e := range entries {
		idx.Set(e.Hash, e.Name)
	}
	return idx
}

// Set records name for hash. If hash was already present, the previous name
// is returned with replaced set to true and, when it differs from name, is
// recorded as shadowed.
func (i *Index) Set(hash ContentHash, name string) (previous string, replaced bool) {
	previous, replaced = i.names[hash]
	switch {
	case !replaced:
		i.order = append(i.order, hash)
	case previous != name:
		i.shadowed = append(i.shadowed, Entry{Hash: hash, Name: previous})
	}
	i.names[hash] = name
	return previous, replaced
}

// Get returns the name recorded for hash.
func (i *Index) Get(hash ContentHash) (string, bool) {
	name, ok := i.names[hash]
	return name, ok
}

// Has reports whether hash is present.
func (i *Index) Has(hash ContentHash) bool {
	_, ok := i.names[hash]
	return ok
}

// Len returns the number of distinct hashes.
func (i *Index) Len() int {
	return len(i.order)
}

// Entries returns the index contents in iteration order.
func (i *Index) Entries() []Entry {
	entries := make([]Entry, 0, len(i.order))
	for _, h := range i.order {
		entries = append(entries, Entry{Hash: h, Name: i.names[h]})
	}
	return entries
}

// Shadowed returns the entries displaced by a later name with the same
// content, in the order they were displaced.
func (i *Index) Shadowed() []Entry {
	out := make([]Entry, len(i.shadowed))
	copy(out, i.shadowed)
	return out
}

// Files returns every known file: the indexed entries followed by the
// shadowed ones.
func (i *Index) Files() []Entry {
	return append(i.Entries(), i.shadowed...)
}

// ByName returns the reverse mapping, name -> hash.
func (i *Index) ByName() map[string]ContentHash {
	byName := make(map[string]ContentHash, len(i.names))
	for h, name := range i.names {
		byName[name] = h
	}
	return byName
}
