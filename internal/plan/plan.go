package plan

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/schaermu/hashsync/internal/index"
)

// TempPrefix starts the names used to park content while breaking rename
// cycles. Parked files live directly below the destination root.
const TempPrefix = ".hashsync-tmp-"

// step is a pending copy or move, with names relative to their tree roots.
type step struct {
	op   Op
	from string
	to   string
}

// role describes what the plan does with a file the destination holds.
type role int

const (
	// keep leaves the file in place.
	keep role = iota
	// drop deletes the file; the source has no use for it.
	drop
	// moving renames the file once its new name is free.
	moving
)

type slot struct {
	name string
	role role
	gone bool
}

// tree tracks which destination names hold a file while actions are
// planned, in a stable order.
type tree struct {
	order []*slot
	names map[string]*slot
}

func newTree() *tree {
	return &tree{names: make(map[string]*slot)}
}

func (t *tree) add(name string, r role) {
	s := &slot{name: name, role: r}
	t.order = append(t.order, s)
	t.names[name] = s
}

func (t *tree) remove(name string) {
	if s, ok := t.names[name]; ok {
		s.gone = true
		delete(t.names, name)
	}
}

func (t *tree) role(name string) (role, bool) {
	s, ok := t.names[name]
	if !ok {
		return keep, false
	}
	return s.role, true
}

// blocking returns the files standing in the way of writing name: a file
// of that name, a file where one of its parent directories has to be, or
// a file inside a directory of that name.
func (t *tree) blocking(name string) []*slot {
	var out []*slot
	for _, s := range t.order {
		if !s.gone && overlaps(s.name, name) {
			out = append(out, s)
		}
	}
	return out
}

// Plan returns the actions that make the destination described by dst hold
// exactly the content of src, under the source's names.
//
// Content missing from the destination is copied, content present under a
// different name is moved and content the source no longer has is deleted.
// Copies and moves follow the order of src, deletes the order of dst.
//
// When a name is reused the order is adjusted so no action overwrites
// content that is still needed: a file to be deleted is deleted right
// before the action that needs its place, an action whose place is still
// occupied by content waiting to be moved is deferred until that move
// happened, and rename cycles are broken by parking one file under a
// temporary name.
//
// Files dst shadowed because their content appears under another name are
// part of the destination too. One is kept when src holds the same content
// under the same name, otherwise it is deleted.
func Plan(src, dst *index.Index, srcRoot, dstRoot string) []Action {
	want := src.ByName()
	duplicates := make(map[index.Entry]bool)
	for _, e := range src.Shadowed() {
		duplicates[e] = true
	}

	present := make(map[index.Entry]bool)
	current := newTree()
	for _, e := range dst.Files() {
		present[e] = true
		r := drop
		if h, ok := want[e.Name]; (ok && h == e.Hash) || duplicates[e] {
			r = keep
		}
		current.add(e.Name, r)
	}

	var pending []*step
	for _, e := range src.Entries() {
		if present[e] {
			continue
		}
		from, ok := dst.Get(e.Hash)
		if r, _ := current.role(from); ok && r == drop {
			current.names[from].role = moving
			pending = append(pending, &step{op: OpMove, from: from, to: e.Name})
			continue
		}
		pending = append(pending, &step{op: OpCopy, from: e.Name, to: e.Name})
	}

	temps := newTempNamer(src, dst)
	actions := make([]Action, 0, len(pending)+len(current.order))

	for len(pending) > 0 {
		i := firstReady(pending, current)
		if i < 0 {
			// Every step waits on a move; park one blocking the head.
			blocker := movingBlocker(current, pending[0].to)
			s := moveFrom(pending, blocker)
			parked := temps.next(blocker)
			actions = append(actions, Move(join(dstRoot, blocker), join(dstRoot, parked)))
			current.remove(blocker)
			current.add(parked, moving)
			s.from = parked
			continue
		}

		s := pending[i]
		pending = append(pending[:i], pending[i+1:]...)

		for _, b := range current.blocking(s.to) {
			if b.role == drop {
				actions = append(actions, Delete(join(dstRoot, b.name)))
				current.remove(b.name)
			}
		}

		switch s.op {
		case OpCopy:
			actions = append(actions, Copy(join(srcRoot, s.from), join(dstRoot, s.to)))
		case OpMove:
			actions = append(actions, Move(join(dstRoot, s.from), join(dstRoot, s.to)))
			current.remove(s.from)
		}
		current.add(s.to, keep)
	}

	for _, s := range current.order {
		if !s.gone && s.role == drop {
			actions = append(actions, Delete(join(dstRoot, s.name)))
		}
	}

	return actions
}

// firstReady returns the first step whose target is not held up by a file
// that still has to move, or -1.
func firstReady(pending []*step, current *tree) int {
	for i, s := range pending {
		if movingBlocker(current, s.to) == "" {
			return i
		}
	}
	return -1
}

func movingBlocker(current *tree, name string) string {
	for _, b := range current.blocking(name) {
		if b.role == moving {
			return b.name
		}
	}
	return ""
}

// moveFrom returns the pending move whose source is name. Only called for
// moving files, which always belong to a pending move.
func moveFrom(pending []*step, name string) *step {
	for _, s := range pending {
		if s.op == OpMove && s.from == name {
			return s
		}
	}
	panic(fmt.Sprintf("plan: no pending move from %q", name))
}

// overlaps reports whether slash separated names a and b cannot both be
// files: they are equal or one is a directory prefix of the other.
func overlaps(a, b string) bool {
	return a == b || strings.HasPrefix(b, a+"/") || strings.HasPrefix(a, b+"/")
}

func join(root, name string) string {
	return filepath.Join(root, filepath.FromSlash(name))
}

// tempNamer hands out parking names that clash with nothing in either tree.
type tempNamer struct {
	taken map[string]bool
	n     int
}

func newTempNamer(src, dst *index.Index) *tempNamer {
	taken := make(map[string]bool)
	for _, idx := range []*index.Index{src, dst} {
		for _, e := range idx.Files() {
			for name := e.Name; name != "." && name != ""; name = path.Dir(name) {
				taken[name] = true
			}
		}
	}
	return &tempNamer{taken: taken}
}

func (t *tempNamer) next(name string) string {
	base := path.Base(name)
	for {
		t.n++
		candidate := fmt.Sprintf("%s%d-%s", TempPrefix, t.n, base)
		if !t.taken[candidate] {
			t.taken[candidate] = true
			return candidate
		}
	}
}
