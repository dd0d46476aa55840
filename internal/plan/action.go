// Package plan decides which file operations reconcile a destination tree
// with a source tree. It only compares content indexes and never touches a
// filesystem.
package plan

import (
	"fmt"
	"path/filepath"
)

// Op names the kind of file operation an Action performs.
type Op string

const (
	OpCopy   Op = "COPY"
	OpMove   Op = "MOVE"
	OpDelete Op = "DELETE"
)

// Action is a single file operation.
//
// For OpCopy, Source lives in the source tree and Target in the destination
// tree. For OpMove both paths live in the destination tree. OpDelete only
// uses Target.
type Action struct {
	Op     Op
	Source string
	Target string
}

// Copy returns an action introducing src's content at dst.
func Copy(src, dst string) Action {
	return Action{Op: OpCopy, Source: src, Target: dst}
}

// Move returns an action renaming src to dst within the destination tree.
func Move(src, dst string) Action {
	return Action{Op: OpMove, Source: src, Target: dst}
}

// Delete returns an action removing path.
func Delete(path string) Action {
	return Action{Op: OpDelete, Target: path}
}

func (a Action) String() string {
	if a.Op == OpDelete {
		return fmt.Sprintf("%s %s", a.Op, a.Target)
	}
	return fmt.Sprintf("%s %s -> %s", a.Op, a.Source, a.Target)
}

// Counts tallies actions by operation.
type Counts struct {
	Copy   int
	Move   int
	Delete int
}

// Total returns the number of counted actions.
func (c Counts) Total() int {
	return c.Copy + c.Move + c.Delete
}

// Summary counts the actions of a plan.
func Summary(actions []Action) Counts {
	var c Counts
	for _, a := range actions {
		switch a.Op {
		case OpCopy:
			c.Copy++
		case OpMove:
			c.Move++
		case OpDelete:
			c.Delete++
		}
	}
	return c
}

// KeepOrphans drops the deletes of destination content that has no
// counterpart in the source. Deletes that clear the way for a copy or move,
// because they free its name or a path that has to become a directory, are
// kept.
func KeepOrphans(actions []Action) []Action {
	var targets []string
	for _, a := range actions {
		if a.Op != OpDelete {
			targets = append(targets, filepath.ToSlash(a.Target))
		}
	}

	clears := func(p string) bool {
		p = filepath.ToSlash(p)
		for _, t := range targets {
			if overlaps(p, t) {
				return true
			}
		}
		return false
	}

	kept := make([]Action, 0, len(actions))
	for _, a := range actions {
		if a.Op == OpDelete && !clears(a.Target) {
			continue
		}
		kept = append(kept, a)
	}
	return kept
}
