// Package fsys applies planned actions to a storage backend. Every backend
// records the actions it carried out in an append-only log.
package fsys

import (
	"errors"
	"fmt"
	"strings"

	"github.com/schaermu/hashsync/internal/index"
	"github.com/schaermu/hashsync/internal/plan"
)

// ErrTargetExists is returned when a copy or move would overwrite a file.
var ErrTargetExists = errors.New("target already exists")

// Filesystem is the capability set a sync run needs from a backend.
type Filesystem interface {
	// Read indexes the tree below root.
	Read(root string) (*index.Index, error)
	// Copy writes the content of src to dst. src is left in place.
	Copy(src, dst string) error
	// Move renames src to dst.
	Move(src, dst string) error
	// Delete removes path, which must exist.
	Delete(path string) error
	// Actions returns the actions carried out so far, oldest first.
	Actions() []plan.Action
}

// ActionError reports a single failed copy, move or delete.
type ActionError struct {
	Action plan.Action
	Err    error
}

func (e *ActionError) Error() string {
	verb := strings.ToLower(string(e.Action.Op))
	if e.Action.Op == plan.OpDelete {
		return fmt.Sprintf("failed to %s %s: %v", verb, e.Action.Target, e.Err)
	}
	return fmt.Sprintf("failed to %s %s to %s: %v", verb, e.Action.Source, e.Action.Target, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// ActionLog is an append-only record of applied actions.
type ActionLog struct {
	actions []plan.Action
}

// Record appends a.
func (l *ActionLog) Record(a plan.Action) {
	l.actions = append(l.actions, a)
}

// Actions returns a copy of the recorded actions.
func (l *ActionLog) Actions() []plan.Action {
	out := make([]plan.Action, len(l.actions))
	copy(out, l.actions)
	return out
}

// Len returns the number of recorded actions.
func (l *ActionLog) Len() int {
	return len(l.actions)
}

// Apply dispatches a to the matching Filesystem method.
func Apply(fs Filesystem, a plan.Action) error {
	switch a.Op {
	case plan.OpCopy:
		return fs.Copy(a.Source, a.Target)
	case plan.OpMove:
		return fs.Move(a.Source, a.Target)
	case plan.OpDelete:
		return fs.Delete(a.Target)
	default:
		return &ActionError{Action: a, Err: fmt.Errorf("unknown operation %q", a.Op)}
	}
}
