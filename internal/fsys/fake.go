package fsys

import (
	"fmt"
	"os"

	"github.com/schaermu/hashsync/internal/index"
	"github.com/schaermu/hashsync/internal/plan"
)

// Fake is a Filesystem seeded with a fixed index per root. Its effects only
// record to the action log, which makes it suitable for deterministic tests
// of the planning and orchestration layers.
type Fake struct {
	trees    map[string]*index.Index
	failures map[plan.Action]error
	log      ActionLog
}

// NewFake returns a fake whose Read(root) yields trees[root].
func NewFake(trees map[string]*index.Index) *Fake {
	return &Fake{
		trees:    trees,
		failures: make(map[plan.Action]error),
	}
}

// FailOn makes the fake return err, wrapped in an ActionError, when a is
// applied. Failed actions are not recorded.
func (f *Fake) FailOn(a plan.Action, err error) {
	f.failures[a] = err
}

// Read implements Filesystem.Read.
func (f *Fake) Read(root string) (*index.Index, error) {
	tree, ok := f.trees[root]
	if !ok {
		return nil, &index.ScanError{Root: root, Err: fmt.Errorf("no fixture tree: %w", os.ErrNotExist)}
	}
	return tree, nil
}

// Copy implements Filesystem.Copy.
func (f *Fake) Copy(src, dst string) error {
	return f.record(plan.Copy(src, dst))
}

// Move implements Filesystem.Move.
func (f *Fake) Move(src, dst string) error {
	return f.record(plan.Move(src, dst))
}

// Delete implements Filesystem.Delete.
func (f *Fake) Delete(path string) error {
	return f.record(plan.Delete(path))
}

// Actions implements Filesystem.Actions.
func (f *Fake) Actions() []plan.Action {
	return f.log.Actions()
}

func (f *Fake) record(a plan.Action) error {
	if err, ok := f.failures[a]; ok {
		return &ActionError{Action: a, Err: err}
	}
	f.log.Record(a)
	return nil
}
