package sync

import (
	"errors"

	"github.com/schaermu/hashsync/internal/fsys"
	"github.com/schaermu/hashsync/internal/plan"
)

// Report summarizes a single engine run
type Report struct {
	RunID   string
	Planned plan.Counts
	Applied []plan.Action
	Failed  []*fsys.ActionError
}

// Err joins every recorded failure, or returns nil.
func (r *Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}
