package sync

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/schaermu/hashsync/internal/config"
	"github.com/schaermu/hashsync/internal/fsys"
	"github.com/schaermu/hashsync/internal/plan"
)

// Synchronize makes destRoot hold exactly the content of sourceRoot. Both
// trees are indexed through fs, the difference is planned and every action
// is applied in order. The first failure ends the run; actions applied
// before it stay applied and are visible in fs.Actions().
func Synchronize(sourceRoot, destRoot string, fs fsys.Filesystem) error {
	actions, err := buildPlan(sourceRoot, destRoot, fs)
	if err != nil {
		return err
	}

	for _, a := range actions {
		if err := fsys.Apply(fs, a); err != nil {
			return err
		}
	}
	return nil
}

// buildPlan indexes both trees and diffs them
func buildPlan(sourceRoot, destRoot string, fs fsys.Filesystem) ([]plan.Action, error) {
	src, err := fs.Read(sourceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read source tree: %w", err)
	}

	dst, err := fs.Read(destRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read destination tree: %w", err)
	}

	return plan.Plan(src, dst, sourceRoot, destRoot), nil
}

// Engine orchestrates a sync run with the configured policies
type Engine struct {
	cfg    *config.Config
	fs     fsys.Filesystem
	logger *slog.Logger
	dryRun bool
	newID  func() string
}

// NewEngine creates a new sync engine
func NewEngine(cfg *config.Config, fs fsys.Filesystem, logger *slog.Logger, dryRun bool) *Engine {
	return &Engine{
		cfg:    cfg,
		fs:     fs,
		logger: logger,
		dryRun: dryRun,
		newID:  uuid.NewString,
	}
}

// Plan computes the actions a run would apply, honoring sync.keep_orphans
func (e *Engine) Plan() ([]plan.Action, error) {
	actions, err := buildPlan(e.cfg.Paths.Source, e.cfg.Paths.Dest, e.fs)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync plan: %w", err)
	}

	if e.cfg.Sync.KeepOrphans {
		actions = plan.KeepOrphans(actions)
	}
	return actions, nil
}

// Run executes the complete sync process
func (e *Engine) Run() (*Report, error) {
	report := &Report{RunID: e.newID()}
	logger := e.logger.With("run_id", report.RunID)

	logger.Info("starting sync",
		"source", e.cfg.Paths.Source,
		"dest", e.cfg.Paths.Dest,
		"dry_run", e.dryRun)

	actions, err := e.Plan()
	if err != nil {
		return report, err
	}
	report.Planned = plan.Summary(actions)

	logger.Info("sync plan",
		"copy", report.Planned.Copy,
		"move", report.Planned.Move,
		"delete", report.Planned.Delete)

	// check for dry-run mode
	if e.dryRun {
		logPlanDetails(logger, actions)
		logger.Info("dry-run complete, no changes applied")
		return report, nil
	}

	if err := e.applyPlan(logger, actions, report); err != nil {
		return report, fmt.Errorf("failed to apply sync plan: %w", err)
	}

	logger.Info("sync completed successfully", "applied", len(report.Applied))
	return report, nil
}

// applyPlan executes the actions in order. Under the continue policy every
// action is attempted and the failures are returned together.
func (e *Engine) applyPlan(logger *slog.Logger, actions []plan.Action, report *Report) error {
	for _, a := range actions {
		err := fsys.Apply(e.fs, a)
		if err == nil {
			logger.Info(appliedMessage(a.Op), "source", a.Source, "target", a.Target)
			report.Applied = append(report.Applied, a)
			continue
		}

		var actionErr *fsys.ActionError
		if !errors.As(err, &actionErr) {
			actionErr = &fsys.ActionError{Action: a, Err: err}
		}
		report.Failed = append(report.Failed, actionErr)

		if e.cfg.Sync.OnError != config.OnErrorContinue {
			return actionErr
		}
		logger.Warn("action failed, continuing", "action", a.String(), "error", err)
	}

	return report.Err()
}

func appliedMessage(op plan.Op) string {
	switch op {
	case plan.OpCopy:
		return "copied file"
	case plan.OpMove:
		return "moved file"
	default:
		return "deleted file"
	}
}

// logPlanDetails logs detailed plan information for dry-run
func logPlanDetails(logger *slog.Logger, actions []plan.Action) {
	for _, a := range actions {
		switch a.Op {
		case plan.OpCopy:
			logger.Info("[dry-run] would copy", "source", a.Source, "target", a.Target)
		case plan.OpMove:
			logger.Info("[dry-run] would move", "source", a.Source, "target", a.Target)
		case plan.OpDelete:
			logger.Info("[dry-run] would delete", "target", a.Target)
		}
	}
}
