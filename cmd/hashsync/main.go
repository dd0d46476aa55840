package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schaermu/hashsync/internal/config"
	"github.com/schaermu/hashsync/internal/fsys"
	"github.com/schaermu/hashsync/internal/index"
	"github.com/schaermu/hashsync/internal/lock"
	"github.com/schaermu/hashsync/internal/plan"
	"github.com/schaermu/hashsync/internal/sync"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	dryRun    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hashsync",
	Short: "Reconcile a destination directory with a source directory by content",
	Long: `hashsync makes a destination directory tree hold exactly the files of a
source tree. Files are matched by the hash of their content, so a file that
was renamed in the source is renamed in the destination instead of being
copied again.`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync [source dest]",
	Short: "Reconcile the destination with the source",
	Long: `Sync indexes both trees, plans the copies, moves and deletes that make the
destination match the source, and applies them in order.

Source and destination are taken from the arguments or, when omitted, from
paths.source and paths.dest of the configuration file.

Unless lock.disabled is set, the run holds an exclusive lock on
<dest>/.hashsync.lock. That name is reserved in both trees: a source file
called .hashsync.lock at the top of the source is not synced. File locking
needs a unix system; elsewhere set lock.disabled.`,
	Args: pathArgs,
	RunE: runSync,
}

var planCmd = &cobra.Command{
	Use:   "plan [source dest]",
	Short: "Print the actions a sync would apply",
	Args:  pathArgs,
	RunE:  runPlan,
}

var indexCmd = &cobra.Command{
	Use:   "index <root>",
	Short: "Print the content hash of every file below root",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndex,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hashsync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/hashsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Sync command flags
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")

	// Add commands
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(versionCmd)
}

// pathArgs accepts either no paths or both of them.
func pathArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 0 && len(args) != 2 {
		return fmt.Errorf("expected <source> <dest> or no arguments, got %d argument(s)", len(args))
	}
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := resolveConfig(logger, args)
	if err != nil {
		return err
	}

	warnReservedName(logger, cfg)

	if !dryRun {
		// Ensure destination directory exists
		if err := os.MkdirAll(cfg.Paths.Dest, 0o755); err != nil {
			return fmt.Errorf("failed to create destination directory: %w", err)
		}
	}

	if !cfg.Lock.Disabled && !dryRun {
		l, err := lock.Acquire(ctx, cfg.Paths.Dest, cfg.Lock.Timeout)
		if err != nil {
			return fmt.Errorf("failed to lock destination: %w", err)
		}
		defer func() {
			if err := l.Release(); err != nil {
				logger.Warn("failed to release destination lock", "error", err)
			}
		}()
	}

	engine := sync.NewEngine(cfg, newFilesystem(cfg, logger), logger, dryRun)

	logger.Info("starting sync operation")
	report, err := engine.Run()
	if err != nil {
		logger.Error("sync failed",
			"error", err,
			"run_id", report.RunID,
			"applied", len(report.Applied),
			"failed", len(report.Failed))
		return err
	}

	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := resolveConfig(logger, args)
	if err != nil {
		return err
	}

	warnReservedName(logger, cfg)

	actions, err := sync.NewEngine(cfg, newFilesystem(cfg, logger), logger, true).Plan()
	if err != nil {
		return err
	}

	return renderPlan(cmd.OutOrStdout(), actions)
}

func runIndex(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	root, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve root: %w", err)
	}

	idx, err := newFilesystem(cfg, logger).Read(root)
	if err != nil {
		return err
	}

	return renderIndex(cmd.OutOrStdout(), idx)
}

// renderPlan writes one action per line followed by a summary line.
func renderPlan(w io.Writer, actions []plan.Action) error {
	for _, a := range actions {
		if _, err := fmt.Fprintln(w, a.String()); err != nil {
			return err
		}
	}
	c := plan.Summary(actions)
	_, err := fmt.Fprintf(w, "%d to copy, %d to move, %d to delete\n", c.Copy, c.Move, c.Delete)
	return err
}

// renderIndex writes "<hash>  <name>" lines in index order.
func renderIndex(w io.Writer, idx *index.Index) error {
	for _, e := range idx.Entries() {
		if _, err := fmt.Fprintf(w, "%s  %s\n", e.Hash, e.Name); err != nil {
			return err
		}
	}
	return nil
}

func newFilesystem(cfg *config.Config, logger *slog.Logger) *fsys.Billy {
	return fsys.NewOS(
		fsys.WithAlgorithm(cfg.Sync.Hash),
		fsys.WithSkip(lock.IsLockFile),
		fsys.WithLogger(logger),
	)
}

// warnReservedName reports a source file that is left out because it has
// the lock file's name.
func warnReservedName(logger *slog.Logger, cfg *config.Config) {
	path := filepath.Join(cfg.Paths.Source, lock.FileName)
	if _, err := os.Lstat(path); err == nil {
		logger.Warn("source file uses the reserved lock file name and is not synced", "path", path)
	}
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format. Logs go to stderr so plan and index
	// output stays machine readable.
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// resolveConfig loads the configuration and applies path arguments.
func resolveConfig(logger *slog.Logger, args []string) (*config.Config, error) {
	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if len(args) == 2 {
		if err := cfg.SetPaths(args[0], args[1]); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadConfig reads --config, or the default config file when it exists.
// Without either the built-in defaults apply.
func loadConfig(logger *slog.Logger) (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			logger.Debug("no home directory, using default configuration", "error", err)
			return config.Default(), nil
		}
		configPath = filepath.Join(home, ".config", "hashsync", "config.yaml")
		if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
			logger.Debug("no config file, using default configuration", "path", configPath)
			return config.Default(), nil
		}
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"source", cfg.Paths.Source,
		"dest", cfg.Paths.Dest,
		"hash", cfg.Sync.Hash,
		"on_error", cfg.Sync.OnError)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
