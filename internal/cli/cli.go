// Package cli wires configuration, logging and the splitter into the
// schemasplit command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/erisprotocol/contracts-tokenfactory/internal/config"
	"github.com/erisprotocol/contracts-tokenfactory/internal/splitter"
	"github.com/erisprotocol/contracts-tokenfactory/internal/watch"
	"github.com/erisprotocol/contracts-tokenfactory/kit/colorlog"
	"github.com/erisprotocol/contracts-tokenfactory/kit/grace"
	"github.com/erisprotocol/contracts-tokenfactory/kit/lockfile"
	"github.com/spf13/cobra"
)

// LockFileName is created in the root for the duration of a run.
const LockFileName = ".schemasplit.lock"

type options struct {
	root     string
	config   string
	workers  int
	dryRun   bool
	logLevel string

	stderr io.Writer
}

// session is one configured invocation.
type session struct {
	root  string
	cfg   *config.Config
	log   *slog.Logger
	split *splitter.Splitter
	lock  *lockfile.Lock
}

// NewRootCmd builds the schemasplit command. With no arguments it splits
// every consolidated schema document under defaultRoot once.
func NewRootCmd(defaultRoot string, stdout, stderr io.Writer) *cobra.Command {
	opts := &options{stderr: stderr}

	root := &cobra.Command{
		Use:   "schemasplit",
		Short: "Split consolidated contract schemas into per-message files",
		Long: `Walks the contract tree, splits every consolidated schema document
(a JSON file with a contract_name field) into <contract>_<kind>.json files
next to it, and removes the consolidated document.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			_, err = s.batch(cmd.Context())
			return err
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.root, "root", defaultRoot, "directory tree to split")
	pf.StringVar(&opts.config, "config", "", "config file (default <root>/"+config.FileName+" if present)")
	pf.IntVar(&opts.workers, "workers", 1, "documents processed concurrently")
	pf.BoolVar(&opts.dryRun, "dry-run", false, "print output paths without writing or deleting")
	pf.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")

	root.AddCommand(newWatchCmd(opts))
	return root
}

func newWatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Split once, then keep splitting documents as they are written",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			if _, err := s.batch(cmd.Context()); err != nil {
				return err
			}

			w, err := watch.New(s.split, watch.Options{
				Root:       s.root,
				Exclusions: exclusions(s.cfg),
				Debounce:   s.cfg.Debounce,
				Logger:     s.log,
			})
			if err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			defer w.Close()

			return grace.Run(cmd.Context(), w.Run, grace.Options{Logger: s.log, ShutdownTimeout: 5 * time.Second})
		},
	}
}

// Execute runs the command line and returns the process exit code.
func Execute(defaultRoot string) int {
	cmd := NewRootCmd(defaultRoot, os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		colorlog.New("schemasplit").Error("Run failed", "error", err)
		return 1
	}
	return 0
}

func (o *options) open(cmd *cobra.Command) (*session, error) {
	root, err := filepath.Abs(o.root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	cfg, err := config.Load(root, o.config)
	if err != nil {
		return nil, err
	}
	if err := o.applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	log := colorlog.New("schemasplit", colorlog.Options{Output: o.stderr, Level: cfg.Level()})
	if cfg.Source != "" {
		log.Debug("Loaded config", "file", cfg.Source)
	}

	s := &session{
		root:  root,
		cfg:   cfg,
		log:   log,
		split: splitter.New(splitter.Options{
			Exclusions: exclusions(cfg),
			Workers:    cfg.Workers,
			DryRun:     cfg.DryRun,
			Progress:   cmd.OutOrStdout(),
			Logger:     log,
		}),
	}

	if !cfg.DryRun {
		s.lock = lockfile.New(filepath.Join(root, LockFileName))
		if err := s.lock.Acquire(); err != nil {
			if errors.Is(err, lockfile.ErrHeld) {
				return nil, fmt.Errorf("another schemasplit run is active in %s: %w", root, err)
			}
			return nil, err
		}
	}
	return s, nil
}

// applyFlags lets explicitly set flags win over file and environment values.
func (o *options) applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		if o.workers < 1 {
			return fmt.Errorf("--workers must be at least 1, got %d", o.workers)
		}
		cfg.Workers = o.workers
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = o.dryRun
	}
	if flags.Changed("log-level") {
		if _, err := colorlog.ParseLevel(o.logLevel); err != nil {
			return err
		}
		cfg.LogLevel = o.logLevel
	}
	return nil
}

func (s *session) batch(ctx context.Context) (splitter.Summary, error) {
	start := time.Now()
	sum, err := s.split.Run(ctx, s.root)
	if err != nil {
		return sum, err
	}
	s.log.Info("Split complete",
		"documents", sum.Split,
		"files", sum.Emitted,
		"skipped", sum.Skipped,
		"took", time.Since(start).Round(time.Millisecond),
	)
	return sum, nil
}

func (s *session) close() {
	if s.lock == nil {
		return
	}
	if err := s.lock.Release(); err != nil {
		s.log.Warn("Failed to release lock", "error", err)
	}
}

func exclusions(cfg *config.Config) splitter.Exclusions {
	excl := splitter.DefaultExclusions()
	excl.Substrings = append(excl.Substrings, cfg.Exclude...)
	excl.Globs = append(excl.Globs, cfg.ExcludeGlobs...)
	return excl
}
