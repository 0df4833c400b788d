package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"pbench/internal/config"
	"pbench/internal/discovery"
	"pbench/internal/indexing"
	"pbench/internal/logging"
	"pbench/internal/notifications"
	"pbench/internal/preflight"
	"pbench/internal/processor"
	"pbench/internal/report"
	"pbench/internal/tarball"
	"pbench/internal/templates"
	"pbench/internal/workflow"
	"pbench/internal/workitem"
)

// Dependencies are the backends a run talks to. The production wiring uses
// one store for Backend, Registry and Poster.
type Dependencies struct {
	Backend  indexing.Backend
	Registry templates.Registry
	Poster   report.Poster
	Notifier notifications.Service
}

// Options select the admission mode of a run.
type Options struct {
	ToolData bool
	ReIndex  bool
	Version  string
	// Now overrides the run start clock.
	Now func() time.Time
}

// Indexer runs one indexing pass.
type Indexer struct {
	cfg    *config.Config
	deps   Dependencies
	opts   Options
	mode   workflow.Mode
	logger *slog.Logger

	summary    *report.Summary
	trackingID int64
}

// New constructs an indexer for the mode selected by opts.
func New(cfg *config.Config, deps Dependencies, opts Options, logger *slog.Logger) (*Indexer, error) {
	if cfg == nil || deps.Backend == nil || deps.Registry == nil || deps.Poster == nil {
		return nil, errors.New("indexer requires config, backend, template registry, and status poster")
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Indexer{
		cfg:    cfg,
		deps:   deps,
		opts:   opts,
		mode:   workflow.ModeFor(opts.ToolData, opts.ReIndex, cfg.Indexing.ToolDataFollowup),
		logger: logging.NewComponentLogger(logger, "indexer"),
	}, nil
}

// Mode reports the admission mode of the run.
func (ix *Indexer) Mode() workflow.Mode { return ix.mode }

// Summary returns the end-of-run report of the last Run, if it got far
// enough to post a start record.
func (ix *Indexer) Summary() (report.Summary, bool) {
	if ix.summary == nil {
		return report.Summary{}, false
	}
	return *ix.summary, true
}

// TrackingID returns the status tracking id of the last Run, or zero.
func (ix *Indexer) TrackingID() int64 { return ix.trackingID }

// LockPath is the per-mode run lock file.
func (ix *Indexer) LockPath() string {
	return filepath.Join(ix.cfg.Paths.Tmp, ix.mode.Name+".lock")
}

// Run executes the run. A nil error means exit status zero, including runs
// that skipped tarballs; see ExitCode for the rest.
func (ix *Indexer) Run(ctx context.Context) (err error) {
	ix.summary = nil
	ix.trackingID = 0
	identity := report.NewIdentity(ix.mode.Name, ix.opts.Now(), ix.opts.Version)
	ctx = logging.WithRun(ctx, identity.Name, identity.TS)
	logger := logging.WithContext(ctx, ix.logger)

	roots, err := preflight.Resolve(ix.cfg)
	if err != nil {
		return err
	}
	set, err := templates.Load(ix.cfg.Indexing.Prefix)
	if err != nil {
		return err
	}

	lock := flock.New(ix.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		logger.Info("another run of this mode is in progress",
			logging.String(logging.FieldEventType, "run_locked"),
			logging.String("lock", ix.LockPath()),
		)
		return nil
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			logger.Warn("failed to release run lock", logging.Error(unlockErr))
		}
	}()

	gate := discovery.NewGate(roots.Archive, roots.Quarantine, ix.logger)
	candidates, err := discovery.Discover(ctx, roots.Archive, ix.mode.Source, gate)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	if len(candidates) == 0 {
		logger.Info("no tarballs to index",
			logging.String(logging.FieldEventType, "run_empty"),
			logging.String("source_state", string(ix.mode.Source)),
		)
		return nil
	}
	var total int64
	for _, c := range candidates {
		total += c.Size
	}
	logger.Info("tarballs discovered",
		logging.String(logging.FieldEventType, "run_discovered"),
		logging.Int("count", len(candidates)),
		logging.Size("total_size", total),
	)

	changed, err := set.Update(ctx, ix.deps.Registry)
	if err != nil {
		return err
	}
	logger.Debug("index templates reconciled", logging.Int("changed", changed))

	runDir, err := os.MkdirTemp(ix.cfg.Paths.Tmp, identity.Name+".")
	if err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(runDir); rmErr != nil {
			logger.Warn("failed to remove run directory",
				logging.String("path", runDir),
				logging.Error(rmErr),
			)
		}
	}()

	reporter := report.New(ix.deps.Poster, ix.deps.Notifier, identity, runDir, ix.logger)
	trackingID, err := reporter.Start(ctx)
	if err != nil {
		return fmt.Errorf("post run start: %w", err)
	}
	ix.trackingID = trackingID
	ctx = logging.WithTrackingID(ctx, trackingID)
	logger = logging.WithContext(ctx, ix.logger)

	defer func() {
		finishCtx := context.WithoutCancel(ctx)
		summary := reporter.Finish(finishCtx)
		ix.summary = &summary
		if err != nil {
			if notifyErr := ix.deps.Notifier.NotifyRunAborted(finishCtx, identity.Name, err); notifyErr != nil {
				logger.Debug("abort notification failed", logging.Error(notifyErr))
			}
		}
	}()

	listPath := filepath.Join(runDir, identity.Label()+".list")
	if err := writeList(listPath, candidates); err != nil {
		return fmt.Errorf("%w: write processing list: %w", ErrDefect, err)
	}

	proc := processor.New(
		tarball.Extractor{Prefix: ix.cfg.Indexing.Prefix},
		indexing.Submitter{
			Backend: ix.deps.Backend,
			Options: indexing.Options{
				BatchSize:  ix.cfg.Indexing.BatchSize,
				Workers:    ix.cfg.Indexing.Workers,
				MaxRetries: ix.cfg.Indexing.MaxRetries,
			},
		},
		processor.Options{
			WorkDir:    runDir,
			ErrorsPath: filepath.Join(runDir, identity.Label()+".indexing-errors.json"),
			ToolData:   ix.mode.ToolData,
		},
		ix.logger,
	)

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := ix.processOne(ctx, proc, reporter, candidate); err != nil {
			logging.ErrorWithContext(logger, "run aborted", "run_aborted",
				logging.String(logging.FieldTarball, candidate.Link),
				logging.String(logging.FieldErrorHint, "inspect the tarball link and the workflow state directories"),
				logging.Error(err),
			)
			return err
		}
	}
	return nil
}

// processOne runs a candidate through processing, its state transition and
// the ledger. Any error returned is fatal to the run.
func (ix *Indexer) processOne(ctx context.Context, proc *processor.Processor, reporter *report.Reporter, candidate workitem.Candidate) error {
	outcome := proc.Process(ctx, candidate)
	if err := ctx.Err(); err != nil {
		// An interrupted tarball stays in its source state for the next run.
		return err
	}
	item := workitem.Item{Candidate: candidate, Outcome: outcome}

	dest, err := workflow.Destination(ix.mode, workflow.State(candidate.State), outcome.Kind)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDefect, err)
	}
	moved, err := workflow.MoveToState(candidate.Link, candidate.ControllerDir(), dest)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDefect, err)
	}
	if err := reporter.Record(item); err != nil {
		return fmt.Errorf("%w: %w", ErrDefect, err)
	}
	reporter.PostErrors(ctx, item)

	logging.WithContext(logging.WithTarball(ctx, candidate.Controller, candidate.Link), ix.logger).Info("tarball transitioned",
		logging.String(logging.FieldEventType, "tarball_transition"),
		logging.String(logging.FieldOutcome, outcome.Kind.String()),
		logging.String("state", string(dest)),
		logging.String("path", moved),
	)
	return nil
}

func writeList(path string, candidates []workitem.Candidate) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		if _, err := fmt.Fprintf(f, "%20d %s %s\n", c.Size, c.Controller, c.Link); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}
