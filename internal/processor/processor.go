package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"pbench/internal/fileutil"
	"pbench/internal/indexing"
	"pbench/internal/logging"
	"pbench/internal/workitem"
)

// Extractor opens a tarball and returns its lazy action sequence.
type Extractor interface {
	Extract(ctx context.Context, target, controller, extractRoot string, toolData bool) (iter.Seq2[indexing.Action, error], error)
}

// Submitter indexes an action sequence, writing document failures to sink.
type Submitter interface {
	Submit(ctx context.Context, actions iter.Seq2[indexing.Action, error], sink io.Writer) (indexing.Result, error)
}

// Options configures a Processor.
type Options struct {
	// WorkDir holds the per-tarball extraction root; it is emptied after each tarball.
	WorkDir string
	// ErrorsPath is the document-level error artifact, rewritten per tarball.
	ErrorsPath string
	// ToolData selects tool-data actions instead of run-data actions.
	ToolData bool
}

// Processor drives extraction and submission for one tarball at a time.
type Processor struct {
	extractor Extractor
	submitter Submitter
	opts      Options
	logger    *slog.Logger
}

// New builds a Processor.
func New(extractor Extractor, submitter Submitter, opts Options, logger *slog.Logger) *Processor {
	return &Processor{
		extractor: extractor,
		submitter: submitter,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "processor"),
	}
}

// Process handles candidate and returns its outcome. It never returns an
// error: every failure becomes one of the fatal kinds.
func (p *Processor) Process(ctx context.Context, candidate workitem.Candidate) workitem.Outcome {
	started := time.Now()
	ctx = logging.WithTarball(ctx, candidate.Controller, candidate.Link)
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("tarball processing started",
		logging.String(logging.FieldEventType, "tarball_start"),
		logging.Size("size", candidate.Size),
	)

	// The previous tarball's detail must never be attributed to this one.
	if err := os.Remove(p.opts.ErrorsPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("stale error detail not removed",
			logging.String(logging.FieldEventType, "error_detail_stale"),
			logging.String(logging.FieldErrorHint, "check the run temp directory"),
			logging.Error(err),
		)
	}

	outcome, detailed := p.process(ctx, candidate)
	outcome.Elapsed = time.Since(started)
	if detailed {
		outcome.ErrorDetail = p.opts.ErrorsPath
		if lines, err := fileutil.CountLines(p.opts.ErrorsPath); err == nil {
			outcome.HasErrorDetail = lines > 1
		} else {
			logger.Warn("error detail unreadable",
				logging.String(logging.FieldEventType, "error_detail_unreadable"),
				logging.String(logging.FieldErrorHint, "check the run temp directory"),
				logging.String(logging.FieldImpact, "document errors for this tarball are not posted"),
				logging.Error(err),
			)
		}
	}

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "tarball_complete"),
		logging.String(logging.FieldOutcome, outcome.Kind.String()),
		logging.Duration("elapsed", outcome.Elapsed),
	}
	if outcome.Kind.Fatal() {
		attrs = append(attrs, logging.Error(outcome.Err))
		logger.Warn("tarball skipped", logging.Args(append(attrs,
			logging.String(logging.FieldErrorHint, "inspect the tarball; it will not be retried automatically"),
			logging.String(logging.FieldImpact, "tarball moved to a WONT-INDEX bucket"),
		)...)...)
		return outcome
	}
	attrs = append(attrs,
		logging.Int("successes", outcome.Counters.Successes),
		logging.Int("duplicates", outcome.Counters.Duplicates),
		logging.Int("failures", outcome.Counters.Failures),
		logging.Int("retries", outcome.Counters.Retries),
	)
	logger.Info("tarball processed", logging.Args(attrs...)...)
	return outcome
}

// process reports whether the error detail file for candidate was created;
// when it was not, the file holds nothing of this tarball's.
func (p *Processor) process(ctx context.Context, candidate workitem.Candidate) (workitem.Outcome, bool) {
	sink, err := os.Create(p.opts.ErrorsPath)
	if err != nil {
		return fatal(fmt.Errorf("create error detail: %w", err)), false
	}
	defer sink.Close()
	if _, err := fmt.Fprintln(sink, candidate.Link); err != nil {
		return fatal(fmt.Errorf("write error detail header: %w", err)), true
	}

	extractRoot := filepath.Join(p.opts.WorkDir, "extract")
	defer func() {
		if err := os.RemoveAll(extractRoot); err != nil {
			p.logger.Debug("extract cleanup failed", logging.Error(err))
		}
	}()

	actions, err := p.extractor.Extract(ctx, candidate.Target, candidate.Controller, extractRoot, p.opts.ToolData)
	if err != nil {
		return fatal(err), true
	}
	result, err := p.submitter.Submit(ctx, actions, sink)
	if err != nil {
		return fatal(err), true
	}
	if err := sink.Sync(); err != nil {
		return fatal(fmt.Errorf("flush error detail: %w", err)), true
	}

	return workitem.Outcome{
		Kind:     workitem.FromCounters(result.Counters),
		Start:    result.Start,
		End:      result.End,
		Counters: result.Counters,
	}, true
}

func fatal(err error) workitem.Outcome {
	return workitem.Outcome{Kind: workitem.Classify(err), Err: err}
}
