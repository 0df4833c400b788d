package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"pbench/internal/fileutil"
	"pbench/internal/logging"
	"pbench/internal/notifications"
	"pbench/internal/store"
	"pbench/internal/workitem"
)

// Poster accepts run status records.
type Poster interface {
	PostStatus(ctx context.Context, rec store.StatusRecord) (int64, error)
}

// Ledger names one of the three outcome lists.
type Ledger string

const (
	LedgerIndexed Ledger = "indexed"
	LedgerErred   Ledger = "erred"
	LedgerSkipped Ledger = "skipped"
)

// LedgerFor maps an outcome kind to the ledger that records it.
func LedgerFor(kind workitem.Kind) (Ledger, error) {
	switch {
	case kind == workitem.KindSuccess:
		return LedgerIndexed, nil
	case kind == workitem.KindIndexFailures:
		return LedgerErred, nil
	case kind.Fatal():
		return LedgerSkipped, nil
	default:
		return "", fmt.Errorf("no ledger for outcome %s", kind)
	}
}

// Summary is the end-of-run tally.
type Summary struct {
	Subject    string
	Body       string
	ReportPath string
	Indexed    int
	Erred      int
	Skipped    int
}

// Reporter records the outcomes of one run.
type Reporter struct {
	poster     Poster
	notifier   notifications.Service
	identity   Identity
	dir        string
	logger     *slog.Logger
	trackingID int64
}

// New builds a Reporter writing its files to dir.
func New(poster Poster, notifier notifications.Service, identity Identity, dir string, logger *slog.Logger) *Reporter {
	return &Reporter{
		poster:   poster,
		notifier: notifier,
		identity: identity,
		dir:      dir,
		logger:   logging.NewComponentLogger(logger, "report"),
	}
}

// TrackingID returns the id obtained by Start, or zero before it.
func (r *Reporter) TrackingID() int64 { return r.trackingID }

// LedgerPath returns the file backing ledger.
func (r *Reporter) LedgerPath(ledger Ledger) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s.%s", r.identity.Label(), ledger))
}

// ReportPath returns the file the final report is written to.
func (r *Reporter) ReportPath() string {
	return filepath.Join(r.dir, r.identity.Label()+".report")
}

// Start posts the start record and retains its tracking id. A run must not
// proceed when Start fails.
func (r *Reporter) Start(ctx context.Context) (int64, error) {
	if r.poster == nil {
		return 0, errors.New("status backend unavailable")
	}
	id, err := r.poster.PostStatus(ctx, r.record(store.StatusStart, ""))
	if err != nil {
		return 0, fmt.Errorf("post start status: %w", err)
	}
	r.trackingID = id
	return id, nil
}

// Record appends the item's link to the ledger matching its outcome. The
// ledger is synced before Record returns.
func (r *Reporter) Record(item workitem.Item) error {
	ledger, err := LedgerFor(item.Outcome.Kind)
	if err != nil {
		return err
	}
	if err := fileutil.AppendLine(r.LedgerPath(ledger), item.Candidate.Link); err != nil {
		return fmt.Errorf("append %s ledger: %w", ledger, err)
	}
	return nil
}

// PostErrors posts the item's document-level error detail when it holds more
// than its header. Failures are logged and swallowed.
func (r *Reporter) PostErrors(ctx context.Context, item workitem.Item) {
	if !item.Outcome.HasErrorDetail || item.Outcome.ErrorDetail == "" {
		return
	}
	detail, err := os.ReadFile(item.Outcome.ErrorDetail)
	if err != nil {
		r.warnPosting(ctx, "errors", err, item.Candidate.Link)
		return
	}
	if _, err := r.poster.PostStatus(ctx, r.record(store.StatusErrors, string(detail))); err != nil {
		r.warnPosting(ctx, "errors", err, item.Candidate.Link)
	}
}

// Finish composes the report from the ledgers, writes it to ReportPath,
// posts it as the final status record, and pushes a notification. It never
// fails; problems are logged.
func (r *Reporter) Finish(ctx context.Context) Summary {
	logger := logging.WithContext(ctx, r.logger)
	indexed := r.readLedger(logger, LedgerIndexed)
	erred := r.readLedger(logger, LedgerErred)
	skipped := r.readLedger(logger, LedgerSkipped)

	summary := Summary{
		Subject:    Subject(len(indexed), len(skipped), len(erred)),
		ReportPath: r.ReportPath(),
		Indexed:    len(indexed),
		Erred:      len(erred),
		Skipped:    len(skipped),
	}
	summary.Body = Render(r.identity.Label(), summary.Subject, indexed, erred, skipped)
	logger.Info("run summary",
		logging.String(logging.FieldEventType, "run_summary"),
		logging.Int("indexed", summary.Indexed),
		logging.Int("skipped", summary.Skipped),
		logging.Int("errors", summary.Erred),
	)

	if err := os.WriteFile(summary.ReportPath, []byte(summary.Body), 0o644); err != nil {
		logging.WarnWithContext(logger, "report file not written", "report_write_failed",
			logging.String("path", summary.ReportPath),
			logging.String(logging.FieldImpact, "the posted status still carries the report"),
			logging.Error(err),
		)
	}

	if r.poster != nil && r.trackingID != 0 {
		if _, err := r.poster.PostStatus(ctx, r.record(store.StatusFinal, summary.Body)); err != nil {
			r.warnPosting(ctx, "status", err, "")
		}
	}

	if r.notifier != nil {
		err := r.notifier.NotifyRunCompleted(ctx, notifications.RunSummary{
			RunName:  r.identity.Name,
			Subject:  summary.Subject,
			Body:     summary.Body,
			Indexed:  summary.Indexed,
			Erred:    summary.Erred,
			Skipped:  summary.Skipped,
			Duration: time.Since(r.identity.Started),
		})
		if err != nil {
			logging.WarnWithContext(logger, "run notification failed", "notification_failed",
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
				logging.String(logging.FieldImpact, "operators are not paged about this run"),
				logging.Error(err),
			)
		}
	}
	return summary
}

func (r *Reporter) readLedger(logger *slog.Logger, ledger Ledger) []string {
	lines, err := fileutil.ReadLines(r.LedgerPath(ledger))
	if err != nil {
		logging.WarnWithContext(logger, "ledger unreadable", "ledger_read_failed",
			logging.String("ledger", string(ledger)),
			logging.String(logging.FieldImpact, "report undercounts this ledger"),
			logging.Error(err),
		)
	}
	return lines
}

func (r *Reporter) record(kind store.StatusKind, detail string) store.StatusRecord {
	id := r.identity
	return store.StatusRecord{
		Kind:       kind,
		Timestamp:  time.Now().UTC(),
		RunName:    id.Name,
		SessionID:  id.SessionID,
		Hostname:   id.Hostname,
		PID:        id.PID,
		UID:        id.UID,
		GID:        id.GID,
		Version:    id.Version,
		TrackingID: r.trackingID,
		Detail:     detail,
	}
}

func (r *Reporter) warnPosting(ctx context.Context, kind string, err error, tarball string) {
	attrs := []logging.Attr{
		logging.String("status_kind", kind),
		logging.String(logging.FieldErrorHint, "check the status store"),
		logging.String(logging.FieldImpact, "status posting lost; processing continues"),
		logging.Error(err),
	}
	if tarball != "" {
		attrs = append(attrs, logging.String(logging.FieldTarball, tarball))
	}
	logging.WarnWithContext(logging.WithContext(ctx, r.logger), "status posting failed", "status_post_failed", attrs...)
}
