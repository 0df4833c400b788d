package indexer_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"

	"pbench/internal/config"
	"pbench/internal/indexer"
	"pbench/internal/indexing"
	"pbench/internal/logging"
	"pbench/internal/preflight"
	"pbench/internal/store"
	"pbench/internal/tarball"
	"pbench/internal/templates"
	"pbench/internal/testsupport"
)

const host = testsupport.DefaultController

// recordingBackend forwards to the store and remembers the run names of the
// run documents it saw, in submission order.
type recordingBackend struct {
	next     indexing.Backend
	failDocs bool

	mu   sync.Mutex
	runs []string
}

func (r *recordingBackend) BulkIndex(ctx context.Context, actions []indexing.Action) ([]indexing.ItemResult, error) {
	r.mu.Lock()
	for _, a := range actions {
		if doc, ok := a.Source.(tarball.RunDocument); ok {
			r.runs = append(r.runs, doc.Run.Name)
		}
	}
	r.mu.Unlock()
	if r.failDocs {
		results := make([]indexing.ItemResult, len(actions))
		for i, a := range actions {
			results[i] = indexing.ItemResult{Index: a.Index, ID: a.ID, Status: indexing.StatusFailed, Error: "mapper_parsing_exception"}
		}
		return results, nil
	}
	return r.next.BulkIndex(ctx, actions)
}

func (r *recordingBackend) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.runs...)
}

// cancellingBackend indexes through next, then cancels the run context as
// though the process were interrupted before the tarball's transition.
type cancellingBackend struct {
	next   indexing.Backend
	cancel context.CancelFunc
}

func (c *cancellingBackend) BulkIndex(ctx context.Context, actions []indexing.Action) ([]indexing.ItemResult, error) {
	results, err := c.next.BulkIndex(ctx, actions)
	c.cancel()
	return results, err
}

type refusingRegistry struct{}

func (refusingRegistry) PutTemplate(context.Context, store.TemplateRecord) (bool, error) {
	return false, errors.New("illegal_argument_exception")
}

type refusingPoster struct{}

func (refusingPoster) PostStatus(context.Context, store.StatusRecord) (int64, error) {
	return 0, errors.New("status backend down")
}

type fixture struct {
	cfg     *config.Config
	st      *store.Store
	archive *testsupport.Archive
	backend *recordingBackend
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	return &fixture{
		cfg:     cfg,
		st:      st,
		archive: testsupport.NewArchive(t, cfg.Paths.Archive),
		backend: &recordingBackend{next: st},
	}
}

func (f *fixture) deps() indexer.Dependencies {
	return indexer.Dependencies{Backend: f.backend, Registry: f.st, Poster: f.st}
}

func (f *fixture) indexer(t *testing.T, opts indexer.Options, deps indexer.Dependencies) *indexer.Indexer {
	t.Helper()
	opts.Version = "test"
	ix, err := indexer.New(f.cfg, deps, opts, logging.NewNop())
	if err != nil {
		t.Fatalf("indexer.New: %v", err)
	}
	return ix
}

func (f *fixture) finalReport(t *testing.T, ix *indexer.Indexer) store.StatusRecord {
	t.Helper()
	reports, err := f.st.StatusReports(context.Background(), ix.TrackingID())
	if err != nil {
		t.Fatalf("StatusReports: %v", err)
	}
	if len(reports) < 2 {
		t.Fatalf("expected start and final status reports, got %d", len(reports))
	}
	if reports[0].Kind != store.StatusStart {
		t.Fatalf("first report kind = %s, want start", reports[0].Kind)
	}
	last := reports[len(reports)-1]
	if last.Kind != store.StatusFinal {
		t.Fatalf("last report kind = %s, want status", last.Kind)
	}
	return last
}

func TestRunIndexesSmallestFirst(t *testing.T) {
	f := newFixture(t)
	f.archive.AddTarball(host, "TO-INDEX", "run-a", testsupport.WithPadding(3000))
	f.archive.AddTarball(host, "TO-INDEX", "run-b", testsupport.WithPadding(1000))
	f.archive.AddTarball(host, "TO-INDEX", "run-c", testsupport.WithPadding(2000))

	ix := f.indexer(t, indexer.Options{}, f.deps())
	if err := ix.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if diff := cmp.Diff([]string{"run-b", "run-c", "run-a"}, f.backend.order()); diff != "" {
		t.Fatalf("processing order mismatch (-want +got):\n%s", diff)
	}
	want := []string{"run-a.tar.xz", "run-b.tar.xz", "run-c.tar.xz"}
	if diff := cmp.Diff(want, f.archive.Entries(host, "INDEXED")); diff != "" {
		t.Fatalf("INDEXED mismatch (-want +got):\n%s", diff)
	}
	if got := f.archive.Entries(host, "TO-INDEX"); len(got) != 0 {
		t.Fatalf("TO-INDEX should be empty, got %v", got)
	}

	summary, ok := ix.Summary()
	if !ok {
		t.Fatal("expected a run summary")
	}
	if summary.Subject != "Indexed 3 results" {
		t.Fatalf("subject = %q", summary.Subject)
	}
	final := f.finalReport(t, ix)
	if final.Detail != summary.Body {
		t.Fatalf("posted report differs from summary body:\n%s", final.Detail)
	}
	if final.RunName != "pbench-index" {
		t.Fatalf("run name = %q", final.RunName)
	}
	for _, name := range want {
		link := filepath.Join(f.cfg.Paths.Archive, host, "TO-INDEX", name)
		if !strings.Contains(final.Detail, link) {
			t.Fatalf("report does not list %s:\n%s", link, final.Detail)
		}
	}

	counts, err := f.st.DocumentCounts(context.Background())
	if err != nil {
		t.Fatalf("DocumentCounts: %v", err)
	}
	runIndex := templates.IndexName(f.cfg.Indexing.Prefix, templates.Run, mustStart(t))
	if counts[runIndex] != 3 {
		t.Fatalf("run documents in %s = %d, want 3 (counts %v)", runIndex, counts[runIndex], counts)
	}
}

func mustStart(t *testing.T) time.Time {
	t.Helper()
	md, err := tarball.ParseMetadata([]byte(testsupport.Metadata("run", host)))
	if err != nil {
		t.Fatalf("ParseMetadata: %v", err)
	}
	return md.Start
}

func TestRunSkipsCorruptTarball(t *testing.T) {
	f := newFixture(t)
	f.archive.AddTarball(host, "TO-INDEX", "good")
	corrupt := f.archive.AddCorruptTarball(host, "TO-INDEX", "broken")

	ix := f.indexer(t, indexer.Options{}, f.deps())
	err := ix.Run(context.Background())
	if code := indexer.ExitCode(err); code != indexer.ExitOK {
		t.Fatalf("exit code = %d (%v), want 0", code, err)
	}

	if diff := cmp.Diff([]string{"broken.tar.xz"}, f.archive.Entries(host, "WONT-INDEX.11")); diff != "" {
		t.Fatalf("WONT-INDEX.11 mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"good.tar.xz"}, f.archive.Entries(host, "INDEXED")); diff != "" {
		t.Fatalf("INDEXED mismatch (-want +got):\n%s", diff)
	}

	summary, _ := ix.Summary()
	if summary.Subject != "Indexed 1 results, skipped 1 results" {
		t.Fatalf("subject = %q", summary.Subject)
	}
	if summary.Skipped != 1 || summary.Indexed != 1 || summary.Erred != 0 {
		t.Fatalf("unexpected tallies %+v", summary)
	}
	skipped := summary.Body[strings.Index(summary.Body, "Skipped Results"):]
	if !strings.Contains(skipped, corrupt) {
		t.Fatalf("skipped section does not list %s:\n%s", corrupt, summary.Body)
	}
}

func TestRunDocumentFailuresGoToBucketOne(t *testing.T) {
	f := newFixture(t)
	f.archive.AddTarball(host, "TO-INDEX", "rejected")
	f.backend.failDocs = true

	ix := f.indexer(t, indexer.Options{}, f.deps())
	if err := ix.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"rejected.tar.xz"}, f.archive.Entries(host, "WONT-INDEX.1")); diff != "" {
		t.Fatalf("WONT-INDEX.1 mismatch (-want +got):\n%s", diff)
	}
	if got := f.archive.Entries(host, "INDEXED"); len(got) != 0 {
		t.Fatalf("INDEXED should be empty, got %v", got)
	}

	summary, _ := ix.Summary()
	if summary.Subject != "Indexed 0 results, w/ 1 errors" {
		t.Fatalf("subject = %q", summary.Subject)
	}
	reports, err := f.st.StatusReports(context.Background(), ix.TrackingID())
	if err != nil {
		t.Fatalf("StatusReports: %v", err)
	}
	var kinds []store.StatusKind
	for _, r := range reports {
		kinds = append(kinds, r.Kind)
	}
	if diff := cmp.Diff([]store.StatusKind{store.StatusStart, store.StatusErrors, store.StatusFinal}, kinds); diff != "" {
		t.Fatalf("status kinds mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(reports[1].Detail, "mapper_parsing_exception") {
		t.Fatalf("errors posting lacks document error:\n%s", reports[1].Detail)
	}
}

func TestSecondRunFindsNothing(t *testing.T) {
	f := newFixture(t)
	f.archive.AddTarball(host, "TO-INDEX", "once")

	first := f.indexer(t, indexer.Options{}, f.deps())
	if err := first.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second := f.indexer(t, indexer.Options{}, f.deps())
	if err := second.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if _, ok := second.Summary(); ok {
		t.Fatal("second run should not produce a report")
	}
	if diff := cmp.Diff([]string{"once.tar.xz"}, f.archive.Entries(host, "INDEXED")); diff != "" {
		t.Fatalf("INDEXED mismatch (-want +got):\n%s", diff)
	}
}

func TestInterruptedTarballStaysQueued(t *testing.T) {
	f := newFixture(t)
	f.archive.AddTarball(host, "TO-INDEX", "interrupted")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deps := f.deps()
	deps.Backend = &cancellingBackend{next: f.st, cancel: cancel}

	err := f.indexer(t, indexer.Options{}, deps).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if code := indexer.ExitCode(err); code != indexer.ExitInternal {
		t.Fatalf("exit code = %d, want %d", code, indexer.ExitInternal)
	}
	if diff := cmp.Diff([]string{"interrupted.tar.xz"}, f.archive.Entries(host, "TO-INDEX")); diff != "" {
		t.Fatalf("TO-INDEX mismatch (-want +got):\n%s", diff)
	}
	if got := f.archive.Entries(host, "INDEXED"); len(got) != 0 {
		t.Fatalf("INDEXED = %v, want empty", got)
	}

	rerun := f.indexer(t, indexer.Options{}, f.deps())
	if err := rerun.Run(context.Background()); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if diff := cmp.Diff([]string{"interrupted.tar.xz"}, f.archive.Entries(host, "INDEXED")); diff != "" {
		t.Fatalf("INDEXED mismatch after rerun (-want +got):\n%s", diff)
	}
	if got := f.archive.Entries(host, "TO-INDEX"); len(got) != 0 {
		t.Fatalf("TO-INDEX = %v after rerun, want empty", got)
	}
}

func TestReIndexReadsReIndexState(t *testing.T) {
	f := newFixture(t)
	f.archive.AddTarball(host, "TO-RE-INDEX", "again")
	f.archive.AddTarball(host, "TO-INDEX", "fresh")

	ix := f.indexer(t, indexer.Options{ReIndex: true}, f.deps())
	if err := ix.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"again.tar.xz"}, f.archive.Entries(host, "INDEXED")); diff != "" {
		t.Fatalf("INDEXED mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"fresh.tar.xz"}, f.archive.Entries(host, "TO-INDEX")); diff != "" {
		t.Fatalf("TO-INDEX should be untouched (-want +got):\n%s", diff)
	}
	if got := f.finalReport(t, ix).RunName; got != "pbench-index-re" {
		t.Fatalf("run name = %q", got)
	}
}

func TestToolDataFollowupAndToolDataMode(t *testing.T) {
	f := newFixture(t, testsupport.WithToolDataFollowup())
	f.archive.AddTarball(host, "TO-INDEX", "tools",
		testsupport.WithFile("1-default/sample1/tools-default/"+host+"/iostat/disk.txt", "sda 1.0 2.0\n"),
	)

	runData := f.indexer(t, indexer.Options{}, f.deps())
	if err := runData.Run(context.Background()); err != nil {
		t.Fatalf("run-data Run: %v", err)
	}
	if diff := cmp.Diff([]string{"tools.tar.xz"}, f.archive.Entries(host, "TO-INDEX-TOOL")); diff != "" {
		t.Fatalf("TO-INDEX-TOOL mismatch (-want +got):\n%s", diff)
	}

	toolData := f.indexer(t, indexer.Options{ToolData: true}, f.deps())
	if got := toolData.Mode().Name; got != "pbench-index-tool-data" {
		t.Fatalf("mode name = %q", got)
	}
	if err := toolData.Run(context.Background()); err != nil {
		t.Fatalf("tool-data Run: %v", err)
	}
	if diff := cmp.Diff([]string{"tools.tar.xz"}, f.archive.Entries(host, "INDEXED")); diff != "" {
		t.Fatalf("INDEXED mismatch (-want +got):\n%s", diff)
	}

	counts, err := f.st.DocumentCounts(context.Background())
	if err != nil {
		t.Fatalf("DocumentCounts: %v", err)
	}
	toolIndex := templates.IndexName(f.cfg.Indexing.Prefix, templates.ToolData, mustStart(t))
	if counts[toolIndex] == 0 {
		t.Fatalf("no tool-data documents in %s (counts %v)", toolIndex, counts)
	}
}

func TestRunBadEnvironment(t *testing.T) {
	f := newFixture(t, testsupport.WithoutRoot("quarantine"))
	ix := f.indexer(t, indexer.Options{}, f.deps())
	err := ix.Run(context.Background())
	if !errors.Is(err, preflight.ErrEnvironment) {
		t.Fatalf("expected ErrEnvironment, got %v", err)
	}
	if code := indexer.ExitCode(err); code != indexer.ExitBadConfig {
		t.Fatalf("exit code = %d, want %d", code, indexer.ExitBadConfig)
	}
}

func TestRunTemplateRefused(t *testing.T) {
	f := newFixture(t)
	f.archive.AddTarball(host, "TO-INDEX", "waiting")

	deps := f.deps()
	deps.Registry = refusingRegistry{}
	ix := f.indexer(t, indexer.Options{}, deps)
	err := ix.Run(context.Background())
	if code := indexer.ExitCode(err); code != indexer.ExitTemplateUpdate {
		t.Fatalf("exit code = %d (%v), want %d", code, err, indexer.ExitTemplateUpdate)
	}
	if diff := cmp.Diff([]string{"waiting.tar.xz"}, f.archive.Entries(host, "TO-INDEX")); diff != "" {
		t.Fatalf("TO-INDEX should be untouched (-want +got):\n%s", diff)
	}
}

func TestRunStartPostingFails(t *testing.T) {
	f := newFixture(t)
	f.archive.AddTarball(host, "TO-INDEX", "waiting")

	deps := f.deps()
	deps.Poster = refusingPoster{}
	ix := f.indexer(t, indexer.Options{}, deps)
	err := ix.Run(context.Background())
	if code := indexer.ExitCode(err); code != indexer.ExitInternal {
		t.Fatalf("exit code = %d (%v), want %d", code, err, indexer.ExitInternal)
	}
	if diff := cmp.Diff([]string{"waiting.tar.xz"}, f.archive.Entries(host, "TO-INDEX")); diff != "" {
		t.Fatalf("TO-INDEX should be untouched (-want +got):\n%s", diff)
	}
	if len(f.backend.order()) != 0 {
		t.Fatal("no tarball should be submitted without a tracking id")
	}
}

func TestRunDestinationCollisionAborts(t *testing.T) {
	f := newFixture(t)
	f.archive.AddTarball(host, "TO-INDEX", "a-small", testsupport.WithPadding(100))
	f.archive.AddTarball(host, "TO-INDEX", "b-large", testsupport.WithPadding(5000))
	indexed := filepath.Join(f.cfg.Paths.Archive, host, "INDEXED")
	if err := os.MkdirAll(indexed, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(indexed, "a-small.tar.xz"), []byte("occupied"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ix := f.indexer(t, indexer.Options{}, f.deps())
	err := ix.Run(context.Background())
	if !errors.Is(err, indexer.ErrDefect) {
		t.Fatalf("expected ErrDefect, got %v", err)
	}
	if code := indexer.ExitCode(err); code != indexer.ExitInternal {
		t.Fatalf("exit code = %d, want %d", code, indexer.ExitInternal)
	}
	want := []string{"a-small.tar.xz", "b-large.tar.xz"}
	if diff := cmp.Diff(want, f.archive.Entries(host, "TO-INDEX")); diff != "" {
		t.Fatalf("TO-INDEX mismatch (-want +got):\n%s", diff)
	}
	if _, ok := ix.Summary(); !ok {
		t.Fatal("the report must be produced after an aborted loop")
	}
	if final := f.finalReport(t, ix); !strings.HasSuffix(strings.SplitN(final.Detail, "\n", 2)[0], "Indexed 0 results") {
		t.Fatalf("unexpected report:\n%s", final.Detail)
	}
}

func TestRunLockedModeExitsQuietly(t *testing.T) {
	f := newFixture(t)
	f.archive.AddTarball(host, "TO-INDEX", "waiting")

	ix := f.indexer(t, indexer.Options{}, f.deps())
	held := flock.New(ix.LockPath())
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("pre-lock: ok=%v err=%v", ok, err)
	}
	t.Cleanup(func() { _ = held.Unlock() })

	if err := ix.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"waiting.tar.xz"}, f.archive.Entries(host, "TO-INDEX")); diff != "" {
		t.Fatalf("TO-INDEX should be untouched (-want +got):\n%s", diff)
	}

	other := f.indexer(t, indexer.Options{ToolData: true}, f.deps())
	if other.LockPath() == ix.LockPath() {
		t.Fatal("modes must not share a run lock")
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, indexer.ExitOK},
		{fmt.Errorf("load: %w", config.ErrMissing), indexer.ExitMissingConfig},
		{fmt.Errorf("load: %w", config.ErrInvalid), indexer.ExitBadConfig},
		{fmt.Errorf("roots: %w", preflight.ErrEnvironment), indexer.ExitBadConfig},
		{fmt.Errorf("%w: bad yaml", templates.ErrLoad), indexer.ExitTemplateLoad},
		{&templates.TemplateError{Name: "pbench.v1.run", Err: errors.New("refused")}, indexer.ExitTemplateUpdate},
		{fmt.Errorf("%w: move", indexer.ErrDefect), indexer.ExitInternal},
		{errors.New("boom"), indexer.ExitInternal},
	}
	for _, tc := range cases {
		if got := indexer.ExitCode(tc.err); got != tc.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
