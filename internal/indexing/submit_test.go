package indexing_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"pbench/internal/indexing"
)

type fakeBackend struct {
	mu        sync.Mutex
	transient int
	fatal     error
	seen      map[string]bool
	calls     int
	failIDs   map[string]string
}

func (f *fakeBackend) BulkIndex(_ context.Context, actions []indexing.Action) ([]indexing.ItemResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fatal != nil {
		return nil, f.fatal
	}
	if f.transient > 0 {
		f.transient--
		return nil, fmt.Errorf("busy: %w", indexing.ErrTransient)
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	results := make([]indexing.ItemResult, 0, len(actions))
	for _, action := range actions {
		item := indexing.ItemResult{Index: action.Index, ID: action.ID, Status: indexing.StatusCreated}
		switch {
		case f.failIDs[action.ID] != "":
			item.Status = indexing.StatusFailed
			item.Error = f.failIDs[action.ID]
		case f.seen[action.Index+"/"+action.ID]:
			item.Status = indexing.StatusDuplicate
		}
		f.seen[action.Index+"/"+action.ID] = true
		results = append(results, item)
	}
	return results, nil
}

func actionsOf(n int) iter.Seq2[indexing.Action, error] {
	return func(yield func(indexing.Action, error) bool) {
		for i := range n {
			if !yield(indexing.Action{Index: "pbench.v1.toc.2024-01", ID: fmt.Sprintf("doc-%03d", i), Source: map[string]int{"n": i}}, nil) {
				return
			}
		}
	}
}

func fastOptions() indexing.Options {
	return indexing.Options{BatchSize: 4, Workers: 3, MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestSubmitCountsSuccessesAndDuplicates(t *testing.T) {
	backend := &fakeBackend{}
	opts := fastOptions()

	first, err := indexing.Submit(context.Background(), backend, actionsOf(10), nil, opts)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if first.Counters.Successes != 10 || first.Counters.Duplicates != 0 || first.Counters.Failures != 0 {
		t.Fatalf("unexpected first counters %+v", first.Counters)
	}
	if backend.calls != 3 {
		t.Fatalf("expected 3 bulk requests for 10 actions in batches of 4, got %d", backend.calls)
	}
	if first.End.Before(first.Start) {
		t.Fatalf("end %v precedes start %v", first.End, first.Start)
	}

	second, err := indexing.Submit(context.Background(), backend, actionsOf(10), nil, opts)
	if err != nil {
		t.Fatalf("Submit again: %v", err)
	}
	if second.Counters.Successes != 0 || second.Counters.Duplicates != 10 {
		t.Fatalf("expected all duplicates on resubmission, got %+v", second.Counters)
	}
}

func TestSubmitWritesFailuresToSink(t *testing.T) {
	backend := &fakeBackend{failIDs: map[string]string{"doc-002": "mapping conflict", "doc-007": "no template"}}
	var sink bytes.Buffer

	result, err := indexing.Submit(context.Background(), backend, actionsOf(9), &sink, fastOptions())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Counters.Failures != 2 || result.Counters.Successes != 7 {
		t.Fatalf("unexpected counters %+v", result.Counters)
	}

	lines := strings.Split(strings.TrimSpace(sink.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 sink lines, got %q", sink.String())
	}
	errorsByID := map[string]string{}
	for _, line := range lines {
		var rec struct {
			Index string `json:"index"`
			ID    string `json:"id"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("decode sink line %q: %v", line, err)
		}
		errorsByID[rec.ID] = rec.Error
	}
	if errorsByID["doc-002"] != "mapping conflict" || errorsByID["doc-007"] != "no template" {
		t.Fatalf("unexpected sink contents %v", errorsByID)
	}
}

func TestSubmitRetriesTransientErrors(t *testing.T) {
	backend := &fakeBackend{transient: 2}
	opts := fastOptions()
	opts.Workers = 1

	result, err := indexing.Submit(context.Background(), backend, actionsOf(3), nil, opts)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Counters.Retries != 2 {
		t.Fatalf("expected 2 retries, got %d", result.Counters.Retries)
	}
	if result.Counters.Successes != 3 {
		t.Fatalf("expected 3 successes, got %+v", result.Counters)
	}
}

func TestSubmitGivesUpAfterMaxRetries(t *testing.T) {
	backend := &fakeBackend{transient: 100}
	opts := fastOptions()
	opts.MaxRetries = 2

	if _, err := indexing.Submit(context.Background(), backend, actionsOf(2), nil, opts); !errors.Is(err, indexing.ErrTransient) {
		t.Fatalf("expected transient error after exhausting retries, got %v", err)
	}
	if backend.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", backend.calls)
	}
}

func TestSubmitDoesNotRetryPermanentErrors(t *testing.T) {
	boom := errors.New("index closed")
	backend := &fakeBackend{fatal: boom}

	if _, err := indexing.Submit(context.Background(), backend, actionsOf(2), nil, fastOptions()); !errors.Is(err, boom) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if backend.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", backend.calls)
	}
}

func TestSubmitReturnsSequenceError(t *testing.T) {
	corrupt := errors.New("corrupt member")
	actions := func(yield func(indexing.Action, error) bool) {
		if !yield(indexing.Action{Index: "i", ID: "a"}, nil) {
			return
		}
		yield(indexing.Action{}, corrupt)
	}

	if _, err := indexing.Submit(context.Background(), &fakeBackend{}, actions, nil, fastOptions()); !errors.Is(err, corrupt) {
		t.Fatalf("expected sequence error, got %v", err)
	}
}
