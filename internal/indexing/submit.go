package indexing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"pbench/internal/workitem"
)

const (
	defaultBatchSize       = 500
	defaultWorkers         = 4
	defaultInitialInterval = 100 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

// Options tunes bulk submission.
type Options struct {
	BatchSize  int
	Workers    int
	MaxRetries int
	// InitialInterval is the first retry delay; it doubles up to MaxInterval.
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = defaultInitialInterval
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = defaultMaxInterval
	}
	return o
}

// Result is the outcome of a complete submission.
type Result struct {
	Start    time.Time
	End      time.Time
	Counters workitem.Counters
}

// failureLine is the error sink record for a failed document.
type failureLine struct {
	Index string `json:"index"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

type tally struct {
	successes  atomic.Int64
	duplicates atomic.Int64
	failures   atomic.Int64
	retries    atomic.Int64
}

// Submit sends every action yielded by actions to backend. A non-nil error
// yielded by the sequence stops submission and is returned unchanged once the
// in-flight requests settle.
func Submit(ctx context.Context, backend Backend, actions iter.Seq2[Action, error], sink io.Writer, opts Options) (Result, error) {
	if backend == nil {
		return Result{}, errors.New("indexing backend unavailable")
	}
	opts = opts.withDefaults()
	result := Result{Start: time.Now().UTC()}

	var (
		counts  tally
		sinkMu  sync.Mutex
		encoder *json.Encoder
	)
	if sink != nil {
		encoder = json.NewEncoder(sink)
	}
	recordFailure := func(item ItemResult) error {
		counts.failures.Add(1)
		if encoder == nil {
			return nil
		}
		sinkMu.Lock()
		defer sinkMu.Unlock()
		if err := encoder.Encode(failureLine{Index: item.Index, ID: item.ID, Error: item.Error}); err != nil {
			return fmt.Errorf("write error detail: %w", err)
		}
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(opts.Workers)

	send := func(batch []Action) {
		group.Go(func() error {
			items, err := sendWithRetry(groupCtx, backend, batch, opts, &counts)
			if err != nil {
				return err
			}
			if len(items) != len(batch) {
				return fmt.Errorf("bulk response has %d results for %d actions", len(items), len(batch))
			}
			for _, item := range items {
				switch item.Status {
				case StatusCreated:
					counts.successes.Add(1)
				case StatusDuplicate:
					counts.duplicates.Add(1)
				default:
					if err := recordFailure(item); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}

	var sourceErr error
	batch := make([]Action, 0, opts.BatchSize)
	for action, err := range actions {
		if err != nil {
			sourceErr = err
			break
		}
		if groupCtx.Err() != nil {
			break
		}
		batch = append(batch, action)
		if len(batch) == opts.BatchSize {
			send(batch)
			batch = make([]Action, 0, opts.BatchSize)
		}
	}
	if sourceErr == nil && len(batch) > 0 {
		send(batch)
	}

	waitErr := group.Wait()
	if sourceErr != nil {
		return Result{}, sourceErr
	}
	if waitErr != nil {
		return Result{}, waitErr
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	result.End = time.Now().UTC()
	result.Counters = workitem.Counters{
		Successes:  int(counts.successes.Load()),
		Duplicates: int(counts.duplicates.Load()),
		Failures:   int(counts.failures.Load()),
		Retries:    int(counts.retries.Load()),
	}
	return result, nil
}

func sendWithRetry(ctx context.Context, backend Backend, batch []Action, opts Options, counts *tally) ([]ItemResult, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = opts.InitialInterval
	policy.MaxInterval = opts.MaxInterval
	policy.MaxElapsedTime = 0

	var items []ItemResult
	operation := func() error {
		var err error
		items, err = backend.BulkIndex(ctx, batch)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrTransient) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(error, time.Duration) {
		counts.retries.Add(1)
	}
	retryPolicy := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(opts.MaxRetries)), ctx)
	if err := backoff.RetryNotify(operation, retryPolicy, notify); err != nil {
		return nil, fmt.Errorf("bulk request: %w", err)
	}
	return items, nil
}

// Submitter binds a backend and options for repeated submissions.
type Submitter struct {
	Backend Backend
	Options Options
}

// Submit sends actions to the bound backend.
func (s Submitter) Submit(ctx context.Context, actions iter.Seq2[Action, error], sink io.Writer) (Result, error) {
	return Submit(ctx, s.Backend, actions, sink, s.Options)
}
