package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"golang.org/x/sync/errgroup"

	"pbench/internal/workflow"
)

// ControllerCensus counts the links in each workflow state of one controller.
type ControllerCensus struct {
	Controller string
	Counts     map[workflow.State]int
	// Buckets lists the WONT-INDEX.<n> states present, ascending by n.
	Buckets []workflow.State
}

// Census counts links per workflow state for every controller under
// archiveRoot. Controllers are scanned concurrently; the result is sorted by
// controller name.
func Census(ctx context.Context, archiveRoot string) ([]ControllerCensus, error) {
	entries, err := os.ReadDir(archiveRoot)
	if err != nil {
		return nil, fmt.Errorf("list archive %s: %w", archiveRoot, err)
	}

	var names []string
	for _, entry := range entries {
		if isDir(archiveRoot, entry) {
			names = append(names, entry.Name())
		}
	}
	slices.Sort(names)

	results := make([]ControllerCensus, len(names))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for i, name := range names {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			census, err := countController(filepath.Join(archiveRoot, name))
			if err != nil {
				return err
			}
			census.Controller = name
			results[i] = census
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func countController(dir string) (ControllerCensus, error) {
	census := ControllerCensus{Counts: map[workflow.State]int{}}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return census, fmt.Errorf("list controller %s: %w", dir, err)
	}
	bucketNumbers := map[workflow.State]int{}
	for _, entry := range entries {
		if !isDir(dir, entry) {
			continue
		}
		state, bucket, ok := workflow.ParseState(entry.Name())
		if !ok {
			continue
		}
		links, err := os.ReadDir(filepath.Join(dir, entry.Name()))
		if err != nil {
			return census, fmt.Errorf("list %s: %w", entry.Name(), err)
		}
		census.Counts[state] = len(links)
		if bucket > 0 {
			census.Buckets = append(census.Buckets, state)
			bucketNumbers[state] = bucket
		}
	}
	slices.SortFunc(census.Buckets, func(a, b workflow.State) int {
		return bucketNumbers[a] - bucketNumbers[b]
	})
	return census, nil
}
