package discovery

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"pbench/internal/workflow"
	"pbench/internal/workitem"
)

// TarballSuffix is the only archive layout queued for indexing.
const TarballSuffix = ".tar.xz"

// Discover enumerates <archiveRoot>/*/<source>/*.tar.xz, admits each link
// through gate, and returns the survivors ordered by size then path.
// archiveRoot must be canonical. Any enumeration error aborts discovery.
func Discover(ctx context.Context, archiveRoot string, source workflow.State, gate *Gate) ([]workitem.Candidate, error) {
	controllers, err := os.ReadDir(archiveRoot)
	if err != nil {
		return nil, fmt.Errorf("list archive %s: %w", archiveRoot, err)
	}

	var candidates []workitem.Candidate
	for _, entry := range controllers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !isDir(archiveRoot, entry) {
			continue
		}
		stateDir := filepath.Join(archiveRoot, entry.Name(), source.String())
		links, err := os.ReadDir(stateDir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("list %s: %w", stateDir, err)
		}
		for _, link := range links {
			if !strings.HasSuffix(link.Name(), TarballSuffix) {
				continue
			}
			candidate, ok := gate.Admit(filepath.Join(stateDir, link.Name()), source)
			if !ok {
				continue
			}
			candidates = append(candidates, candidate)
		}
	}

	SortCandidates(candidates)
	return candidates, nil
}

// isDir reports whether entry is a directory, following a symlinked entry
// to its target.
func isDir(parent string, entry fs.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(parent, entry.Name()))
	return err == nil && info.IsDir()
}

// SortCandidates orders candidates smallest first, breaking ties by link path.
func SortCandidates(candidates []workitem.Candidate) {
	slices.SortFunc(candidates, func(a, b workitem.Candidate) int {
		if c := cmp.Compare(a.Size, b.Size); c != 0 {
			return c
		}
		return cmp.Compare(a.Link, b.Link)
	})
}
