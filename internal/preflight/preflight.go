package preflight

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"pbench/internal/config"
)

// ErrEnvironment marks a failed environment validation.
var ErrEnvironment = errors.New("bad environment")

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the environment checks for cfg. The three archive roots
// must already exist; the tmp directory is created when missing.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		CheckDirectoryAccess("Archive root", cfg.Paths.Archive, ReadWrite),
		CheckDirectoryAccess("Incoming root", cfg.Paths.Incoming, ReadOnly),
		CheckDirectoryAccess("Quarantine directory", cfg.Paths.Quarantine, ReadWrite),
		EnsureDirectory("Temporary directory", cfg.Paths.Tmp),
	}
}

// Failed joins the details of every failed result into one ErrEnvironment
// error, or returns nil when all passed.
func Failed(results []Result) error {
	var problems []string
	for _, r := range results {
		if !r.Passed {
			problems = append(problems, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrEnvironment, strings.Join(problems, "; "))
}

// Roots are the canonical (symlink-free) archive roots of a run.
type Roots struct {
	Archive    string
	Incoming   string
	Quarantine string
}

// Resolve validates the environment and returns canonical roots.
func Resolve(cfg *config.Config) (Roots, error) {
	if err := Failed(RunAll(cfg)); err != nil {
		return Roots{}, err
	}
	var roots Roots
	for _, r := range []struct {
		dst  *string
		name string
		path string
	}{
		{&roots.Archive, "archive", cfg.Paths.Archive},
		{&roots.Incoming, "incoming", cfg.Paths.Incoming},
		{&roots.Quarantine, "quarantine", cfg.Paths.Quarantine},
	} {
		resolved, err := filepath.EvalSymlinks(r.path)
		if err != nil {
			return Roots{}, fmt.Errorf("%w: resolve %s root: %w", ErrEnvironment, r.name, err)
		}
		*r.dst = resolved
	}
	return roots, nil
}
