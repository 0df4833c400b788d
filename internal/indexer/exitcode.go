package indexer

import (
	"errors"

	"pbench/internal/config"
	"pbench/internal/preflight"
	"pbench/internal/templates"
)

// Process exit codes.
const (
	ExitOK             = 0
	ExitMissingConfig  = 2
	ExitBadConfig      = 3
	ExitTemplateLoad   = 8
	ExitTemplateUpdate = 9
	ExitInternal       = 12
)

// ErrDefect marks a broken invariant of the run loop itself.
var ErrDefect = errors.New("indexer defect")

// ExitCode maps a run error to the process exit code.
func ExitCode(err error) int {
	var tmplErr *templates.TemplateError
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, config.ErrMissing):
		return ExitMissingConfig
	case errors.Is(err, config.ErrInvalid), errors.Is(err, preflight.ErrEnvironment):
		return ExitBadConfig
	case errors.Is(err, templates.ErrLoad):
		return ExitTemplateLoad
	case errors.As(err, &tmplErr):
		return ExitTemplateUpdate
	default:
		return ExitInternal
	}
}
