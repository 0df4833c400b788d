package workflow

import (
	"errors"
	"fmt"

	"pbench/internal/workitem"
)

var (
	// ErrUnknownOutcome signals an outcome outside the closed taxonomy.
	ErrUnknownOutcome = errors.New("unknown outcome")
	// ErrSourceMismatch signals a tarball that was not admitted from the mode's source state.
	ErrSourceMismatch = errors.New("source state mismatch")
)

// buckets assigns each non-success outcome its stable WONT-INDEX suffix.
var buckets = map[workitem.Kind]int{
	workitem.KindIndexFailures:     1,
	workitem.KindUnsupportedFormat: 4,
	workitem.KindBadDate:           5,
	workitem.KindMissingFile:       6,
	workitem.KindBadMetadata:       7,
	workitem.KindBadHostname:       10,
	workitem.KindUnpackError:       11,
	workitem.KindInternal:          12,
}

// Bucket returns the WONT-INDEX suffix for a non-success outcome kind.
func Bucket(kind workitem.Kind) (int, error) {
	n, ok := buckets[kind]
	if !ok {
		return 0, fmt.Errorf("%w: no bucket for %s", ErrUnknownOutcome, kind)
	}
	return n, nil
}

// Destination computes the state a tarball moves to after processing.
func Destination(mode Mode, source State, kind workitem.Kind) (State, error) {
	if source != mode.Source {
		return "", fmt.Errorf("%w: tarball in %s, mode %s reads %s", ErrSourceMismatch, source, mode.Name, mode.Source)
	}
	switch kind {
	case workitem.KindSuccess:
		return mode.Success, nil
	case workitem.KindIndexFailures,
		workitem.KindUnsupportedFormat,
		workitem.KindBadDate,
		workitem.KindMissingFile,
		workitem.KindBadMetadata,
		workitem.KindBadHostname,
		workitem.KindUnpackError,
		workitem.KindInternal:
		n, err := Bucket(kind)
		if err != nil {
			return "", err
		}
		return WontIndex(n), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownOutcome, kind)
	}
}
