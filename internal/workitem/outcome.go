package workitem

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
)

// Kind enumerates the closed set of per-tarball outcomes.
type Kind int

const (
	KindUnknown Kind = iota
	KindSuccess
	KindIndexFailures
	KindUnsupportedFormat
	KindBadDate
	KindMissingFile
	KindBadMetadata
	KindBadHostname
	KindUnpackError
	KindInternal
)

var kindCodes = map[Kind]string{
	KindSuccess:           "success",
	KindIndexFailures:     "index-failures",
	KindUnsupportedFormat: "fatal:unsupported-format",
	KindBadDate:           "fatal:bad-date",
	KindMissingFile:       "fatal:missing-file",
	KindBadMetadata:       "fatal:bad-metadata",
	KindBadHostname:       "fatal:bad-hostname",
	KindUnpackError:       "fatal:unpack-error",
	KindInternal:          "fatal:internal",
}

// Kinds lists every valid outcome kind in taxonomy order.
func Kinds() []Kind {
	return []Kind{
		KindUnsupportedFormat,
		KindBadDate,
		KindMissingFile,
		KindBadMetadata,
		KindBadHostname,
		KindUnpackError,
		KindInternal,
		KindIndexFailures,
		KindSuccess,
	}
}

// String returns the outcome code, e.g. "fatal:bad-date".
func (k Kind) String() string {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Valid reports whether k is a member of the closed taxonomy.
func (k Kind) Valid() bool {
	_, ok := kindCodes[k]
	return ok
}

// Fatal reports whether k is one of the fatal:* kinds.
func (k Kind) Fatal() bool {
	return strings.HasPrefix(k.String(), "fatal:")
}

// Counters are the submission statistics reported by the indexing step.
type Counters struct {
	Successes  int
	Duplicates int
	Failures   int
	Retries    int
}

// Outcome is the result of processing one tarball.
type Outcome struct {
	Kind Kind
	// Err carries the original error detail for fatal outcomes.
	Err error
	// Start and End bound the submission step; zero for fatal outcomes.
	Start time.Time
	End   time.Time
	// Elapsed measures the whole processing attempt.
	Elapsed  time.Duration
	Counters Counters
	// ErrorDetail is the path of the document-level error artifact, if any.
	ErrorDetail string
	// HasErrorDetail is true when the artifact holds more than its header line.
	HasErrorDetail bool
}

// Sentinel markers attached by the extraction collaborator.
var (
	ErrUnsupportedFormat = errors.New("unsupported tarball format")
	ErrBadDate           = errors.New("bad date")
	ErrMissingFile       = errors.New("missing file")
	ErrBadMetadata       = errors.New("bad metadata")
	ErrBadHostname       = errors.New("bad hostname")
	ErrUnpack            = errors.New("unpack error")
)

// Wrap builds an error message that includes operation context while tagging
// it with marker for later classification.
func Wrap(marker error, operation, message string, err error) error {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	detail := strings.Join(parts, ": ")
	if detail == "" {
		detail = "tarball failure"
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps a processing error to its fatal outcome kind. Markers are
// tested in taxonomy priority order; the first match wins. A plain
// fs.ErrNotExist counts as a missing file. Anything else is KindInternal.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, ErrBadDate):
		return KindBadDate
	case errors.Is(err, ErrMissingFile), errors.Is(err, fs.ErrNotExist):
		return KindMissingFile
	case errors.Is(err, ErrBadMetadata):
		return KindBadMetadata
	case errors.Is(err, ErrBadHostname):
		return KindBadHostname
	case errors.Is(err, ErrUnpack):
		return KindUnpackError
	default:
		return KindInternal
	}
}

// FromCounters derives the non-fatal outcome kind from submission counters.
func FromCounters(c Counters) Kind {
	if c.Failures > 0 {
		return KindIndexFailures
	}
	return KindSuccess
}
