package indexing

import (
	"context"
	"errors"
)

// ErrTransient marks a backend failure that is worth retrying, such as a busy
// or temporarily unavailable backend.
var ErrTransient = errors.New("transient backend error")

// Action is one document destined for an index.
type Action struct {
	Index  string
	ID     string
	Source any
}

// Status is the backend's verdict for a single action.
type Status int

const (
	StatusCreated Status = iota
	StatusDuplicate
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusDuplicate:
		return "duplicate"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ItemResult reports what happened to one action of a bulk request.
type ItemResult struct {
	Index  string
	ID     string
	Status Status
	Error  string
}

// Backend accepts bulk requests. Implementations return one ItemResult per
// action, in order, or an error when the request as a whole failed.
type Backend interface {
	BulkIndex(ctx context.Context, actions []Action) ([]ItemResult, error)
}
