// Package indexing submits document actions to a search backend.
//
// Submit consumes a lazy action sequence, groups it into bulk requests of
// Options.BatchSize and sends up to Options.Workers requests concurrently.
// Requests failing with ErrTransient are retried with exponential backoff;
// every retry is counted. Document-level failures reported by the backend are
// written to the caller's error sink as one JSON object per line and counted,
// but they do not fail the submission. Submit either returns the complete
// Result or an error, never a partial tally.
package indexing
