// Package report keeps the ledgers of one indexing run and posts its status.
//
// A Reporter owns three append-only ledger files (indexed, erred, skipped)
// inside the run directory. Start posts the run's start record and keeps the
// returned tracking id; every later posting reuses it. PostErrors and Finish
// are best effort: their failures are logged, never returned, so reporting can
// not change the outcome of a run once processing has started.
package report
