// Package processor reduces the handling of one tarball to a single outcome.
//
// Process opens the tarball through an Extractor, feeds the resulting action
// sequence to a Submitter, and classifies whatever happens into the closed
// workitem taxonomy. Document-level error detail from the submission is kept
// in an artifact file whose first line names the tarball; the outcome records
// whether anything beyond that header was written. The processor never moves
// links; transitions belong to the caller.
package processor
