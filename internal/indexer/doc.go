// Package indexer drives one indexing run over the archive.
//
// A run validates the environment, takes the per-mode run lock, discovers
// candidates in the mode's source state, reconciles index templates, posts
// the start record, then processes each tarball in order and moves it to its
// destination state. The end-of-run report is always produced, including
// after an aborted loop.
//
// Run returns nil or an error whose class determines the process exit code;
// ExitCode performs that mapping.
package indexer
