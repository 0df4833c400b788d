// Package preflight validates the filesystem environment of an indexing run.
//
// RunAll checks the archive, incoming, quarantine, and tmp roots before any
// tarball is touched; Roots resolves the archive roots to canonical paths so
// that symlink-escape checks compare like with like. The states command uses
// the same checks to report environment health.
package preflight
