// Package discovery finds the tarballs queued for one indexing run.
//
// Discover walks <archive>/<controller>/<state>/*.tar.xz, passes every link
// through the quarantine Gate, and returns the admitted candidates smallest
// first (ties broken by path) across all controllers. The Gate never fails:
// any link it cannot vouch for is moved into the quarantine directory with a
// logged reason and left out of the run. Census counts links per state for the
// operator-facing states report.
package discovery
