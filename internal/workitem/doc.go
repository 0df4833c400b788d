// Package workitem defines the unit of work flowing through one indexing run
// and the closed set of outcomes a tarball can end in.
//
// A Candidate is a queued tarball link that passed admission. An Item pairs a
// Candidate with exactly one Outcome. Outcome kinds are a closed enumeration;
// Classify is the only place errors from the extraction and submission
// collaborators are reduced to a kind, so every caller switches over the same
// taxonomy.
package workitem
