// Package store is the SQLite-backed search backend used by the indexer.
//
// It keeps three things: the documents produced from tarballs (keyed by index
// name and document id, so resubmission is reported as a duplicate instead of
// a copy), the registered index templates whose patterns decide which index
// names are accepted, and the run status reports whose AUTOINCREMENT ids serve
// as monotonically increasing tracking ids.
//
// Schema changes bump schemaVersion in schema.go; operators delete the database
// to adopt a new schema.
package store
