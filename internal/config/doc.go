// Package config loads, normalizes, and validates pbench indexer configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the _PBENCH_SERVER_CONFIG
// environment variable when no explicit path is given. The Config type
// centralizes the archive, incoming, quarantine, and temporary roots together
// with the backend store, indexing, notification, and logging knobs.
//
// Load failures are split in two classes so the driver can pick the right exit
// status: ErrMissing for an absent or unreadable file and ErrInvalid for
// content that parses but cannot be used.
package config
