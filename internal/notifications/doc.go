// Package notifications pushes indexing run summaries to ntfy.
//
// NewService returns an ntfy-backed Service when a topic URL is configured and
// a no-op otherwise, so the driver can always call it. Delivery is best
// effort; callers log returned errors and carry on.
package notifications
