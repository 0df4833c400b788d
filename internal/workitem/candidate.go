package workitem

import "path/filepath"

// Candidate is a discovered tarball link admitted into the pipeline.
type Candidate struct {
	// Size is the byte size of the resolved tarball.
	Size int64
	// Controller is the namespace (source host) owning the tarball.
	Controller string
	// Link is the absolute path of the queued symlink inside its state directory.
	Link string
	// Target is the canonical real path the link resolves to.
	Target string
	// State is the workflow state directory the link was found in.
	State string
}

// ControllerDir returns the controller directory holding the link's state directory.
func (c Candidate) ControllerDir() string {
	return filepath.Dir(filepath.Dir(c.Link))
}

// Name returns the tarball file name.
func (c Candidate) Name() string {
	return filepath.Base(c.Link)
}

// Item is a Candidate with its processing outcome attached.
type Item struct {
	Candidate Candidate
	Outcome   Outcome
}
