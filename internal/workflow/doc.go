// Package workflow encodes the tarball workflow state machine.
//
// A tarball's state is the name of the directory its symlink sits in under
// its controller: TO-INDEX, TO-RE-INDEX, TO-INDEX-TOOL, INDEXED, WONT-INDEX.<n>.
// There is no separate transition log; the directory is the state.
//
// The package splits the machine in two halves. Destination is a pure
// function from (mode, source state, outcome kind) to the next state and is
// trivially testable. Move is the single side-effecting boundary: a rename of
// the symlink within one filesystem that refuses to replace an existing entry,
// so a concurrent discovery pass never sees a tarball in two states and an
// unexpected collision surfaces as ErrDestinationExists instead of silently
// clobbering another link.
package workflow
