package workflow

import (
	"fmt"
	"strconv"
	"strings"
)

// State is a workflow state directory name.
type State string

const (
	StateToIndex     State = "TO-INDEX"
	StateToReIndex   State = "TO-RE-INDEX"
	StateToIndexTool State = "TO-INDEX-TOOL"
	StateIndexed     State = "INDEXED"
	StateWontIndex   State = "WONT-INDEX"
	StateQuarantine  State = "QUARANTINE"
)

var pipelineStates = []State{
	StateToIndex,
	StateToReIndex,
	StateToIndexTool,
	StateIndexed,
	StateWontIndex,
}

// PipelineStates lists the fixed (un-bucketed) states a controller may hold.
func PipelineStates() []State {
	out := make([]State, len(pipelineStates))
	copy(out, pipelineStates)
	return out
}

// WontIndex returns the bucketed error state WONT-INDEX.<bucket>.
func WontIndex(bucket int) State {
	return State(fmt.Sprintf("%s.%d", StateWontIndex, bucket))
}

// ParseState recognizes a state directory name. For WONT-INDEX.<n> it also
// returns the bucket number; bucket is 0 for every other state.
func ParseState(name string) (state State, bucket int, ok bool) {
	for _, known := range pipelineStates {
		if name == string(known) {
			return known, 0, true
		}
	}
	rest, found := strings.CutPrefix(name, string(StateWontIndex)+".")
	if !found {
		return "", 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 || strconv.Itoa(n) != rest {
		return "", 0, false
	}
	return WontIndex(n), n, true
}

func (s State) String() string { return string(s) }
