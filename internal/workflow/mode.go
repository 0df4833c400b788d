package workflow

// BaseRunName is the name of the indexing driver; modes append suffixes to it.
const BaseRunName = "pbench-index"

// Mode captures an admission mode: where tarballs are picked up and where
// successfully indexed ones go. Error destinations do not vary by mode.
type Mode struct {
	Name     string
	Source   State
	Success  State
	ToolData bool
}

// ModeFor selects the admission mode for the given flags. Tool-data mode wins
// over re-index for the link source. followup routes successful run-data
// indexing to TO-INDEX-TOOL instead of INDEXED.
func ModeFor(toolData, reIndex, followup bool) Mode {
	name := BaseRunName
	if reIndex {
		name += "-re"
	}
	if toolData {
		name += "-tool-data"
		return Mode{Name: name, Source: StateToIndexTool, Success: StateIndexed, ToolData: true}
	}

	mode := Mode{Name: name, Source: StateToIndex, Success: StateIndexed}
	if reIndex {
		mode.Source = StateToReIndex
	}
	if followup {
		mode.Success = StateToIndexTool
	}
	return mode
}
