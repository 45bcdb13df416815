package protocol

// BranchDescriptor describes one processor in a multicast tree, for
// visualization of the configured branches
type BranchDescriptor struct {
	Index    int                `json:"index"`          // Position in the parent, -1 for the root
	Name     string             `json:"name"`           // Display name of the processor
	Mode     string             `json:"mode,omitempty"` // Execution mode, only for multicasts
	Service  bool               `json:"service"`        // Whether the processor has start/stop hooks
	Branches []BranchDescriptor `json:"branches,omitempty"`
}

// Count returns the number of processors in the tree, including the root
func (d BranchDescriptor) Count() int {
	n := 1
	for _, b := range d.Branches {
		n += b.Count()
	}
	return n
}
